package nal

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/quick"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    [][]byte
		wantErr error
	}{
		{
			name:  "four and three byte start codes",
			input: []byte{0, 0, 0, 1, 0xAA, 0xBB, 0, 0, 1, 0xCC},
			want:  [][]byte{{0xAA, 0xBB}, {0xCC}},
		},
		{
			name:  "trailing zeros without start code stay in the unit",
			input: []byte{0, 0, 1, 0xAA, 0, 0, 0},
			want:  [][]byte{{0xAA, 0, 0, 0}},
		},
		{
			name:  "empty input",
			input: []byte{},
			want:  nil,
		},
		{
			name:  "single unit",
			input: []byte{0, 0, 0, 1, 0x65, 0x88, 0x84},
			want:  [][]byte{{0x65, 0x88, 0x84}},
		},
		{
			name:  "padding before a four byte start code",
			input: []byte{0, 0, 1, 0xAA, 0, 0, 0, 0, 1, 0xBB},
			want:  [][]byte{{0xAA, 0}, {0xBB}},
		},
		{
			name:  "one before a single zero is payload",
			input: []byte{0, 0, 1, 0xAA, 0, 1, 0xBB},
			want:  [][]byte{{0xAA, 0, 1, 0xBB}},
		},
		{
			name:  "empty unit between start codes",
			input: []byte{0, 0, 1, 0, 0, 1, 0xAA},
			want:  [][]byte{{}, {0xAA}},
		},
		{
			name:  "start code only",
			input: []byte{0, 0, 0, 1},
			want:  [][]byte{{}},
		},
		{
			name:    "missing start code",
			input:   []byte{0xAA, 0, 0, 1, 0xBB},
			wantErr: ErrInvalidStartCode,
		},
		{
			name:    "zero zero two",
			input:   []byte{0, 0, 2, 0xAA},
			wantErr: ErrInvalidStartCode,
		},
		{
			name:    "truncated start code",
			input:   []byte{0, 0},
			wantErr: ErrInvalidStartCode,
		},
		{
			name:    "three zeros then payload",
			input:   []byte{0, 0, 0, 0xAA},
			wantErr: ErrInvalidStartCode,
		},
		{
			name:  "long zero run before the final start code",
			input: []byte{0, 0, 1, 0xAA, 0, 0, 1, 0xBB, 0, 0, 0, 0, 0, 1},
			want:  [][]byte{{0xAA}, {0xBB, 0, 0}, {}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Split() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Split() = %d units %x, want %d units %x", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if !bytes.Equal(got[i], tt.want[i]) {
					t.Errorf("unit %d = % x, want % x", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNextIsIdempotentAtEnd(t *testing.T) {
	s := NewSplitter([]byte{0, 0, 1, 0x67})
	if _, err := s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	for i := range 3 {
		unit, err := s.Next()
		if err != io.EOF || unit != nil {
			t.Fatalf("call %d after end = (%v, %v), want (nil, io.EOF)", i, unit, err)
		}
	}
}

func TestInvalidStartCodeIsSticky(t *testing.T) {
	s := NewSplitter([]byte{0xFF, 0, 0, 1, 0x67})
	for i := range 2 {
		if _, err := s.Next(); !errors.Is(err, ErrInvalidStartCode) {
			t.Fatalf("call %d = %v, want ErrInvalidStartCode", i, err)
		}
	}
}

func TestUnitsAliasInput(t *testing.T) {
	buf := []byte{0, 0, 1, 0xAA, 0xBB}
	units, err := Split(buf)
	if err != nil {
		t.Fatal(err)
	}
	units[0][0] = 0x11
	if buf[3] != 0x11 {
		t.Error("unit does not share memory with the input buffer")
	}
}

func TestAllStopsEarly(t *testing.T) {
	buf := []byte{0, 0, 1, 1 << 5, 0, 0, 1, 2 << 5, 0, 0, 1, 3 << 5}
	var seen int
	for _, err := range All(buf) {
		if err != nil {
			t.Fatal(err)
		}
		seen++
		if seen == 2 {
			break
		}
	}
	if seen != 2 {
		t.Errorf("seen = %d, want 2", seen)
	}
}

// join builds an Annex-B stream, alternating 4 and 3 byte start codes.
func join(units [][]byte) []byte {
	var out []byte
	for i, u := range units {
		if i%2 == 0 {
			out = append(out, 0, 0, 0, 1)
		} else {
			out = append(out, 0, 0, 1)
		}
		out = append(out, u...)
	}
	return out
}

// sanitize removes every zero byte so no payload can look like a start code
// or trailing padding.
func sanitize(raw [][]byte) [][]byte {
	units := make([][]byte, 0, len(raw))
	for _, r := range raw {
		u := make([]byte, 0, len(r)+1)
		u = append(u, 0x41)
		for _, b := range r {
			if b != 0 {
				u = append(u, b)
			}
		}
		units = append(units, u)
	}
	return units
}

func TestSplitJoinRoundTrip(t *testing.T) {
	roundTrip := func(raw [][]byte) bool {
		units := sanitize(raw)
		got, err := Split(join(units))
		if err != nil {
			return false
		}
		if len(got) != len(units) {
			return false
		}
		return bytes.Equal(bytes.Join(got, nil), bytes.Join(units, nil))
	}
	if err := quick.Check(roundTrip, nil); err != nil {
		t.Error(err)
	}
}

func TestSingleUnitProperty(t *testing.T) {
	single := func(payload []byte, long bool) bool {
		payload = sanitize([][]byte{payload})[0]
		buf := []byte{0, 0, 1}
		if long {
			buf = []byte{0, 0, 0, 1}
		}
		buf = append(buf, payload...)
		units, err := Split(buf)
		return err == nil && len(units) == 1 && bytes.Equal(units[0], payload)
	}
	if err := quick.Check(single, nil); err != nil {
		t.Error(err)
	}
}

func TestTrailingZerosProperty(t *testing.T) {
	trailing := func(payload []byte, zeros uint8) bool {
		payload = sanitize([][]byte{payload})[0]
		pad := make([]byte, zeros%8)
		buf := append([]byte{0, 0, 1}, payload...)
		buf = append(buf, pad...)
		units, err := Split(buf)
		want := append(append([]byte(nil), payload...), pad...)
		return err == nil && len(units) == 1 && bytes.Equal(units[0], want)
	}
	if err := quick.Check(trailing, nil); err != nil {
		t.Error(err)
	}
}

func TestType(t *testing.T) {
	tests := []struct {
		unit []byte
		want UnitType
		name string
	}{
		{[]byte{0x67, 0x42}, TypeSPS, "sps"},
		{[]byte{0x68}, TypePPS, "pps"},
		{[]byte{0x65}, TypeIDR, "idr"},
		{[]byte{0x41}, TypeSlice, "slice"},
		{[]byte{0x06}, TypeSEI, "sei"},
		{[]byte{0x09}, TypeAUD, "aud"},
		{[]byte{0x1e}, 30, "type_30"},
		{nil, 0, "type_0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Type(tt.unit)
			if got != tt.want {
				t.Errorf("Type(% x) = %d, want %d", tt.unit, got, tt.want)
			}
			if got.String() != tt.name {
				t.Errorf("String() = %q, want %q", got.String(), tt.name)
			}
		})
	}
	if !TypeSPS.IsParameterSet() || TypeIDR.IsParameterSet() {
		t.Error("IsParameterSet mismatch")
	}
	if !TypeSlice.IsSlice() || !TypeIDR.IsSlice() || TypeSPS.IsSlice() || TypeSEI.IsSlice() {
		t.Error("IsSlice mismatch")
	}
}
