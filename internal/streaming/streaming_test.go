package streaming

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/v4l2cast/internal/nal"
)

type captureSink struct {
	units     [][]byte
	durations []time.Duration
	closed    bool
	err       error
}

func (s *captureSink) WriteUnit(unit []byte, d time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.units = append(s.units, append([]byte(nil), unit...))
	s.durations = append(s.durations, d)
	return nil
}

func (s *captureSink) Close() error {
	s.closed = true
	return nil
}

func (s *captureSink) types() []nal.UnitType {
	out := make([]nal.UnitType, len(s.units))
	for i, u := range s.units {
		out[i] = nal.Type(u)
	}
	return out
}

var (
	testSPS   = []byte{0x67, 0x42, 0xe0, 0x1f}
	testPPS   = []byte{0x68, 0xce, 0x3c, 0x80}
	testIDR   = []byte{0x65, 0x88, 0x84}
	testSlice = []byte{0x41, 0x9a}
)

func TestParseParameterSets(t *testing.T) {
	// Real-world fmtp line from an RTSP camera
	fmtp := "profile-level-id=42e01f;packetization-mode=1;sprop-parameter-sets=Z0IAKeKQFAe2AtwEBAaQeJEV,aM48gA=="

	sps, pps, err := ParseParameterSets(fmtp)
	if err != nil {
		t.Fatalf("ParseParameterSets: %v", err)
	}
	if len(sps) == 0 || len(pps) == 0 {
		t.Fatal("SPS and PPS should not be empty")
	}
	if nal.Type(sps) != nal.TypeSPS {
		t.Errorf("SPS NAL type = %d, want 7", nal.Type(sps))
	}
	if nal.Type(pps) != nal.TypePPS {
		t.Errorf("PPS NAL type = %d, want 8", nal.Type(pps))
	}

	for _, line := range []string{"", "packetization-mode=1"} {
		if sps, pps, err := ParseParameterSets(line); sps != nil || pps != nil || err != nil {
			t.Errorf("ParseParameterSets(%q) = %x %x %v, want nothing", line, sps, pps, err)
		}
	}
}

func TestParseParameterSetsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		fmtp string
	}{
		{"missing pps", "sprop-parameter-sets=Z0IAKeKQFAe2AtwEBAaQeJEV"},
		{"bad sps base64", "sprop-parameter-sets=Z0I@AK,aM48gA=="},
		{"bad pps base64", "sprop-parameter-sets=Z0IAKeKQFAe2AtwEBAaQeJEV,aM4*gA=="},
		{"swapped", "sprop-parameter-sets=aM48gA==,Z0IAKeKQFAe2AtwEBAaQeJEV"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseParameterSets(tt.fmtp); err == nil {
				t.Errorf("ParseParameterSets(%q) should fail", tt.fmtp)
			}
			if _, err := NewParameterSetInjector(&captureSink{}, tt.fmtp); err == nil {
				t.Error("NewParameterSetInjector should fail")
			}
		})
	}
}

func newInjector(t *testing.T, next Sink, fmtp string) *ParameterSetInjector {
	t.Helper()
	inj, err := NewParameterSetInjector(next, fmtp)
	if err != nil {
		t.Fatalf("NewParameterSetInjector: %v", err)
	}
	return inj
}

func TestInjectorRepeatsAfterSliceGap(t *testing.T) {
	next := &captureSink{}
	inj := newInjector(t, next, "")

	for _, u := range [][]byte{testSPS, testPPS, testSlice, testIDR} {
		if err := inj.WriteUnit(u, time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}

	want := []nal.UnitType{
		nal.TypeSPS, nal.TypePPS, nal.TypeSlice,
		nal.TypeSPS, nal.TypePPS, nal.TypeIDR,
	}
	if got := next.types(); !equalTypes(got, want) {
		t.Errorf("types = %v, want %v", got, want)
	}
}

func TestInjectorPassesInBandParameterSets(t *testing.T) {
	next := &captureSink{}
	inj := newInjector(t, next, "")

	for _, u := range [][]byte{testSPS, testPPS, testIDR, testSlice} {
		if err := inj.WriteUnit(u, time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}

	want := []nal.UnitType{nal.TypeSPS, nal.TypePPS, nal.TypeIDR, nal.TypeSlice}
	if got := next.types(); !equalTypes(got, want) {
		t.Errorf("types = %v, want %v", got, want)
	}
}

func TestInjectorRepeatsBeforeBareIDR(t *testing.T) {
	next := &captureSink{}
	inj := newInjector(t, next, "")

	for _, u := range [][]byte{testSPS, testPPS, testIDR, testSlice, testIDR, testSlice} {
		if err := inj.WriteUnit(u, time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}

	want := []nal.UnitType{
		nal.TypeSPS, nal.TypePPS, nal.TypeIDR, nal.TypeSlice,
		nal.TypeSPS, nal.TypePPS, nal.TypeIDR, nal.TypeSlice,
	}
	if got := next.types(); !equalTypes(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
	if !bytes.Equal(next.units[4], testSPS) || !bytes.Equal(next.units[5], testPPS) {
		t.Error("injected parameter sets differ from the cached ones")
	}
	if next.durations[4] != 0 || next.durations[6] != time.Millisecond {
		t.Errorf("durations = %v", next.durations)
	}
}

func TestInjectorSeededFromFmtp(t *testing.T) {
	next := &captureSink{}
	inj := newInjector(t, next, "sprop-parameter-sets=Z0IAKeKQFAe2AtwEBAaQeJEV,aM48gA==")

	if err := inj.WriteUnit(testIDR, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	want := []nal.UnitType{nal.TypeSPS, nal.TypePPS, nal.TypeIDR}
	if got := next.types(); !equalTypes(got, want) {
		t.Errorf("types = %v, want %v", got, want)
	}
}

func TestInjectorWithoutParameterSets(t *testing.T) {
	next := &captureSink{}
	inj := newInjector(t, next, "")

	if err := inj.WriteUnit(testIDR, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if len(next.units) != 1 {
		t.Errorf("got %d units, want the IDR alone", len(next.units))
	}
}

func TestInjectorPropagatesErrors(t *testing.T) {
	boom := errors.New("closed")
	next := &captureSink{err: boom}
	inj := newInjector(t, next, "")
	if err := inj.WriteUnit(testSlice, 0); !errors.Is(err, boom) {
		t.Errorf("WriteUnit() = %v, want %v", err, boom)
	}
	if err := inj.Close(); err != nil || !next.closed {
		t.Errorf("Close() = %v, closed = %v", err, next.closed)
	}
}

func TestAnnexBSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewAnnexBSink(&buf)

	for _, u := range [][]byte{testSPS, testPPS, testIDR} {
		if err := s.WriteUnit(u, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	units, err := nal.Split(buf.Bytes())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(units) != 3 || !bytes.Equal(units[2], testIDR) {
		t.Errorf("round trip = %x", units)
	}
	if err := s.WriteUnit(testSlice, 0); err == nil {
		t.Error("WriteUnit after Close should fail")
	}
}

func TestNewFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.h264")
	s, err := New(Config{Kind: KindFile, Path: path, InjectParameterSets: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.(*ParameterSetInjector); !ok {
		t.Errorf("sink = %T, want *ParameterSetInjector", s)
	}
	if err := s.WriteUnit(testSlice, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte{0, 0, 0, 1}, testSlice...)
	if !bytes.Equal(data, want) {
		t.Errorf("file = % x, want % x", data, want)
	}
}

func TestNewSinkKinds(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{kind: KindDiscard},
		{kind: ""},
		{kind: KindTrack},
		{kind: "rtmp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			s, err := New(Config{Kind: tt.kind})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			}
			if s != nil {
				if err := s.WriteUnit(testIDR, time.Second/15); err != nil {
					t.Errorf("WriteUnit: %v", err)
				}
				_ = s.Close()
			}
		})
	}
}

func TestDiscardSinkCounts(t *testing.T) {
	s := &DiscardSink{}
	_ = s.WriteUnit(testSPS, 0)
	_ = s.WriteUnit(testIDR, 0)
	if s.Units() != 2 || s.Bytes() != uint64(len(testSPS)+len(testIDR)) {
		t.Errorf("Units = %d Bytes = %d", s.Units(), s.Bytes())
	}
}

func equalTypes(a, b []nal.UnitType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
