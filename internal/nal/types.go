package nal

import (
	"fmt"

	"github.com/AlexxIT/go2rtc/pkg/h264"
)

// UnitType is the nal_unit_type field of an H.264 NAL header.
type UnitType uint8

// Unit types the pipeline cares about.
const (
	TypeSlice UnitType = UnitType(h264.NALUTypePFrame)
	TypeIDR   UnitType = UnitType(h264.NALUTypeIFrame)
	TypeSEI   UnitType = UnitType(h264.NALUTypeSEI)
	TypeSPS   UnitType = UnitType(h264.NALUTypeSPS)
	TypePPS   UnitType = UnitType(h264.NALUTypePPS)
	TypeAUD   UnitType = UnitType(h264.NALUTypeAUD)
)

var typeNames = map[UnitType]string{
	TypeSlice: "slice",
	2:         "slice_a",
	3:         "slice_b",
	4:         "slice_c",
	TypeIDR:   "idr",
	TypeSEI:   "sei",
	TypeSPS:   "sps",
	TypePPS:   "pps",
	TypeAUD:   "aud",
	10:        "end_of_seq",
	11:        "end_of_stream",
	12:        "filler",
}

func (t UnitType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type_%d", uint8(t))
}

// Type returns the type of a unit without start code. An empty unit has type 0.
func Type(unit []byte) UnitType {
	if len(unit) == 0 {
		return 0
	}
	return UnitType(unit[0] & 0x1f)
}

// IsParameterSet reports whether t is an SPS or a PPS.
func (t UnitType) IsParameterSet() bool {
	return t == TypeSPS || t == TypePPS
}

// IsSlice reports whether t carries coded picture data, IDR included.
func (t UnitType) IsSlice() bool {
	return t >= TypeSlice && t <= TypeIDR
}
