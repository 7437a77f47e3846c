package fakedev

// Units contain no zero bytes, so no start code can appear inside one.
var (
	sps = []byte{0x67, 0x42, 0xc0, 0x1e, 0x95, 0xa0, 0x80, 0xa0, 0xfb, 0x81}
	pps = []byte{0xe8, 0xce, 0xbc, 0x80}
)

// EncodedFrame returns the Annex-B access unit the fake encoder emits for
// frame n. Every gop-th frame is an IDR preceded by SPS and PPS with
// 4-byte start codes; the IDR itself uses a 3-byte start code.
func EncodedFrame(n, gop int) []byte {
	gop = max(gop, 1)
	var out []byte
	if n%gop == 0 {
		out = append(out, 0, 0, 0, 1)
		out = append(out, sps...)
		out = append(out, 0, 0, 0, 1, 0x68)
		out = append(out, pps...)
		out = append(out, 0, 0, 1, 0x65)
		out = append(out, payload(n, 24)...)
		return out
	}
	out = append(out, 0, 0, 0, 1, 0x41)
	return append(out, payload(n, 12)...)
}

// EncodedUnits returns the NAL units of EncodedFrame(n, gop) without start codes.
func EncodedUnits(n, gop int) [][]byte {
	gop = max(gop, 1)
	if n%gop == 0 {
		return [][]byte{
			sps,
			append([]byte{0x68}, pps...),
			append([]byte{0x65}, payload(n, 24)...),
		}
	}
	return [][]byte{append([]byte{0x41}, payload(n, 12)...)}
}

func payload(n, size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = 0x80 | byte(n+i)&0x7f
	}
	return b
}
