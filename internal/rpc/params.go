package rpc

import "encoding/binary"

// EncodeInt32 encodes a 4-byte parameter.
func EncodeInt32(v int32) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v))
}

// EncodeUint64 encodes an 8-byte parameter.
func EncodeUint64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

// EncodeUint64s packs ids back to back.
func EncodeUint64s(vs []uint64) []byte {
	buf := make([]byte, 0, 8*len(vs))
	for _, v := range vs {
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}
	return buf
}

// DecodeInt32 reads a 4-byte parameter.
func DecodeInt32(p []byte) (int32, error) {
	if len(p) != 4 {
		return 0, Protocolf("int32 parameter has %d bytes", len(p))
	}
	return int32(binary.LittleEndian.Uint32(p)), nil
}

// DecodeUint64 reads an 8-byte parameter.
func DecodeUint64(p []byte) (uint64, error) {
	if len(p) != 8 {
		return 0, Protocolf("uint64 parameter has %d bytes", len(p))
	}
	return binary.LittleEndian.Uint64(p), nil
}

// DecodeUint64s reads a packed id list.
func DecodeUint64s(p []byte) ([]uint64, error) {
	if len(p)%8 != 0 {
		return nil, Protocolf("id list has %d bytes, not a multiple of 8", len(p))
	}
	out := make([]uint64, len(p)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(p[i*8:])
	}
	return out, nil
}

// ExpectParams checks the parameter count of a request.
func (r *Request) ExpectParams(n int) error {
	if len(r.Params) != n {
		return Protocolf("%s takes %d parameters, got %d", r.Command, n, len(r.Params))
	}
	return nil
}

// EncodeStat packs node and edge counts into a stat payload.
func EncodeStat(nodes, edges int64) []byte {
	buf := binary.LittleEndian.AppendUint64(nil, uint64(nodes))
	return binary.LittleEndian.AppendUint64(buf, uint64(edges))
}

// DecodeStat unpacks a stat payload.
func DecodeStat(p []byte) (nodes, edges int64, err error) {
	if len(p) != 16 {
		return 0, 0, Protocolf("stat payload has %d bytes", len(p))
	}
	return int64(binary.LittleEndian.Uint64(p)), int64(binary.LittleEndian.Uint64(p[8:])), nil
}

// EncodeSlots packs per-id sample results, each prefixed by its length.
func EncodeSlots(slots [][]byte) []byte {
	size := 0
	for _, s := range slots {
		size += 4 + len(s)
	}
	buf := make([]byte, 0, size)
	for _, s := range slots {
		buf = appendBytes(buf, s)
	}
	return buf
}

// DecodeSlots unpacks EncodeSlots output.
func DecodeSlots(p []byte) ([][]byte, error) {
	d := decoder{buf: p}
	var out [][]byte
	for d.err == nil && d.off < len(p) {
		out = append(out, d.bytes())
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return out, nil
}
