package graph

import (
	"encoding/binary"
	"math"
)

// Wire record layout, little-endian:
//
//	node: [id:8][featureLen:4][feature][edgeCount:4][edgeCount × edge]
//	edge: [targetId:8][weight:8]
const (
	idSize       = 8
	lenSize      = 4
	EdgeWireSize = idSize + 8
	minNodeSize  = idSize + lenSize + lenSize
)

// Size returns the exact number of bytes ToBuffer produces.
func (n *Node) Size() int {
	return minNodeSize + len(n.feature) + n.EdgeCount()*EdgeWireSize
}

// ToBuffer serializes the node into a new buffer of exactly Size bytes.
func (n *Node) ToBuffer() []byte {
	return n.AppendTo(make([]byte, 0, n.Size()))
}

// AppendTo appends the node record to dst.
func (n *Node) AppendTo(dst []byte) []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	dst = binary.LittleEndian.AppendUint64(dst, n.id)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(n.feature)))
	dst = append(dst, n.feature...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(n.edges)))
	for _, e := range n.edges {
		dst = AppendEdge(dst, e)
	}
	return dst
}

// AppendEdge appends a single edge record to dst.
func AppendEdge(dst []byte, e Edge) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, e.ID)
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(e.Weight))
}

// DecodeNode decodes one node record from the front of buf and returns the
// number of bytes consumed.
func DecodeNode(buf []byte) (*Node, int, error) {
	if len(buf) < minNodeSize {
		return nil, 0, decodeErrorf(0, "node header needs %d bytes, have %d", minNodeSize, len(buf))
	}
	off := 0
	id := binary.LittleEndian.Uint64(buf[off:])
	off += idSize

	featLen := uint64(binary.LittleEndian.Uint32(buf[off:]))
	off += lenSize
	if featLen > uint64(len(buf)-off-lenSize) {
		return nil, 0, decodeErrorf(off, "feature length %d exceeds buffer", featLen)
	}
	feature := buf[off : off+int(featLen)]
	off += int(featLen)

	edgeCount := uint64(binary.LittleEndian.Uint32(buf[off:]))
	off += lenSize
	if edgeCount*EdgeWireSize > uint64(len(buf)-off) {
		return nil, 0, decodeErrorf(off, "edge count %d exceeds buffer", edgeCount)
	}

	n := NewNode(id, feature)
	n.edges = make([]Edge, 0, edgeCount)
	for i := uint64(0); i < edgeCount; i++ {
		e, err := decodeEdge(buf, off)
		if err != nil {
			return nil, 0, err
		}
		n.edges = append(n.edges, e)
		off += EdgeWireSize
	}
	return n, off, nil
}

// FromBuffer decodes a buffer holding exactly one node record.
func FromBuffer(buf []byte) (*Node, error) {
	n, used, err := DecodeNode(buf)
	if err != nil {
		return nil, err
	}
	if used != len(buf) {
		return nil, decodeErrorf(used, "%d trailing bytes after node record", len(buf)-used)
	}
	return n, nil
}

// DecodeNodes decodes concatenated node records until buf is exhausted.
func DecodeNodes(buf []byte) ([]*Node, error) {
	var nodes []*Node
	for off := 0; off < len(buf); {
		n, used, err := DecodeNode(buf[off:])
		if err != nil {
			if de, ok := err.(*DecodeError); ok {
				de.Offset += off
			}
			return nil, err
		}
		nodes = append(nodes, n)
		off += used
	}
	return nodes, nil
}

// DecodeEdges decodes concatenated edge records until buf is exhausted.
func DecodeEdges(buf []byte) ([]Edge, error) {
	if len(buf)%EdgeWireSize != 0 {
		return nil, decodeErrorf(len(buf)-len(buf)%EdgeWireSize, "trailing partial edge record of %d bytes", len(buf)%EdgeWireSize)
	}
	edges := make([]Edge, 0, len(buf)/EdgeWireSize)
	for off := 0; off < len(buf); off += EdgeWireSize {
		e, err := decodeEdge(buf, off)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}

func decodeEdge(buf []byte, off int) (Edge, error) {
	if len(buf)-off < EdgeWireSize {
		return Edge{}, decodeErrorf(off, "edge record needs %d bytes, have %d", EdgeWireSize, len(buf)-off)
	}
	w := math.Float64frombits(binary.LittleEndian.Uint64(buf[off+idSize:]))
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return Edge{}, decodeErrorf(off+idSize, "invalid edge weight %v", w)
	}
	return Edge{ID: binary.LittleEndian.Uint64(buf[off:]), Weight: w}, nil
}
