package graph

import (
	"math/rand/v2"
	"sync"
)

// Edge is a weighted, directed link to another node. Targets are referenced
// by id only, never by pointer.
type Edge struct {
	ID     uint64  // Target node id
	Weight float64 // Sampling weight, finite and >= 0
}

// Node is the in-memory record of a graph node.
//
// Edges are kept in insertion order. The sampler is derived from the edge
// list on first use and dropped whenever an edge is appended, so the next
// SampleK call always sees the current edges.
//
// Node is safe for concurrent use.
type Node struct {
	mu      sync.Mutex
	id      uint64
	feature []byte
	edges   []Edge
	sampler *Sampler
	seed    uint64
}

// NewNode creates a node with a private copy of feature.
func NewNode(id uint64, feature []byte) *Node {
	f := make([]byte, len(feature))
	copy(f, feature)
	return &Node{id: id, feature: f}
}

// ID returns the node id.
func (n *Node) ID() uint64 { return n.id }

// Feature returns the opaque feature payload. The caller must not modify it.
func (n *Node) Feature() []byte { return n.feature }

// SetSeed sets the seed used the next time the sampler is built.
func (n *Node) SetSeed(seed uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seed = seed
	n.sampler = nil
}

// AddEdge appends an edge and invalidates the cached sampler.
func (n *Node) AddEdge(e Edge) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edges = append(n.edges, e)
	n.sampler = nil
}

// Edges returns a copy of the edge list.
func (n *Node) Edges() []Edge {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Edge, len(n.edges))
	copy(out, n.edges)
	return out
}

// EdgeCount returns the number of edges.
func (n *Node) EdgeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.edges)
}

// SampleK draws up to k distinct edges, weighted by edge weight, without
// replacement. Asking for more edges than exist returns all of them.
func (n *Node) SampleK(k int) []Edge {
	if k <= 0 {
		return nil
	}
	n.mu.Lock()
	s := n.sampler
	if s == nil {
		snapshot := make([]Edge, len(n.edges))
		copy(snapshot, n.edges)
		s = NewSampler(snapshot, rand.NewPCG(n.seed, n.id))
		n.sampler = s
	}
	n.mu.Unlock()
	return s.SampleK(k)
}

// hasSampler reports whether a sampler is currently cached.
func (n *Node) hasSampler() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sampler != nil
}
