package shard

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dreamware/graphps/internal/graph"
)

// DefaultBucketLowBound is the smallest bucket count a shard will use.
const DefaultBucketLowBound = 11

// Handle identifies a node inside one shard's arena. It stays valid for the
// lifetime of the shard because nodes are never removed.
type Handle int

// location places a node in the scan order: bucket index plus position
// within that bucket's list.
type location struct {
	bucket int
	pos    int
	handle Handle
}

// Shard is a bucketed container for the nodes of one shard index.
//
// Nodes live in a growable arena; buckets hold arena handles in insertion
// order, and the location map resolves an id to its bucket slot in O(1).
// A node id appears in at most one bucket.
//
// Thread safety: all methods are safe for concurrent use. Tables
// additionally serialize bulk loads against queries with their own lock.
type Shard struct {
	ID       int          // Global shard index
	mu       sync.RWMutex // Protects arena, buckets and locations
	arena    []*graph.Node
	buckets  [][]Handle
	location map[uint64]location
	seed     uint64
	stats    ShardStats
}

// ShardStats tracks shard contents and operation counts.
type ShardStats struct {
	Nodes   int64  // Number of nodes
	Edges   int64  // Number of edges across all nodes
	Lookups uint64 // Number of FindNode calls
	Batches uint64 // Number of GetBatch calls
}

// ShardInfo contains metadata about a shard
type ShardInfo struct {
	ID      int   `json:"id"`
	Buckets int   `json:"buckets"`
	Nodes   int64 `json:"nodes"`
	Edges   int64 `json:"edges"`
}

// NewShard creates an empty shard.
//
// Parameters:
//   - id: global shard index this container holds
//   - shardCount: total number of shards in the cluster
//   - lowBound: minimum bucket count (DefaultBucketLowBound if <= 0)
//   - seed: base seed handed to every node's sampler
func NewShard(id, shardCount, lowBound int, seed uint64) *Shard {
	if lowBound <= 0 {
		lowBound = DefaultBucketLowBound
	}
	return &Shard{
		ID:       id,
		buckets:  make([][]Handle, BucketCount(lowBound, shardCount)),
		location: make(map[uint64]location),
		seed:     seed,
	}
}

// BucketCount returns the smallest B >= lowBound with gcd(B, shardCount) = 1.
//
// Node ids reach a shard because id mod shardCount selects it; taking the
// bucket as id mod B with B coprime to shardCount keeps the two moduli from
// funnelling every id of a shard into the same few buckets.
func BucketCount(lowBound, shardCount int) int {
	if lowBound < 1 {
		lowBound = 1
	}
	if shardCount < 1 {
		return lowBound
	}
	for b := lowBound; ; b++ {
		if gcd(b, shardCount) == 1 {
			return b
		}
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// BucketCount returns the number of buckets in this shard.
func (s *Shard) BucketCount() int { return len(s.buckets) }

// AddNode inserts a node if its id is absent and returns its handle.
// Adding an existing id leaves the stored feature untouched and returns the
// existing handle, so edges can still be appended to it.
func (s *Shard) AddNode(id uint64, feature []byte) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if loc, ok := s.location[id]; ok {
		return loc.handle
	}

	n := graph.NewNode(id, feature)
	n.SetSeed(s.seed)
	h := Handle(len(s.arena))
	s.arena = append(s.arena, n)

	b := int(id % uint64(len(s.buckets)))
	s.location[id] = location{bucket: b, pos: len(s.buckets[b]), handle: h}
	s.buckets[b] = append(s.buckets[b], h)
	atomic.AddInt64(&s.stats.Nodes, 1)
	return h
}

// AppendEdge appends an edge to the node behind h.
func (s *Shard) AppendEdge(h Handle, e graph.Edge) error {
	s.mu.RLock()
	if int(h) < 0 || int(h) >= len(s.arena) {
		s.mu.RUnlock()
		return fmt.Errorf("shard %d: handle %d: %w", s.ID, h, graph.ErrNotFound)
	}
	n := s.arena[h]
	s.mu.RUnlock()

	n.AddEdge(e)
	atomic.AddInt64(&s.stats.Edges, 1)
	return nil
}

// AddEdge appends an edge to an existing node. It returns graph.ErrNotFound
// when the node is absent.
func (s *Shard) AddEdge(id uint64, e graph.Edge) error {
	s.mu.RLock()
	loc, ok := s.location[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("shard %d: node %d: %w", s.ID, id, graph.ErrNotFound)
	}
	return s.AppendEdge(loc.handle, e)
}

// FindNode returns the node with the given id or graph.ErrNotFound.
func (s *Shard) FindNode(id uint64) (*graph.Node, error) {
	atomic.AddUint64(&s.stats.Lookups, 1)
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.location[id]
	if !ok {
		return nil, fmt.Errorf("shard %d: node %d: %w", s.ID, id, graph.ErrNotFound)
	}
	return s.arena[s.buckets[loc.bucket][loc.pos]], nil
}

// GetBatch returns up to count nodes starting at the start-th node of the
// shard's scan order: bucket index ascending, insertion order within a
// bucket. The order is stable while no load is running.
func (s *Shard) GetBatch(start, count int) []*graph.Node {
	atomic.AddUint64(&s.stats.Batches, 1)
	if start < 0 || count <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*graph.Node
	skip := start
	for _, bucket := range s.buckets {
		if skip >= len(bucket) {
			skip -= len(bucket)
			continue
		}
		for _, h := range bucket[skip:] {
			out = append(out, s.arena[h])
			if len(out) == count {
				return out
			}
		}
		skip = 0
	}
	return out
}

// Size returns the number of nodes in the shard.
func (s *Shard) Size() int {
	return int(atomic.LoadInt64(&s.stats.Nodes))
}

// EdgeCount returns the number of edges stored in the shard.
func (s *Shard) EdgeCount() int64 {
	return atomic.LoadInt64(&s.stats.Edges)
}

// GetStats returns current shard statistics
func (s *Shard) GetStats() ShardStats {
	return ShardStats{
		Nodes:   atomic.LoadInt64(&s.stats.Nodes),
		Edges:   atomic.LoadInt64(&s.stats.Edges),
		Lookups: atomic.LoadUint64(&s.stats.Lookups),
		Batches: atomic.LoadUint64(&s.stats.Batches),
	}
}

// Info returns metadata about the shard
func (s *Shard) Info() ShardInfo {
	return ShardInfo{
		ID:      s.ID,
		Buckets: len(s.buckets),
		Nodes:   atomic.LoadInt64(&s.stats.Nodes),
		Edges:   atomic.LoadInt64(&s.stats.Edges),
	}
}
