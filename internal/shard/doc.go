// Package shard implements the storage unit of a graph server: a
// self-contained, thread-safe container for the nodes of one shard index
// and their weighted edge lists.
//
// # Overview
//
// The node-id space is cut into shardCount shards by id mod shardCount.
// Each graph server owns a contiguous run of shard indices and keeps one
// Shard per index. A Shard never moves between servers while the process
// runs.
//
// # Architecture
//
//	┌───────────────────────────────────────────┐
//	│                 SHARD                     │
//	├───────────────────────────────────────────┤
//	│  arena:    [*Node, *Node, *Node, ...]     │
//	│               ▲       ▲                   │
//	│  buckets:  b0:[h0, h3]  b1:[]  b2:[h1]... │
//	│                                           │
//	│  location: id → (bucket, pos, handle)     │
//	└───────────────────────────────────────────┘
//
// Arena: every node is appended once and addressed by a Handle. Edges refer
// to their targets by id, so no pointer ever crosses a shard boundary and
// records can be serialized without fix-ups.
//
// Buckets: a node lands in bucket id mod B. B is the smallest integer at or
// above a configured lower bound that is coprime with shardCount (see
// BucketCount).
//
// Location map: resolves an id to its slot in O(1) for lookups and edge
// appends.
//
// # Scan Order
//
// GetBatch walks buckets in ascending index and nodes in insertion order
// within a bucket. Because nodes are never deleted, the order is stable
// across calls and a (start, count) window pages through the shard
// deterministically.
//
// # Concurrency Model
//
//   - Structure changes (AddNode) take the shard's write lock
//   - Lookups, batches and edge appends take the read lock
//   - Each node guards its own edge list and sampler
//   - Statistics are updated atomically
//
// # Usage Example
//
//	s := shard.NewShard(37, 127, shard.DefaultBucketLowBound, 0)
//	h := s.AddNode(37, []byte("aa"))
//	_ = s.AppendEdge(h, graph.Edge{ID: 45, Weight: 0.34})
//
//	n, err := s.FindNode(37)
//	if err == nil {
//	    neighbors := n.SampleK(2)
//	}
package shard
