// Package coordinator implements cluster membership for graph servers.
//
// # Overview
//
// Graph servers register with the coordinator on startup and receive a
// rank. The rank fixes which contiguous block of shards the server owns;
// the block is recomputed from the current cluster size whenever the
// server list is read:
//
//	┌──────────────────────────────────────┐
//	│            COORDINATOR               │
//	├──────────────────────────────────────┤
//	│  ServerRegistry                      │
//	│    - id → rank (registration order)  │
//	│    - rank → [shard_start, shard_end) │
//	│  HealthMonitor                       │
//	│    - periodic GET /health            │
//	│    - marks servers (un)healthy       │
//	└──────────────────────────────────────┘
//
// A server that registers again under the same id keeps its rank, so a
// restarted server resumes its old shard range.
//
// # Health
//
// The monitor probes every server at a fixed interval. Three consecutive
// failures mark a server unhealthy; one success marks it healthy again.
// Status changes are reported through a callback, which the coordinator
// binary uses to update the registry. Shard ranges are not moved away from
// unhealthy servers: the data lives only in that server's memory.
//
// # Concurrency
//
// ServerRegistry and HealthMonitor are safe for concurrent use. Reads
// return copies.
package coordinator
