// Package cluster holds what graph servers, the coordinator and client stubs
// must agree on: the node descriptor, the HTTP helpers used between them,
// the id partitioning functions and the membership providers.
//
// # Topology
//
//	              ┌──────────────┐
//	              │ Coordinator  │  register / nodes / health
//	              └──────┬───────┘
//	                     │
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐  ┌─────▼─────┐  ┌─────▼─────┐
//	│ Server r0 │  │ Server r1 │  │ Server r2 │
//	│ shards    │  │ shards    │  │ shards    │
//	│ [0, 43)   │  │ [43, 86)  │  │ [86, 127) │
//	└───────────┘  └───────────┘  └───────────┘
//
// # Partitioning
//
// A node id maps to shard id mod shardNum. Servers own consecutive runs of
// ceil(shardNum / serverCount) shards in rank order. ShardIndexForID,
// ServerIndexForID and ShardRange are pure functions of their arguments so
// the server-side table and the client-side stub always agree.
//
// # Membership
//
// Membership is consulted when a server assigns its shard range and when a
// client builds its routing table. Two providers exist:
//
//   - StaticMembership: a fixed "host:port;host:port" list, ranked by position
//   - CoordinatorMembership: the coordinator's /nodes list, ranked by
//     registration order
//
// # Communication
//
// Control traffic (registration, listing) is JSON over HTTP via PostJSON and
// GetJSON. Graph RPCs are binary envelopes carried by PostBinary.
package cluster
