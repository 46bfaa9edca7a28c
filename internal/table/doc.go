// Package table implements the per-server router for one logical graph,
// holding this server's slice of the cluster's shards and serving loads,
// listings, neighbor sampling and trainer barriers against it.
//
// # Overview
//
// Every graph server hosts one GraphTable per configured table id. A table
// is created unassigned; once the cluster size is known the service calls
// SetShard, which fixes the contiguous shard range this server owns and
// allocates an empty shard for each index in it. From then on every node
// id routes to exactly one shard on exactly one server.
//
// # Architecture
//
//	┌──────────────────────────────────────────────┐
//	│              service.Dispatch                │
//	└──────────────────────────────────────────────┘
//	                      │
//	                      ▼
//	┌──────────────────────────────────────────────┐
//	│                 GraphTable                   │
//	│  RWMutex │ workerPool (11) │ barrierSet      │
//	└──────────────────────────────────────────────┘
//	                      │ id % ShardNum
//	      ┌───────────────┼───────────────┐
//	      ▼               ▼               ▼
//	┌──────────┐    ┌──────────┐    ┌──────────┐
//	│ shard s  │    │ shard s+1│ …  │ shard e-1│
//	└──────────┘    └──────────┘    └──────────┘
//
// # Partitioning
//
// Node ids map to shards by id mod ShardNum. Shards map to servers in
// contiguous blocks of ceil(ShardNum/servers); the last server may own
// fewer, or none:
//
//	ShardNum = 127, servers = 2
//	rank 0: shards [0, 64)
//	rank 1: shards [64, 127)
//
// Ids whose shard falls outside [start, end) are skipped on load and yield
// empty results on sampling. The layout is computed by cluster.ShardRange,
// which the client uses too, so both sides agree without a lookup.
//
// # Operations
//
// Load:
//   - Streams a text source, one node per line:
//     id<TAB>feature<TAB>neighbor[;weight]<TAB>...
//   - Sources may be local or s3://bucket/key, plain or gzip, zstd, lz4
//   - Holds the write lock for the whole source
//   - A malformed line aborts the load with a *LoadError naming the line
//
// PullGraphList:
//   - Returns a window of encoded node records in shard order
//   - Offsets are local to this server
//
// RandomSample:
//   - Fans ids out to the worker pool keyed by id
//   - Returns one slot per id in input order
//
// Barrier:
//   - Blocks until TrainerCount distinct clients arrive for a barrier type
//   - A client that gives up is withdrawn from the round
//
// # Concurrency
//
// Loads take the write lock; queries take the read lock. Sampling work runs
// on a fixed pool of DefaultPoolSize workers with buffered queues, so a
// burst of batch requests queues rather than spawning goroutines per id.
// Each node builds its sampler lazily under its own guard.
//
// # Example
//
//	tbl, err := table.New(0, table.Options{ShardNum: 127})
//	if err != nil {
//	    return err
//	}
//	defer tbl.Close()
//	if err := tbl.SetShard(rank, servers); err != nil {
//	    return err
//	}
//	if err := tbl.Load(ctx, "s3://graphs/nodes.txt.zst", ""); err != nil {
//	    return err
//	}
//	slots, err := tbl.RandomSample(ctx, []uint64{37, 59}, 4)
package table
