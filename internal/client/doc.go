// Package client is the asynchronous stub for graph servers, used by
// trainers and by graphctl to load, query and control a cluster.
//
// # Overview
//
// Every method returns a *Future immediately and performs the call on its
// own goroutine; many futures may be outstanding at once. A future resolves
// with the decoded result, a transport error, a *graph.DecodeError, or an
// *rpc.RemoteError carrying the server's code. Remote errors match the
// graph sentinels with errors.Is, so callers can test for
// graph.ErrNotFound or graph.ErrLoad without inspecting codes.
//
// # Routing
//
// The client computes ownership locally with the same partitioning the
// servers use, so no lookup service sits on the request path:
//
//	node id ──▶ id % ShardNum ──▶ shard ──▶ shard / ceil(ShardNum/servers) ──▶ rank
//
// Request kinds route as follows:
//   - Sample: one request to the owning server
//   - SampleBatch: ids grouped by owner, one request per server, run
//     concurrently; results are scattered back into input order
//   - PullGraphList: one request to the named server rank
//   - Barrier: one request to rank 0, which counts arrivals
//   - Load, LoadAll, Stat, StopServer and the profiler: every server
//
// The server list is read from membership on first use and cached. Call
// Refresh after the cluster changes. ShardNum must match the servers'
// setting (WithShardNum); the default matches the server default.
//
// # Failure Semantics
//
// Calls are never retried. A broadcast fails with the first server error;
// the other requests are cancelled. Waiting on a future with a context
// stops the wait but not the request.
//
// # Example
//
//	m, _ := cluster.ParseStaticMembership("10.0.0.1:8081;10.0.0.2:8081")
//	c := client.New(m, client.WithClientID(3))
//	if _, err := c.LoadAll(ctx, "s3://graphs/nodes.txt.zst", "").Wait(ctx); err != nil {
//	    return err
//	}
//	edges, err := c.Sample(ctx, 0, 37, 10).Get()
//	if errors.Is(err, graph.ErrNotFound) {
//	    // table 0 is not hosted
//	}
package client
