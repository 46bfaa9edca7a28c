// Package service hosts graph tables behind the command dispatcher and its
// HTTP transport, turning decoded requests into table operations and table
// results into wire responses.
//
// # Overview
//
// A graph server process builds one Service over its tables and exposes it
// through a Server. The Service owns the lifecycle, the command table and
// the mapping from Go errors to wire codes; the Server owns the listener,
// request framing and the operational endpoints.
//
// # Architecture
//
//	┌──────────────────────────────────────────────┐
//	│ Server  POST /rpc │ /health │ /info │ /metrics│
//	└──────────────────────────────────────────────┘
//	                      │ Request.UnmarshalBinary
//	                      ▼
//	┌──────────────────────────────────────────────┐
//	│ Service.Dispatch                             │
//	│   table id → state → ready → table → command │
//	└──────────────────────────────────────────────┘
//	                      │ HandlerFunc
//	      ┌───────────────┼───────────────┐
//	      ▼               ▼               ▼
//	┌──────────┐    ┌──────────┐    ┌──────────┐
//	│ table 0  │    │ table 1  │ …  │ profiler │
//	└──────────┘    └──────────┘    └──────────┘
//
// # Lifecycle
//
// A server moves through a fixed set of states:
//
//	Uninitialized --Initialize--> ShardInfoPending
//	ShardInfoPending --InitializeShardInfo--> Serving
//	Serving --STOP_SERVER--> Stopping --Stop--> Stopped
//
// Initialize registers one handler per command and fails if any command is
// left without one. InitializeShardInfo runs after the transport is
// listening and the cluster size is known; it assigns every table its shard
// range exactly once and closes the ready channel. Dispatch waits on that
// channel, bounded by the request context, so no request observes an
// unassigned range.
//
// # Dispatch
//
// Each request is checked in order:
//  1. A missing table id is a protocol error
//  2. Uninitialized, Stopping and Stopped refuse the request as unavailable
//  3. The request waits for shard assignment (STOP_SERVER does not)
//  4. An unknown table id is not found, unless the command takes no table
//  5. An unknown command id is rejected
//  6. The handler runs under recover
//
// # Error Handling
//
// Every request produces exactly one response. Handler errors are mapped
// to wire codes by rpc.CodeOf. Errors with no specific code are reported
// as a generic internal error and logged with their cause, so internal
// detail never reaches clients.
//
// # Example
//
//	svc, err := service.New(tables, service.Options{Membership: m})
//	if err != nil {
//	    return err
//	}
//	if err := svc.Initialize(); err != nil {
//	    return err
//	}
//	srv := service.NewServer(svc, prometheus.DefaultGatherer)
//	if err := srv.Listen(":8081"); err != nil {
//	    return err
//	}
//	go srv.Serve()
//	if err := svc.InitializeShardInfo(ctx, rank); err != nil {
//	    return err
//	}
//	<-svc.Done()
package service
