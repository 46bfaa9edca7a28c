package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreamware/graphps/internal/cluster"
	"github.com/dreamware/graphps/internal/graph"
	"github.com/dreamware/graphps/internal/logging"
	"github.com/dreamware/graphps/internal/metrics"
	"github.com/dreamware/graphps/internal/rpc"
	"github.com/dreamware/graphps/internal/table"
)

// ErrStartup marks failures that keep a server from serving.
var ErrStartup = errors.New("server startup failed")

// State is the lifecycle state of a Service.
type State int32

const (
	Uninitialized State = iota
	ShardInfoPending
	Serving
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case ShardInfoPending:
		return "shard_info_pending"
	case Serving:
		return "serving"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// HandlerFunc serves one command. tbl is nil for commands that do not
// address a single table. A returned error is classified with rpc.CodeOf;
// unclassified errors become a generic internal error.
type HandlerFunc func(ctx context.Context, tbl table.Table, req *rpc.Request, resp *rpc.Response) error

type handler struct {
	fn         HandlerFunc
	needsTable bool
}

// Options configures a Service.
type Options struct {
	Membership cluster.Membership
	ProfileDir string // Directory for CPU profiles; empty disables profiling
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
}

// Service dispatches decoded requests to the tables hosted by one server.
type Service struct {
	opts     Options
	logger   *logging.Logger
	tables   map[uint32]table.Table
	handlers map[rpc.Command]handler
	state    atomic.Int32

	// Shard range assignment runs once; ready is closed when it succeeds.
	shardMu   sync.Mutex
	shardDone bool
	ready     chan struct{}
	rank      int
	servers   int

	profiler profiler

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a service hosting tables. Table ids must be unique.
func New(tables []table.Table, opts Options) (*Service, error) {
	if opts.Membership == nil {
		return nil, fmt.Errorf("%w: no membership provider", ErrStartup)
	}
	s := &Service{
		opts:   opts,
		logger: logging.OrNoop(opts.Logger).WithComponent("service"),
		tables: make(map[uint32]table.Table, len(tables)),
		ready:  make(chan struct{}),
		stopCh: make(chan struct{}),
	}
	for _, t := range tables {
		if _, dup := s.tables[t.ID()]; dup {
			return nil, fmt.Errorf("%w: duplicate table id %d", ErrStartup, t.ID())
		}
		s.tables[t.ID()] = t
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Service) State() State { return State(s.state.Load()) }

// Initialize registers the command handlers. It fails if any defined
// command has no handler.
func (s *Service) Initialize() error {
	if !s.state.CompareAndSwap(int32(Uninitialized), int32(ShardInfoPending)) {
		return fmt.Errorf("%w: initialize called in state %s", ErrStartup, s.State())
	}
	s.handlers = s.handlerTable()
	for _, cmd := range rpc.Commands() {
		if _, ok := s.handlers[cmd]; !ok {
			s.state.Store(int32(Uninitialized))
			return fmt.Errorf("%w: no handler for %s", ErrStartup, cmd)
		}
	}
	return nil
}

// InitializeShardInfo assigns each table its shard range for rank, using
// the current membership size. It runs once; later calls return nil. A
// failed attempt may be retried. Dispatch blocks until it succeeds.
//
// Concurrent callers serialize on a mutex, so membership is read and
// SetShard applied exactly once however many goroutines race here.
//
// Parameters:
//   - ctx: Bounds the membership read
//   - rank: This server's rank, in [0, number of servers)
//
// Returns:
//   - nil once every table has its range, including on repeat calls
//   - ErrStartup if called before Initialize, if rank is out of range, or
//     if a table rejects the range
//   - The membership error if the server list cannot be read
func (s *Service) InitializeShardInfo(ctx context.Context, rank int) error {
	s.shardMu.Lock()
	defer s.shardMu.Unlock()
	if s.shardDone {
		return nil
	}
	if st := s.State(); st != ShardInfoPending {
		return fmt.Errorf("%w: shard info requested in state %s", ErrStartup, st)
	}

	servers, err := s.opts.Membership.Servers(ctx)
	if err != nil {
		return fmt.Errorf("read membership: %w", err)
	}
	if rank < 0 || rank >= len(servers) {
		return fmt.Errorf("%w: rank %d outside cluster of %d servers", ErrStartup, rank, len(servers))
	}
	for _, id := range s.tableIDs() {
		if err := s.tables[id].SetShard(rank, len(servers)); err != nil {
			return fmt.Errorf("%w: %v", ErrStartup, err)
		}
	}

	s.rank, s.servers = rank, len(servers)
	s.shardDone = true
	s.state.Store(int32(Serving))
	close(s.ready)
	s.logger.Info("serving", "rank", rank, "servers", len(servers), "tables", len(s.tables))
	return nil
}

// Ready is closed once shard ranges are assigned.
func (s *Service) Ready() <-chan struct{} { return s.ready }

// Done is closed when a STOP_SERVER request is accepted.
func (s *Service) Done() <-chan struct{} { return s.stopCh }

// Dispatch serves one request and always returns exactly one response.
// Failures are reported in the response code, never as a Go error; a
// handler panic becomes an internal error. Every call is logged and
// counted in the request metrics.
//
// Example:
//
//	resp := svc.Dispatch(ctx, rpc.NewRequest(0, clientID, rpc.PrintTableStat))
//	if err := resp.Err(); err != nil {
//	    return err
//	}
func (s *Service) Dispatch(ctx context.Context, req *rpc.Request) (resp *rpc.Response) {
	start := time.Now()
	resp = &rpc.Response{}
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", req.Command, r)
		}
		s.finish(ctx, req, resp, err)
		s.opts.Metrics.ObserveRequest(req.Command.String(), int32(resp.Code), time.Since(start))
	}()
	err = s.dispatch(ctx, req, resp)
	return resp
}

func (s *Service) dispatch(ctx context.Context, req *rpc.Request, resp *rpc.Response) error {
	if !req.HasTable {
		return rpc.Protocolf("request has no table id")
	}
	switch st := s.State(); st {
	case Uninitialized, Stopping, Stopped:
		return fmt.Errorf("%w: state %s", rpc.ErrUnavailable, st)
	}
	if req.Command != rpc.StopServer {
		select {
		case <-s.ready:
		case <-ctx.Done():
			return fmt.Errorf("%w: shard info not ready: %v", rpc.ErrUnavailable, ctx.Err())
		}
	}

	// Table lookup precedes command lookup. Commands that run without a
	// table skip it.
	h, known := s.handlers[req.Command]
	tbl, found := s.tables[req.TableID]
	if !found && (!known || h.needsTable) {
		return fmt.Errorf("table not found with table_id: %d: %w", req.TableID, graph.ErrNotFound)
	}
	if !known {
		return fmt.Errorf("%w: %d", rpc.ErrUnknownCommand, int32(req.Command))
	}
	if !h.needsTable {
		tbl = nil
	}
	return h.fn(ctx, tbl, req, resp)
}

// finish fills resp from err. Unclassified errors are logged and replaced
// by a generic message.
func (s *Service) finish(ctx context.Context, req *rpc.Request, resp *rpc.Response, err error) {
	reqID, _ := ctx.Value(requestIDKey{}).(string)
	if err == nil {
		s.logger.LogRequest(ctx, reqID, req.Command.String(), 0, nil)
		return
	}
	code := rpc.CodeOf(err)
	*resp = rpc.Response{Code: code, Message: err.Error()}
	if code == rpc.CodeInternal {
		resp.Message = rpc.ErrInternal.Error()
	}
	s.logger.LogRequest(ctx, reqID, req.Command.String(), int32(code), err)
}

// Stop closes every table and marks the service stopped.
func (s *Service) Stop() error {
	s.requestStop()
	var errs []error
	for _, id := range s.tableIDs() {
		if err := s.tables[id].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.profiler.stop(); err != nil && !errors.Is(err, errProfilerIdle) {
		errs = append(errs, err)
	}
	s.state.Store(int32(Stopped))
	return errors.Join(errs...)
}

func (s *Service) requestStop() {
	s.stopOnce.Do(func() {
		s.state.Store(int32(Stopping))
		close(s.stopCh)
	})
}

// Info describes the server for the /info endpoint.
type Info struct {
	Rank    int         `json:"rank"`
	Servers int         `json:"servers"`
	State   string      `json:"state"`
	Tables  []TableInfo `json:"tables"`
}

// TableInfo describes one hosted table.
type TableInfo struct {
	ID         uint32 `json:"id"`
	ShardStart int    `json:"shard_start"`
	ShardEnd   int    `json:"shard_end"`
	Nodes      int64  `json:"nodes"`
	Edges      int64  `json:"edges"`
}

type shardRanger interface {
	ShardRange() (start, end, servers int)
}

// Info returns a snapshot of the server state.
func (s *Service) Info() Info {
	s.shardMu.Lock()
	info := Info{Rank: s.rank, Servers: s.servers, State: s.State().String()}
	s.shardMu.Unlock()

	for _, id := range s.tableIDs() {
		t := s.tables[id]
		ti := TableInfo{ID: id}
		ti.Nodes, ti.Edges = t.Stat()
		if r, ok := t.(shardRanger); ok {
			ti.ShardStart, ti.ShardEnd, _ = r.ShardRange()
		}
		info.Tables = append(info.Tables, ti)
	}
	return info
}

func (s *Service) tableIDs() []uint32 {
	ids := make([]uint32, 0, len(s.tables))
	for id := range s.tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type requestIDKey struct{}

// WithRequestID attaches a request id for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
