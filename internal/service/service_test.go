package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/graphps/internal/cluster"
	"github.com/dreamware/graphps/internal/graph"
	"github.com/dreamware/graphps/internal/rpc"
	"github.com/dreamware/graphps/internal/table"
)

const fixture = "37\tfeat-37\t96;1.0\t59;2.0\t97;0.5\n" +
	"96\tfeat-96\t37;1\t59;1\t97;1\n" +
	"59\tfeat-59\t37;3\t96\t97;0.25\n" +
	"97\tfeat-97\t37;1\t96;2\t59;4\n"

func twoServers() *cluster.StaticMembership {
	return cluster.NewStaticMembership([]cluster.NodeInfo{
		{Addr: "http://a"}, {Addr: "http://b"},
	})
}

// countingMembership records how often membership is read.
type countingMembership struct {
	cluster.Membership
	calls atomic.Int32
}

func (c *countingMembership) Servers(ctx context.Context) ([]cluster.NodeInfo, error) {
	c.calls.Add(1)
	time.Sleep(5 * time.Millisecond)
	return c.Membership.Servers(ctx)
}

// stubTable is a Table without graph operations.
type stubTable struct {
	id      uint32
	loadErr error
	panics  bool
}

func (s *stubTable) ID() uint32              { return s.id }
func (s *stubTable) SetShard(int, int) error { return nil }
func (s *stubTable) Stat() (int64, int64)    { return 1, 2 }
func (s *stubTable) Close() error            { return nil }

func (s *stubTable) Load(context.Context, string, string) error {
	if s.panics {
		panic("boom")
	}
	return s.loadErr
}

func (s *stubTable) Barrier(context.Context, uint32, string) error { return nil }

func newGraphTable(t *testing.T, id uint32) *table.GraphTable {
	t.Helper()
	tbl, err := table.New(id, table.Options{ShardNum: 127})
	require.NoError(t, err)
	return tbl
}

func newService(t *testing.T, opts Options, tables ...table.Table) *Service {
	t.Helper()
	if opts.Membership == nil {
		opts.Membership = twoServers()
	}
	svc, err := New(tables, opts)
	require.NoError(t, err)
	require.NoError(t, svc.Initialize())
	t.Cleanup(func() { svc.Stop() })
	return svc
}

func servingService(t *testing.T, rank int, tables ...table.Table) *Service {
	t.Helper()
	svc := newService(t, Options{}, tables...)
	require.NoError(t, svc.InitializeShardInfo(context.Background(), rank))
	return svc
}

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nodes.txt")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))
	return path
}

func dispatch(svc *Service, cmd rpc.Command, params ...[]byte) *rpc.Response {
	return svc.Dispatch(context.Background(), rpc.NewRequest(0, 1, cmd, params...))
}

// TestNew tests service construction
func TestNew(t *testing.T) {
	_, err := New(nil, Options{})
	assert.ErrorIs(t, err, ErrStartup)

	_, err = New([]table.Table{&stubTable{id: 1}, &stubTable{id: 1}}, Options{Membership: twoServers()})
	assert.ErrorIs(t, err, ErrStartup)
}

// TestLifecycle tests state transitions
func TestLifecycle(t *testing.T) {
	svc, err := New([]table.Table{newGraphTable(t, 0)}, Options{Membership: twoServers()})
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, svc.State())

	err = svc.InitializeShardInfo(context.Background(), 0)
	assert.ErrorIs(t, err, ErrStartup)

	resp := dispatch(svc, rpc.PrintTableStat)
	assert.Equal(t, rpc.CodeUnavailable, resp.Code)

	require.NoError(t, svc.Initialize())
	assert.Equal(t, ShardInfoPending, svc.State())
	assert.ErrorIs(t, svc.Initialize(), ErrStartup)

	assert.ErrorIs(t, svc.InitializeShardInfo(context.Background(), 2), ErrStartup)
	assert.Equal(t, ShardInfoPending, svc.State())

	require.NoError(t, svc.InitializeShardInfo(context.Background(), 1))
	assert.Equal(t, Serving, svc.State())
	require.NoError(t, svc.InitializeShardInfo(context.Background(), 0), "second call is a no-op")

	info := svc.Info()
	assert.Equal(t, 1, info.Rank)
	assert.Equal(t, 2, info.Servers)
	require.Len(t, info.Tables, 1)
	assert.Equal(t, 64, info.Tables[0].ShardStart)
	assert.Equal(t, 127, info.Tables[0].ShardEnd)

	resp = dispatch(svc, rpc.StopServer)
	require.Equal(t, rpc.CodeOK, resp.Code)
	select {
	case <-svc.Done():
	default:
		t.Fatal("Done not closed after STOP_SERVER")
	}
	assert.Equal(t, Stopping, svc.State())
	assert.Equal(t, rpc.CodeUnavailable, dispatch(svc, rpc.PrintTableStat).Code)

	require.NoError(t, svc.Stop())
	assert.Equal(t, Stopped, svc.State())
}

// TestDispatchWaitsForShardInfo tests that requests block until ranges exist
func TestDispatchWaitsForShardInfo(t *testing.T) {
	svc := newService(t, Options{}, newGraphTable(t, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp := svc.Dispatch(ctx, rpc.NewRequest(0, 1, rpc.PrintTableStat))
	assert.Equal(t, rpc.CodeUnavailable, resp.Code)

	done := make(chan *rpc.Response, 1)
	go func() { done <- dispatch(svc, rpc.PrintTableStat) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, svc.InitializeShardInfo(context.Background(), 0))

	select {
	case resp := <-done:
		assert.Equal(t, rpc.CodeOK, resp.Code)
	case <-time.After(time.Second):
		t.Fatal("request not released after shard info")
	}
}

// TestInitializeShardInfoOnce tests concurrent initialization
func TestInitializeShardInfoOnce(t *testing.T) {
	m := &countingMembership{Membership: twoServers()}
	t0, t1 := newGraphTable(t, 0), newGraphTable(t, 1)
	svc := newService(t, Options{Membership: m}, t0, t1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.InitializeShardInfo(context.Background(), 0))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), m.calls.Load())
	assert.Equal(t, Serving, svc.State())

	wantStart, wantEnd := cluster.ShardRange(0, 127, 2)
	for _, tbl := range []*table.GraphTable{t0, t1} {
		start, end, servers := tbl.ShardRange()
		assert.Equal(t, wantStart, start)
		assert.Equal(t, wantEnd, end)
		assert.Equal(t, 2, servers)
	}
}

// TestDispatchValidation tests early rejection paths
func TestDispatchValidation(t *testing.T) {
	svc := servingService(t, 0, newGraphTable(t, 0))

	resp := svc.Dispatch(context.Background(), &rpc.Request{Command: rpc.PrintTableStat})
	assert.Equal(t, rpc.CodeProtocol, resp.Code)
	assert.Contains(t, resp.Message, "no table id")

	resp = dispatch(svc, rpc.Command(77))
	assert.Equal(t, rpc.CodeUnknownCommand, resp.Code)

	resp = svc.Dispatch(context.Background(), rpc.NewRequest(5, 1, rpc.GraphSample, rpc.EncodeUint64(1), rpc.EncodeInt32(1)))
	assert.Equal(t, rpc.CodeNotFound, resp.Code)
	assert.Contains(t, resp.Message, "table not found with table_id: 5")
	assert.ErrorIs(t, resp.Err(), graph.ErrNotFound)

	resp = svc.Dispatch(context.Background(), rpc.NewRequest(5, 1, rpc.Command(77)))
	assert.Equal(t, rpc.CodeNotFound, resp.Code, "table lookup runs before command lookup")

	resp = svc.Dispatch(context.Background(), rpc.NewRequest(5, 1, rpc.StopProfiler))
	assert.Equal(t, rpc.CodeOK, resp.Code, "commands without a table ignore the table id")

	tests := []struct {
		name   string
		cmd    rpc.Command
		params [][]byte
	}{
		{"pull missing param", rpc.PullGraphList, [][]byte{rpc.EncodeInt32(0)}},
		{"pull short int", rpc.PullGraphList, [][]byte{{1}, rpc.EncodeInt32(1)}},
		{"pull negative", rpc.PullGraphList, [][]byte{rpc.EncodeInt32(-1), rpc.EncodeInt32(1)}},
		{"sample short id", rpc.GraphSample, [][]byte{rpc.EncodeInt32(37), rpc.EncodeInt32(1)}},
		{"sample negative k", rpc.GraphSample, [][]byte{rpc.EncodeUint64(37), rpc.EncodeInt32(-2)}},
		{"batch ragged ids", rpc.GraphBatchSample, [][]byte{{1, 2, 3}, rpc.EncodeInt32(1)}},
		{"load one param", rpc.LoadOneTable, [][]byte{[]byte("x")}},
		{"barrier no type", rpc.Barrier, nil},
		{"stat extra", rpc.PrintTableStat, [][]byte{{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := dispatch(svc, tt.cmd, tt.params...)
			assert.Equal(t, rpc.CodeProtocol, resp.Code, resp.Message)
		})
	}
}

// TestGraphCommands tests load, stat, list and sample through dispatch
func TestGraphCommands(t *testing.T) {
	svc := servingService(t, 0, newGraphTable(t, 0))
	path := writeFixture(t)

	resp := dispatch(svc, rpc.LoadOneTable, []byte(path), []byte(""))
	require.Equal(t, rpc.CodeOK, resp.Code, resp.Message)

	resp = dispatch(svc, rpc.PrintTableStat)
	require.Equal(t, rpc.CodeOK, resp.Code)
	nodes, edges, err := rpc.DecodeStat(resp.Data)
	require.NoError(t, err)
	assert.Equal(t, int64(2), nodes)
	assert.Equal(t, int64(6), edges)

	resp = dispatch(svc, rpc.PullGraphList, rpc.EncodeInt32(0), rpc.EncodeInt32(1))
	require.Equal(t, rpc.CodeOK, resp.Code)
	list, err := graph.DecodeNodes(resp.Attachment)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(37), list[0].ID())

	resp = dispatch(svc, rpc.PullGraphList, rpc.EncodeInt32(1), rpc.EncodeInt32(4))
	require.Equal(t, rpc.CodeOK, resp.Code)
	list, err = graph.DecodeNodes(resp.Attachment)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(59), list[0].ID())

	resp = dispatch(svc, rpc.GraphSample, rpc.EncodeUint64(37), rpc.EncodeInt32(4))
	require.Equal(t, rpc.CodeOK, resp.Code)
	sampled, err := graph.DecodeEdges(resp.Attachment)
	require.NoError(t, err)
	assert.Len(t, sampled, 3)

	resp = dispatch(svc, rpc.GraphBatchSample, rpc.EncodeUint64s([]uint64{59, 96, 37}), rpc.EncodeInt32(2))
	require.Equal(t, rpc.CodeOK, resp.Code)
	slots, err := rpc.DecodeSlots(resp.Attachment)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Len(t, slots[0], 2*graph.EdgeWireSize)
	assert.Empty(t, slots[1])
	assert.Len(t, slots[2], 2*graph.EdgeWireSize)

	resp = dispatch(svc, rpc.Barrier, []byte("epoch"))
	assert.Equal(t, rpc.CodeOK, resp.Code)

	resp = dispatch(svc, rpc.LoadOneTable, []byte(filepath.Join(t.TempDir(), "none")), []byte(""))
	assert.Equal(t, rpc.CodeLoad, resp.Code)
	assert.ErrorIs(t, resp.Err(), graph.ErrLoad)
}

// TestLoadAllTable tests loading every hosted table
func TestLoadAllTable(t *testing.T) {
	a, b := newGraphTable(t, 0), newGraphTable(t, 1)
	svc := servingService(t, 1, a, b)

	resp := dispatch(svc, rpc.LoadAllTable, []byte(writeFixture(t)), []byte(""))
	require.Equal(t, rpc.CodeOK, resp.Code, resp.Message)
	for _, tbl := range []*table.GraphTable{a, b} {
		nodes, _ := tbl.Stat()
		assert.Equal(t, int64(2), nodes)
	}
}

// TestHandlerErrors tests error classification of handler failures
func TestHandlerErrors(t *testing.T) {
	generic := &stubTable{id: 0, loadErr: errors.New("disk on fire")}
	specific := &stubTable{id: 1, loadErr: fmt.Errorf("bad line: %w", graph.ErrLoad)}
	panicky := &stubTable{id: 2, panics: true}
	svc := servingService(t, 0, generic, specific, panicky)

	load := func(id uint32) *rpc.Response {
		return svc.Dispatch(context.Background(), rpc.NewRequest(id, 1, rpc.LoadOneTable, []byte("p"), []byte("")))
	}

	resp := load(0)
	assert.Equal(t, rpc.CodeInternal, resp.Code)
	assert.Equal(t, "server internal error", resp.Message)

	resp = load(1)
	assert.Equal(t, rpc.CodeLoad, resp.Code)
	assert.Contains(t, resp.Message, "bad line")

	resp = load(2)
	assert.Equal(t, rpc.CodeInternal, resp.Code)
	assert.Equal(t, "server internal error", resp.Message)

	resp = svc.Dispatch(context.Background(), rpc.NewRequest(0, 1, rpc.PullGraphList, rpc.EncodeInt32(0), rpc.EncodeInt32(1)))
	assert.Equal(t, rpc.CodeUnsupported, resp.Code)

	resp = svc.Dispatch(context.Background(), rpc.NewRequest(0, 1, rpc.PrintTableStat))
	require.Equal(t, rpc.CodeOK, resp.Code)
	nodes, edges, err := rpc.DecodeStat(resp.Data)
	require.NoError(t, err)
	assert.Equal(t, int64(1), nodes)
	assert.Equal(t, int64(2), edges)
}

// TestProfiler tests the profiler commands
func TestProfiler(t *testing.T) {
	svc := servingService(t, 0, newGraphTable(t, 0))
	assert.Equal(t, rpc.CodeUnsupported, dispatch(svc, rpc.StartProfiler).Code)
	assert.Equal(t, rpc.CodeOK, dispatch(svc, rpc.StopProfiler).Code, "stopping an idle profiler")

	dir := t.TempDir()
	svc = newService(t, Options{ProfileDir: dir}, newGraphTable(t, 0))
	require.NoError(t, svc.InitializeShardInfo(context.Background(), 1))

	resp := dispatch(svc, rpc.StartProfiler)
	require.Equal(t, rpc.CodeOK, resp.Code, resp.Message)
	assert.Equal(t, rpc.CodeInternal, dispatch(svc, rpc.StartProfiler).Code)

	resp = dispatch(svc, rpc.StopProfiler)
	require.Equal(t, rpc.CodeOK, resp.Code, resp.Message)
	assert.FileExists(t, filepath.Join(dir, "server_1_profile"))
}
