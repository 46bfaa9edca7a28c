package table

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dreamware/graphps/internal/cluster"
	"github.com/dreamware/graphps/internal/graph"
	"github.com/dreamware/graphps/internal/logging"
	"github.com/dreamware/graphps/internal/metrics"
	"github.com/dreamware/graphps/internal/shard"
	"github.com/dreamware/graphps/internal/storage"
)

// DefaultPoolSize is the number of sampling workers per table. It is fixed
// and does not grow with request volume; excess tasks queue.
const DefaultPoolSize = 11

// ErrUnassigned is returned by operations issued before SetShard.
var ErrUnassigned = errors.New("table shard range not assigned")

// Table is the capability every server-side table has.
type Table interface {
	ID() uint32
	// SetShard assigns the shard range owned by this server.
	SetShard(rank, serverCount int) error
	Load(ctx context.Context, path, param string) error
	// Stat returns the node and edge counts.
	Stat() (nodes, edges int64)
	Barrier(ctx context.Context, clientID uint32, barrierType string) error
	Close() error
}

// GraphOperations is the optional capability of tables that store a graph.
type GraphOperations interface {
	PullGraphList(start, size int) ([]byte, error)
	RandomSample(ctx context.Context, ids []uint64, k int) ([][]byte, error)
}

// Options configures a GraphTable.
type Options struct {
	ShardNum       int    // Total shards across the cluster
	BucketLowBound int    // Minimum buckets per shard
	PoolSize       int    // Sampling workers; DefaultPoolSize if <= 0
	QueueDepth     int    // Pending tasks per worker before submit blocks
	Seed           uint64 // Base sampler seed
	TrainerCount   int    // Clients that must reach a barrier
	Opener         *storage.Opener
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
}

// GraphTable stores the local shards of one logical graph and routes
// queries to them.
//
// Locking:
//   - Load, AddNode and AddEdge hold the write lock for their duration
//   - PullGraphList, RandomSample, FindNode and Stat hold the read lock
//
// Queries therefore never observe a load half-applied to a single line, but
// may observe a partially loaded source; loads should finish before
// traffic is served.
type GraphTable struct {
	id      uint32
	opts    Options
	mu      sync.RWMutex
	shards  []*shard.Shard
	start   int // First owned shard index
	end     int // One past the last owned shard index
	servers int
	pool    *workerPool
	barrier *barrierSet
	logger  *logging.Logger
}

// New creates an unassigned graph table. Call SetShard before use; until
// then queries fail with ErrUnassigned.
//
// Zero-valued options take defaults: PoolSize becomes DefaultPoolSize,
// QueueDepth 1024, and a nil Opener reads local files only.
//
// Parameters:
//   - id: Table id carried by requests addressed to this table
//   - opts: Sharding, pool and barrier settings (ShardNum must be > 0)
//
// Returns:
//   - A table with its worker pool started
//   - Error if ShardNum is not positive
//
// Example:
//
//	tbl, err := table.New(0, table.Options{ShardNum: 127, TrainerCount: 2})
func New(id uint32, opts Options) (*GraphTable, error) {
	if opts.ShardNum <= 0 {
		return nil, fmt.Errorf("table %d: shard num must be positive, got %d", id, opts.ShardNum)
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 1024
	}
	if opts.Opener == nil {
		opts.Opener = &storage.Opener{}
	}
	logger := logging.OrNoop(opts.Logger).WithTable(id)
	return &GraphTable{
		id:      id,
		opts:    opts,
		pool:    newWorkerPool(opts.PoolSize, opts.QueueDepth),
		barrier: newBarrierSet(opts.TrainerCount),
		logger:  logger,
	}, nil
}

func (t *GraphTable) ID() uint32 { return t.id }

// SetShard assigns [start, end) for rank among serverCount servers and
// allocates the local shards. Calling it again replaces the shards and
// drops their contents.
//
// Parameters:
//   - rank: This server's position in the cluster, in [0, serverCount)
//   - serverCount: Number of servers sharing the table
//
// Returns:
//   - nil on success
//   - Error if serverCount is not positive or rank is out of range
func (t *GraphTable) SetShard(rank, serverCount int) error {
	if serverCount <= 0 || rank < 0 || rank >= serverCount {
		return fmt.Errorf("table %d: invalid rank %d of %d servers", t.id, rank, serverCount)
	}
	start, end := cluster.ShardRange(rank, t.opts.ShardNum, serverCount)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.start, t.end, t.servers = start, end, serverCount
	t.shards = make([]*shard.Shard, end-start)
	for i := range t.shards {
		t.shards[i] = shard.NewShard(start+i, t.opts.ShardNum, t.opts.BucketLowBound, t.opts.Seed)
	}
	t.logger.Info("shard range assigned",
		"rank", rank,
		"servers", serverCount,
		"shard_start", start,
		"shard_end", end,
	)
	return nil
}

// ShardRange returns the assigned [start, end) and the server count.
func (t *GraphTable) ShardRange() (start, end, servers int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.start, t.end, t.servers
}

// shardFor returns the local shard owning id, or nil when another server
// owns it. Callers hold t.mu.
func (t *GraphTable) shardFor(id uint64) *shard.Shard {
	idx := cluster.ShardIndexForID(id, t.opts.ShardNum)
	if idx < t.start || idx >= t.end {
		return nil
	}
	return t.shards[idx-t.start]
}

// AddNode inserts a node owned by this table.
func (t *GraphTable) AddNode(id uint64, feature []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.servers == 0 {
		return ErrUnassigned
	}
	s := t.shardFor(id)
	if s == nil {
		return fmt.Errorf("table %d: node %d belongs to server %d", t.id, id,
			cluster.ServerIndexForID(id, t.opts.ShardNum, t.servers))
	}
	s.AddNode(id, feature)
	return nil
}

// AddEdge appends an edge to a node owned by this table.
func (t *GraphTable) AddEdge(id uint64, e graph.Edge) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.servers == 0 {
		return ErrUnassigned
	}
	s := t.shardFor(id)
	if s == nil {
		return fmt.Errorf("table %d: node %d: %w", t.id, id, graph.ErrNotFound)
	}
	return s.AddEdge(id, e)
}

// FindNode looks up a node owned by this table.
func (t *GraphTable) FindNode(id uint64) (*graph.Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.findNodeLocked(id)
}

func (t *GraphTable) findNodeLocked(id uint64) (*graph.Node, error) {
	s := t.shardFor(id)
	if s == nil {
		return nil, fmt.Errorf("table %d: node %d: %w", t.id, id, graph.ErrNotFound)
	}
	return s.FindNode(id)
}

// PullGraphList returns up to size node records starting at the start-th
// node of this server's partition, in shard order then each shard's scan
// order. Offsets are local: paging across servers is up to the caller.
func (t *GraphTable) PullGraphList(start, size int) ([]byte, error) {
	if start < 0 || size < 0 {
		return nil, fmt.Errorf("table %d: invalid window start=%d size=%d", t.id, start, size)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.servers == 0 {
		return nil, ErrUnassigned
	}

	var nodes []*graph.Node
	for _, s := range t.shards {
		if len(nodes) >= size {
			break
		}
		n := s.Size()
		if start >= n {
			start -= n
			continue
		}
		nodes = append(nodes, s.GetBatch(start, size-len(nodes))...)
		start = 0
	}

	total := 0
	for _, n := range nodes {
		total += n.Size()
	}
	buf := make([]byte, 0, total)
	for _, n := range nodes {
		buf = n.AppendTo(buf)
	}
	return buf, nil
}

// RandomSample samples up to k neighbors for each id on the worker pool.
// The result has one slot per id, in input order; each slot holds
// concatenated edge records. Ids not stored here yield an empty slot.
//
// Parameters:
//   - ctx: Bounds the wait for a free queue slot
//   - ids: Node ids, duplicates allowed
//   - k: Maximum distinct neighbors per id; k <= 0 yields empty slots
//
// Returns:
//   - One slot per id, decodable with graph.DecodeEdges
//   - ErrUnassigned before SetShard, or the ctx error if submission stalls
//
// Example:
//
//	slots, err := tbl.RandomSample(ctx, []uint64{37, 96}, 4)
//	edges, err := graph.DecodeEdges(slots[0])
func (t *GraphTable) RandomSample(ctx context.Context, ids []uint64, k int) ([][]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.servers == 0 {
		return nil, ErrUnassigned
	}

	results := make([][]byte, len(ids))
	var wg sync.WaitGroup
	var submitErr error
	for i, id := range ids {
		wg.Add(1)
		err := t.pool.submit(ctx, id, func() {
			defer wg.Done()
			results[i] = t.sampleOne(id, k)
		})
		if err != nil {
			wg.Done()
			submitErr = err
			break
		}
	}
	wg.Wait()
	if submitErr != nil {
		return nil, fmt.Errorf("table %d: random sample: %w", t.id, submitErr)
	}
	return results, nil
}

func (t *GraphTable) sampleOne(id uint64, k int) []byte {
	n, err := t.findNodeLocked(id)
	if err != nil {
		return nil
	}
	edges := n.SampleK(k)
	buf := make([]byte, 0, len(edges)*graph.EdgeWireSize)
	for _, e := range edges {
		buf = graph.AppendEdge(buf, e)
	}
	return buf
}

// Stat returns the node and edge counts across local shards.
func (t *GraphTable) Stat() (nodes, edges int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.shards {
		st := s.GetStats()
		nodes += st.Nodes
		edges += st.Edges
	}
	return nodes, edges
}

// ShardInfos describes every local shard.
func (t *GraphTable) ShardInfos() []shard.ShardInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]shard.ShardInfo, 0, len(t.shards))
	for _, s := range t.shards {
		out = append(out, s.Info())
	}
	return out
}

// Barrier blocks until TrainerCount distinct clients have reached the
// barrier of the given type, or ctx ends.
func (t *GraphTable) Barrier(ctx context.Context, clientID uint32, barrierType string) error {
	return t.barrier.wait(ctx, clientID, barrierType)
}

// Close stops the worker pool.
func (t *GraphTable) Close() error {
	t.pool.close()
	return nil
}

var (
	_ Table           = (*GraphTable)(nil)
	_ GraphOperations = (*GraphTable)(nil)
)
