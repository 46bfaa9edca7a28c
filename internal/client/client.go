package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dreamware/graphps/internal/cluster"
	"github.com/dreamware/graphps/internal/graph"
	"github.com/dreamware/graphps/internal/logging"
	"github.com/dreamware/graphps/internal/rpc"
)

// DefaultShardNum matches the server default.
const DefaultShardNum = 127

// ErrNoServers is returned when membership lists no servers.
var ErrNoServers = errors.New("no graph servers")

// Stat is the node and edge count of a table.
type Stat struct {
	Nodes int64
	Edges int64
}

// Client issues asynchronous commands to graph servers. It routes
// single-node requests to the owning server and fans out batch and
// broadcast requests. Calls are never retried.
type Client struct {
	membership cluster.Membership
	hc         *http.Client
	limiter    *rate.Limiter
	clientID   uint32
	shardNum   int
	logger     *logging.Logger

	mu      sync.Mutex
	servers []cluster.NodeInfo
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithRateLimit paces outgoing requests.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithClientID sets the id sent with every request and used by barriers.
func WithClientID(id uint32) Option {
	return func(c *Client) { c.clientID = id }
}

// WithShardNum sets the cluster shard count used for routing.
func WithShardNum(n int) Option {
	return func(c *Client) { c.shardNum = n }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client reading servers from m. Membership is not read
// until the first call.
//
// Parameters:
//   - m: Source of the server list, ordered by rank
//   - opts: Client id, shard count, rate limit, transport and logger
//
// Returns:
//   - A client with a 60s HTTP timeout and DefaultShardNum unless
//     overridden
//
// Example:
//
//	c := client.New(&cluster.CoordinatorMembership{Addr: "http://coord:8080"},
//	    client.WithClientID(1),
//	    client.WithRateLimit(rate.Limit(500), 1),
//	)
func New(m cluster.Membership, opts ...Option) *Client {
	c := &Client{
		membership: m,
		hc:         &http.Client{Timeout: 60 * time.Second},
		shardNum:   DefaultShardNum,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNoop(c.logger).WithComponent("client")
	return c
}

// Refresh re-reads membership.
func (c *Client) Refresh(ctx context.Context) error {
	servers, err := c.membership.Servers(ctx)
	if err != nil {
		return fmt.Errorf("read membership: %w", err)
	}
	if len(servers) == 0 {
		return ErrNoServers
	}
	c.mu.Lock()
	c.servers = servers
	c.mu.Unlock()
	return nil
}

func (c *Client) serverList(ctx context.Context) ([]cluster.NodeInfo, error) {
	c.mu.Lock()
	servers := c.servers
	c.mu.Unlock()
	if servers != nil {
		return servers, nil
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.servers, nil
}

// call sends one request and returns the response, or the remote error it
// carries.
func (c *Client) call(ctx context.Context, server cluster.NodeInfo, req *rpc.Request) (*rpc.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	body, err := req.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out, reqID, err := cluster.PostBinary(ctx, c.hc, server.Addr+"/rpc", body)
	if err != nil {
		return nil, fmt.Errorf("%s to %s: %w", req.Command, server.Addr, err)
	}
	var resp rpc.Response
	if err := resp.UnmarshalBinary(out); err != nil {
		return nil, fmt.Errorf("%s from %s: %w", req.Command, server.Addr, err)
	}
	if err := resp.Err(); err != nil {
		c.logger.DebugContext(ctx, "remote error",
			"request_id", reqID,
			"server", server.Addr,
			"command", req.Command.String(),
			"code", int32(resp.Code),
		)
		return nil, err
	}
	return &resp, nil
}

func (c *Client) callServer(ctx context.Context, index int, req *rpc.Request) (*rpc.Response, error) {
	servers, err := c.serverList(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(servers) {
		return nil, fmt.Errorf("server index %d outside cluster of %d", index, len(servers))
	}
	return c.call(ctx, servers[index], req)
}

// broadcast sends req to every server concurrently and returns the
// responses in rank order.
func (c *Client) broadcast(ctx context.Context, req *rpc.Request) ([]*rpc.Response, error) {
	servers, err := c.serverList(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*rpc.Response, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range servers {
		g.Go(func() error {
			resp, err := c.call(gctx, s, req)
			out[i] = resp
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) request(tableID uint32, cmd rpc.Command, params ...[]byte) *rpc.Request {
	return rpc.NewRequest(tableID, c.clientID, cmd, params...)
}

// Sample draws up to k neighbors of nodeID from the server that owns it.
// A node the owner does not store resolves to an empty slice.
//
// Example:
//
//	edges, err := c.Sample(ctx, 0, 37, 4).Get()
//	for _, e := range edges {
//	    fmt.Println(e.ID, e.Weight)
//	}
func (c *Client) Sample(ctx context.Context, tableID uint32, nodeID uint64, k int) *Future[[]graph.Edge] {
	return goFuture(func() ([]graph.Edge, error) {
		servers, err := c.serverList(ctx)
		if err != nil {
			return nil, err
		}
		idx := cluster.ServerIndexForID(nodeID, c.shardNum, len(servers))
		resp, err := c.call(ctx, servers[idx], c.request(tableID, rpc.GraphSample,
			rpc.EncodeUint64(nodeID), rpc.EncodeInt32(int32(k))))
		if err != nil {
			return nil, err
		}
		return graph.DecodeEdges(resp.Attachment)
	})
}

// SampleBatch samples every id, one request per owning server. The result
// has one entry per id, in input order.
//
// Parameters:
//   - tableID: Table to sample from
//   - ids: Node ids in any order, duplicates allowed
//   - k: Maximum distinct neighbors per id
//
// Returns:
//   - A future resolving to one edge slice per id; unknown ids yield an
//     empty slice
//   - The first server or decode error, after which the remaining
//     per-server requests are cancelled
func (c *Client) SampleBatch(ctx context.Context, tableID uint32, ids []uint64, k int) *Future[[][]graph.Edge] {
	return goFuture(func() ([][]graph.Edge, error) {
		servers, err := c.serverList(ctx)
		if err != nil {
			return nil, err
		}
		// positions[s] lists the input indexes routed to server s.
		positions := make([][]int, len(servers))
		for i, id := range ids {
			s := cluster.ServerIndexForID(id, c.shardNum, len(servers))
			positions[s] = append(positions[s], i)
		}

		out := make([][]graph.Edge, len(ids))
		g, gctx := errgroup.WithContext(ctx)
		for s, pos := range positions {
			if len(pos) == 0 {
				continue
			}
			batch := make([]uint64, len(pos))
			for j, p := range pos {
				batch[j] = ids[p]
			}
			g.Go(func() error {
				resp, err := c.call(gctx, servers[s], c.request(tableID, rpc.GraphBatchSample,
					rpc.EncodeUint64s(batch), rpc.EncodeInt32(int32(k))))
				if err != nil {
					return err
				}
				slots, err := rpc.DecodeSlots(resp.Attachment)
				if err != nil {
					return err
				}
				if len(slots) != len(pos) {
					return &graph.DecodeError{Reason: fmt.Sprintf("server %d returned %d slots for %d ids", s, len(slots), len(pos))}
				}
				for j, slot := range slots {
					edges, err := graph.DecodeEdges(slot)
					if err != nil {
						return err
					}
					out[pos[j]] = edges
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// PullGraphList lists up to size nodes from one server, starting at the
// start-th node of that server's partition. Paging across the cluster
// walks server ranks in turn until each returns fewer than size nodes.
//
// Example:
//
//	for rank := 0; rank < servers; rank++ {
//	    for start := 0; ; start += 100 {
//	        nodes, err := c.PullGraphList(ctx, 0, rank, start, 100).Get()
//	        if err != nil || len(nodes) < 100 {
//	            break
//	        }
//	    }
//	}
func (c *Client) PullGraphList(ctx context.Context, tableID uint32, server, start, size int) *Future[[]*graph.Node] {
	return goFuture(func() ([]*graph.Node, error) {
		resp, err := c.callServer(ctx, server, c.request(tableID, rpc.PullGraphList,
			rpc.EncodeInt32(int32(start)), rpc.EncodeInt32(int32(size))))
		if err != nil {
			return nil, err
		}
		return graph.DecodeNodes(resp.Attachment)
	})
}

// Load asks every server to load path into one table. Each server keeps
// the ids it owns.
func (c *Client) Load(ctx context.Context, tableID uint32, path, param string) *Future[struct{}] {
	return goFuture(func() (struct{}, error) {
		_, err := c.broadcast(ctx, c.request(tableID, rpc.LoadOneTable, []byte(path), []byte(param)))
		return struct{}{}, err
	})
}

// LoadAll asks every server to load path into all of its tables.
func (c *Client) LoadAll(ctx context.Context, path, param string) *Future[struct{}] {
	return goFuture(func() (struct{}, error) {
		_, err := c.broadcast(ctx, c.request(0, rpc.LoadAllTable, []byte(path), []byte(param)))
		return struct{}{}, err
	})
}

// Stat sums a table's counts across servers.
func (c *Client) Stat(ctx context.Context, tableID uint32) *Future[Stat] {
	return goFuture(func() (Stat, error) {
		resps, err := c.broadcast(ctx, c.request(tableID, rpc.PrintTableStat))
		if err != nil {
			return Stat{}, err
		}
		var total Stat
		for _, r := range resps {
			nodes, edges, err := rpc.DecodeStat(r.Data)
			if err != nil {
				return Stat{}, err
			}
			total.Nodes += nodes
			total.Edges += edges
		}
		return total, nil
	})
}

// Barrier waits at the named barrier on the first server until every
// trainer has arrived.
func (c *Client) Barrier(ctx context.Context, tableID uint32, barrierType string) *Future[struct{}] {
	return goFuture(func() (struct{}, error) {
		_, err := c.callServer(ctx, 0, c.request(tableID, rpc.Barrier, []byte(barrierType)))
		return struct{}{}, err
	})
}

// StopServer asks every server to shut down.
func (c *Client) StopServer(ctx context.Context) *Future[struct{}] {
	return c.broadcastNoResult(ctx, rpc.StopServer)
}

// StartProfiler starts CPU profiling on every server.
func (c *Client) StartProfiler(ctx context.Context) *Future[struct{}] {
	return c.broadcastNoResult(ctx, rpc.StartProfiler)
}

// StopProfiler stops CPU profiling on every server.
func (c *Client) StopProfiler(ctx context.Context) *Future[struct{}] {
	return c.broadcastNoResult(ctx, rpc.StopProfiler)
}

func (c *Client) broadcastNoResult(ctx context.Context, cmd rpc.Command) *Future[struct{}] {
	return goFuture(func() (struct{}, error) {
		_, err := c.broadcast(ctx, c.request(0, cmd))
		return struct{}{}, err
	})
}
