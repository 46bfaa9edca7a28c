package coordinator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/graphps/internal/cluster"
)

// ErrRegistryFull is returned when a new server registers after the
// configured cluster size has been reached.
var ErrRegistryFull = errors.New("cluster is full")

// ShardAssignment is the contiguous shard range owned by one server.
type ShardAssignment struct {
	ServerID   string `json:"server_id"`
	Addr       string `json:"addr"`
	Rank       int    `json:"rank"`
	ShardStart int    `json:"shard_start"`
	ShardEnd   int    `json:"shard_end"`
}

// ServerRegistry assigns ranks to graph servers in registration order and
// derives their shard ranges. Ranks are never reused: a server that
// registers again under the same id keeps its rank.
type ServerRegistry struct {
	mu         sync.RWMutex
	servers    map[string]*cluster.NodeInfo
	shardNum   int
	maxServers int
}

// NewServerRegistry creates an empty registry for a cluster of shardNum
// shards.
func NewServerRegistry(shardNum int) *ServerRegistry {
	return &ServerRegistry{servers: make(map[string]*cluster.NodeInfo), shardNum: shardNum}
}

// SetMaxServers caps the number of distinct servers. Zero means no cap.
// Servers and clients size the shard layout from the registered list, so
// the cap should equal the servers' expected_servers.
func (r *ServerRegistry) SetMaxServers(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxServers = n
}

// Register adds or updates a server and returns its rank. A new id is
// rejected with ErrRegistryFull once the cap is reached; known ids may
// always re-register.
func (r *ServerRegistry) Register(node cluster.NodeInfo) (int, error) {
	if node.ID == "" {
		return 0, errors.New("server ID cannot be empty")
	}
	if node.Addr == "" {
		return 0, fmt.Errorf("server %s has no address", node.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.servers[node.ID]; ok {
		existing.Addr = node.Addr
		existing.Status = StatusUnknown
		return existing.Rank, nil
	}
	if r.maxServers > 0 && len(r.servers) >= r.maxServers {
		return 0, fmt.Errorf("server %s: %w (%d servers)", node.ID, ErrRegistryFull, r.maxServers)
	}
	node.Rank = len(r.servers)
	node.Status = StatusUnknown
	r.servers[node.ID] = &node
	return node.Rank, nil
}

// SetStatus records a health status. Unknown ids are ignored.
func (r *ServerRegistry) SetStatus(id, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.servers[id]; ok {
		s.Status = status
	}
}

// Servers returns every server ordered by rank.
func (r *ServerRegistry) Servers() []cluster.NodeInfo {
	r.mu.RLock()
	out := make([]cluster.NodeInfo, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b cluster.NodeInfo) int { return a.Rank - b.Rank })
	return out
}

// Assignments returns each server's shard range for the current cluster
// size, ordered by rank.
func (r *ServerRegistry) Assignments() []ShardAssignment {
	servers := r.Servers()
	out := make([]ShardAssignment, 0, len(servers))
	for _, s := range servers {
		start, end := cluster.ShardRange(s.Rank, r.shardNum, len(servers))
		out = append(out, ShardAssignment{
			ServerID:   s.ID,
			Addr:       s.Addr,
			Rank:       s.Rank,
			ShardStart: start,
			ShardEnd:   end,
		})
	}
	return out
}

// ServerForNode returns the server owning a node id.
func (r *ServerRegistry) ServerForNode(id uint64) (cluster.NodeInfo, error) {
	servers := r.Servers()
	if len(servers) == 0 {
		return cluster.NodeInfo{}, errors.New("no servers registered")
	}
	return servers[cluster.ServerIndexForID(id, r.shardNum, len(servers))], nil
}

// Unhealthy returns the ids of servers currently marked unhealthy.
func (r *ServerRegistry) Unhealthy() []string {
	var out []string
	for _, s := range r.Servers() {
		if strings.EqualFold(s.Status, StatusUnhealthy) {
			out = append(out, s.ID)
		}
	}
	return out
}

// ShardNum returns the cluster shard count.
func (r *ServerRegistry) ShardNum() int { return r.shardNum }
