package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Membership reports the graph servers currently in the cluster, ordered by
// rank.
type Membership interface {
	Servers(ctx context.Context) ([]NodeInfo, error)
}

// StaticMembership is a fixed server list, typically from configuration.
type StaticMembership struct {
	nodes []NodeInfo
}

// NewStaticMembership ranks nodes by their position in the slice.
func NewStaticMembership(nodes []NodeInfo) *StaticMembership {
	out := make([]NodeInfo, len(nodes))
	for i, n := range nodes {
		n.Rank = i
		if n.ID == "" {
			n.ID = fmt.Sprintf("server-%d", i)
		}
		out[i] = n
	}
	return &StaticMembership{nodes: out}
}

// ParseStaticMembership parses "host:port;host:port". Entries without a
// scheme are given http://.
func ParseStaticMembership(list string) (*StaticMembership, error) {
	var nodes []NodeInfo
	for _, part := range strings.Split(list, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, "http://") && !strings.HasPrefix(part, "https://") {
			part = "http://" + part
		}
		nodes = append(nodes, NodeInfo{Addr: part})
	}
	if len(nodes) == 0 {
		return nil, errors.New("server list is empty")
	}
	return NewStaticMembership(nodes), nil
}

func (m *StaticMembership) Servers(context.Context) ([]NodeInfo, error) {
	return append([]NodeInfo(nil), m.nodes...), nil
}

// CoordinatorMembership reads membership from a coordinator's /nodes
// endpoint.
type CoordinatorMembership struct {
	Addr string
}

func (c *CoordinatorMembership) Servers(ctx context.Context) ([]NodeInfo, error) {
	var resp NodesResponse
	if err := GetJSON(ctx, strings.TrimRight(c.Addr, "/")+"/nodes", &resp); err != nil {
		return nil, err
	}
	sort.Slice(resp.Nodes, func(i, j int) bool { return resp.Nodes[i].Rank < resp.Nodes[j].Rank })
	return resp.Nodes, nil
}

// Register announces a server to the coordinator and returns its rank.
func (c *CoordinatorMembership) Register(ctx context.Context, node NodeInfo) (int, error) {
	var resp RegisterResponse
	err := PostJSON(ctx, strings.TrimRight(c.Addr, "/")+"/register", RegisterRequest{Node: node}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Rank, nil
}

// WaitForServers polls m until it lists at least want servers or ctx ends.
func WaitForServers(ctx context.Context, m Membership, want int, interval time.Duration) ([]NodeInfo, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		nodes, err := m.Servers(ctx)
		if err == nil && len(nodes) >= want {
			return nodes, nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return nil, fmt.Errorf("waiting for %d servers: %w", want, errors.Join(ctx.Err(), err))
			}
			return nil, fmt.Errorf("waiting for %d servers, have %d: %w", want, len(nodes), ctx.Err())
		case <-ticker.C:
		}
	}
}
