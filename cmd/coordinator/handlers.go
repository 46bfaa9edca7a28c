package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dreamware/graphps/internal/cluster"
	"github.com/dreamware/graphps/internal/coordinator"
	"github.com/dreamware/graphps/internal/logging"
)

type server struct {
	registry *coordinator.ServerRegistry
	logger   *logging.Logger
}

func newServer(shardNum int, logger *logging.Logger) *server {
	return &server{
		registry: coordinator.NewServerRegistry(shardNum),
		logger:   logging.OrNoop(logger),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/nodes", s.handleListNodes)
	mux.HandleFunc("/shards", s.handleShards)
	mux.HandleFunc("/shards/owner", s.handleOwner)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	rank, err := s.registry.Register(req.Node)
	if errors.Is(err, coordinator.ErrRegistryFull) {
		s.logger.Warn("registration rejected", "id", req.Node.ID, "addr", req.Node.Addr, "error", err)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Info("server registered", "id", req.Node.ID, "addr", req.Node.Addr, "rank", rank)
	writeJSON(w, cluster.RegisterResponse{Rank: rank})
}

func (s *server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, cluster.NodesResponse{Nodes: s.registry.Servers()})
}

type shardsResponse struct {
	ShardNum    int                           `json:"shard_num"`
	Assignments []coordinator.ShardAssignment `json:"assignments"`
	Unhealthy   []string                      `json:"unhealthy,omitempty"`
}

func (s *server) handleShards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, shardsResponse{
		ShardNum:    s.registry.ShardNum(),
		Assignments: s.registry.Assignments(),
		Unhealthy:   s.registry.Unhealthy(),
	})
}

// handleOwner answers GET /shards/owner?id=N with the server holding node N.
func (s *server) handleOwner(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "id must be an unsigned integer", http.StatusBadRequest)
		return
	}
	node, err := s.registry.ServerForNode(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, node)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
