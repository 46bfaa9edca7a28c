package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/graphps/internal/cluster"
	"github.com/dreamware/graphps/internal/rpc"
)

// MaxRequestSize bounds an /rpc request body.
const MaxRequestSize = 64 << 20

// Server exposes a Service over HTTP:
//
//	POST /rpc     - binary request envelope, binary response envelope
//	GET  /health  - 200 while serving, 503 otherwise
//	GET  /info    - rank, state and per-table counts as JSON
//	GET  /metrics - Prometheus exposition
type Server struct {
	svc *Service
	srv *http.Server
	ln  net.Listener
}

// NewServer wraps svc. gatherer may be nil to omit /metrics.
func NewServer(svc *Service, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", svc.handleRPC)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if svc.State() != Serving {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(svc.Info())
	})
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return &Server{
		svc: svc,
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Listen binds addr. Bind failures match ErrStartup.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %v", ErrStartup, addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Serve() error {
	if s.ln == nil {
		return fmt.Errorf("%w: serve before listen", ErrStartup)
	}
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Service) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqID := r.Header.Get(cluster.RequestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(cluster.RequestIDHeader, reqID)
	ctx := WithRequestID(r.Context(), reqID)

	var resp *rpc.Response
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestSize+1))
	switch {
	case err != nil:
		resp = rpc.ErrorResponse(rpc.Protocolf("read body: %v", err))
	case len(body) > MaxRequestSize:
		resp = rpc.ErrorResponse(rpc.Protocolf("request exceeds %d bytes", MaxRequestSize))
	default:
		var req rpc.Request
		if err := req.UnmarshalBinary(body); err != nil {
			resp = rpc.ErrorResponse(err)
			s.logger.LogRequest(ctx, reqID, "DECODE", int32(resp.Code), err)
		} else {
			resp = s.Dispatch(ctx, &req)
		}
	}

	out, _ := resp.MarshalBinary()
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(out); err != nil {
		s.logger.WarnContext(ctx, "write response", "request_id", reqID, "error", err)
	}
}
