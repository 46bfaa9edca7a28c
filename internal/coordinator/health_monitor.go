package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/graphps/internal/cluster"
	"github.com/dreamware/graphps/internal/logging"
)

// Health states reported by the monitor.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ServerHealth tracks the probe history of one graph server.
type ServerHealth struct {
	LastCheck        time.Time
	LastHealthy      time.Time
	ServerID         string
	Status           string
	ConsecutiveFails int
}

// CheckFunc probes one server address.
type CheckFunc func(ctx context.Context, addr string) error

// HealthMonitor probes every registered graph server's /health endpoint.
// A server is marked unhealthy after maxFailures consecutive failed probes
// and healthy again after one success. A server that is still waiting for
// its shard range answers 503 and therefore counts as a failure.
type HealthMonitor struct {
	servers     map[string]*ServerHealth
	httpClient  *http.Client
	checkFunc   CheckFunc
	onChange    func(serverID, status string)
	logger      *logging.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	timeout     time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewHealthMonitor creates a monitor probing every interval. Probes time
// out after timeout.
func NewHealthMonitor(interval, timeout time.Duration, logger *logging.Logger) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &HealthMonitor{
		interval:    interval,
		timeout:     timeout,
		maxFailures: 3,
		servers:     make(map[string]*ServerHealth),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logging.OrNoop(logger).WithComponent("health"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetOnChange registers a callback for transitions into healthy or
// unhealthy. It runs on its own goroutine.
func (h *HealthMonitor) SetOnChange(fn func(serverID, status string)) {
	h.onChange = fn
}

// SetCheckFunction replaces the HTTP probe, mainly for tests.
func (h *HealthMonitor) SetCheckFunction(fn CheckFunc) {
	h.checkFunc = fn
}

// Start probes servers until ctx ends or Stop is called. It blocks.
func (h *HealthMonitor) Start(ctx context.Context, servers func() []cluster.NodeInfo) {
	h.wg.Add(1)
	defer h.wg.Done()

	if h.checkFunc == nil {
		h.checkFunc = h.httpCheck
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("health monitor started", "interval", h.interval)
	h.checkAll(ctx, servers())
	for {
		select {
		case <-ticker.C:
			h.checkAll(ctx, servers())
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop ends Start and waits for it to return.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *HealthMonitor) checkAll(ctx context.Context, servers []cluster.NodeInfo) {
	current := make(map[string]bool, len(servers))
	for _, s := range servers {
		current[s.ID] = true
		h.check(ctx, s)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.servers {
		if !current[id] {
			delete(h.servers, id)
			h.logger.Info("server removed from health monitoring", "server", id)
		}
	}
}

func (h *HealthMonitor) check(ctx context.Context, s cluster.NodeInfo) {
	h.mu.Lock()
	health, ok := h.servers[s.ID]
	if !ok {
		now := time.Now()
		health = &ServerHealth{ServerID: s.ID, Status: StatusUnknown, LastCheck: now, LastHealthy: now}
		h.servers[s.ID] = health
	}
	h.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	err := h.checkFunc(probeCtx, s.Addr)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	health.LastCheck = time.Now()
	previous := health.Status
	if err != nil {
		health.ConsecutiveFails++
		h.logger.Warn("health check failed",
			"server", s.ID,
			"attempt", health.ConsecutiveFails,
			"max", h.maxFailures,
			"error", err,
		)
		if health.ConsecutiveFails >= h.maxFailures {
			health.Status = StatusUnhealthy
		}
	} else {
		health.Status = StatusHealthy
		health.ConsecutiveFails = 0
		health.LastHealthy = health.LastCheck
	}

	if health.Status != previous && health.Status != StatusUnknown {
		h.logger.Info("server health changed", "server", s.ID, "from", previous, "to", health.Status)
		if h.onChange != nil {
			go h.onChange(s.ID, health.Status)
		}
	}
}

func (h *HealthMonitor) httpCheck(ctx context.Context, addr string) error {
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	url = strings.TrimRight(url, "/") + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Health returns a copy of one server's record, or nil if untracked.
func (h *HealthMonitor) Health(serverID string) *ServerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.servers[serverID]
	if !ok {
		return nil
	}
	c := *health
	return &c
}

// AllHealth returns copies of every record.
func (h *HealthMonitor) AllHealth() map[string]*ServerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]*ServerHealth, len(h.servers))
	for id, health := range h.servers {
		c := *health
		out[id] = &c
	}
	return out
}

// IsHealthy reports whether the last probe of serverID succeeded.
func (h *HealthMonitor) IsHealthy(serverID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.servers[serverID]
	return ok && health.Status == StatusHealthy
}
