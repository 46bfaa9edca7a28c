package coordinator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/graphps/internal/cluster"
)

func twoServers() []cluster.NodeInfo {
	return []cluster.NodeInfo{
		{ID: "graph-0", Addr: "http://localhost:8081"},
		{ID: "graph-1", Addr: "http://localhost:8082"},
	}
}

// TestNewHealthMonitor verifies the monitor defaults
func TestNewHealthMonitor(t *testing.T) {
	monitor := NewHealthMonitor(5*time.Second, 2*time.Second, nil)
	defer monitor.Stop()

	assert.Equal(t, 5*time.Second, monitor.interval)
	assert.Equal(t, 2*time.Second, monitor.timeout)
	assert.Equal(t, 3, monitor.maxFailures)
	assert.Empty(t, monitor.AllHealth())
	assert.Nil(t, monitor.Health("graph-0"))
	assert.False(t, monitor.IsHealthy("graph-0"))
}

// TestHealthMonitorStart verifies periodic probing
func TestHealthMonitorStart(t *testing.T) {
	monitor := NewHealthMonitor(20*time.Millisecond, time.Second, nil)
	defer monitor.Stop()

	var calls atomic.Int32
	monitor.SetCheckFunction(func(context.Context, string) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, twoServers)

	require.Eventually(t, func() bool { return calls.Load() >= 6 }, time.Second, 5*time.Millisecond)
	assert.Len(t, monitor.AllHealth(), 2)
	assert.True(t, monitor.IsHealthy("graph-0"))
	assert.True(t, monitor.IsHealthy("graph-1"))
}

// TestHealthMonitorFailureAndRecovery verifies status transitions
func TestHealthMonitorFailureAndRecovery(t *testing.T) {
	monitor := NewHealthMonitor(time.Hour, time.Second, nil)
	var failing atomic.Bool
	monitor.SetCheckFunction(func(_ context.Context, addr string) error {
		if addr == "http://localhost:8081" && failing.Load() {
			return errors.New("server is down")
		}
		return nil
	})

	var mu sync.Mutex
	var changes []string
	monitor.SetOnChange(func(id, status string) {
		mu.Lock()
		changes = append(changes, id+"="+status)
		mu.Unlock()
	})

	ctx := context.Background()
	monitor.checkAll(ctx, twoServers())
	require.True(t, monitor.IsHealthy("graph-0"))

	failing.Store(true)
	monitor.checkAll(ctx, twoServers())
	monitor.checkAll(ctx, twoServers())
	assert.Equal(t, StatusHealthy, monitor.Health("graph-0").Status, "below threshold")
	assert.Equal(t, 2, monitor.Health("graph-0").ConsecutiveFails)

	monitor.checkAll(ctx, twoServers())
	assert.Equal(t, StatusUnhealthy, monitor.Health("graph-0").Status)
	assert.True(t, monitor.IsHealthy("graph-1"))

	failing.Store(false)
	monitor.checkAll(ctx, twoServers())
	assert.True(t, monitor.IsHealthy("graph-0"))
	assert.Equal(t, 0, monitor.Health("graph-0").ConsecutiveFails)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 4
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.ElementsMatch(t, []string{
		"graph-0=healthy", "graph-1=healthy", "graph-0=unhealthy", "graph-0=healthy",
	}, changes)
	mu.Unlock()
}

// TestHealthMonitorRemoval verifies that departed servers are forgotten
func TestHealthMonitorRemoval(t *testing.T) {
	monitor := NewHealthMonitor(time.Hour, time.Second, nil)
	monitor.SetCheckFunction(func(context.Context, string) error { return nil })

	monitor.checkAll(context.Background(), twoServers())
	require.Len(t, monitor.AllHealth(), 2)

	monitor.checkAll(context.Background(), twoServers()[:1])
	assert.Len(t, monitor.AllHealth(), 1)
	assert.Nil(t, monitor.Health("graph-1"))
}

// TestHealthMonitorStop verifies that Stop ends Start
func TestHealthMonitorStop(t *testing.T) {
	monitor := NewHealthMonitor(10*time.Millisecond, time.Second, nil)
	monitor.SetCheckFunction(func(context.Context, string) error { return nil })

	done := make(chan struct{})
	go func() {
		monitor.Start(context.Background(), twoServers)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(monitor.AllHealth()) == 2 }, time.Second, time.Millisecond)

	monitor.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

// TestHTTPCheck verifies the default probe against real endpoints
func TestHTTPCheck(t *testing.T) {
	var serving atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !serving.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	monitor := NewHealthMonitor(time.Hour, time.Second, nil)
	ctx := context.Background()
	assert.Error(t, monitor.httpCheck(ctx, srv.URL))
	serving.Store(true)
	assert.NoError(t, monitor.httpCheck(ctx, srv.URL+"/"))
	assert.NoError(t, monitor.httpCheck(ctx, srv.Listener.Addr().String()))
	assert.Error(t, monitor.httpCheck(ctx, "http://127.0.0.1:1"))
}
