package table

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	p := newWorkerPool(4, 8)
	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := uint64(0); i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.submit(context.Background(), i, func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int64(100), ran.Load())

	p.close()
	p.close()
	assert.ErrorIs(t, p.submit(context.Background(), 1, func() {}), ErrPoolClosed)
}

func TestWorkerPoolKeyAffinity(t *testing.T) {
	p := newWorkerPool(DefaultPoolSize, 1)
	defer p.close()
	for key := uint64(0); key < 50; key++ {
		assert.Equal(t, p.workerFor(key), p.workerFor(key))
	}
}

func TestWorkerPoolCloseDrains(t *testing.T) {
	p := newWorkerPool(1, 16)
	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		require.NoError(t, p.submit(context.Background(), 0, func() {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		}))
	}
	p.close()
	assert.Equal(t, int64(10), ran.Load())
}

func TestBarrier(t *testing.T) {
	b := newBarrierSet(2)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- b.wait(ctx, 1, "epoch") }()

	require.Eventually(t, func() bool { return b.pending("epoch") == 1 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("barrier opened with one client")
	default:
	}

	require.NoError(t, b.wait(ctx, 2, "epoch"))
	require.NoError(t, <-done)
	assert.Equal(t, 0, b.pending("epoch"))
}

func TestBarrierCancelledClientWithdraws(t *testing.T) {
	b := newBarrierSet(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, b.wait(ctx, 1, "epoch"), context.DeadlineExceeded)
	assert.Equal(t, 0, b.pending("epoch"))

	late, cancelLate := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelLate()
	assert.ErrorIs(t, b.wait(late, 2, "epoch"), context.DeadlineExceeded, "one live client must not open the barrier")

	done := make(chan error, 1)
	go func() { done <- b.wait(context.Background(), 3, "epoch") }()
	require.Eventually(t, func() bool { return b.pending("epoch") == 1 }, time.Second, time.Millisecond)
	require.NoError(t, b.wait(context.Background(), 4, "epoch"))
	require.NoError(t, <-done)
}

func TestBarrierSameClientTwice(t *testing.T) {
	b := newBarrierSet(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	go b.wait(ctx, 1, "x")
	require.Eventually(t, func() bool { return b.pending("x") == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, b.wait(ctx, 1, "x"), context.DeadlineExceeded)
}

func TestBarrierSingleTrainer(t *testing.T) {
	assert.NoError(t, newBarrierSet(0).wait(context.Background(), 9, "any"))
	assert.NoError(t, newBarrierSet(1).wait(context.Background(), 9, "any"))
}
