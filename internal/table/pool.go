package table

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool closed")

// workerPool runs tasks on a fixed set of goroutines. Each task is routed to
// a worker by the hash of its key, so tasks for the same node always run on
// the same worker.
type workerPool struct {
	mu      sync.RWMutex
	closed  bool
	workers []chan func()
	wg      sync.WaitGroup
}

func newWorkerPool(size, depth int) *workerPool {
	p := &workerPool{workers: make([]chan func(), size)}
	for i := range p.workers {
		ch := make(chan func(), depth)
		p.workers[i] = ch
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range ch {
				task()
			}
		}()
	}
	return p
}

func (p *workerPool) workerFor(key uint64) chan func() {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return p.workers[xxhash.Sum64(b[:])%uint64(len(p.workers))]
}

// submit queues task on the worker owning key. It blocks while that worker's
// queue is full, until ctx ends.
func (p *workerPool) submit(ctx context.Context, key uint64, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.workerFor(key) <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting tasks, runs what is queued and waits for workers.
func (p *workerPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, ch := range p.workers {
		close(ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
