package table

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// barrierSet tracks the clients that reached each named barrier. A barrier
// of a given type opens once want distinct clients arrive, then resets for
// the next round.
type barrierSet struct {
	want   int
	mu     sync.Mutex
	rounds map[string]*barrierRound
}

type barrierRound struct {
	arrived *roaring.Bitmap
	done    chan struct{}
}

func newBarrierSet(want int) *barrierSet {
	return &barrierSet{want: want, rounds: make(map[string]*barrierRound)}
}

// wait registers clientID at the barrier and blocks until it opens. With
// want <= 1 it returns immediately. A client whose ctx ends before the
// barrier opens is withdrawn from the round.
func (b *barrierSet) wait(ctx context.Context, clientID uint32, barrierType string) error {
	if b.want <= 1 {
		return nil
	}

	b.mu.Lock()
	r, ok := b.rounds[barrierType]
	if !ok {
		r = &barrierRound{arrived: roaring.New(), done: make(chan struct{})}
		b.rounds[barrierType] = r
	}
	r.arrived.Add(clientID)
	if int(r.arrived.GetCardinality()) >= b.want {
		close(r.done)
		delete(b.rounds, barrierType)
	}
	b.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return b.withdraw(ctx, r, clientID, barrierType)
	}
}

// withdraw removes clientID from round r unless r opened meanwhile, in
// which case the wait counts as successful.
func (b *barrierSet) withdraw(ctx context.Context, r *barrierRound, clientID uint32, barrierType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-r.done:
		return nil
	default:
	}
	r.arrived.Remove(clientID)
	if r.arrived.IsEmpty() && b.rounds[barrierType] == r {
		delete(b.rounds, barrierType)
	}
	return ctx.Err()
}

// pending returns the number of clients waiting at barrierType.
func (b *barrierSet) pending(barrierType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rounds[barrierType]; ok {
		return int(r.arrived.GetCardinality())
	}
	return 0
}
