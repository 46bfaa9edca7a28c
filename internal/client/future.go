package client

import "context"

// Future is the pending result of an asynchronous call. It resolves exactly
// once.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// goFuture runs fn in a new goroutine and resolves the future with its
// result.
func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		v, err := fn()
		f.val, f.err = v, err
		close(f.done)
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Get blocks until the result is available.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.val, f.err
}

// Wait blocks until the result is available or ctx ends. Ending ctx does
// not cancel the call itself.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
