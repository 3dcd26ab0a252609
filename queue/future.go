package queue

import (
	"context"
	"sync/atomic"
)

// Future represents the pending or completed outcome of one submitted
// operation. It is resolved exactly once, by the queue's drain loop, and
// any number of goroutines may wait on it.
type Future[T any] struct {
	done     chan struct{}
	resolved atomic.Bool
	value    T
	err      error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Done returns a channel that is closed once the Future is resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Value blocks until the operation has run and returns its result.
func (f *Future[T]) Value() (T, error) {
	<-f.done
	return f.value, f.err
}

// Err blocks until the operation has run and returns its error.
func (f *Future[T]) Err() error {
	<-f.done
	return f.err
}

// Await is Value bounded by ctx. When ctx ends first, the context error
// is returned and the Future itself is left untouched.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// State reports the Future's state without blocking.
func (f *Future[T]) State() State {
	select {
	case <-f.done:
		if f.err != nil {
			return Failed
		}
		return Fulfilled
	default:
		return Pending
	}
}

// complete moves the Future to its terminal state. A second call is a
// programming error and panics with ErrAlreadyResolved.
func (f *Future[T]) complete(v T, err error) {
	if !f.resolved.CompareAndSwap(false, true) {
		panic(ErrAlreadyResolved)
	}

	f.value = v
	f.err = err
	close(f.done)
}

// failed returns a Future already resolved with err.
func failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.complete(zero, err)
	return f
}
