package queue

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNegativeInterval is returned by [New] for an interval below zero.
	ErrNegativeInterval = errors.New("interval must not be negative")
	// ErrClosed fails Futures submitted after [Queue.Close].
	ErrClosed = errors.New("queue closed")
	// ErrAlreadyDraining is returned when Drain or Run is called while
	// another Drain or Run is in progress on the same queue.
	ErrAlreadyDraining = errors.New("queue already draining")
	// ErrNilOperation fails Futures for nil operations.
	ErrNilOperation = errors.New("operation must not be nil")
	// ErrPanicked is wrapped by [PanicError].
	ErrPanicked = errors.New("operation panicked")
	// ErrAlreadyResolved is the panic value raised when a Future is
	// resolved a second time.
	ErrAlreadyResolved = errors.New("future already resolved")
)

// Func is an operation accepted by [Submit].
type Func[T any] func(ctx context.Context) (T, error)

// PanicError is delivered to an action's Future when its operation panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrPanicked, e.Value)
}

func (e *PanicError) Unwrap() error {
	return ErrPanicked
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Pending  int
	Executed uint64
	Failed   uint64
}

// State is the lifecycle state of a [Future].
type State int

const (
	Pending State = iota
	Fulfilled
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
