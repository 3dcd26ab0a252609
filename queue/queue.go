package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// action is one queued operation. run invokes the operation and resolves
// the submitter's Future, so the queue never needs the result type.
type action struct {
	seq      uint64
	wait     time.Duration
	enqueued time.Time
	run      func(ctx context.Context) error
}

// Queue serializes submitted operations, waiting a fixed interval before
// each one. It is safe to submit from many goroutines, including while
// the queue is draining.
type Queue struct {
	id       string
	name     string
	interval time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer

	mu       sync.Mutex
	pending  []*action
	seq      uint64
	draining bool
	closed   bool
	wake     chan struct{}

	executed atomic.Uint64
	failed   atomic.Uint64
}

// New returns an empty Queue that waits interval before every action.
// A zero interval disables the spacing.
func New(interval time.Duration, optFns ...Option) (*Queue, error) {
	if interval < 0 {
		return nil, fmt.Errorf("interval[%s] %w", interval, ErrNegativeInterval)
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying queue option: %w", err)
		}
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer("no-op tracer")
	}
	if opts.name == "" {
		opts.name = "default"
	}

	q := &Queue{
		id:       uuid.NewString(),
		name:     opts.name,
		interval: interval,
		logger:   opts.logger,
		tracer:   opts.tracer,
		wake:     make(chan struct{}, 1),
	}

	return q, nil
}

// Submit appends fn to the tail of q and returns a Future for fn's own
// outcome. It never blocks on execution.
func Submit[T any](q *Queue, fn Func[T]) *Future[T] {
	if fn == nil {
		return failed[T](ErrNilOperation)
	}

	f := newFuture[T]()
	run := func(ctx context.Context) error {
		v, err := call(ctx, fn)
		f.complete(v, err)
		return err
	}

	if err := q.push(run); err != nil {
		var zero T
		f.complete(zero, err)
	}

	return f
}

// Go submits an operation that produces no value.
func (q *Queue) Go(fn func(ctx context.Context) error) *Future[struct{}] {
	if fn == nil {
		return failed[struct{}](ErrNilOperation)
	}

	return Submit(q, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// Drain runs pending actions one at a time, in submission order, until
// the queue is observed empty. Operation errors go to their Futures only.
//
// Drain returns ctx.Err() if ctx ends before the next action starts; that
// action stays at the head of the queue. It returns ErrAlreadyDraining if
// another Drain or Run is active.
func (q *Queue) Drain(ctx context.Context) error {
	if err := q.acquire(); err != nil {
		return err
	}
	defer q.release()

	q.logger.Debug("queue drain started", "queue", q.name, "queue_id", q.id, "pending", q.Len())

	for {
		a, _ := q.next()
		if a == nil {
			q.logger.Debug("queue drain idle", "queue", q.name, "queue_id", q.id)
			return nil
		}

		if err := q.execute(ctx, a); err != nil {
			return err
		}
	}
}

// Run behaves like Drain, but waits for new submissions while idle. It
// returns nil once Close has been called and the queue is empty.
func (q *Queue) Run(ctx context.Context) error {
	if err := q.acquire(); err != nil {
		return err
	}
	defer q.release()

	q.logger.Debug("queue run started", "queue", q.name, "queue_id", q.id)

	for {
		a, closed := q.next()
		if a != nil {
			if err := q.execute(ctx, a); err != nil {
				return err
			}
			continue
		}

		if closed {
			q.logger.Debug("queue run finished", "queue", q.name, "queue_id", q.id, "executed", q.executed.Load())
			return nil
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close ends the accepting phase. Queued actions still run; later
// submissions fail with ErrClosed. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notify()
}

// Len returns the number of actions waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// Interval returns the wait applied before every action.
func (q *Queue) Interval() time.Duration { return q.interval }

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:  q.Len(),
		Executed: q.executed.Load(),
		Failed:   q.failed.Load(),
	}
}

// push appends run at the tail.
func (q *Queue) push(run func(ctx context.Context) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.seq++
	q.pending = append(q.pending, &action{
		seq:      q.seq,
		wait:     q.interval,
		enqueued: time.Now(),
		run:      run,
	})
	q.notify()

	return nil
}

// next removes and returns the head action, reporting whether the
// queue has been closed. Both are read under one lock so Run cannot
// miss an action submitted just before Close.
func (q *Queue) next() (*action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, q.closed
	}

	a := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]

	return a, q.closed
}

// requeue puts an action that never started back at the head.
func (q *Queue) requeue(a *action) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append([]*action{a}, q.pending...)
}

// notify wakes an idle Run. Caller must hold q.mu.
func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) acquire() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		return ErrAlreadyDraining
	}
	q.draining = true

	return nil
}

func (q *Queue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.draining = false
}

// execute waits out the action's interval and then runs it to completion.
func (q *Queue) execute(ctx context.Context, a *action) error {
	if err := ctx.Err(); err != nil {
		q.requeue(a)
		return err
	}

	if a.wait > 0 {
		timer := time.NewTimer(a.wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			q.requeue(a)
			return ctx.Err()
		}
	}

	ctx, span := q.tracer.Start(ctx, "queue.action", trace.WithAttributes(
		attribute.String("queue.name", q.name),
		attribute.String("queue.id", q.id),
		attribute.Int64("queue.seq", int64(a.seq)),
	))
	defer span.End()

	start := time.Now()
	err := a.run(ctx)
	took := time.Since(start)

	q.executed.Add(1)
	span.SetAttributes(attribute.String("queue.queued_for", start.Sub(a.enqueued).String()))

	if err != nil {
		q.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		q.logger.Debug("queue action failed", "queue", q.name, "seq", a.seq, "took", took.String(), "error", err)
		return nil
	}

	q.logger.Debug("queue action complete", "queue", q.name, "seq", a.seq, "took", took.String())

	return nil
}

// call invokes fn, converting a panic into a *PanicError.
func call[T any](ctx context.Context, fn Func[T]) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			v = zero
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()

	return fn(ctx)
}
