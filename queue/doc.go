// Package queue provides a single-lane, interval-throttled task queue.
//
// Work submitted to a [Queue] runs strictly one action at a time, in the
// order it was submitted, and every action waits the configured interval
// before it starts. The interval is a lower bound: two consecutive actions
// never start closer together than the interval, no matter how far apart
// they were submitted.
//
// # Submitting Work
//
// [Submit] appends an operation and immediately returns a [Future] for
// that operation's own outcome:
//
//	q, err := queue.New(12 * time.Second)
//	f := queue.Submit(q, func(ctx context.Context) (Overview, error) {
//		return api.Overview(ctx, "IBM")
//	})
//
// Nothing runs until the queue is drained.
//
// # Draining
//
// [Queue.Drain] runs pending actions until the queue is observed empty:
//
//	if err := q.Drain(ctx); err != nil { ... } // only ctx errors
//	ov, err := f.Value()
//
// Operation failures never stop the loop; they are delivered only to the
// failing action's Future.
//
// # Dependent Chains
//
// When later steps are submitted only after earlier Futures resolve, use
// [Queue.Run] together with [Queue.Close]. Run keeps draining, and waits
// while idle, until Close has been called and nothing is left:
//
//	go func() { runErr <- q.Run(ctx) }()
//	// ... submit step 1, await, submit step 2 ...
//	q.Close()
//	<-runErr
package queue
