// Package orchestrator runs one dependent chain of upstream calls per
// symbol through a shared [queue.Queue] and aggregates the results.
//
// Each chain submits its overview step, waits for it, then submits its
// RSI step. Chains start together, so steps from different symbols
// interleave in the queue while each symbol's steps stay in order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/adamwoolhether/pacer/alphavantage"
	"github.com/adamwoolhether/pacer/queue"
)

// Orchestrator drives item chains through a queue. A queue is closed at
// the end of Collect, so each Orchestrator runs one batch.
type Orchestrator struct {
	q       *queue.Queue
	fetcher Fetcher
	sink    Sink
	policy  Policy
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New returns an Orchestrator using q for every upstream call.
func New(q *queue.Queue, f Fetcher, s Sink, optFns ...Option) (*Orchestrator, error) {
	switch {
	case q == nil:
		return nil, errors.New("queue must not be nil")
	case f == nil:
		return nil, errors.New("fetcher must not be nil")
	case s == nil:
		return nil, errors.New("sink must not be nil")
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying orchestrator option: %w", err)
		}
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer("no-op tracer")
	}

	o := &Orchestrator{
		q:       q,
		fetcher: f,
		sink:    s,
		policy:  opts.policy,
		logger:  opts.logger,
		tracer:  opts.tracer,
	}

	return o, nil
}

// Run collects records for symbols and writes them to the sink once.
// Nothing is written when Collect fails.
func (o *Orchestrator) Run(ctx context.Context, symbols []string) error {
	report, err := o.Collect(ctx, symbols)
	if err != nil {
		return err
	}

	for _, f := range report.Failures {
		o.logger.Warn("item skipped", "run_id", report.RunID, "symbol", f.Symbol, "step", string(f.Step), "error", f.Err)
	}

	if err := o.sink.Write(ctx, report.Records); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}

	return nil
}

// Collect runs every symbol's chain and returns the records in input
// order. Under FailFast any item failure returns the joined
// [*ItemError]s and no records. Under Partial failures are reported in
// the Report and an error is returned only when every item failed.
func (o *Orchestrator) Collect(ctx context.Context, symbols []string) (Report, error) {
	if err := checkSymbols(symbols); err != nil {
		return Report{}, err
	}

	report := Report{RunID: uuid.NewString()}
	logger := o.logger.With("run_id", report.RunID)

	ctx, span := o.tracer.Start(ctx, "orchestrator.collect", trace.WithAttributes(
		attribute.String("run.id", report.RunID),
		attribute.Int("run.items", len(symbols)),
		attribute.String("run.policy", o.policy.String()),
	))
	defer span.End()

	logger.Info("collect started", "items", len(symbols), "policy", o.policy.String(), "interval", o.q.Interval().String())

	batchCtx, abort := context.WithCancel(ctx)
	defer abort()

	runErr := make(chan error, 1)
	go func() {
		err := o.q.Run(batchCtx)
		if err != nil {
			abort()
		}
		runErr <- err
	}()

	records := make([]*Record, len(symbols))
	failures := make([]*ItemError, len(symbols))

	var g errgroup.Group
	for i, symbol := range symbols {
		g.Go(func() error {
			rec, err := o.chain(batchCtx, symbol)
			if err == nil {
				records[i] = &rec
				return nil
			}

			if batchCtx.Err() != nil && errors.Is(err, batchCtx.Err()) {
				return nil // aborted, not failed
			}

			failures[i] = err
			logger.Error("item failed", "symbol", symbol, "step", string(err.Step), "error", err.Err)
			if o.policy == FailFast {
				abort()
			}
			return nil
		})
	}
	_ = g.Wait()

	o.q.Close()
	qErr := <-runErr

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Report{}, fmt.Errorf("collect: %w", err)
	}
	if qErr != nil && !errors.Is(qErr, context.Canceled) {
		span.SetStatus(codes.Error, qErr.Error())
		return Report{}, fmt.Errorf("running queue: %w", qErr)
	}

	for _, f := range failures {
		if f != nil {
			report.Failures = append(report.Failures, f)
		}
	}

	stats := o.q.Stats()
	logger.Info("collect finished", "executed", stats.Executed, "failed", stats.Failed, "abandoned", stats.Pending, "item_failures", len(report.Failures))

	if len(report.Failures) > 0 && o.policy == FailFast {
		err := joinItemErrors(report.Failures)
		span.RecordError(err)
		span.SetStatus(codes.Error, "item failed")
		return Report{RunID: report.RunID, Failures: report.Failures}, err
	}

	report.Records = make([]Record, 0, len(symbols))
	for _, r := range records {
		if r != nil {
			report.Records = append(report.Records, *r)
		}
	}

	if len(symbols) > 0 && len(report.Records) == 0 {
		err := fmt.Errorf("%w: %w", ErrAllFailed, joinItemErrors(report.Failures))
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrAllFailed.Error())
		return report, err
	}

	return report, nil
}

// chain runs the overview step and then the RSI step for one symbol.
func (o *Orchestrator) chain(ctx context.Context, symbol string) (Record, *ItemError) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.item", trace.WithAttributes(
		attribute.String("item.symbol", symbol),
	))
	defer span.End()

	fail := func(step Step, err error) *ItemError {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(step))
		return &ItemError{Symbol: symbol, Step: step, Err: err}
	}

	ov, err := queue.Submit(o.q, func(ctx context.Context) (alphavantage.Overview, error) {
		return o.fetcher.Overview(ctx, symbol)
	}).Await(ctx)
	if err != nil {
		return Record{}, fail(StepOverview, err)
	}

	rsi, err := queue.Submit(o.q, func(ctx context.Context) (alphavantage.RSI, error) {
		return o.fetcher.RSI(ctx, symbol)
	}).Await(ctx)
	if err != nil {
		return Record{}, fail(StepRSI, err)
	}

	return newRecord(symbol, ov, rsi), nil
}

func checkSymbols(symbols []string) error {
	seen := make(map[string]int, len(symbols))
	for i, s := range symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: blank symbol at index %d", ErrInvalidSymbols, i)
		}
		if j, ok := seen[s]; ok {
			return fmt.Errorf("%w: %q at index %d and %d", ErrInvalidSymbols, s, j, i)
		}
		seen[s] = i
	}
	return nil
}

func joinItemErrors(items []*ItemError) error {
	errs := make([]error, len(items))
	for i, e := range items {
		errs[i] = e
	}
	return errors.Join(errs...)
}
