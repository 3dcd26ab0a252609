package orchestrator_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/adamwoolhether/pacer/alphavantage"
	"github.com/adamwoolhether/pacer/orchestrator"
	"github.com/adamwoolhether/pacer/queue"
)

var errBoom = errors.New("boom")

const rsiTitle = "Relative Strength Index (RSI)"

type call struct {
	step   orchestrator.Step
	symbol string
	at     time.Time
}

// fakeFetcher answers every symbol, failing the steps named in its
// error maps, and records each call.
type fakeFetcher struct {
	overviewErr map[string]error
	rsiErr      map[string]error

	mu    sync.Mutex
	calls []call
}

func (f *fakeFetcher) record(step orchestrator.Step, symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{step: step, symbol: symbol, at: time.Now()})
}

func (f *fakeFetcher) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeFetcher) count(step orchestrator.Step) int {
	var n int
	for _, c := range f.Calls() {
		if c.step == step {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) Overview(ctx context.Context, symbol string) (alphavantage.Overview, error) {
	f.record(orchestrator.StepOverview, symbol)
	if err := f.overviewErr[symbol]; err != nil {
		return alphavantage.Overview{}, err
	}
	return alphavantage.Overview{Symbol: symbol, Name: symbol + " Inc", MarketCapitalization: "100" + symbol}, nil
}

func (f *fakeFetcher) RSI(ctx context.Context, symbol string) (alphavantage.RSI, error) {
	f.record(orchestrator.StepRSI, symbol)
	if err := f.rsiErr[symbol]; err != nil {
		return alphavantage.RSI{}, err
	}
	return alphavantage.RSI{
		Indicator: rsiTitle,
		Latest:    alphavantage.Point{Time: "2024-05-03 19:30", Value: "50." + symbol},
	}, nil
}

type memSink struct {
	err    error
	mu     sync.Mutex
	writes []any
}

func (s *memSink) Write(ctx context.Context, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, v)
	return nil
}

var discard = slog.New(slog.DiscardHandler)

func newQueue(t *testing.T, interval time.Duration, opts ...queue.Option) *queue.Queue {
	t.Helper()

	q, err := queue.New(interval, append([]queue.Option{queue.WithLogger(discard)}, opts...)...)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	return q
}

func newOrchestrator(t *testing.T, q *queue.Queue, f orchestrator.Fetcher, s orchestrator.Sink, opts ...orchestrator.Option) *orchestrator.Orchestrator {
	t.Helper()

	o, err := orchestrator.New(q, f, s, append([]orchestrator.Option{orchestrator.WithLogger(discard)}, opts...)...)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	return o
}

func wantRecord(symbol string) orchestrator.Record {
	return orchestrator.Record{
		Symbol: symbol,
		Name:   symbol + " Inc",
		Params: []orchestrator.Param{
			{ID: orchestrator.ParamMarketCap, Title: orchestrator.MarketCapTitle, Value: "100" + symbol},
			{ID: orchestrator.ParamRSI, Title: rsiTitle, Value: "50." + symbol},
		},
	}
}

func TestNew_Validation(t *testing.T) {
	q := newQueue(t, 0)
	f := &fakeFetcher{}
	s := &memSink{}

	testCases := map[string]struct {
		q    *queue.Queue
		f    orchestrator.Fetcher
		s    orchestrator.Sink
		opts []orchestrator.Option
	}{
		"nilQueue":      {f: f, s: s},
		"nilFetcher":    {q: q, s: s},
		"nilSink":       {q: q, f: f},
		"unknownPolicy": {q: q, f: f, s: s, opts: []orchestrator.Option{orchestrator.WithPolicy(orchestrator.Policy(7))}},
		"nilLogger":     {q: q, f: f, s: s, opts: []orchestrator.Option{orchestrator.WithLogger(nil)}},
		"nilTracer":     {q: q, f: f, s: s, opts: []orchestrator.Option{orchestrator.WithTracer(nil)}},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := orchestrator.New(tc.q, tc.f, tc.s, tc.opts...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	testCases := map[string]struct {
		in     string
		exp    orchestrator.Policy
		expErr error
	}{
		"failFast":      {in: "fail-fast", exp: orchestrator.FailFast},
		"failFastUpper": {in: " FAIL-FAST ", exp: orchestrator.FailFast},
		"partial":       {in: "partial", exp: orchestrator.Partial},
		"unknown":       {in: "retry", expErr: orchestrator.ErrUnknownPolicy},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := orchestrator.ParsePolicy(tc.in)
			if !errors.Is(err, tc.expErr) {
				t.Fatalf("expected %v, got: %v", tc.expErr, err)
			}
			if err == nil && got != tc.exp {
				t.Errorf("policy = %v, want %v", got, tc.exp)
			}
		})
	}
}

func TestCollect_RecordsInInputOrder(t *testing.T) {
	symbols := []string{"MSFT", "IBM", "AAPL", "NVDA"}
	f := &fakeFetcher{}
	o := newOrchestrator(t, newQueue(t, 0), f, &memSink{})

	report, err := o.Collect(t.Context(), symbols)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	var want []orchestrator.Record
	for _, s := range symbols {
		want = append(want, wantRecord(s))
	}
	if diff := cmp.Diff(want, report.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if report.RunID == "" {
		t.Error("missing run id")
	}
	if len(report.Failures) != 0 {
		t.Errorf("unexpected failures: %v", report.Failures)
	}
	if got := len(f.Calls()); got != 2*len(symbols) {
		t.Errorf("fetcher saw %d calls, want %d", got, 2*len(symbols))
	}
}

func TestCollect_StepsOrderedAndSpaced(t *testing.T) {
	const interval = 20 * time.Millisecond
	symbols := []string{"IBM", "AAPL", "MSFT"}
	f := &fakeFetcher{}
	o := newOrchestrator(t, newQueue(t, interval), f, &memSink{})

	start := time.Now()
	if _, err := o.Collect(t.Context(), symbols); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	calls := f.Calls()
	if len(calls) != 2*len(symbols) {
		t.Fatalf("fetcher saw %d calls, want %d", len(calls), 2*len(symbols))
	}

	if gap := calls[0].at.Sub(start); gap < interval {
		t.Errorf("first call after %v, want >= %v", gap, interval)
	}
	for i := 1; i < len(calls); i++ {
		if gap := calls[i].at.Sub(calls[i-1].at); gap < interval {
			t.Errorf("calls %d and %d only %v apart, want >= %v", i-1, i, gap, interval)
		}
	}

	overviewAt := make(map[string]int)
	for i, c := range calls {
		switch c.step {
		case orchestrator.StepOverview:
			overviewAt[c.symbol] = i
		case orchestrator.StepRSI:
			j, ok := overviewAt[c.symbol]
			if !ok || j > i {
				t.Errorf("%s: rsi at %d ran before its overview", c.symbol, i)
			}
		}
	}
}

func TestCollect_FailFast(t *testing.T) {
	f := &fakeFetcher{rsiErr: map[string]error{"IBM": errBoom}}
	o := newOrchestrator(t, newQueue(t, 0), f, &memSink{})

	report, err := o.Collect(t.Context(), []string{"AAPL", "IBM", "MSFT"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got: %v", err)
	}

	var itemErr *orchestrator.ItemError
	if !errors.As(err, &itemErr) {
		t.Fatalf("expected *ItemError, got: %T", err)
	}
	if itemErr.Symbol != "IBM" || itemErr.Step != orchestrator.StepRSI {
		t.Errorf("item error = %+v", itemErr)
	}

	if report.Records != nil {
		t.Errorf("expected no records, got %v", report.Records)
	}
	if len(report.Failures) != 1 {
		t.Errorf("expected one failure, got %v", report.Failures)
	}
}

func TestCollect_FailFastStopsQueuedSteps(t *testing.T) {
	symbols := []string{"A", "B", "C", "D"}
	f := &fakeFetcher{overviewErr: map[string]error{"A": errBoom, "B": errBoom, "C": errBoom, "D": errBoom}}
	q := newQueue(t, 50*time.Millisecond)
	o := newOrchestrator(t, q, f, &memSink{})

	_, err := o.Collect(t.Context(), symbols)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got: %v", err)
	}

	if got := f.count(orchestrator.StepOverview); got >= len(symbols) {
		t.Errorf("expected queued overviews to be abandoned, %d ran", got)
	}
	if got := f.count(orchestrator.StepRSI); got != 0 {
		t.Errorf("expected no rsi calls, got %d", got)
	}
	if q.Len() == 0 {
		t.Error("expected abandoned actions to stay queued")
	}
}

func TestCollect_Partial(t *testing.T) {
	f := &fakeFetcher{overviewErr: map[string]error{"MSFT": errBoom}}
	o := newOrchestrator(t, newQueue(t, 0), f, &memSink{}, orchestrator.WithPolicy(orchestrator.Partial))

	report, err := o.Collect(t.Context(), []string{"IBM", "MSFT", "AAPL"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	want := []orchestrator.Record{wantRecord("IBM"), wantRecord("AAPL")}
	if diff := cmp.Diff(want, report.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	if len(report.Failures) != 1 {
		t.Fatalf("expected one failure, got %v", report.Failures)
	}
	if fe := report.Failures[0]; fe.Symbol != "MSFT" || fe.Step != orchestrator.StepOverview || !errors.Is(fe, errBoom) {
		t.Errorf("failure = %+v", fe)
	}
	if got := f.count(orchestrator.StepRSI); got != 2 {
		t.Errorf("expected rsi only for the two good symbols, got %d", got)
	}
}

func TestCollect_PartialAllFailed(t *testing.T) {
	f := &fakeFetcher{rsiErr: map[string]error{"IBM": errBoom, "AAPL": errBoom}}
	o := newOrchestrator(t, newQueue(t, 0), f, &memSink{}, orchestrator.WithPolicy(orchestrator.Partial))

	report, err := o.Collect(t.Context(), []string{"IBM", "AAPL"})
	if !errors.Is(err, orchestrator.ErrAllFailed) {
		t.Fatalf("expected ErrAllFailed, got: %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("expected cause in chain, got: %v", err)
	}
	if len(report.Records) != 0 || len(report.Failures) != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestCollect_InvalidSymbols(t *testing.T) {
	testCases := map[string][]string{
		"duplicate": {"IBM", "AAPL", "IBM"},
		"blank":     {"IBM", " "},
		"empty":     {""},
	}

	for name, symbols := range testCases {
		t.Run(name, func(t *testing.T) {
			f := &fakeFetcher{}
			q := newQueue(t, 0)
			o := newOrchestrator(t, q, f, &memSink{})

			if _, err := o.Collect(t.Context(), symbols); !errors.Is(err, orchestrator.ErrInvalidSymbols) {
				t.Fatalf("expected ErrInvalidSymbols, got: %v", err)
			}
			if len(f.Calls()) != 0 || q.Len() != 0 {
				t.Error("expected no queue activity")
			}
		})
	}
}

func TestCollect_NoSymbols(t *testing.T) {
	o := newOrchestrator(t, newQueue(t, time.Hour), &fakeFetcher{}, &memSink{})

	report, err := o.Collect(t.Context(), nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Records == nil || len(report.Records) != 0 {
		t.Errorf("expected empty non-nil records, got %#v", report.Records)
	}
}

func TestCollect_ContextEnded(t *testing.T) {
	f := &fakeFetcher{}
	o := newOrchestrator(t, newQueue(t, time.Second), f, &memSink{})

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := o.Collect(ctx, []string{"IBM", "AAPL"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got: %v", err)
	}
	if took := time.Since(start); took > 500*time.Millisecond {
		t.Errorf("Collect took %v after deadline", took)
	}
	if len(f.Calls()) != 0 {
		t.Errorf("expected no calls, got %d", len(f.Calls()))
	}
}

func TestCollect_QueueAlreadyDraining(t *testing.T) {
	q := newQueue(t, 0)

	started := make(chan struct{})
	release := make(chan struct{})
	q.Go(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	drained := make(chan error, 1)
	go func() { drained <- q.Drain(context.Background()) }()
	<-started

	o := newOrchestrator(t, q, &fakeFetcher{}, &memSink{})

	_, err := o.Collect(t.Context(), []string{"IBM"})
	close(release)

	if !errors.Is(err, queue.ErrAlreadyDraining) {
		t.Errorf("expected ErrAlreadyDraining, got: %v", err)
	}
	if err := <-drained; err != nil {
		t.Errorf("Drain: %v", err)
	}
}

func TestRun_WritesRecordsOnce(t *testing.T) {
	s := &memSink{}
	o := newOrchestrator(t, newQueue(t, 0), &fakeFetcher{}, s)

	if err := o.Run(t.Context(), []string{"IBM", "AAPL"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(s.writes) != 1 {
		t.Fatalf("expected one write, got %d", len(s.writes))
	}
	want := []orchestrator.Record{wantRecord("IBM"), wantRecord("AAPL")}
	if diff := cmp.Diff(want, s.writes[0]); diff != "" {
		t.Errorf("written records mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_NoWriteOnFailure(t *testing.T) {
	s := &memSink{}
	f := &fakeFetcher{overviewErr: map[string]error{"IBM": errBoom}}
	o := newOrchestrator(t, newQueue(t, 0), f, s)

	if err := o.Run(t.Context(), []string{"IBM", "AAPL"}); !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got: %v", err)
	}
	if len(s.writes) != 0 {
		t.Errorf("expected no writes, got %d", len(s.writes))
	}
}

func TestRun_SinkError(t *testing.T) {
	s := &memSink{err: errBoom}
	o := newOrchestrator(t, newQueue(t, 0), &fakeFetcher{}, s)

	if err := o.Run(t.Context(), []string{"IBM"}); !errors.Is(err, errBoom) {
		t.Errorf("expected sink error, got: %v", err)
	}
}

func TestCollect_RecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	q := newQueue(t, 0, queue.WithTracer(tp.Tracer("queue")))
	f := &fakeFetcher{rsiErr: map[string]error{"AAPL": errBoom}}
	o := newOrchestrator(t, q, f, &memSink{},
		orchestrator.WithTracer(tp.Tracer("orchestrator")),
		orchestrator.WithPolicy(orchestrator.Partial),
	)

	if _, err := o.Collect(t.Context(), []string{"IBM", "AAPL"}); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	counts := make(map[string]int)
	var collectID string
	for _, s := range sr.Ended() {
		counts[s.Name()]++
		if s.Name() == "orchestrator.collect" {
			collectID = s.SpanContext().SpanID().String()
		}
	}

	want := map[string]int{"orchestrator.collect": 1, "orchestrator.item": 2, "queue.action": 4}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("span counts mismatch (-want +got):\n%s", diff)
	}

	var failedItems int
	for _, s := range sr.Ended() {
		if s.Name() != "orchestrator.item" {
			continue
		}
		if s.Parent().SpanID().String() != collectID {
			t.Errorf("item span parent = %s, want %s", s.Parent().SpanID(), collectID)
		}
		if len(s.Events()) > 0 {
			failedItems++
		}
	}
	if failedItems != 1 {
		t.Errorf("expected one item span with a recorded error, got %d", failedItems)
	}
}
