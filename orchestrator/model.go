package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adamwoolhether/pacer/alphavantage"
)

var (
	// ErrInvalidSymbols is returned by Collect for blank or duplicate
	// symbols, before any work is queued.
	ErrInvalidSymbols = errors.New("invalid symbols")
	// ErrAllFailed is returned under [Partial] when no item succeeded.
	ErrAllFailed = errors.New("every item failed")
	// ErrUnknownPolicy is returned by [ParsePolicy].
	ErrUnknownPolicy = errors.New("unknown policy")
)

// Fetcher performs the two upstream steps of an item.
type Fetcher interface {
	Overview(ctx context.Context, symbol string) (alphavantage.Overview, error)
	RSI(ctx context.Context, symbol string) (alphavantage.RSI, error)
}

// Sink receives the aggregated records once per run.
type Sink interface {
	Write(ctx context.Context, v any) error
}

// Policy decides how item failures affect the batch.
type Policy int

const (
	// FailFast fails the whole batch on the first item failure and stops
	// starting queued steps.
	FailFast Policy = iota
	// Partial keeps every successful record and reports failures
	// alongside them.
	Partial
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case Partial:
		return "partial"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps "fail-fast" or "partial" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fail-fast", "failfast":
		return FailFast, nil
	case "partial":
		return Partial, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Step names one upstream call in an item's chain.
type Step string

const (
	StepOverview Step = "overview"
	StepRSI      Step = "rsi"
)

// ItemError is one item's failure: which symbol, which step and why.
type ItemError struct {
	Symbol string
	Step   Step
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Symbol, e.Step, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Param is one named value of a record.
type Param struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Value string `json:"value" yaml:"value"`
}

// Record is the output for one symbol.
type Record struct {
	Symbol string  `json:"symbol" yaml:"symbol"`
	Name   string  `json:"name" yaml:"name"`
	Params []Param `json:"params" yaml:"params"`
}

// Param IDs and the fixed market cap title.
const (
	ParamMarketCap = "marketCap"
	ParamRSI       = "rsi"
	MarketCapTitle = "Market Capitalization"
)

func newRecord(symbol string, ov alphavantage.Overview, rsi alphavantage.RSI) Record {
	return Record{
		Symbol: symbol,
		Name:   ov.Name,
		Params: []Param{
			{ID: ParamMarketCap, Title: MarketCapTitle, Value: ov.MarketCapitalization},
			{ID: ParamRSI, Title: rsi.Indicator, Value: rsi.Latest.Value},
		},
	}
}

// Report is the outcome of Collect. Records follow input order.
type Report struct {
	RunID    string
	Records  []Record
	Failures []*ItemError
}
