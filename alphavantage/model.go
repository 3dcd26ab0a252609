package alphavantage

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream is wrapped by an [APIError] carrying an "Error Message".
	ErrUpstream = errors.New("upstream error")
	// ErrRateLimited is wrapped by an [APIError] carrying a "Note" or
	// "Information" body, which upstream sends when the call budget is spent.
	ErrRateLimited = errors.New("upstream rate limit")
	// ErrMalformedResponse is returned when a 200 body lacks the fields
	// a caller depends on.
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrInvalidSymbol is returned for a blank symbol.
	ErrInvalidSymbol = errors.New("symbol must not be blank")
)

// APIError is an error reported by upstream inside a 200 response body.
type APIError struct {
	Function string
	Symbol   string
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%v: %s %s: %s", e.Err, e.Function, e.Symbol, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Overview is the subset of the OVERVIEW payload the scan uses. Numbers
// stay strings, as upstream sends them.
type Overview struct {
	Symbol               string `json:"Symbol" validate:"required"`
	Name                 string `json:"Name" validate:"required"`
	MarketCapitalization string `json:"MarketCapitalization" validate:"required"`
}

// Point is one entry of a technical indicator series.
type Point struct {
	Time  string `json:"time" yaml:"time"`
	Value string `json:"value" yaml:"value"`
}

// RSI is the indicator title and the most recent value of an RSI series.
type RSI struct {
	Indicator string
	Latest    Point
}

// RSIParams selects the RSI series.
type RSIParams struct {
	Interval   string `yaml:"interval" validate:"required,oneof=1min 5min 15min 30min 60min daily weekly monthly"`
	SeriesType string `yaml:"series_type" validate:"required,oneof=close open high low"`
	TimePeriod int    `yaml:"time_period" validate:"required,gt=0"`
}

// DefaultRSIParams is the 30 minute, open price, 10 period series.
var DefaultRSIParams = RSIParams{
	Interval:   "30min",
	SeriesType: "open",
	TimePeriod: 10,
}

// status carries the keys upstream uses to report errors with a 200.
type status struct {
	ErrorMessage string `json:"Error Message"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
}

func (s status) err(function, symbol string) error {
	switch {
	case s.ErrorMessage != "":
		return &APIError{Function: function, Symbol: symbol, Message: s.ErrorMessage, Err: ErrUpstream}
	case s.Note != "":
		return &APIError{Function: function, Symbol: symbol, Message: s.Note, Err: ErrRateLimited}
	case s.Information != "":
		return &APIError{Function: function, Symbol: symbol, Message: s.Information, Err: ErrRateLimited}
	}
	return nil
}

type overviewResponse struct {
	status
	Overview
}

type rsiMeta struct {
	Indicator string `json:"2: Indicator" validate:"required"`
}

type rsiValue struct {
	RSI string `json:"RSI"`
}

type rsiResponse struct {
	status
	Meta     rsiMeta             `json:"Meta Data"`
	Analysis map[string]rsiValue `json:"Technical Analysis: RSI" validate:"required,min=1"`
}
