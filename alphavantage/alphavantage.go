// Package alphavantage fetches company overviews and RSI series from the
// Alpha Vantage query API.
package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/adamwoolhether/pacer/client"
	"github.com/adamwoolhether/pacer/validate"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://www.alphavantage.co"

// API issues OVERVIEW and RSI queries through a [client.Client].
type API struct {
	c         *client.Client
	apiKey    string
	baseURL   *url.URL
	rsiParams RSIParams
	logger    *slog.Logger
}

// New returns an API authenticating with apiKey. The client should be
// built with client.WithSecretQuery("apikey") so the key stays out of
// errors and logs.
func New(c *client.Client, apiKey string, optFns ...Option) (*API, error) {
	if c == nil {
		return nil, errors.New("client must not be nil")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key must not be empty")
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying alphavantage option: %w", err)
		}
	}

	api := &API{
		c:         c,
		apiKey:    apiKey,
		rsiParams: DefaultRSIParams,
		logger:    slog.Default(),
	}

	api.baseURL = opts.baseURL
	if api.baseURL == nil {
		api.baseURL, _ = url.Parse(DefaultBaseURL)
	}
	if opts.rsiParams != nil {
		api.rsiParams = *opts.rsiParams
	}
	if opts.logger != nil {
		api.logger = opts.logger
	}

	return api, nil
}

// Overview queries the OVERVIEW function for symbol.
func (a *API) Overview(ctx context.Context, symbol string) (Overview, error) {
	const function = "OVERVIEW"

	if strings.TrimSpace(symbol) == "" {
		return Overview{}, ErrInvalidSymbol
	}

	a.logger.Info("querying upstream", "function", function, "symbol", symbol)

	var resp overviewResponse
	if err := a.c.GetJSON(ctx, a.query(function, symbol, nil), &resp); err != nil {
		return Overview{}, fmt.Errorf("%s %s: %w", function, symbol, err)
	}

	if err := resp.err(function, symbol); err != nil {
		return Overview{}, err
	}

	if err := validate.Check(resp.Overview); err != nil {
		return Overview{}, fmt.Errorf("%w: %s %s: %w", ErrMalformedResponse, function, symbol, err)
	}

	return resp.Overview, nil
}

// RSI queries the RSI function for symbol and returns the series'
// indicator title with its most recent point.
func (a *API) RSI(ctx context.Context, symbol string) (RSI, error) {
	const function = "RSI"

	if strings.TrimSpace(symbol) == "" {
		return RSI{}, ErrInvalidSymbol
	}

	a.logger.Info("querying upstream", "function", function, "symbol", symbol)

	params := map[string]string{
		"interval":    a.rsiParams.Interval,
		"series_type": a.rsiParams.SeriesType,
		"time_period": strconv.Itoa(a.rsiParams.TimePeriod),
	}

	var resp rsiResponse
	if err := a.c.GetJSON(ctx, a.query(function, symbol, params), &resp); err != nil {
		return RSI{}, fmt.Errorf("%s %s: %w", function, symbol, err)
	}

	if err := resp.err(function, symbol); err != nil {
		return RSI{}, err
	}

	if err := validate.Check(resp); err != nil {
		return RSI{}, fmt.Errorf("%w: %s %s: %w", ErrMalformedResponse, function, symbol, err)
	}

	latest, ok := latestPoint(resp.Analysis)
	if !ok {
		return RSI{}, fmt.Errorf("%w: %s %s: no RSI values", ErrMalformedResponse, function, symbol)
	}

	return RSI{Indicator: resp.Meta.Indicator, Latest: latest}, nil
}

// query builds a /query URL for function and symbol.
func (a *API) query(function, symbol string, extra map[string]string) *url.URL {
	qs := map[string]string{
		"function": function,
		"symbol":   symbol,
		"apikey":   a.apiKey,
	}
	for k, v := range extra {
		qs[k] = v
	}

	return client.URL(a.baseURL.Scheme, a.baseURL.Host, path.Join("/", a.baseURL.Path, "query"), client.WithQueryStrings(qs))
}

// latestPoint returns the entry with the greatest timestamp. Upstream
// timestamps are fixed-width, so string order is time order.
func latestPoint(series map[string]rsiValue) (Point, bool) {
	var latest string
	for ts, v := range series {
		if v.RSI == "" {
			continue
		}
		if ts > latest {
			latest = ts
		}
	}
	if latest == "" {
		return Point{}, false
	}

	return Point{Time: latest, Value: series[latest].RSI}, true
}
