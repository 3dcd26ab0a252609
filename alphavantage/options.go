package alphavantage

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/adamwoolhether/pacer/validate"
)

// Option is a functional option for configuring an [API] via [New].
type Option func(*options) error

type options struct {
	baseURL   *url.URL
	rsiParams *RSIParams
	logger    *slog.Logger
}

// WithBaseURL points the API at another host, such as a test server.
func WithBaseURL(raw string) Option {
	return func(opts *options) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parsing base url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base url %q must be absolute", raw)
		}
		opts.baseURL = u
		return nil
	}
}

// WithRSIParams overrides [DefaultRSIParams].
func WithRSIParams(p RSIParams) Option {
	return func(opts *options) error {
		if err := validate.Check(p); err != nil {
			return fmt.Errorf("rsi params: %w", err)
		}
		opts.rsiParams = &p
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [API].
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		opts.logger = logger
		return nil
	}
}
