package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option is a functional option for configuring an [Orchestrator] via [New].
type Option func(*options) error

type options struct {
	policy Policy
	logger *slog.Logger
	tracer trace.Tracer
}

// WithPolicy sets the failure policy. Default [FailFast].
func WithPolicy(p Policy) Option {
	return func(opts *options) error {
		if p != FailFast && p != Partial {
			return fmt.Errorf("%w: %v", ErrUnknownPolicy, p)
		}
		opts.policy = p
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Orchestrator].
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		opts.logger = logger
		return nil
	}
}

// WithTracer records a span per batch and per item.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		opts.tracer = tracer
		return nil
	}
}
