package queue

import (
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option is a functional option for configuring a [Queue] via [New].
type Option func(*options) error

type options struct {
	logger *slog.Logger
	tracer trace.Tracer
	name   string
}

// WithLogger injects a custom [slog.Logger] into the [Queue].
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		opts.logger = logger
		return nil
	}
}

// WithTracer records one span per executed action with the given tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		opts.tracer = tracer
		return nil
	}
}

// WithName labels the queue in logs and spans.
func WithName(name string) Option {
	return func(opts *options) error {
		if name == "" {
			return errors.New("name must not be empty")
		}
		opts.name = name
		return nil
	}
}
