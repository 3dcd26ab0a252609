// Command marketscan fetches a company overview and the latest RSI for
// each configured ticker symbol from Alpha Vantage, spacing calls to stay
// under the upstream rate limit, and writes one record per symbol to a
// JSON or YAML file.
//
// Configuration comes from a .env file, an optional YAML file (-config)
// and the environment; ALPHA_VANTAGE_API_KEY is required.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"

	"github.com/adamwoolhether/pacer/alphavantage"
	"github.com/adamwoolhether/pacer/client"
	"github.com/adamwoolhether/pacer/config"
	"github.com/adamwoolhether/pacer/orchestrator"
	"github.com/adamwoolhether/pacer/queue"
	"github.com/adamwoolhether/pacer/sink"
)

const tracerName = "github.com/adamwoolhether/pacer"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stderr)
	cancel()

	switch {
	case errors.Is(err, flag.ErrHelp):
	case err != nil:
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("marketscan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "path to a YAML config file")
	output := fs.String("output", "", "output file (.json, .yaml or .yml), overrides config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *output != "" {
		cfg.Output = *output
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	logger.Info("marketscan starting", "config", cfg)

	policy, err := orchestrator.ParsePolicy(cfg.Policy)
	if err != nil {
		return err
	}

	clientOpts := []client.Option{
		client.WithTimeout(cfg.Timeout),
		client.WithUserAgent(cfg.UserAgent),
		client.WithSecretQuery("apikey"),
		client.WithLogger(logger),
	}
	if cfg.Throttle.Enabled() {
		clientOpts = append(clientOpts, client.WithThrottle(cfg.Throttle.PerMinute, cfg.Throttle.Burst))
	}

	c, err := client.Build(clientOpts...)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	api, err := alphavantage.New(c, cfg.APIKey,
		alphavantage.WithBaseURL(cfg.BaseURL),
		alphavantage.WithRSIParams(cfg.RSI),
		alphavantage.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("building api: %w", err)
	}

	out, err := sink.NewFile(cfg.Output, sink.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("building sink: %w", err)
	}

	tracer := otel.Tracer(tracerName)

	q, err := queue.New(cfg.Interval,
		queue.WithName("alphavantage"),
		queue.WithLogger(logger),
		queue.WithTracer(tracer),
	)
	if err != nil {
		return fmt.Errorf("building queue: %w", err)
	}

	o, err := orchestrator.New(q, api, out,
		orchestrator.WithPolicy(policy),
		orchestrator.WithLogger(logger),
		orchestrator.WithTracer(tracer),
	)
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	if err := o.Run(ctx, cfg.Symbols); err != nil {
		return fmt.Errorf("error while loading data: %w", err)
	}

	return nil
}
