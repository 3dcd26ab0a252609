// Package config loads marketscan settings from a .env file, an optional
// YAML file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"

	"github.com/adamwoolhether/pacer/alphavantage"
	"github.com/adamwoolhether/pacer/validate"
)

// Environment variables read by [Load].
const (
	EnvAPIKey   = "ALPHA_VANTAGE_API_KEY"
	EnvInterval = "PACER_INTERVAL"
	EnvTimeout  = "PACER_TIMEOUT"
	EnvSymbols  = "PACER_SYMBOLS"
	EnvOutput   = "PACER_OUTPUT"
	EnvPolicy   = "PACER_POLICY"
	EnvBaseURL  = "PACER_BASE_URL"
	EnvLogLevel = "PACER_LOG_LEVEL"
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New(EnvAPIKey + " must be set")
	// ErrInvalid wraps field validation failures.
	ErrInvalid = errors.New("invalid config")
)

// Config is the full marketscan configuration.
type Config struct {
	APIKey    string                 `yaml:"api_key"`
	BaseURL   string                 `yaml:"base_url" validate:"required,url"`
	Symbols   []string               `yaml:"symbols" validate:"required,min=1,unique,dive,required"`
	Interval  time.Duration          `yaml:"interval" validate:"gte=0"`
	Timeout   time.Duration          `yaml:"timeout" validate:"gt=0"`
	Output    string                 `yaml:"output" validate:"required"`
	Policy    string                 `yaml:"policy" validate:"oneof=fail-fast partial"`
	LogLevel  string                 `yaml:"log_level" validate:"oneof=debug info warn error"`
	UserAgent string                 `yaml:"user_agent"`
	Throttle  Throttle               `yaml:"throttle"`
	RSI       alphavantage.RSIParams `yaml:"rsi"`
}

// Throttle is an optional per-minute cap on HTTP requests, applied on
// top of the queue interval. A zero PerMinute disables it.
type Throttle struct {
	PerMinute int `yaml:"per_minute" validate:"gte=0"`
	Burst     int `yaml:"burst" validate:"required_with=PerMinute,gte=0"`
}

// Enabled reports whether a throttle is configured.
func (t Throttle) Enabled() bool { return t.PerMinute > 0 }

// Default returns the configuration used before any file or environment
// value is applied. Upstream's free tier allows 5 calls per minute, hence
// the 12 second interval.
func Default() Config {
	return Config{
		BaseURL:   alphavantage.DefaultBaseURL,
		Symbols:   []string{"IBM", "AAPL", "MSFT"},
		Interval:  12 * time.Second,
		Timeout:   30 * time.Second,
		Output:    "./output.json",
		Policy:    "fail-fast",
		LogLevel:  "info",
		UserAgent: "marketscan/1.0",
		RSI:       alphavantage.DefaultRSIParams,
	}
}

// Load builds a Config from defaults, a .env file in the working
// directory, the YAML file at path when path is not empty, and the
// environment. Variables already set in the environment win over .env.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports a missing API key or any invalid field.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}

	if err := validate.Check(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return nil
}

// Level returns LogLevel as an [slog.Level], defaulting to info.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// LogValue implements [slog.LogValuer]. The API key is never logged.
func (c Config) LogValue() slog.Value {
	key := ""
	if c.APIKey != "" {
		key = "REDACTED"
	}

	return slog.GroupValue(
		slog.String("api_key", key),
		slog.String("base_url", c.BaseURL),
		slog.Any("symbols", c.Symbols),
		slog.Duration("interval", c.Interval),
		slog.Duration("timeout", c.Timeout),
		slog.String("output", c.Output),
		slog.String("policy", c.Policy),
		slog.String("log_level", c.LogLevel),
		slog.Int("throttle_per_minute", c.Throttle.PerMinute),
	)
}

func (c *Config) decodeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvAPIKey); ok {
		c.APIKey = v
	}
	if v, ok := os.LookupEnv(EnvBaseURL); ok {
		c.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvSymbols); ok {
		c.Symbols = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv(EnvOutput); ok {
		c.Output = v
	}
	if v, ok := os.LookupEnv(EnvPolicy); ok {
		c.Policy = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.LogLevel = v
	}

	var err error
	if c.Interval, err = durationEnv(EnvInterval, c.Interval); err != nil {
		return err
	}
	if c.Timeout, err = durationEnv(EnvTimeout, c.Timeout); err != nil {
		return err
	}

	return nil
}

// normalize trims whitespace and upper-cases ticker symbols.
func (c *Config) normalize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.Policy = strings.ToLower(strings.TrimSpace(c.Policy))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}

	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", key)
	}

	return d, nil
}
