// Package sink writes a batch result to a file, choosing the encoding
// from the file extension. Writes are atomic: readers see either the
// previous file or the complete new one.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// ErrUnsupportedFormat is returned for a path whose extension is not
// .json, .yaml or .yml.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Format is the encoding used by a [File].
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// FormatFor maps a path's extension to a Format.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Option is a functional option for configuring a [File] via [NewFile].
type Option func(*options) error

type options struct {
	logger *slog.Logger
	perm   fs.FileMode
}

// WithLogger injects a custom [slog.Logger] into the [File].
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		opts.logger = logger
		return nil
	}
}

// WithPerm sets the permission bits of the written file. Default 0644.
func WithPerm(perm fs.FileMode) Option {
	return func(opts *options) error {
		if perm&^fs.ModePerm != 0 {
			return fmt.Errorf("perm %v must only hold permission bits", perm)
		}
		opts.perm = perm
		return nil
	}
}

// File writes values to a single path.
type File struct {
	path   string
	format Format
	perm   fs.FileMode
	logger *slog.Logger
}

// NewFile returns a File for path. The format is fixed here, so an
// unsupported extension fails before any work is done.
func NewFile(path string, optFns ...Option) (*File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path must not be empty")
	}

	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	opts := options{perm: 0o644}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying sink option: %w", err)
		}
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	f := &File{
		path:   path,
		format: format,
		perm:   opts.perm,
		logger: opts.logger,
	}

	return f, nil
}

// Path returns the destination path.
func (f *File) Path() string { return f.path }

// Format returns the encoding chosen for the path.
func (f *File) Format() Format { return f.format }

// Write encodes v and replaces the destination with it. JSON output is
// indented with four spaces.
func (f *File) Write(ctx context.Context, v any) error {
	data, err := f.encode(v)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sink write: %w", err)
	}

	if err := f.replace(data); err != nil {
		return err
	}

	f.logger.Info("output written", "path", f.path, "format", string(f.format), "bytes", len(data))

	return nil
}

func (f *File) encode(v any) ([]byte, error) {
	var buf bytes.Buffer

	switch f.format {
	case JSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "    ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("encoding json: %w", err)
		}
	case YAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("encoding yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("closing yaml encoder: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// replace writes data to a temp file next to the destination, syncs it
// and renames it into place. The temp file is removed on any error.
func (f *File) replace(data []byte) error {
	file, err := os.CreateTemp(filepath.Dir(f.path), ".pacer-sink-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	var successful bool
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			f.logger.Error("defer closing temp file", "error", err)
		}
		if !successful {
			if err := os.Remove(file.Name()); err != nil {
				f.logger.Error("failed to remove temp file", "error", err)
			}
		}
	}()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := file.Chmod(f.perm); err != nil {
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(file.Name(), f.path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	successful = true

	return nil
}
