package sectext

import (
	"log/slog"
	"os"

	"github.com/Neumenon/sectext/stream"
)

// LineFormatter rewrites one emitted field line. line already carries the
// indent; the result is written as-is.
type LineFormatter func(t Term, line string) string

type options struct {
	logger      *slog.Logger
	formatter   LineFormatter
	indent      string
	perm        os.FileMode
	compression stream.Compression
}

func defaultOptions() options {
	return options{
		logger: discardLogger(),
		indent: "\t",
		perm:   0o644,
	}
}

// Option configures a Reader or Writer.
type Option func(*options)

// WithLogger sets the logger for diagnostics and write events. The
// default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLineFormatter post-processes every emitted field line.
func WithLineFormatter(f LineFormatter) Option {
	return func(o *options) { o.formatter = f }
}

// WithIndent sets the field indent written by Writer and Format
// (default one tab).
func WithIndent(indent string) Option {
	return func(o *options) { o.indent = indent }
}

// WithPerm sets the permission bits of written files (default 0644).
func WithPerm(perm os.FileMode) Option {
	return func(o *options) { o.perm = perm }
}

// WithCompression makes WritePacked name window files with the
// compression's extension, so they are stored compressed.
func WithCompression(c stream.Compression) Option {
	return func(o *options) { o.compression = c }
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
