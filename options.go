package pdfreplace

import (
	"log/slog"
	"runtime"

	"github.com/tsawler/pdfreplace/reader"
)

// Options holds the configuration of one Process call.
type Options struct {
	// LineBreakThreshold is the vertical movement, in user space units,
	// above which text is treated as a new line. Text on different lines
	// never matches as one string.
	LineBreakThreshold float64

	// Workers is the number of pages processed in parallel.
	Workers int

	// Pages restricts processing to these 1-based page numbers; nil means
	// every page.
	Pages []int

	Limits reader.Limits
	Logger *slog.Logger
}

// Option configures Process.
type Option func(*Options)

// defaultOptions returns the options used when none are given.
func defaultOptions() Options {
	return Options{
		LineBreakThreshold: 0,
		Workers:            runtime.NumCPU(),
		Limits:             reader.DefaultLimits(),
	}
}

// clone creates a deep copy of Options.
func (o Options) clone() Options {
	c := o
	if o.Pages != nil {
		c.Pages = append([]int(nil), o.Pages...)
	}
	return c
}

// WithLineBreakThreshold sets Options.LineBreakThreshold.
func WithLineBreakThreshold(t float64) Option {
	return func(o *Options) { o.LineBreakThreshold = t }
}

// WithWorkers sets the number of page workers. Values below one select
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithPages restricts processing to the given 1-based pages. Repeated calls
// add pages.
func WithPages(pages ...int) Option {
	return func(o *Options) { o.Pages = append(o.Pages, pages...) }
}

// WithLimits sets the resource limits of the document parser.
func WithLimits(l reader.Limits) Option {
	return func(o *Options) { o.Limits = l }
}

// WithLogger sets the logger for per-page diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}
