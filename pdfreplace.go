// Package pdfreplace replaces text inside PDF documents by rewriting the
// content stream operators that show it.
//
// Basic usage:
//
//	out, report, err := pdfreplace.Process(ctx, data, pdfreplace.Replacement{
//	    "Invoice": "Receipt",
//	})
//
// With the fluent API:
//
//	report, err := pdfreplace.Open("invoice.pdf").
//	    Replace(pdfreplace.Replacement{"#123": "#456"}).
//	    Pages(1).
//	    WriteFile(ctx, "receipt.pdf")
//
// Text is matched within runs: the characters shown between a BT and the
// next line break. A match may span several operators, for example a word
// split by kerning. Keys are tried in lexicographic order and a character
// replaced once is never matched again, so overlapping keys give the same
// result on every run.
//
// The output keeps every original byte and appends the modified pages as
// an incremental update. Matches that cannot be rewritten, because they
// mix fonts or the font has no code for a replacement character, are
// listed in the [Report] instead of failing the call.
//
// For lower-level access see the reader, text and rewrite packages.
package pdfreplace

import (
	"context"
	"fmt"
	"maps"
	"os"

	"github.com/tsawler/pdfreplace/reader"
)

// Open returns a Replacer for the named file. The file is read when a
// terminal method runs.
//
// Example:
//
//	out, report, err := pdfreplace.Open("document.pdf").Replace(m).Bytes(ctx)
func Open(filename string) *Replacer {
	return &Replacer{filename: filename, options: defaultOptions()}
}

// FromBytes returns a Replacer for a document already in memory.
func FromBytes(data []byte) *Replacer {
	return &Replacer{data: data, loaded: true, options: defaultOptions()}
}

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in scripts
// or tests where error handling would be cumbersome.
//
// Example:
//
//	report := pdfreplace.Must(pdfreplace.Open("in.pdf").Replace(m).WriteFile(ctx, "out.pdf"))
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// Replacer provides a fluent interface for replacing text in one document.
// Each configuration method returns a new Replacer, so a configured value
// can be reused and shared between goroutines.
type Replacer struct {
	filename string
	data     []byte
	loaded   bool

	mapping Replacement
	options Options
}

// clone creates a copy of the Replacer with its own mapping and options.
func (r *Replacer) clone() *Replacer {
	return &Replacer{
		filename: r.filename,
		data:     r.data,
		loaded:   r.loaded,
		mapping:  maps.Clone(r.mapping),
		options:  r.options.clone(),
	}
}

// Replace adds entries to the mapping. Later calls override earlier keys.
func (r *Replacer) Replace(m Replacement) *Replacer {
	n := r.clone()
	if n.mapping == nil {
		n.mapping = make(Replacement, len(m))
	}
	maps.Copy(n.mapping, m)
	return n
}

// Pages restricts processing to the given 1-based pages. Multiple calls
// are cumulative.
//
// Example:
//
//	out, _, err := pdfreplace.Open("doc.pdf").Replace(m).Pages(1, 3).Bytes(ctx)
func (r *Replacer) Pages(pages ...int) *Replacer {
	n := r.clone()
	n.options.Pages = append(n.options.Pages, pages...)
	return n
}

// LineBreakThreshold sets the vertical movement above which text is on a
// new line.
func (r *Replacer) LineBreakThreshold(t float64) *Replacer {
	n := r.clone()
	n.options.LineBreakThreshold = t
	return n
}

// Workers sets the number of pages processed in parallel.
func (r *Replacer) Workers(workers int) *Replacer {
	n := r.clone()
	n.options.Workers = workers
	return n
}

// Limits sets the parser resource limits.
func (r *Replacer) Limits(l reader.Limits) *Replacer {
	n := r.clone()
	n.options.Limits = l
	return n
}

// load returns the document bytes, reading the file when needed.
func (r *Replacer) load() ([]byte, error) {
	if r.loaded {
		return r.data, nil
	}
	if r.filename == "" {
		return nil, &Error{Kind: InvalidInput, Op: "open", Err: fmt.Errorf("no filename specified"), Report: newReport()}
	}
	data, err := os.ReadFile(r.filename)
	if err != nil {
		return nil, &Error{Kind: InvalidInput, Op: "open", Err: err, Report: newReport()}
	}
	return data, nil
}

// PageCount returns the number of pages in the document.
//
// Example:
//
//	n, err := pdfreplace.Open("document.pdf").PageCount()
func (r *Replacer) PageCount() (int, error) {
	data, err := r.load()
	if err != nil {
		return 0, err
	}
	doc, err := reader.NewReaderWithLimits(data, r.options.Limits)
	if err != nil {
		return 0, &Error{Kind: MalformedDocument, Op: "open", Err: err, Report: newReport()}
	}
	n, err := doc.PageCount()
	if err != nil {
		return 0, &Error{Kind: MalformedDocument, Op: "pages", Err: err, Report: newReport()}
	}
	return n, nil
}

// Bytes runs the replacement and returns the new document.
func (r *Replacer) Bytes(ctx context.Context) ([]byte, *Report, error) {
	data, err := r.load()
	if err != nil {
		return nil, newReport(), err
	}

	o := r.options
	return Process(ctx, data, r.mapping, func(opts *Options) { *opts = o.clone() })
}

// WriteFile runs the replacement and writes the new document to path.
// Nothing is written when processing fails.
func (r *Replacer) WriteFile(ctx context.Context, path string) (*Report, error) {
	out, report, err := r.Bytes(ctx)
	if err != nil {
		return report, err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return report, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return report, nil
}
