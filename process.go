package pdfreplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/tsawler/pdfreplace/contentstream"
	"github.com/tsawler/pdfreplace/core"
	"github.com/tsawler/pdfreplace/logging"
	"github.com/tsawler/pdfreplace/pages"
	"github.com/tsawler/pdfreplace/reader"
	"github.com/tsawler/pdfreplace/rewrite"
	"github.com/tsawler/pdfreplace/text"
	"github.com/tsawler/pdfreplace/writer"
)

// Process replaces the text of m in the PDF document data and returns the
// updated document with a report.
//
// Untouched bytes are preserved: modified pages are appended as an
// incremental update. When nothing is replaced the input is returned as
// is. A malformed document or a canceled context yields no output; the
// returned error is an *Error and the report holds what was found.
func Process(ctx context.Context, data []byte, m Replacement, opts ...Option) ([]byte, *Report, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Workers < 1 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = logging.Logger()
	}
	p := &processor{opts: o, log: o.Logger}
	return p.run(ctx, data, m)
}

type processor struct {
	opts Options
	log  *slog.Logger
}

// pageResult is the outcome of one page job.
type pageResult struct {
	index    int
	content  []byte // nil when the page is unchanged
	replaced int
	skipped  []rewrite.Skip
	err      error
}

func (p *processor) run(ctx context.Context, data []byte, m Replacement) ([]byte, *Report, error) {
	report := newReport()
	fail := func(kind Kind, op string, err error) ([]byte, *Report, error) {
		return nil, report, &Error{Kind: kind, Op: op, Err: err, Report: report}
	}

	rw := rewrite.New(m)
	for _, s := range rw.Rejected() {
		report.Skipped = append(report.Skipped, Skipped{Key: s.Key, Reason: s.Reason, Kind: InvalidInput})
	}

	if err := ctx.Err(); err != nil {
		return fail(Canceled, "open", err)
	}
	r, err := reader.NewReaderWithLimits(data, p.opts.Limits)
	if err != nil {
		return fail(MalformedDocument, "open", err)
	}
	all, err := r.Pages()
	if err != nil {
		return fail(MalformedDocument, "pages", err)
	}
	indices, err := selectPages(p.opts.Pages, len(all))
	if err != nil {
		return fail(InvalidInput, "pages", err)
	}
	if rw.Empty() || len(indices) == 0 {
		return data, report, nil
	}

	results := p.processPages(ctx, r, all, indices, rw)
	if err := ctx.Err(); err != nil {
		return fail(Canceled, "pages", err)
	}

	up := writer.NewIncremental(r)
	for _, res := range results {
		if res.err != nil {
			return fail(MalformedDocument, fmt.Sprintf("page %d", res.index+1), res.err)
		}
		report.Replaced += res.replaced
		for _, s := range res.skipped {
			kind := Unknown
			if errors.Is(s.Err, rewrite.ErrUnsupportedFont) {
				kind = UnsupportedFont
			}
			report.Skipped = append(report.Skipped, Skipped{Key: s.Key, Reason: s.Reason, Page: res.index + 1, Kind: kind})
		}
		if res.content == nil {
			continue
		}
		if err := up.SetPageContent(all[res.index], res.content); err != nil {
			return fail(MalformedDocument, "write", err)
		}
	}

	out, err := up.Bytes()
	if err != nil {
		return fail(MalformedDocument, "write", err)
	}
	if err := ctx.Err(); err != nil {
		return fail(Canceled, "write", err)
	}
	p.log.Debug("document processed",
		"pages", len(indices), "replaced", report.Replaced, "skipped", len(report.Skipped), "repaired", r.Repaired())
	return out, report, nil
}

// processPages runs the page jobs on a worker pool and returns the results
// in page order. Workers stop taking pages once ctx is done or a page
// fails.
func (p *processor) processPages(ctx context.Context, r *reader.Reader, all []*pages.Page, indices []int, rw *rewrite.Rewriter) []pageResult {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	results := make(chan pageResult, len(indices))

	var wg sync.WaitGroup
	for range min(p.opts.Workers, len(indices)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				res := p.processPage(r, all[i], rw)
				if res.err != nil {
					cancel()
				}
				results <- res
			}
		}()
	}

feed:
	for _, i := range indices {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]pageResult, 0, len(indices))
	for res := range results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// processPage extracts, matches and re-encodes one page. Content that
// cannot be decoded leaves the page unchanged; exceeding a limit is fatal.
func (p *processor) processPage(r *reader.Reader, page *pages.Page, rw *rewrite.Rewriter) pageResult {
	res := pageResult{index: page.Index}
	log := p.log.With("page", page.Index+1)
	limits := r.Limits()

	data, err := page.ContentData(limits.MaxStreamSize)
	if err != nil {
		if errors.Is(err, core.ErrStreamTooLarge) {
			res.err = err
			return res
		}
		log.Debug("page content unreadable, page left unchanged", "error", err)
		return res
	}

	parser := contentstream.NewParser(data)
	parser.MaxOps = limits.MaxOperations
	content, err := parser.ParseContent()
	if err != nil {
		if errors.Is(err, contentstream.ErrTooManyOperations) {
			res.err = err
			return res
		}
		log.Debug("content stream truncated at parse error", "error", err, "operations", len(content.Ops))
	}

	ex := text.NewExtractor()
	ex.Threshold = p.opts.LineBreakThreshold
	if err := ex.RegisterFontsFromPage(page, r); err != nil {
		log.Debug("fonts not loaded", "error", err)
	}
	runs := ex.Extract(content.Ops)

	out := rw.Rewrite(content.Ops, runs, ex)
	res.replaced = out.Replaced
	res.skipped = out.Skipped
	for _, s := range out.Skipped {
		log.Debug("match skipped", "key", s.Key, "reason", s.Reason)
	}
	if out.Replaced > 0 {
		res.content = contentstream.Write(content, out.Ops)
	}
	log.Debug("page processed", "runs", len(runs), "replaced", out.Replaced)
	return res
}

// selectPages converts 1-based page numbers into sorted unique indices.
// nil selects every page.
func selectPages(selected []int, n int) ([]int, error) {
	if selected == nil {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	seen := make(map[int]bool, len(selected))
	indices := make([]int, 0, len(selected))
	for _, p := range selected {
		if p < 1 || p > n {
			return nil, fmt.Errorf("page %d out of range [1, %d]", p, n)
		}
		if !seen[p] {
			seen[p] = true
			indices = append(indices, p-1)
		}
	}
	sort.Ints(indices)
	return indices, nil
}
