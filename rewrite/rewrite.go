package rewrite

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tsawler/pdfreplace/contentstream"
	"github.com/tsawler/pdfreplace/font"
	"github.com/tsawler/pdfreplace/text"
	"golang.org/x/text/unicode/norm"
)

// ErrUnsupportedFont marks a match that cannot be rewritten with the fonts
// that show it.
var ErrUnsupportedFont = errors.New("UnsupportedFont")

// FontSource looks up the font selected by a resource name.
type FontSource interface {
	Font(name string) *font.Font
}

// Span is a byte range of one string segment of a ShowText operation.
type Span struct {
	Op      int
	Segment int
	Offset  int
	Len     int
}

// Match is one occurrence of a key in a run.
type Match struct {
	Key         string
	Replacement []byte // encoded in the font of the matched characters
	Run         int
	First, Last int // character range in the run
	Spans       []Span
}

// Skip records a match that was found but not rewritten, or a key that
// could not be used.
type Skip struct {
	Key    string
	Reason string
	Err    error `json:"-"`
}

// Result is the outcome of rewriting one page.
type Result struct {
	Ops      []contentstream.Operation
	Matches  []Match
	Replaced int
	Skipped  []Skip
}

// Rewriter holds a normalized replacement mapping. It is safe for
// concurrent use.
type Rewriter struct {
	keys     []string
	repl     map[string]string
	rejected []Skip
}

// New prepares a mapping. Empty keys, and keys that collide with another
// key after normalization, are dropped and listed by Rejected.
func New(m map[string]string) *Rewriter {
	orig := make([]string, 0, len(m))
	for k := range m {
		orig = append(orig, k)
	}
	sort.Strings(orig)

	rw := &Rewriter{repl: make(map[string]string, len(m))}
	for _, k := range orig {
		nk := norm.NFC.String(k)
		if nk == "" {
			rw.rejected = append(rw.rejected, Skip{Key: k, Reason: "empty search key"})
			continue
		}
		if _, dup := rw.repl[nk]; dup {
			rw.rejected = append(rw.rejected, Skip{Key: k, Reason: fmt.Sprintf("duplicate of %q after normalization", nk)})
			continue
		}
		rw.keys = append(rw.keys, nk)
		rw.repl[nk] = norm.NFC.String(m[k])
	}
	sort.Strings(rw.keys)
	return rw
}

// Keys returns the normalized keys in matching order.
func (rw *Rewriter) Keys() []string {
	return append([]string(nil), rw.keys...)
}

// Rejected returns the keys New dropped.
func (rw *Rewriter) Rejected() []Skip {
	return append([]Skip(nil), rw.rejected...)
}

// Empty reports whether no usable key is left.
func (rw *Rewriter) Empty() bool {
	return len(rw.keys) == 0
}

// Rewrite finds every match in runs and returns ops with the matches
// applied. ops is not modified. runs must have been extracted from ops.
func (rw *Rewriter) Rewrite(ops []contentstream.Operation, runs []text.Run, fonts FontSource) *Result {
	matches, skipped := rw.Find(runs, fonts)
	res := &Result{
		Ops:      ops,
		Matches:  matches,
		Replaced: len(matches),
		Skipped:  skipped,
	}
	if len(matches) > 0 {
		res.Ops = Apply(ops, runs, matches)
	}
	return res
}

// Find locates the matches of every key. Keys are tried in order and a
// character consumed by an earlier match is not available to later ones.
func (rw *Rewriter) Find(runs []text.Run, fonts FontSource) ([]Match, []Skip) {
	var (
		matches []Match
		skipped []Skip
	)
	consumed := make([][]bool, len(runs))
	for i := range runs {
		consumed[i] = make([]bool, len(runs[i].Chars))
	}
	encoded := make(map[[2]string][]byte)
	seen := make(map[[2]string]bool)

	for _, key := range rw.keys {
		for ri := range runs {
			run := &runs[ri]
			pos := 0
			for pos <= len(run.Text)-len(key) {
				idx := strings.Index(run.Text[pos:], key)
				if idx < 0 {
					break
				}
				start := pos + idx
				first, last, ok := run.Span(start, start+len(key))
				if !ok || !run.Mapped(first, last) || overlaps(consumed[ri], first, last) {
					_, size := utf8.DecodeRuneInString(run.Text[start:])
					pos = start + size
					continue
				}

				code, err := rw.encode(run, first, last, key, fonts, encoded)
				if err != nil {
					skip := Skip{Key: key, Reason: err.Error(), Err: err}
					if id := [2]string{key, skip.Reason}; !seen[id] {
						seen[id] = true
						skipped = append(skipped, skip)
					}
					_, size := utf8.DecodeRuneInString(run.Text[start:])
					pos = start + size
					continue
				}

				for i := first; i < last; i++ {
					consumed[ri][i] = true
				}
				matches = append(matches, Match{
					Key:         key,
					Replacement: code,
					Run:         ri,
					First:       first,
					Last:        last,
					Spans:       spans(run.Chars[first:last]),
				})
				pos = start + len(key)
			}
		}
	}
	return matches, skipped
}

// encode returns the replacement for key in the font of chars
// [first, last). Results are cached per font and key.
func (rw *Rewriter) encode(run *text.Run, first, last int, key string, fonts FontSource, cache map[[2]string][]byte) ([]byte, error) {
	name := run.Chars[first].Font
	for _, c := range run.Chars[first+1 : last] {
		if c.Font != name {
			return nil, fmt.Errorf("%w: text uses fonts %s and %s", ErrUnsupportedFont, name, c.Font)
		}
	}
	id := [2]string{name, key}
	if code, ok := cache[id]; ok {
		return code, nil
	}
	f := fonts.Font(name)
	if f == nil {
		return nil, fmt.Errorf("%w: font %s is not loaded", ErrUnsupportedFont, name)
	}
	code, err := f.Encode(rw.repl[key])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFont, err)
	}
	cache[id] = code
	return code, nil
}

func overlaps(consumed []bool, first, last int) bool {
	for _, c := range consumed[first:last] {
		if c {
			return true
		}
	}
	return false
}

// spans merges the byte ranges of consecutive characters of the same
// segment.
func spans(chars []text.Char) []Span {
	var out []Span
	for _, c := range chars {
		if n := len(out); n > 0 {
			s := &out[n-1]
			if s.Op == c.Op && s.Segment == c.Segment && s.Offset+s.Len == c.Offset {
				s.Len += c.Len
				continue
			}
		}
		out = append(out, Span{Op: c.Op, Segment: c.Segment, Offset: c.Offset, Len: c.Len})
	}
	return out
}
