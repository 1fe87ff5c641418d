package text

import (
	"slices"
	"strings"
)

// Unmapped stands in for characters without a Unicode mapping in Run.Text,
// so that no search key can match across them.
const Unmapped = "\uFFFD"

// Char is one character code shown by a content stream operation.
type Char struct {
	Op      int // index of the showing operation
	Segment int // index into the operation's Segments
	Offset  int // byte offset of the code within the segment
	Len     int // byte length of the code

	Font string  // font resource name
	Size float64 // font size set by Tf

	Text   string // NFC text, empty when unmapped
	Mapped bool
}

// Run is a sequence of characters on one visual line, in content stream
// order.
type Run struct {
	Chars []Char
	Text  string

	// starts[i] is the offset of Chars[i] in Text; starts[len(Chars)] is
	// len(Text).
	starts []int
}

// NewRun builds a run and its text from chars.
func NewRun(chars []Char) *Run {
	var sb strings.Builder
	starts := make([]int, 0, len(chars)+1)
	for _, c := range chars {
		starts = append(starts, sb.Len())
		if c.Mapped {
			sb.WriteString(c.Text)
		} else {
			sb.WriteString(Unmapped)
		}
	}
	starts = append(starts, sb.Len())
	return &Run{Chars: chars, Text: sb.String(), starts: starts}
}

// Span converts the byte range [start, end) of r.Text into the character
// range [first, last). ok is false when either bound falls inside a
// character's text.
func (r *Run) Span(start, end int) (first, last int, ok bool) {
	first, ok1 := slices.BinarySearch(r.starts, start)
	last, ok2 := slices.BinarySearch(r.starts, end)
	if !ok1 || !ok2 || first > last {
		return 0, 0, false
	}
	return first, last, true
}

// Mapped reports whether every character in [first, last) has a Unicode
// mapping.
func (r *Run) Mapped(first, last int) bool {
	for _, c := range r.Chars[first:last] {
		if !c.Mapped {
			return false
		}
	}
	return true
}

// TextOffset returns the offset in r.Text of character i.
func (r *Run) TextOffset(i int) int {
	return r.starts[i]
}
