package text

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tsawler/pdfreplace/contentstream"
	"github.com/tsawler/pdfreplace/core"
	"github.com/tsawler/pdfreplace/font"
	"github.com/tsawler/pdfreplace/graphicsstate"
	"github.com/tsawler/pdfreplace/logging"
	"github.com/tsawler/pdfreplace/pages"
)

// Extractor splits the text shown by a content stream into runs
type Extractor struct {
	gs    *graphicsstate.GraphicsState
	fonts map[string]*font.Font

	// Threshold is the movement of the text line origin across lines, in
	// user space units, above which a new run starts. Zero breaks on any
	// such movement. Lines run along y, or along x for vertical fonts.
	Threshold float64

	runs  []Run
	chars []Char
}

// NewExtractor creates a new text extractor
func NewExtractor() *Extractor {
	return &Extractor{
		gs:    graphicsstate.NewGraphicsState(),
		fonts: make(map[string]*font.Font),
	}
}

// RegisterFont registers a simple WinAnsi font under a resource name
func (e *Extractor) RegisterFont(name, baseFont, subtype string) {
	e.fonts[name] = font.NewFont(name, baseFont, subtype)
}

// Font returns the font registered under name, or nil.
func (e *Extractor) Font(name string) *font.Font {
	return e.fonts[name]
}

// RegisterFontsFromPage loads and registers every font in the page
// resources. Fonts that fail to load are left unregistered and their
// errors are joined into the result; text shown with them is unmapped.
func (e *Extractor) RegisterFontsFromPage(page *pages.Page, resolver core.ReferenceResolver) error {
	fonts, err := page.Fonts()
	if err != nil {
		return fmt.Errorf("page resources: %w", err)
	}
	return e.RegisterFontsFromResources(fonts, resolver)
}

// RegisterFontsFromResources loads the fonts of a /Font resource
// dictionary.
func (e *Extractor) RegisterFontsFromResources(fonts core.Dict, resolver core.ReferenceResolver) error {
	names := make([]string, 0, len(fonts))
	for name := range fonts {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		obj := fonts[name]
		if ref, ok := obj.(core.IndirectRef); ok {
			resolved, err := resolver.ResolveReference(ref)
			if err != nil {
				errs = append(errs, fmt.Errorf("font %s: %w", name, err))
				continue
			}
			obj = resolved
		}
		dict, ok := obj.(core.Dict)
		if !ok {
			errs = append(errs, fmt.Errorf("font %s: %w: %T is not a dictionary", name, font.ErrUnsupportedFont, obj))
			continue
		}
		f, err := font.Load(name, dict, resolver)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.fonts[name] = f
	}
	return errors.Join(errs...)
}

// Extract walks ops and returns the runs they show. Runs that contain no
// characters are dropped.
func (e *Extractor) Extract(ops []contentstream.Operation) []Run {
	e.gs = graphicsstate.NewGraphicsState()
	e.runs = nil
	e.chars = nil

	for i := range ops {
		e.processOperation(i, &ops[i])
	}
	e.flush()
	return e.runs
}

func (e *Extractor) processOperation(i int, op *contentstream.Operation) {
	switch op.Kind {
	case contentstream.KindBeginText:
		e.flush()
	case contentstream.KindMoveText, contentstream.KindSetTextMatrix, contentstream.KindShowText:
		x0, y0 := e.gs.LineOrigin()
		e.apply(op)
		x1, y1 := e.gs.LineOrigin()
		if e.lineBreak(x1-x0, y1-y0) {
			e.flush()
		}
		if op.Kind == contentstream.KindShowText {
			e.show(i, op)
		}
		return
	}
	e.apply(op)
}

// lineBreak reports whether a move of the line origin starts a new line.
// Vertical fonts stack lines along x.
func (e *Extractor) lineBreak(dx, dy float64) bool {
	if f := e.fonts[e.gs.Text.FontName]; f != nil && f.IsVertical() {
		return math.Abs(dx) > e.Threshold
	}
	return math.Abs(dy) > e.Threshold
}

func (e *Extractor) apply(op *contentstream.Operation) {
	if err := e.gs.Apply(op); err != nil {
		logging.Logger().Debug("ignoring graphics state error", "operator", op.Operator, "error", err)
	}
}

// show appends the characters of a ShowText operation to the current run.
func (e *Extractor) show(i int, op *contentstream.Operation) {
	name := e.gs.Text.FontName
	size := e.gs.Text.FontSize
	f := e.fonts[name]

	for seg, s := range op.Segments() {
		if f == nil {
			for off := range len(s) {
				e.chars = append(e.chars, Char{Op: i, Segment: seg, Offset: off, Len: 1, Font: name, Size: size})
			}
			continue
		}
		off := 0
		for _, c := range f.Chars([]byte(s)) {
			e.chars = append(e.chars, Char{
				Op:      i,
				Segment: seg,
				Offset:  off,
				Len:     len(c.Code),
				Font:    name,
				Size:    size,
				Text:    c.Text,
				Mapped:  c.Mapped(),
			})
			off += len(c.Code)
		}
	}
}

func (e *Extractor) flush() {
	if len(e.chars) == 0 {
		return
	}
	e.runs = append(e.runs, *NewRun(e.chars))
	e.chars = nil
}
