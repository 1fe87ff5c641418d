package text

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tsawler/pdfreplace/contentstream"
	"github.com/tsawler/pdfreplace/core"
	"github.com/tsawler/pdfreplace/font"
)

func parseOps(t *testing.T, src string) []contentstream.Operation {
	t.Helper()
	c, err := contentstream.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", src, err)
	}
	return c.Ops
}

func runTexts(runs []Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.Text
	}
	return out
}

func newTestExtractor() *Extractor {
	ex := NewExtractor()
	ex.RegisterFont("F1", "Helvetica", "Type1")
	ex.RegisterFont("F2", "Courier", "Type1")
	return ex
}

// TestNewExtractor tests extractor creation
func TestNewExtractor(t *testing.T) {
	ex := NewExtractor()
	if ex.gs == nil {
		t.Error("expected graphics state to be initialized")
	}
	if ex.fonts == nil {
		t.Error("expected fonts map to be initialized")
	}

	ex.RegisterFont("F1", "Helvetica", "Type1")
	if ex.Font("F1") == nil {
		t.Error("font F1 not registered")
	}
}

func TestExtractRuns(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		threshold float64
		want      []string
	}{
		{
			name:    "single operation",
			content: "BT /F1 12 Tf 72 720 Td (Invoice #123) Tj ET",
			want:    []string{"Invoice #123"},
		},
		{
			name:    "horizontal move joins",
			content: "BT /F1 12 Tf 72 720 Td (Inv) Tj 20 0 Td (oice) Tj ET",
			want:    []string{"Invoice"},
		},
		{
			name:    "vertical move splits",
			content: "BT /F1 12 Tf 72 720 Td (one) Tj 0 -14 Td (two) Tj ET",
			want:    []string{"one", "two"},
		},
		{
			name:      "move within threshold joins",
			content:   "BT /F1 12 Tf 72 720 Td (one) Tj 0 -14 Td (two) Tj ET",
			threshold: 20,
			want:      []string{"onetwo"},
		},
		{
			name:    "text objects split",
			content: "BT /F1 12 Tf 72 720 Td (one) Tj ET BT /F1 12 Tf 72 720 Td (two) Tj ET",
			want:    []string{"one", "two"},
		},
		{
			name:    "TJ array",
			content: "BT /F1 12 Tf [(Inv) -50 (oice)] TJ ET",
			want:    []string{"Invoice"},
		},
		{
			name:    "quote moves to next line",
			content: "BT /F1 12 Tf 14 TL (one) Tj (two) ' ET",
			want:    []string{"one", "two"},
		},
		{
			name:    "double quote without leading stays on line",
			content: "BT /F1 12 Tf (one) Tj 1 0 (two) \" ET",
			want:    []string{"onetwo"},
		},
		{
			name:    "text matrix on same baseline joins",
			content: "BT /F1 12 Tf 1 0 0 1 72 700 Tm (a) Tj 1 0 0 1 90 700 Tm (b) Tj ET",
			want:    []string{"ab"},
		},
		{
			name:      "threshold is in user space",
			content:   "0.5 0 0 0.5 0 0 cm BT /F1 12 Tf 72 720 Td (one) Tj 0 -14 Td (two) Tj ET",
			threshold: 10,
			want:      []string{"one", "two"},
		},
		{
			name:    "font change does not split",
			content: "BT /F1 12 Tf (ab) Tj /F2 12 Tf (cd) Tj ET",
			want:    []string{"abcd"},
		},
		{
			name:    "no text",
			content: "q 1 0 0 1 0 0 cm 0 0 10 10 re f Q",
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := newTestExtractor()
			ex.Threshold = tt.threshold
			runs := ex.Extract(parseOps(t, tt.content))
			if diff := cmp.Diff(tt.want, runTexts(runs)); diff != "" {
				t.Errorf("runs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractBackReferences(t *testing.T) {
	ops := parseOps(t, "BT /F1 12 Tf (In) Tj 5 0 Td [(v) 120 (oi)] TJ /F2 9 Tf (ce) Tj ET")
	runs := newTestExtractor().Extract(ops)
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}

	want := []Char{
		{Op: 2, Segment: 0, Offset: 0, Len: 1, Font: "F1", Size: 12, Text: "I", Mapped: true},
		{Op: 2, Segment: 0, Offset: 1, Len: 1, Font: "F1", Size: 12, Text: "n", Mapped: true},
		{Op: 4, Segment: 0, Offset: 0, Len: 1, Font: "F1", Size: 12, Text: "v", Mapped: true},
		{Op: 4, Segment: 1, Offset: 0, Len: 1, Font: "F1", Size: 12, Text: "o", Mapped: true},
		{Op: 4, Segment: 1, Offset: 1, Len: 1, Font: "F1", Size: 12, Text: "i", Mapped: true},
		{Op: 6, Segment: 0, Offset: 0, Len: 1, Font: "F2", Size: 9, Text: "c", Mapped: true},
		{Op: 6, Segment: 0, Offset: 1, Len: 1, Font: "F2", Size: 9, Text: "e", Mapped: true},
	}
	if diff := cmp.Diff(want, runs[0].Chars); diff != "" {
		t.Errorf("chars mismatch (-want +got):\n%s", diff)
	}

	// Every back reference must address a byte of its operation.
	for _, c := range runs[0].Chars {
		segs := ops[c.Op].Segments()
		if c.Segment >= len(segs) || c.Offset+c.Len > len(segs[c.Segment]) {
			t.Errorf("char %+v points outside operation %d", c, c.Op)
		}
	}
}

func TestExtractMissingFont(t *testing.T) {
	ex := newTestExtractor()
	runs := ex.Extract(parseOps(t, "BT /F9 12 Tf (ab) Tj /F1 12 Tf (cd) Tj ET"))
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	r := runs[0]
	if r.Text != Unmapped+Unmapped+"cd" {
		t.Errorf("Text = %q", r.Text)
	}
	if r.Mapped(0, 2) {
		t.Error("characters of a missing font should be unmapped")
	}
	if !r.Mapped(2, 4) {
		t.Error("characters of F1 should be mapped")
	}
	if r.Chars[0].Font != "F9" {
		t.Errorf("Font = %q, want F9", r.Chars[0].Font)
	}
}

func TestExtractResetsBetweenCalls(t *testing.T) {
	ex := newTestExtractor()
	ex.Extract(parseOps(t, "BT /F1 12 Tf (a) Tj ET q"))
	runs := ex.Extract(parseOps(t, "BT (b) Tj ET"))
	if len(runs) != 1 || runs[0].Chars[0].Font != "" {
		t.Errorf("state leaked between Extract calls: %+v", runs)
	}
}

func TestRunSpan(t *testing.T) {
	r := NewRun([]Char{
		{Text: "é", Mapped: true, Len: 1},
		{Text: "fi", Mapped: true, Len: 1},
		{Len: 1},
		{Text: "x", Mapped: true, Len: 1},
	})
	if r.Text != "éfi"+Unmapped+"x" {
		t.Fatalf("Text = %q", r.Text)
	}

	tests := []struct {
		start, end  int
		first, last int
		ok          bool
	}{
		{0, 2, 0, 1, true},
		{2, 4, 1, 2, true},
		{0, 4, 0, 2, true},
		{1, 4, 0, 0, false}, // inside é
		{2, 3, 0, 0, false}, // inside fi ligature
		{7, 8, 3, 4, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-%d", tt.start, tt.end), func(t *testing.T) {
			first, last, ok := r.Span(tt.start, tt.end)
			if ok != tt.ok || first != tt.first || last != tt.last {
				t.Errorf("Span(%d, %d) = %d, %d, %v; want %d, %d, %v",
					tt.start, tt.end, first, last, ok, tt.first, tt.last, tt.ok)
			}
		})
	}

	if r.Mapped(1, 3) {
		t.Error("range with an unmapped character reported as mapped")
	}
	if r.TextOffset(3) != 7 {
		t.Errorf("TextOffset(3) = %d, want 7", r.TextOffset(3))
	}
}

type mapResolver map[int]core.Object

func (m mapResolver) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	if obj, ok := m[ref.Number]; ok {
		return obj, nil
	}
	return nil, fmt.Errorf("object %d not found", ref.Number)
}

func TestRegisterFontsFromResources(t *testing.T) {
	resolver := mapResolver{
		10: core.Dict{
			"Type":     core.Name("Font"),
			"Subtype":  core.Name("Type1"),
			"BaseFont": core.Name("Helvetica"),
			"Encoding": core.Name("WinAnsiEncoding"),
		},
		11: core.Dict{"Type": core.Name("Font"), "Subtype": core.Name("OpenType")},
	}
	fonts := core.Dict{
		"F1": core.IndirectRef{Number: 10},
		"F2": core.IndirectRef{Number: 11},
		"F3": core.IndirectRef{Number: 12},
		"F4": core.Int(3),
	}

	ex := NewExtractor()
	err := ex.RegisterFontsFromResources(fonts, resolver)
	if err == nil {
		t.Fatal("expected joined load errors")
	}
	if !errors.Is(err, font.ErrUnsupportedFont) {
		t.Errorf("error %v does not wrap ErrUnsupportedFont", err)
	}
	if ex.Font("F1") == nil {
		t.Error("F1 should be registered")
	}
	for _, name := range []string{"F2", "F3", "F4"} {
		if ex.Font(name) != nil {
			t.Errorf("%s should not be registered", name)
		}
	}

	runs := ex.Extract(parseOps(t, "BT /F1 10 Tf (ok) Tj /F2 10 Tf (no) Tj ET"))
	if len(runs) != 1 || runs[0].Text != "ok"+Unmapped+Unmapped {
		t.Errorf("runs = %v", runTexts(runs))
	}
}

func TestExtractVerticalFont(t *testing.T) {
	resolver := mapResolver{
		20: core.Dict{
			"Subtype":  core.Name("Type0"),
			"BaseFont": core.Name("ABCDEF+NotoSansCJK"),
			"Encoding": core.Name("Identity-V"),
			"DescendantFonts": core.Array{core.Dict{
				"Subtype":  core.Name("CIDFontType2"),
				"BaseFont": core.Name("ABCDEF+NotoSansCJK"),
			}},
			"ToUnicode": &core.Stream{Dict: core.Dict{}, Data: []byte(`1 begincodespacerange <0000> <FFFF> endcodespacerange
2 beginbfchar <0001> <4E2D> <0002> <6587> endbfchar`)},
		},
	}

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "glyphs down a column join",
			content: "BT /V1 12 Tf 300 700 Td <0001> Tj 0 -12 Td <0002> Tj ET",
			want:    []string{"\u4e2d\u6587"},
		},
		{
			name:    "next column splits",
			content: "BT /V1 12 Tf 300 700 Td <0001> Tj -14 0 Td <0002> Tj ET",
			want:    []string{"\u4e2d", "\u6587"},
		},
		{
			name:    "horizontal font still splits on y",
			content: "BT /F1 12 Tf 300 700 Td (a) Tj -14 0 Td (b) Tj 0 -12 Td (c) Tj ET",
			want:    []string{"ab", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := newTestExtractor()
			if err := ex.RegisterFontsFromResources(core.Dict{"V1": core.IndirectRef{Number: 20}}, resolver); err != nil {
				t.Fatalf("RegisterFontsFromResources() error = %v", err)
			}
			runs := ex.Extract(parseOps(t, tt.content))
			if diff := cmp.Diff(tt.want, runTexts(runs)); diff != "" {
				t.Errorf("runs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
