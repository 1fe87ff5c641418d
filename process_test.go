package pdfreplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tsawler/pdfreplace/contentstream"
	"github.com/tsawler/pdfreplace/internal/pdftest"
	"github.com/tsawler/pdfreplace/reader"
	"github.com/tsawler/pdfreplace/text"
)

// pageTexts returns the runs of every page, one string per run.
func pageTexts(t *testing.T, data []byte) [][]string {
	t.Helper()
	r, err := reader.NewReader(data)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	all, err := r.Pages()
	if err != nil {
		t.Fatalf("Pages() error = %v", err)
	}
	var out [][]string
	for _, page := range all {
		content, err := page.ContentData(0)
		if err != nil {
			t.Fatalf("ContentData() error = %v", err)
		}
		c, err := contentstream.Parse(content)
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		ex := text.NewExtractor()
		if err := ex.RegisterFontsFromPage(page, r); err != nil {
			t.Fatalf("RegisterFontsFromPage() error = %v", err)
		}
		var texts []string
		for _, run := range ex.Extract(c.Ops) {
			texts = append(texts, run.Text)
		}
		out = append(out, texts)
	}
	return out
}

func process(t *testing.T, data []byte, m Replacement, opts ...Option) ([]byte, *Report) {
	t.Helper()
	out, report, err := Process(context.Background(), data, m, opts...)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	return out, report
}

func TestProcessEmptyMappingRoundTrip(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, pdftest.Page("Invoice #123"))
	for _, m := range []Replacement{nil, {}} {
		out, report := process(t, data, m)
		if !bytes.Equal(out, data) {
			t.Error("empty mapping changed the document")
		}
		if report.Replaced != 0 || len(report.Skipped) != 0 {
			t.Errorf("report = %+v", report)
		}
	}
}

func TestProcessAbsentKey(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, pdftest.Page("Invoice #123"))
	out, report := process(t, data, Replacement{"Receipt": "Bill"})
	if report.Replaced != 0 {
		t.Errorf("Replaced = %d, want 0", report.Replaced)
	}
	if !bytes.Equal(out, data) {
		t.Error("document changed without a replacement")
	}
}

func TestProcessLayouts(t *testing.T) {
	layouts := []struct {
		name string
		opts pdftest.Options
	}{
		{"classic", pdftest.Options{}},
		{"compressed", pdftest.Options{Compress: true}},
		{"xref stream", pdftest.Options{XRefStream: true}},
		{"object stream", pdftest.Options{XRefStream: true, ObjectStream: true, Compress: true}},
	}

	for _, tt := range layouts {
		t.Run(tt.name, func(t *testing.T) {
			data := pdftest.Document(tt.opts, pdftest.Page("Invoice #123", "Total 10"), pdftest.Page("Thanks"))
			out, report := process(t, data, Replacement{"#123": "#456"})
			if report.Replaced != 1 {
				t.Errorf("Replaced = %d, want 1", report.Replaced)
			}
			if !bytes.HasPrefix(out, data) {
				t.Error("original bytes not preserved")
			}
			want := [][]string{{"Invoice #456", "Total 10"}, {"Thanks"}}
			if diff := cmp.Diff(want, pageTexts(t, out)); diff != "" {
				t.Errorf("text mismatch (-want +got):\n%s", diff)
			}

			r, err := reader.NewReader(out)
			if err != nil {
				t.Fatal(err)
			}
			if r.XRefTable().IsStream != tt.opts.XRefStream {
				t.Errorf("IsStream = %v, want %v", r.XRefTable().IsStream, tt.opts.XRefStream)
			}
		})
	}
}

func TestProcessCrossOperation(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, "BT /F1 12 Tf 72 720 Td (Inv) Tj 20 0 Td (oice) Tj ET")
	out, report := process(t, data, Replacement{"Invoice": "Receipt"})
	if report.Replaced != 1 {
		t.Errorf("Replaced = %d, want 1", report.Replaced)
	}
	if diff := cmp.Diff([][]string{{"Receipt"}}, pageTexts(t, out)); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessIdempotent(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, pdftest.Page("Invoice #123"))
	m := Replacement{"#123": "#456"}
	once, _ := process(t, data, m)
	twice, report := process(t, once, m)
	if report.Replaced != 0 {
		t.Errorf("second pass Replaced = %d, want 0", report.Replaced)
	}
	if !bytes.Equal(once, twice) {
		t.Error("second pass changed the document")
	}
}

func TestProcessOverlappingKeys(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, pdftest.Page("Invoice"))
	m := Replacement{"Inv": "X", "Invoice": "Y"}
	first, _ := process(t, data, m)
	if diff := cmp.Diff([][]string{{"Xoice"}}, pageTexts(t, first)); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
	for range 10 {
		out, _ := process(t, data, m, WithWorkers(4))
		if !bytes.Equal(out, first) {
			t.Fatal("output differs between runs")
		}
	}
}

func TestProcessMixedFonts(t *testing.T) {
	content := "BT /F1 12 Tf (Inv) Tj /F2 12 Tf (oice) Tj ET"
	data := pdftest.Document(pdftest.Options{}, content)
	out, report := process(t, data, Replacement{"Invoice": "Receipt"})
	if report.Replaced != 0 {
		t.Errorf("Replaced = %d, want 0", report.Replaced)
	}
	if len(report.Skipped) != 1 {
		t.Fatalf("Skipped = %+v, want one entry", report.Skipped)
	}
	s := report.Skipped[0]
	if s.Key != "Invoice" || s.Kind != UnsupportedFont || s.Page != 1 {
		t.Errorf("skipped = %+v", s)
	}
	if !strings.Contains(s.Reason, "UnsupportedFont") {
		t.Errorf("Reason = %q, want it to mention UnsupportedFont", s.Reason)
	}
	if !bytes.Equal(out, data) {
		t.Error("document changed although nothing was replaced")
	}
}

func TestProcessUnencodable(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, pdftest.Page("Invoice #123"), pdftest.Page("Invoice #123"))
	_, report := process(t, data, Replacement{"#123": "#中"})
	if report.Replaced != 0 {
		t.Errorf("Replaced = %d, want 0", report.Replaced)
	}
	if len(report.Skipped) != 2 {
		t.Fatalf("Skipped = %+v, want one entry per page", report.Skipped)
	}
	for i, s := range report.Skipped {
		if s.Page != i+1 || s.Kind != UnsupportedFont {
			t.Errorf("Skipped[%d] = %+v", i, s)
		}
	}
}

func TestProcessRejectedKeys(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, pdftest.Page("Invoice #123"))
	out, report := process(t, data, Replacement{"": "x", "#123": "#456"})
	if report.Replaced != 1 {
		t.Errorf("Replaced = %d, want 1", report.Replaced)
	}
	want := []Skipped{{Key: "", Reason: "empty search key", Kind: InvalidInput}}
	if diff := cmp.Diff(want, report.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"Invoice #456"}}, pageTexts(t, out)); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessPageSelection(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, pdftest.Page("a 1"), pdftest.Page("b 1"), pdftest.Page("c 1"))
	out, report := process(t, data, Replacement{"1": "2"}, WithPages(3, 2, 3))
	if report.Replaced != 2 {
		t.Errorf("Replaced = %d, want 2", report.Replaced)
	}
	want := [][]string{{"a 1"}, {"b 2"}, {"c 2"}}
	if diff := cmp.Diff(want, pageTexts(t, out)); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessRepairedDocument(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, pdftest.Page("Invoice #123"))
	i := bytes.LastIndex(data, []byte("startxref\n"))
	broken := append(append([]byte{}, data[:i]...), "startxref\n123456\n%%EOF\n"...)

	out, report := process(t, broken, Replacement{"#123": "#456"})
	if report.Replaced != 1 {
		t.Errorf("Replaced = %d, want 1", report.Replaced)
	}
	if diff := cmp.Diff([][]string{{"Invoice #456"}}, pageTexts(t, out)); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessErrors(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, pdftest.Page("Invoice #123"))
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		data []byte
		opts []Option
		kind Kind
	}{
		{"not a pdf", context.Background(), []byte("hello world"), nil, MalformedDocument},
		{"empty input", context.Background(), nil, nil, MalformedDocument},
		{"canceled", canceled, data, nil, Canceled},
		{"page out of range", context.Background(), data, []Option{WithPages(2)}, InvalidInput},
		{"page zero", context.Background(), data, []Option{WithPages(0)}, InvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, report, err := Process(tt.ctx, tt.data, Replacement{"#123": "#456"}, tt.opts...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if out != nil {
				t.Error("failed run returned output")
			}
			if report == nil {
				t.Error("failed run returned a nil report")
			}
			if got := KindOf(err); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v (err = %v)", got, tt.kind, err)
			}
			var e *Error
			if !errors.As(err, &e) || e.Report != report {
				t.Errorf("error does not carry the report: %v", err)
			}
		})
	}
}

func TestProcessMalformedWrapsReaderError(t *testing.T) {
	_, _, err := Process(context.Background(), []byte("%PDF-1.7\ngarbage"), Replacement{"a": "b"})
	if !errors.Is(err, reader.ErrMalformed) {
		t.Errorf("err = %v, want it to wrap reader.ErrMalformed", err)
	}
	if !strings.Contains(err.Error(), "MalformedDocument") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestProcessOperationLimit(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, pdftest.Page("a", "b", "c", "d"))
	limits := reader.DefaultLimits()
	limits.MaxOperations = 3
	_, _, err := Process(context.Background(), data, Replacement{"a": "b"}, WithLimits(limits))
	if KindOf(err) != MalformedDocument {
		t.Errorf("KindOf() = %v, want MalformedDocument (err = %v)", KindOf(err), err)
	}
	if !errors.Is(err, contentstream.ErrTooManyOperations) {
		t.Errorf("err = %v, want ErrTooManyOperations", err)
	}
}

func TestReportJSON(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, "BT /F1 12 Tf (Inv) Tj /F2 12 Tf (oice) Tj ET")
	_, report := process(t, data, Replacement{"Invoice": "Receipt"})
	got, err := json.Marshal(report)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"replaced":0,"skipped":[{"key":"Invoice","reason":"UnsupportedFont: text uses fonts F1 and F2","page":1}]}`
	if string(got) != want {
		t.Errorf("JSON = %s\nwant   %s", got, want)
	}

	empty, err := json.Marshal(newReport())
	if err != nil {
		t.Fatal(err)
	}
	if string(empty) != `{"replaced":0,"skipped":[]}` {
		t.Errorf("empty report JSON = %s", empty)
	}
}

func TestSelectPages(t *testing.T) {
	got, err := selectPages(nil, 3)
	if err != nil || !cmp.Equal(got, []int{0, 1, 2}) {
		t.Errorf("selectPages(nil) = %v, %v", got, err)
	}
	got, err = selectPages([]int{3, 1, 3}, 3)
	if err != nil || !cmp.Equal(got, []int{0, 2}) {
		t.Errorf("selectPages([3 1 3]) = %v, %v", got, err)
	}
	if _, err := selectPages([]int{4}, 3); err == nil {
		t.Error("expected an error for page 4 of 3")
	}
}
