package pdfreplace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tsawler/pdfreplace/internal/pdftest"
)

func TestReplacerImmutable(t *testing.T) {
	base := FromBytes(nil).Replace(Replacement{"a": "b"})
	more := base.Replace(Replacement{"a": "c", "x": "y"}).Pages(2).Workers(3).LineBreakThreshold(1.5)

	if diff := cmp.Diff(Replacement{"a": "b"}, base.mapping); diff != "" {
		t.Errorf("base mapping changed (-want +got):\n%s", diff)
	}
	if base.options.Pages != nil || base.options.LineBreakThreshold != 0 {
		t.Errorf("base options changed: %+v", base.options)
	}
	if diff := cmp.Diff(Replacement{"a": "c", "x": "y"}, more.mapping); diff != "" {
		t.Errorf("merged mapping mismatch (-want +got):\n%s", diff)
	}
	if !cmp.Equal(more.options.Pages, []int{2}) || more.options.Workers != 3 || more.options.LineBreakThreshold != 1.5 {
		t.Errorf("options = %+v", more.options)
	}
}

func TestReplacerPagesCumulative(t *testing.T) {
	r := FromBytes(nil).Pages(1).Pages(3, 4)
	if !cmp.Equal(r.options.Pages, []int{1, 3, 4}) {
		t.Errorf("Pages = %v", r.options.Pages)
	}
}

func TestReplacerBytes(t *testing.T) {
	data := pdftest.Document(pdftest.Options{}, pdftest.Page("Invoice #123"), pdftest.Page("Invoice #123"))
	out, report, err := FromBytes(data).Replace(Replacement{"#123": "#456"}).Pages(2).Bytes(context.Background())
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if report.Replaced != 1 {
		t.Errorf("Replaced = %d, want 1", report.Replaced)
	}
	want := [][]string{{"Invoice #123"}, {"Invoice #456"}}
	if diff := cmp.Diff(want, pageTexts(t, out)); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
}

func TestReplacerFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(in, pdftest.Document(pdftest.Options{}, pdftest.Page("Invoice")), 0o644); err != nil {
		t.Fatal(err)
	}

	if n, err := Open(in).PageCount(); err != nil || n != 1 {
		t.Errorf("PageCount() = %d, %v; want 1", n, err)
	}

	report := Must(Open(in).Replace(Replacement{"Invoice": "Receipt"}).WriteFile(context.Background(), out))
	if report.Replaced != 1 {
		t.Errorf("Replaced = %d, want 1", report.Replaced)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]string{{"Receipt"}}, pageTexts(t, data)); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
}

func TestReplacerMissingFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.pdf")
	_, err := Open(filepath.Join(dir, "missing.pdf")).Replace(Replacement{"a": "b"}).WriteFile(context.Background(), out)
	if KindOf(err) != InvalidInput {
		t.Errorf("KindOf() = %v, want InvalidInput (err = %v)", KindOf(err), err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("output written for a failed run")
	}
	if _, err := Open("").PageCount(); KindOf(err) != InvalidInput {
		t.Errorf("PageCount() without a file: %v", err)
	}
}

func TestMustPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Must did not panic")
		}
	}()
	Must(FromBytes([]byte("not a pdf")).PageCount())
}
