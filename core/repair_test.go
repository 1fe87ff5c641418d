package core

import (
	"strings"
	"testing"
)

func TestScanObjects(t *testing.T) {
	data := "%PDF-1.4\n" +
		"1 0 obj\n<</Type /Catalog /Pages 2 0 R>>\nendobj\n" +
		"2 0 obj\n<</Type /Pages /Kids [] /Count 0>>\nendobj\n" +
		"3 0 obj\n(old)\nendobj\n" +
		"3 0 obj\n(new)\nendobj\n" +
		"xref\n0 1\n0000000000 65535 f \ntrailer\n<</Size 4>>\nstartxref\n999999\n%%EOF\n"

	table := ScanObjects([]byte(data))

	if table.Size() != 3 {
		t.Errorf("Size() = %d, want 3", table.Size())
	}
	e, ok := table.Get(3)
	if !ok {
		t.Fatal("object 3 missing")
	}
	if want := int64(strings.LastIndex(data, "3 0 obj")); e.Offset != want {
		t.Errorf("object 3 offset = %d, want last occurrence %d", e.Offset, want)
	}

	root, ok := table.Trailer.GetIndirectRef("Root")
	if !ok || root.Number != 1 {
		t.Errorf("trailer /Root = %v, want 1 0 R from the catalog", table.Trailer.Get("Root"))
	}
	if size, _ := table.Trailer.GetInt("Size"); size != 4 {
		t.Errorf("trailer /Size = %d, want 4", size)
	}
}

func TestScanObjectsPrefersTrailerRoot(t *testing.T) {
	data := "%PDF-1.4\n" +
		"7 0 obj\n<</Type /Catalog>>\nendobj\n" +
		"trailer\n<</Size 9 /Root 7 0 R /Info 8 0 R>>\n"

	table := ScanObjects([]byte(data))
	if !table.Trailer.Has("Info") {
		t.Error("expected the trailer dictionary to be recovered")
	}
	if size, _ := table.Trailer.GetInt("Size"); size != 9 {
		t.Errorf("trailer /Size = %d, want 9", size)
	}
}

func TestScanObjectsXRefStreamTrailer(t *testing.T) {
	data := "%PDF-1.5\n" +
		"4 0 obj\n<</Type /ObjStm /N 1 /First 4 /Length 30>>\nstream\n1 0 <</Type /Catalog /Pages 2 0 R>>\nendstream\nendobj\n" +
		"9 0 obj\n<</Type /XRef /Size 10 /Root 1 0 R /W [1 2 1] /Length 0>>\nstream\n\nendstream\nendobj\n"

	table := ScanObjects([]byte(data))
	root, ok := table.Trailer.GetIndirectRef("Root")
	if !ok || root.Number != 1 {
		t.Errorf("trailer /Root = %v, want 1 0 R from the xref stream", table.Trailer.Get("Root"))
	}
	if table.Trailer.Has("W") {
		t.Error("stream-only keys copied into the trailer")
	}
	if size, _ := table.Trailer.GetInt("Size"); size != 10 {
		t.Errorf("trailer /Size = %d, want 10", size)
	}
}
