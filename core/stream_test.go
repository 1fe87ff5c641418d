package core

import (
	"bytes"
	"compress/zlib"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

// pngUp prefixes each row with the PNG "up" filter type after
// subtracting the row above.
func pngUp(data []byte, columns int) []byte {
	var out []byte
	prev := make([]byte, columns)
	for start := 0; start < len(data); start += columns {
		row := data[start : start+columns]
		out = append(out, 2)
		for i, b := range row {
			out = append(out, b-prev[i])
		}
		prev = row
	}
	return out
}

func TestStreamDecode(t *testing.T) {
	content := []byte("BT /F1 12 Tf (Invoice #123) Tj ET")
	rows := []byte{1, 0, 16, 0, 1, 0, 48, 0, 1, 0, 80, 0}

	tests := []struct {
		name string
		dict Dict
		data []byte
		want []byte
	}{
		{"no filter", Dict{}, content, content},
		{"null filter", Dict{"Filter": Null{}}, content, content},
		{"flate", Dict{"Filter": Name("FlateDecode")}, deflate(content), content},
		{"flate abbreviation", Dict{"Filter": Name("Fl")}, deflate(content), content},
		{
			name: "flate with predictor",
			dict: Dict{"Filter": Name("FlateDecode"), "DecodeParms": Dict{"Predictor": Int(12), "Columns": Int(4)}},
			data: deflate(pngUp(rows, 4)),
			want: rows,
		},
		{
			name: "params in a one element array",
			dict: Dict{"Filter": Name("FlateDecode"), "DecodeParms": Array{Dict{"Predictor": Int(12), "Columns": Int(4)}}},
			data: deflate(pngUp(rows, 4)),
			want: rows,
		},
		{"hex", Dict{"Filter": Name("ASCIIHexDecode")}, []byte("496E766F696365>"), []byte("Invoice")},
		{"ascii85", Dict{"Filter": Name("ASCII85Decode")}, []byte("87cURDZ~>"), []byte("Hello")},
		{
			name: "chain",
			dict: Dict{"Filter": Array{Name("ASCIIHexDecode"), Name("FlateDecode")}},
			data: []byte(hexOf(deflate(content)) + ">"),
			want: content,
		},
		{
			name: "chain with params",
			dict: Dict{
				"Filter":      Array{Name("AHx"), Name("Fl")},
				"DecodeParms": Array{Null{}, Dict{"Predictor": Int(12), "Columns": Int(4)}},
			},
			data: []byte(hexOf(deflate(pngUp(rows, 4))) + ">"),
			want: rows,
		},
		{
			name: "abbreviated params key",
			dict: Dict{"Filter": Name("Fl"), "DP": Dict{"Predictor": Int(12), "Columns": Int(4)}},
			data: deflate(pngUp(rows, 4)),
			want: rows,
		},
		{"image data untouched", Dict{"Filter": Name("DCTDecode")}, []byte{0xFF, 0xD8, 0xFF}, []byte{0xFF, 0xD8, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Stream{Dict: tt.dict, Data: tt.data}
			got, err := s.Decode()
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStreamDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		dict Dict
	}{
		{"unknown filter", Dict{"Filter": Name("NoSuchDecode")}},
		{"filter is not a name", Dict{"Filter": Int(1)}},
		{"chain element is not a name", Dict{"Filter": Array{Name("Fl"), String("AHx")}}},
		{"crypt", Dict{"Filter": Name("Crypt")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Stream{Dict: tt.dict, Data: deflate([]byte("q Q"))}
			if _, err := s.Decode(); err == nil {
				t.Error("Decode() expected an error")
			}
		})
	}
}

func TestStreamDecodeLimited(t *testing.T) {
	content := bytes.Repeat([]byte("0 0 m 10 10 l S\n"), 500)
	s := &Stream{Dict: Dict{"Filter": Name("FlateDecode")}, Data: deflate(content)}

	if _, err := s.DecodeLimited(1024); !errors.Is(err, ErrStreamTooLarge) {
		t.Errorf("DecodeLimited() error = %v, want ErrStreamTooLarge", err)
	}
	chain := &Stream{
		Dict: Dict{"Filter": Array{Name("AHx"), Name("Fl")}},
		Data: []byte(hexOf(deflate(content))),
	}
	if _, err := chain.DecodeLimited(int64(len(content)) - 1); !errors.Is(err, ErrStreamTooLarge) {
		t.Errorf("chained DecodeLimited() error = %v, want ErrStreamTooLarge", err)
	}
	if got, err := s.DecodeLimited(int64(len(content))); err != nil || !bytes.Equal(got, content) {
		t.Errorf("DecodeLimited() at the limit = %d bytes, %v", len(got), err)
	}
}

func TestToParams(t *testing.T) {
	got := toParams(Dict{
		"Predictor":   Int(12),
		"Decode":      Real(0.5),
		"BlackIs1":    Bool(true),
		"Type":        Name("X"),
		"Label":       String("y"),
		"Ignored":     Array{Int(1)},
		"EarlyChange": Int(0),
	})
	want := map[string]any{
		"Predictor":   12,
		"Decode":      0.5,
		"BlackIs1":    true,
		"Type":        "X",
		"Label":       "y",
		"EarlyChange": 0,
	}
	if diff := cmp.Diff(want, map[string]any(got)); diff != "" {
		t.Errorf("toParams() mismatch (-want +got):\n%s", diff)
	}
	for _, obj := range []Object{nil, Null{}, Int(1)} {
		if p := toParams(obj); p != nil {
			t.Errorf("toParams(%v) = %v, want nil", obj, p)
		}
	}
}

func hexOf(data []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, 2*len(data))
	for _, b := range data {
		out = append(out, digits[b>>4], digits[b&0x0f])
	}
	return string(out)
}
