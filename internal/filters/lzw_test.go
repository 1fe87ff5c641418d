package filters

import (
	"bytes"
	"compress/lzw"
	"testing"
)

// Short inputs never reach a code width change, so the stdlib encoder's
// output is also a valid EarlyChange stream.
func TestLZWEarlyChange(t *testing.T) {
	original := []byte("BT /F1 12 Tf (Hello Hello Hello Hello) Tj ET")

	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	w.Write(original)
	w.Close()

	decoded, err := lzwDecode(buf.Bytes(), nil, 0)
	if err != nil {
		t.Fatalf("lzwDecode() error = %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Errorf("decoded %q, want %q", decoded, original)
	}
}

func TestLZWNoEarlyChange(t *testing.T) {
	original := []byte("abababababababab")

	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	w.Write(original)
	w.Close()

	decoded, err := lzwDecode(buf.Bytes(), Params{"EarlyChange": 0}, 0)
	if err != nil {
		t.Fatalf("lzwDecode() error = %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Errorf("decoded %q, want %q", decoded, original)
	}
}

func TestRunLengthDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    []byte
		wantErr bool
	}{
		{"literal", []byte{2, 'a', 'b', 'c', 128}, []byte("abc"), false},
		{"repeat", []byte{254, 'x', 128}, []byte("xxx"), false},
		{"mixed", []byte{0, 'a', 255, 'b', 128}, []byte("abb"), false},
		{"no EOD", []byte{1, 'h', 'i'}, []byte("hi"), false},
		{"data after EOD ignored", []byte{0, 'z', 128, 0, 'q'}, []byte("z"), false},
		{"literal overrun", []byte{5, 'a'}, nil, true},
		{"repeat missing byte", []byte{200}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runLengthDecode(tt.input, nil, 0)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
