package filters

import (
	"bytes"
	"compress/lzw"
	"fmt"
	"io"

	"golang.org/x/image/ccitt"
	tifflzw "golang.org/x/image/tiff/lzw"
)

// lzwDecode decodes LZWDecode data and reverses its predictor.
//
// The default EarlyChange of 1 widens codes one code early, which is the
// variant TIFF uses. An EarlyChange of 0 is the MSB-first LZW of
// compress/lzw.
func lzwDecode(data []byte, p Params, limit int64) ([]byte, error) {
	var r io.ReadCloser
	if p.Int("EarlyChange", 1) == 0 {
		r = lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	} else {
		r = tifflzw.NewReader(bytes.NewReader(data), tifflzw.MSB, 8)
	}
	defer r.Close()

	out, err := readLimited(r, limit)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("LZWDecode: %w", err)
	}
	return unpredict(out, p)
}

// runLengthDecode decodes RunLengthDecode data. A length byte n below 128
// copies the next n+1 bytes, above 128 repeats the next byte 257-n times,
// and 128 ends the data.
func runLengthDecode(data []byte, _ Params, _ int64) ([]byte, error) {
	var out []byte
	for i := 0; i < len(data); {
		n := int(data[i])
		i++
		switch {
		case n == 128:
			return out, nil
		case n < 128:
			if i+n+1 > len(data) {
				return nil, fmt.Errorf("RunLengthDecode: literal run at %d overruns the data", i-1)
			}
			out = append(out, data[i:i+n+1]...)
			i += n + 1
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("RunLengthDecode: repeat run at %d has no byte", i-1)
			}
			out = append(out, bytes.Repeat(data[i:i+1], 257-n)...)
			i++
		}
	}
	return out, nil
}

// faxDecode decodes CCITTFaxDecode data. K below 0 selects Group 4,
// anything else Group 3. Without Rows the height is detected.
func faxDecode(data []byte, p Params, limit int64) ([]byte, error) {
	sf := ccitt.Group3
	if p.Int("K", 0) < 0 {
		sf = ccitt.Group4
	}
	rows := p.Int("Rows", 0)
	if rows <= 0 {
		rows = ccitt.AutoDetectHeight
	}
	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sf,
		p.Int("Columns", 1728), rows, &ccitt.Options{Invert: p.Bool("BlackIs1", false)})
	out, err := readLimited(r, limit)
	if err != nil {
		return nil, fmt.Errorf("CCITTFaxDecode: %w", err)
	}
	return out, nil
}

// readLimited reads r to the end, stopping once more than limit bytes
// arrive. The size check itself is left to Decode.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	return io.ReadAll(r)
}
