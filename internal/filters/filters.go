// Package filters implements the stream filters of a PDF document.
//
// Decode looks a filter up by its full or abbreviated name:
//
//	data, err := filters.Decode("FlateDecode", raw, filters.Params{"Predictor": 12, "Columns": 5}, 1<<20)
//
// FlateDecode, LZWDecode, ASCIIHexDecode, ASCII85Decode, RunLengthDecode
// and CCITTFaxDecode are decoded. Image codecs (DCT, JPX, JBIG2) return
// their input, since their data is never text. Crypt is not supported.
//
// FlateEncode compresses streams written back to a document.
package filters

import (
	"errors"
	"fmt"
)

var (
	// ErrTooLarge is returned when decoded data exceeds the caller's limit.
	ErrTooLarge = errors.New("decoded stream exceeds size limit")

	// ErrUnsupported is returned for filters that cannot be decoded.
	ErrUnsupported = errors.New("unsupported filter")
)

// Params holds the decode parameters of a filter as Go values: int,
// float64, bool or string.
type Params map[string]any

// Int returns the integer value of key, or def.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Bool returns the boolean value of key, or def.
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

type decodeFunc func(data []byte, p Params, limit int64) ([]byte, error)

func passThrough(data []byte, _ Params, _ int64) ([]byte, error) { return data, nil }

var decoders = map[string]decodeFunc{
	"FlateDecode":     inflate,
	"LZWDecode":       lzwDecode,
	"ASCIIHexDecode":  hexDecode,
	"ASCII85Decode":   a85Decode,
	"RunLengthDecode": runLengthDecode,
	"CCITTFaxDecode":  faxDecode,
	"DCTDecode":       passThrough,
	"JPXDecode":       passThrough,
	"JBIG2Decode":     passThrough,
}

// abbreviations are the short names allowed in inline images and found in
// older files.
var abbreviations = map[string]string{
	"Fl":  "FlateDecode",
	"LZW": "LZWDecode",
	"AHx": "ASCIIHexDecode",
	"A85": "ASCII85Decode",
	"RL":  "RunLengthDecode",
	"CCF": "CCITTFaxDecode",
	"DCT": "DCTDecode",
}

// Decode applies the filter called name to data. A positive limit bounds
// the size of the output.
func Decode(name string, data []byte, p Params, limit int64) ([]byte, error) {
	if full, ok := abbreviations[name]; ok {
		name = full
	}
	fn, ok := decoders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	out, err := fn(data, p, limit)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(out)) > limit {
		return nil, ErrTooLarge
	}
	return out, nil
}
