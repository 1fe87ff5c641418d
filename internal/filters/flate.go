package filters

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// inflate decodes FlateDecode data and reverses its predictor. A stream
// that ends early yields the bytes recovered so far, as viewers do.
func inflate(data []byte, p Params, limit int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("FlateDecode: %w", err)
	}
	defer zr.Close()

	var src io.Reader = zr
	if limit > 0 {
		src = io.LimitReader(zr, limit+1)
	}
	var buf bytes.Buffer
	_, err = buf.ReadFrom(src)
	switch {
	case limit > 0 && int64(buf.Len()) > limit:
		return nil, ErrTooLarge
	case err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && buf.Len() > 0):
		return nil, fmt.Errorf("FlateDecode: %w", err)
	}
	return unpredict(buf.Bytes(), p)
}

// FlateEncode compresses data with zlib at the default level.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("FlateEncode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("FlateEncode: %w", err)
	}
	return buf.Bytes(), nil
}
