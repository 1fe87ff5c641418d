package core

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// AppendObject appends the PDF syntax for obj to buf. Dictionary keys are
// written in sorted order so that output is deterministic.
func AppendObject(buf []byte, obj Object) []byte {
	switch v := obj.(type) {
	case nil, Null:
		return append(buf, "null"...)
	case Bool:
		return strconv.AppendBool(buf, bool(v))
	case Int:
		return strconv.AppendInt(buf, int64(v), 10)
	case Real:
		return AppendReal(buf, float64(v))
	case String:
		return AppendLiteralString(buf, []byte(v))
	case Name:
		return AppendName(buf, string(v))
	case Array:
		buf = append(buf, '[')
		for i, item := range v {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = AppendObject(buf, item)
		}
		return append(buf, ']')
	case Dict:
		buf = append(buf, "<<"...)
		for _, k := range v.Keys() {
			buf = AppendName(buf, k)
			buf = append(buf, ' ')
			buf = AppendObject(buf, v[k])
		}
		return append(buf, ">>"...)
	case *Stream:
		d := v.Dict.Clone()
		d["Length"] = Int(len(v.Data))
		buf = AppendObject(buf, d)
		buf = append(buf, "\nstream\n"...)
		buf = append(buf, v.Data...)
		return append(buf, "\nendstream"...)
	case IndirectRef:
		return fmt.Appendf(buf, "%d %d R", v.Number, v.Generation)
	default:
		return append(buf, "null"...)
	}
}

// WriteObject returns the PDF syntax for obj.
func WriteObject(obj Object) []byte {
	return AppendObject(nil, obj)
}

// AppendIndirectObject appends "num gen obj ... endobj".
func AppendIndirectObject(buf []byte, ref IndirectRef, obj Object) []byte {
	buf = fmt.Appendf(buf, "%d %d obj\n", ref.Number, ref.Generation)
	buf = AppendObject(buf, obj)
	return append(buf, "\nendobj\n"...)
}

// AppendReal appends a real number without exponent notation, trimmed of
// trailing zeros.
func AppendReal(buf []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(buf, '0')
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.AppendInt(buf, int64(f), 10)
	}
	s := strconv.FormatFloat(f, 'f', 5, 64)
	s = string(bytes.TrimRight([]byte(s), "0"))
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	if s == "-0" {
		s = "0"
	}
	return append(buf, s...)
}

// AppendLiteralString appends s as a literal string with the characters
// that need it escaped.
func AppendLiteralString(buf []byte, s []byte) []byte {
	buf = append(buf, '(')
	for _, ch := range s {
		switch ch {
		case '\\', '(', ')':
			buf = append(buf, '\\', ch)
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\f':
			buf = append(buf, '\\', 'f')
		default:
			if ch < 0x20 || ch >= 0x7f {
				buf = fmt.Appendf(buf, "\\%03o", ch)
			} else {
				buf = append(buf, ch)
			}
		}
	}
	return append(buf, ')')
}

// AppendHexString appends s as an upper-case hex string.
func AppendHexString(buf []byte, s []byte) []byte {
	const digits = "0123456789ABCDEF"
	buf = append(buf, '<')
	for _, b := range s {
		buf = append(buf, digits[b>>4], digits[b&0x0f])
	}
	return append(buf, '>')
}

// AppendName appends a name, escaping bytes outside the regular printable
// range with #xx.
func AppendName(buf []byte, name string) []byte {
	buf = append(buf, '/')
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch <= 0x20 || ch >= 0x7f || ch == '#' || isDelimiter(ch) {
			buf = fmt.Appendf(buf, "#%02X", ch)
			continue
		}
		buf = append(buf, ch)
	}
	return buf
}
