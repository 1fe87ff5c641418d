package contentstream

import (
	"github.com/tsawler/pdfreplace/core"
)

// Write re-emits a content stream from ops, which is c.Ops after any
// removals, insertions and in-place modifications.
//
// Parsed operations that are not marked Modified are copied byte-for-byte
// together with the whitespace and comments that preceded them, as are the
// bytes after the last operation. Everything else is serialized.
func Write(c *Content, ops []Operation) []byte {
	out := make([]byte, 0, len(c.Data)+64)
	for i := range ops {
		op := &ops[i]
		if op.IsParsed() {
			out = appendSeparated(out, c.Data[op.Pre:op.Start])
			if op.Modified {
				out = appendSeparated(out, AppendOperation(nil, op))
			} else {
				out = appendSeparated(out, c.Data[op.Start:op.End])
			}
			continue
		}
		if len(out) > 0 && !core.IsWhitespace(out[len(out)-1]) {
			out = append(out, '\n')
		}
		out = AppendOperation(out, op)
	}
	if c.End < len(c.Data) {
		out = appendSeparated(out, c.Data[c.End:])
	}
	return out
}

// appendSeparated appends b, inserting a space when the boundary would
// otherwise fuse two tokens.
func appendSeparated(out, b []byte) []byte {
	if len(b) == 0 {
		return out
	}
	if len(out) > 0 && isRegular(out[len(out)-1]) && isRegular(b[0]) {
		out = append(out, ' ')
	}
	return append(out, b...)
}

func isRegular(b byte) bool {
	return !core.IsWhitespace(b) && !core.IsDelimiter(b)
}

// AppendOperation serializes op: operands separated by spaces, then the
// operator. Strings are written in hex when op.Hex is set.
func AppendOperation(buf []byte, op *Operation) []byte {
	if op.Kind == KindInlineImage {
		// Inline images cannot be rebuilt from their dictionary alone.
		return buf
	}
	for _, operand := range op.Operands {
		buf = appendOperand(buf, operand, op.Hex)
		buf = append(buf, ' ')
	}
	return append(buf, op.Operator...)
}

func appendOperand(buf []byte, obj core.Object, hex bool) []byte {
	switch v := obj.(type) {
	case core.String:
		if hex {
			return core.AppendHexString(buf, []byte(v))
		}
		return core.AppendLiteralString(buf, []byte(v))
	case core.Array:
		buf = append(buf, '[')
		for i, e := range v {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = appendOperand(buf, e, hex)
		}
		return append(buf, ']')
	}
	return core.AppendObject(buf, obj)
}
