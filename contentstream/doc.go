// Package contentstream parses and re-emits PDF content streams.
//
// Content streams contain the instructions for rendering page content,
// including text display, graphics operations, and image placement.
//
// # Parsing
//
//	c, err := contentstream.Parse(streamData)
//	for _, op := range c.Ops {
//	    fmt.Printf("Operator: %s, Operands: %v\n", op.Operator, op.Operands)
//	}
//
// Every [Operation] records the byte span it was parsed from and a [Kind]
// classifying the operator. Inline images are kept as one operation.
// Parser.MaxOps bounds the number of operations; on a syntax error the
// operations read so far are returned with the error.
//
// # Writing
//
// [Write] rebuilds a stream from a modified operation list. Operations that
// were parsed and not marked Modified are copied byte-for-byte with the
// whitespace before them, so only the operators that changed differ from
// the input:
//
//	ops := slices.Clone(c.Ops)
//	ops[3] = contentstream.NewOperation("Tj", core.String("new"))
//	out := contentstream.Write(c, ops)
//
// # Common Operators
//
// Text operators:
//   - BT, ET - Begin/end text object
//   - Tf - Set font and size
//   - Tm - Set text matrix
//   - Tj, TJ, ', " - Show text
//   - Td, TD, T* - Move text position
//
// Graphics state operators:
//   - q, Q - Save/restore graphics state
//   - cm - Modify CTM (current transformation matrix)
package contentstream
