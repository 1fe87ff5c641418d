// Package graphicsstate tracks the parts of the PDF graphics state that
// determine where text is shown.
//
// The main type is GraphicsState, which tracks:
//   - CTM (Current Transformation Matrix) for coordinate transformations
//   - Text state (font, size, spacing, leading, text matrices)
//   - The q/Q save stack
//
// Example usage:
//
//	gs := graphicsstate.NewGraphicsState()
//	for i := range content.Ops {
//		if err := gs.Apply(&content.Ops[i]); err != nil {
//			return err
//		}
//	}
//
// Matrices are seehuhn.de/go/geom/matrix values. Td composes a translation
// with the text line matrix and cm composes the operand with the CTM.
// [GraphicsState.LineOrigin] reports the start of the current text line in
// user space; the text package compares it before and after each text
// operator to split runs at line breaks.
package graphicsstate
