package graphicsstate

import (
	"fmt"

	"github.com/tsawler/pdfreplace/contentstream"
	"github.com/tsawler/pdfreplace/core"
	"seehuhn.de/go/geom/matrix"
)

// GraphicsState represents the parts of the PDF graphics state that affect
// where text is placed.
type GraphicsState struct {
	// Current Transformation Matrix
	CTM matrix.Matrix

	// Text state
	Text TextState

	// InText is set between BT and ET.
	InText bool

	// Graphics state stack (for q/Q operators)
	stack []saved
}

type saved struct {
	ctm  matrix.Matrix
	text TextState
}

// TextState represents text-specific state
type TextState struct {
	// Font and size
	FontName string
	FontSize float64

	// Character and word spacing
	CharSpacing float64
	WordSpacing float64

	// Horizontal scaling (percentage)
	HorizontalScaling float64

	// Leading (line spacing)
	Leading float64

	// Text rendering mode
	RenderingMode int

	// Text rise
	Rise float64

	// Text matrices
	TextMatrix     matrix.Matrix
	TextLineMatrix matrix.Matrix
}

// NewGraphicsState creates a new graphics state with default values
func NewGraphicsState() *GraphicsState {
	return &GraphicsState{
		CTM: matrix.Identity,
		Text: TextState{
			HorizontalScaling: 100.0,
			TextMatrix:        matrix.Identity,
			TextLineMatrix:    matrix.Identity,
		},
	}
}

// Save pushes the current graphics state onto the stack (q operator)
func (gs *GraphicsState) Save() {
	gs.stack = append(gs.stack, saved{ctm: gs.CTM, text: gs.Text})
}

// Restore pops a graphics state from the stack (Q operator). The text
// matrices are not part of the saved state and stay unchanged.
func (gs *GraphicsState) Restore() error {
	if len(gs.stack) == 0 {
		return fmt.Errorf("graphics state stack underflow")
	}
	s := gs.stack[len(gs.stack)-1]
	gs.stack = gs.stack[:len(gs.stack)-1]

	tm, tlm := gs.Text.TextMatrix, gs.Text.TextLineMatrix
	gs.CTM = s.ctm
	gs.Text = s.text
	gs.Text.TextMatrix, gs.Text.TextLineMatrix = tm, tlm
	return nil
}

// Depth returns the number of saved states.
func (gs *GraphicsState) Depth() int {
	return len(gs.stack)
}

// Transform applies a transformation matrix to CTM (cm operator)
func (gs *GraphicsState) Transform(m matrix.Matrix) {
	gs.CTM = m.Mul(gs.CTM)
}

// SetFont sets the current font (Tf operator)
func (gs *GraphicsState) SetFont(name string, size float64) {
	gs.Text.FontName = name
	gs.Text.FontSize = size
}

// BeginText initializes text state (BT operator)
func (gs *GraphicsState) BeginText() {
	gs.InText = true
	gs.Text.TextMatrix = matrix.Identity
	gs.Text.TextLineMatrix = matrix.Identity
}

// EndText ends the text object (ET operator)
func (gs *GraphicsState) EndText() {
	gs.InText = false
}

// SetTextMatrix sets the text matrix (Tm operator)
func (gs *GraphicsState) SetTextMatrix(m matrix.Matrix) {
	gs.Text.TextMatrix = m
	gs.Text.TextLineMatrix = m
}

// TranslateText starts a new line offset from the start of the current one
// (Td operator): Tlm = T(tx, ty) x Tlm.
func (gs *GraphicsState) TranslateText(tx, ty float64) {
	gs.Text.TextLineMatrix = matrix.Translate(tx, ty).Mul(gs.Text.TextLineMatrix)
	gs.Text.TextMatrix = gs.Text.TextLineMatrix
}

// TranslateTextSetLeading translates text and sets leading (TD operator)
func (gs *GraphicsState) TranslateTextSetLeading(tx, ty float64) {
	gs.Text.Leading = -ty
	gs.TranslateText(tx, ty)
}

// NextLine moves to next line (T* operator)
func (gs *GraphicsState) NextLine() {
	gs.TranslateText(0, -gs.Text.Leading)
}

// LineOrigin returns the start of the current text line in user space.
// The CTM is not applied.
func (gs *GraphicsState) LineOrigin() (x, y float64) {
	return gs.Text.TextLineMatrix[4], gs.Text.TextLineMatrix[5]
}

// Apply updates the state for one content stream operation. Operations that
// do not affect text placement are ignored. Malformed operands leave the
// state unchanged.
func (gs *GraphicsState) Apply(op *contentstream.Operation) error {
	args := op.Operands
	switch op.Operator {
	case "q":
		gs.Save()
	case "Q":
		return gs.Restore()
	case "cm":
		if m, ok := operandsToMatrix(args); ok {
			gs.Transform(m)
		}
	case "BT":
		gs.BeginText()
	case "ET":
		gs.EndText()
	case "Tf":
		if len(args) == 2 {
			name, _ := args[0].(core.Name)
			size, _ := core.Number(args[1])
			gs.SetFont(string(name), size)
		}
	case "Tc":
		gs.setNumber(args, &gs.Text.CharSpacing)
	case "Tw":
		gs.setNumber(args, &gs.Text.WordSpacing)
	case "Tz":
		gs.setNumber(args, &gs.Text.HorizontalScaling)
	case "TL":
		gs.setNumber(args, &gs.Text.Leading)
	case "Ts":
		gs.setNumber(args, &gs.Text.Rise)
	case "Tr":
		var mode float64
		gs.setNumber(args, &mode)
		gs.Text.RenderingMode = int(mode)
	case "Td", "TD":
		if len(args) == 2 {
			tx, ok1 := core.Number(args[0])
			ty, ok2 := core.Number(args[1])
			if ok1 && ok2 {
				if op.Operator == "TD" {
					gs.TranslateTextSetLeading(tx, ty)
				} else {
					gs.TranslateText(tx, ty)
				}
			}
		}
	case "Tm":
		if m, ok := operandsToMatrix(args); ok {
			gs.SetTextMatrix(m)
		}
	case "T*", "'":
		gs.NextLine()
	case "\"":
		if len(args) == 3 {
			gs.setNumber(args[:1], &gs.Text.WordSpacing)
			gs.setNumber(args[1:2], &gs.Text.CharSpacing)
		}
		gs.NextLine()
	}
	return nil
}

func (gs *GraphicsState) setNumber(args []core.Object, dst *float64) {
	if len(args) != 1 {
		return
	}
	if v, ok := core.Number(args[0]); ok {
		*dst = v
	}
}

func operandsToMatrix(args []core.Object) (matrix.Matrix, bool) {
	var m matrix.Matrix
	if len(args) != 6 {
		return m, false
	}
	for i, a := range args {
		v, ok := core.Number(a)
		if !ok {
			return m, false
		}
		m[i] = v
	}
	return m, true
}
