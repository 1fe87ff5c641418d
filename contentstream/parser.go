package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/tsawler/pdfreplace/core"
)

// Kind classifies an operator by the role it plays for text handling.
type Kind int

const (
	KindOther Kind = iota
	KindShowText
	KindSetFont
	KindMoveText
	KindSetTextMatrix
	KindTextState
	KindBeginText
	KindEndText
	KindSaveState
	KindRestoreState
	KindTransform
	KindInlineImage
)

func (k Kind) String() string {
	switch k {
	case KindShowText:
		return "ShowText"
	case KindSetFont:
		return "SetFont"
	case KindMoveText:
		return "MoveText"
	case KindSetTextMatrix:
		return "SetTextMatrix"
	case KindTextState:
		return "TextState"
	case KindBeginText:
		return "BeginText"
	case KindEndText:
		return "EndText"
	case KindSaveState:
		return "SaveState"
	case KindRestoreState:
		return "RestoreState"
	case KindTransform:
		return "Transform"
	case KindInlineImage:
		return "InlineImage"
	default:
		return "Other"
	}
}

// KindOf returns the classification of an operator name.
func KindOf(operator string) Kind {
	switch operator {
	case "Tj", "TJ", "'", "\"":
		return KindShowText
	case "Tf":
		return KindSetFont
	case "Td", "TD", "T*":
		return KindMoveText
	case "Tm":
		return KindSetTextMatrix
	case "Tc", "Tw", "Tz", "TL", "Tr", "Ts":
		return KindTextState
	case "BT":
		return KindBeginText
	case "ET":
		return KindEndText
	case "q":
		return KindSaveState
	case "Q":
		return KindRestoreState
	case "cm":
		return KindTransform
	case "BI":
		return KindInlineImage
	default:
		return KindOther
	}
}

// Operation represents a single content stream operation consisting of an
// operator and its operands. Operands are PDF objects that precede the operator.
//
// Operations parsed from a stream remember where they came from: Data[Start:End]
// is the operation text and Data[Pre:Start] the whitespace and comments that
// preceded it. Operations built by callers have Start set to -1.
type Operation struct {
	Operator string        // The operator (e.g., "Tj", "Tm", "q")
	Operands []core.Object // The operands
	Kind     Kind

	Pre, Start, End int

	// Hex is set when the string operands were written as hex strings.
	Hex bool

	// Modified marks a parsed operation whose operands were changed; it is
	// re-serialized instead of being copied.
	Modified bool
}

// NewOperation builds an operation that did not come from a stream.
func NewOperation(operator string, operands ...core.Object) Operation {
	return Operation{
		Operator: operator,
		Operands: operands,
		Kind:     KindOf(operator),
		Pre:      -1,
		Start:    -1,
		End:      -1,
	}
}

// IsParsed reports whether the operation has a source span.
func (op *Operation) IsParsed() bool { return op.Start >= 0 }

// Clone returns a copy whose operand slice (and TJ array) can be modified
// without affecting op.
func (op Operation) Clone() Operation {
	c := op
	c.Operands = make([]core.Object, len(op.Operands))
	for i, o := range op.Operands {
		if arr, ok := o.(core.Array); ok {
			o = append(core.Array(nil), arr...)
		}
		c.Operands[i] = o
	}
	return c
}

// Segments returns the string operands shown by a ShowText operation, in
// order. For TJ these are the string elements of the array.
func (op *Operation) Segments() []core.String {
	if op.Kind != KindShowText || len(op.Operands) == 0 {
		return nil
	}
	last := op.Operands[len(op.Operands)-1]
	switch v := last.(type) {
	case core.String:
		return []core.String{v}
	case core.Array:
		var out []core.String
		for _, e := range v {
			if s, ok := e.(core.String); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ErrTooManyOperations is returned when a stream exceeds Parser.MaxOps.
var ErrTooManyOperations = errors.New("content stream has too many operations")

// Content is a parsed content stream. Data[End:] holds whatever follows the
// last operation.
type Content struct {
	Data []byte
	Ops  []Operation
	End  int
}

// Parser parses PDF content streams into a sequence of operations.
// Each operation consists of an operator and its operands.
type Parser struct {
	data  []byte
	lexer *core.Lexer
	ops   []Operation

	operands   []core.Object // operands waiting for their operator
	operandsAt int           // start of the first pending operand
	sawHex     bool
	prevEnd    int

	// MaxOps bounds the number of operations; 0 means unlimited.
	MaxOps int
}

// NewParser creates a new content stream parser for the given data.
func NewParser(data []byte) *Parser {
	return &Parser{
		data:       data,
		lexer:      core.NewLexer(data),
		operandsAt: -1,
	}
}

// Parse parses the content stream and returns all operations in order.
func (p *Parser) Parse() ([]Operation, error) {
	c, err := p.ParseContent()
	if c == nil {
		return nil, err
	}
	return c.Ops, err
}

// Parse parses data into a Content.
func Parse(data []byte) (*Content, error) {
	return NewParser(data).ParseContent()
}

// ParseContent parses the whole stream. On a syntax error it returns the
// operations read so far together with the error.
func (p *Parser) ParseContent() (*Content, error) {
	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return p.content(), fmt.Errorf("content stream: %w", err)
		}
		if tok.Type == core.TokenEOF {
			break
		}

		switch tok.Type {
		case core.TokenComment:
			continue
		case core.TokenKeyword, core.TokenIndirectRef:
			if err := p.keyword(tok); err != nil {
				return p.content(), err
			}
		default:
			obj, err := p.operand(tok)
			if err != nil {
				return p.content(), fmt.Errorf("content stream at %d: %w", tok.Pos, err)
			}
			p.push(obj, tok)
		}
	}
	return p.content(), nil
}

func (p *Parser) content() *Content {
	return &Content{Data: p.data, Ops: p.ops, End: p.prevEnd}
}

func (p *Parser) push(obj core.Object, tok *core.Token) {
	if p.operandsAt < 0 {
		p.operandsAt = int(tok.Pos)
	}
	p.operands = append(p.operands, obj)
}

// keyword handles an operator token or one of the keyword operands.
func (p *Parser) keyword(tok *core.Token) error {
	switch string(tok.Value) {
	case "true":
		p.push(core.Bool(true), tok)
		return nil
	case "false":
		p.push(core.Bool(false), tok)
		return nil
	case "null":
		p.push(core.Null{}, tok)
		return nil
	case ")", "{", "}", "R":
		// Stray delimiters and references are not valid content; skip.
		return nil
	case "BI":
		return p.inlineImage(tok)
	}

	start := int(tok.Pos)
	if p.operandsAt >= 0 {
		start = p.operandsAt
	}
	op := Operation{
		Operator: string(tok.Value),
		Operands: p.operands,
		Kind:     KindOf(string(tok.Value)),
		Pre:      p.prevEnd,
		Start:    start,
		End:      int(tok.End),
		Hex:      p.sawHex,
	}
	return p.emit(op)
}

func (p *Parser) emit(op Operation) error {
	if p.MaxOps > 0 && len(p.ops) >= p.MaxOps {
		return ErrTooManyOperations
	}
	p.ops = append(p.ops, op)
	p.prevEnd = op.End
	p.operands = nil
	p.operandsAt = -1
	p.sawHex = false
	return nil
}

// operand converts a token (and, for arrays and dictionaries, the tokens
// that follow it) into an object.
func (p *Parser) operand(tok *core.Token) (core.Object, error) {
	switch tok.Type {
	case core.TokenInteger:
		v, err := strconv.ParseInt(string(tok.Value), 10, 64)
		if err != nil {
			f, ferr := core.ParseReal(tok.Value)
			if ferr != nil {
				return nil, ferr
			}
			return core.Real(f), nil
		}
		return core.Int(v), nil
	case core.TokenReal:
		f, err := core.ParseReal(tok.Value)
		if err != nil {
			return nil, err
		}
		return core.Real(f), nil
	case core.TokenString:
		return core.String(tok.Value), nil
	case core.TokenHexString:
		p.sawHex = true
		return core.String(core.DecodeHex(tok.Value)), nil
	case core.TokenName:
		return core.Name(tok.Value), nil
	case core.TokenArrayStart:
		return p.array()
	case core.TokenDictStart:
		return p.dict()
	}
	return nil, fmt.Errorf("unexpected %v", tok.Type)
}

func (p *Parser) array() (core.Object, error) {
	arr := core.Array{}
	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case core.TokenEOF:
			return nil, fmt.Errorf("unterminated array")
		case core.TokenArrayEnd:
			return arr, nil
		case core.TokenComment:
			continue
		case core.TokenKeyword, core.TokenIndirectRef:
			switch string(tok.Value) {
			case "true":
				arr = append(arr, core.Bool(true))
			case "false":
				arr = append(arr, core.Bool(false))
			case "null":
				arr = append(arr, core.Null{})
			}
			continue
		}
		obj, err := p.operand(tok)
		if err != nil {
			return nil, err
		}
		arr = append(arr, obj)
	}
}

func (p *Parser) dict() (core.Object, error) {
	d := core.Dict{}
	var key string
	haveKey := false
	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case core.TokenEOF:
			return nil, fmt.Errorf("unterminated dictionary")
		case core.TokenDictEnd:
			return d, nil
		case core.TokenComment:
			continue
		}

		if !haveKey {
			if tok.Type != core.TokenName {
				return nil, fmt.Errorf("dictionary key is %v", tok.Type)
			}
			key, haveKey = string(tok.Value), true
			continue
		}

		var obj core.Object
		if tok.Type == core.TokenKeyword {
			switch string(tok.Value) {
			case "true":
				obj = core.Bool(true)
			case "false":
				obj = core.Bool(false)
			default:
				obj = core.Null{}
			}
		} else if obj, err = p.operand(tok); err != nil {
			return nil, err
		}
		d[key] = obj
		haveKey = false
	}
}

// inlineImage reads "BI <key value>... ID <data> EI" as a single
// operation whose only operand is the image dictionary.
func (p *Parser) inlineImage(bi *core.Token) error {
	params := core.Dict{}
	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return fmt.Errorf("inline image: %w", err)
		}
		if tok.Type == core.TokenEOF {
			return fmt.Errorf("inline image at %d: missing ID", bi.Pos)
		}
		if tok.Type == core.TokenKeyword && string(tok.Value) == "ID" {
			break
		}
		if tok.Type != core.TokenName {
			continue
		}
		key := string(tok.Value)
		vtok, err := p.lexer.NextToken()
		if err != nil {
			return fmt.Errorf("inline image: %w", err)
		}
		if vtok.Type == core.TokenKeyword && string(vtok.Value) == "ID" {
			break
		}
		val, err := p.operand(vtok)
		if err != nil {
			continue
		}
		params[key] = val
	}

	// A single whitespace byte separates ID from the image data.
	dataStart := int(p.lexer.Pos())
	if dataStart < len(p.data) && core.IsWhitespace(p.data[dataStart]) {
		dataStart++
	}
	end := findEI(p.data, dataStart)
	if end < 0 {
		return fmt.Errorf("inline image at %d: missing EI", bi.Pos)
	}
	p.lexer.SetPos(int64(end))

	start := int(bi.Pos)
	if p.operandsAt >= 0 {
		start = p.operandsAt
	}
	return p.emit(Operation{
		Operator: "BI",
		Operands: []core.Object{params},
		Kind:     KindInlineImage,
		Pre:      p.prevEnd,
		Start:    start,
		End:      end,
	})
}

// findEI returns the offset just past the "EI" that ends inline image data
// starting at from: EI preceded by whitespace and followed by whitespace,
// a delimiter, or the end of data.
func findEI(data []byte, from int) int {
	for i := from; i < len(data); {
		idx := bytes.Index(data[i:], []byte("EI"))
		if idx < 0 {
			return -1
		}
		at := i + idx
		before := at == from || core.IsWhitespace(data[at-1])
		afterPos := at + 2
		after := afterPos >= len(data) || core.IsWhitespace(data[afterPos]) || core.IsDelimiter(data[afterPos])
		if before && after {
			return afterPos
		}
		i = at + 1
	}
	return -1
}
