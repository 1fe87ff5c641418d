package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// maxNesting bounds array and dictionary nesting.
const maxNesting = 256

// ErrNestingTooDeep is returned when arrays or dictionaries nest beyond the
// parser limit.
var ErrNestingTooDeep = errors.New("object nesting too deep")

// ReferenceResolver is an interface for resolving indirect references.
// This allows the parser to resolve indirect stream lengths when needed.
type ReferenceResolver interface {
	ResolveReference(ref IndirectRef) (Object, error)
}

// Parser parses PDF objects from an in-memory buffer using a Lexer for
// tokenization. It supports parsing all PDF object types including indirect
// objects and streams.
type Parser struct {
	lexer        *Lexer
	currentToken *Token // Current token being processed
	peekToken    *Token // Next token (lookahead)
	resolver     ReferenceResolver
	depth        int
}

// SetReferenceResolver sets the reference resolver for the parser.
// This is needed to resolve indirect stream lengths.
func (p *Parser) SetReferenceResolver(resolver ReferenceResolver) {
	p.resolver = resolver
}

// NewParser creates a new PDF parser positioned at the start of data.
func NewParser(data []byte) *Parser {
	return NewParserAt(data, 0)
}

// NewParserAt creates a parser positioned at offset. It loads the first two
// tokens for lookahead.
func NewParserAt(data []byte, offset int64) *Parser {
	p := &Parser{lexer: NewLexerAt(data, offset)}
	p.nextToken()
	p.nextToken()
	return p
}

// Offset returns the position of the current token.
func (p *Parser) Offset() int64 {
	if p.currentToken == nil {
		return p.lexer.Pos()
	}
	return p.currentToken.Pos
}

// nextToken advances the parser to the next token by shifting the lookahead.
// Lexer errors are surfaced as EOF tokens carrying no value; the following
// parse step reports the failure with its own context.
func (p *Parser) nextToken() {
	p.currentToken = p.peekToken

	// Stream data is binary and must not be tokenized; parseStream reads
	// it directly from the lexer.
	if p.currentToken != nil &&
		p.currentToken.Type == TokenKeyword &&
		string(p.currentToken.Value) == "stream" {
		p.peekToken = nil
		return
	}

	token, err := p.lexer.NextToken()
	if err != nil {
		token = &Token{Type: TokenEOF, Pos: p.lexer.Pos(), End: p.lexer.Pos()}
	}
	p.peekToken = token
}

// skipComments skips over any consecutive comment tokens.
func (p *Parser) skipComments() {
	for p.at(TokenComment) {
		p.nextToken()
	}
}

// at reports whether the current token has type t.
func (p *Parser) at(t TokenType) bool {
	return p.currentToken != nil && p.currentToken.Type == t
}

// atKeyword reports whether the current token is the keyword kw.
func (p *Parser) atKeyword(kw string) bool {
	return p.at(TokenKeyword) && string(p.currentToken.Value) == kw
}

// ParseObject parses the next direct object or indirect reference. At the
// end of the input it returns io.EOF.
func (p *Parser) ParseObject() (Object, error) {
	p.skipComments()
	tok := p.currentToken
	if tok == nil {
		return nil, fmt.Errorf("unexpected end of input")
	}

	var obj Object
	switch tok.Type {
	case TokenEOF:
		return nil, io.EOF
	case TokenInteger:
		return p.parseNumber()
	case TokenArrayStart:
		return p.parseArray()
	case TokenDictStart:
		return p.parseDict()
	case TokenKeyword:
		switch string(tok.Value) {
		case "null":
			obj = Null{}
		case "true":
			obj = Bool(true)
		case "false":
			obj = Bool(false)
		default:
			return nil, fmt.Errorf("unexpected keyword %q at position %d", tok.Value, tok.Pos)
		}
	case TokenReal:
		f, err := ParseReal(tok.Value)
		if err != nil {
			return nil, err
		}
		obj = Real(f)
	case TokenString:
		obj = String(tok.Value)
	case TokenHexString:
		obj = String(DecodeHex(tok.Value))
	case TokenName:
		obj = Name(tok.Value)
	default:
		return nil, fmt.Errorf("unexpected %v at position %d", tok.Type, tok.Pos)
	}
	p.nextToken()
	return obj, nil
}

// DecodeHex converts the digits of a hex string token to bytes. An odd
// trailing digit is padded with 0.
func DecodeHex(digits []byte) []byte {
	out := make([]byte, 0, (len(digits)+1)/2)
	for i := 0; i < len(digits); i += 2 {
		hi := hexValue(digits[i])
		var lo byte
		if i+1 < len(digits) {
			lo = hexValue(digits[i+1])
		}
		out = append(out, hi<<4|lo)
	}
	return out
}

// ParseReal parses a PDF real number, tolerating doubled signs.
func ParseReal(value []byte) (float64, error) {
	s := string(bytes.TrimLeft(value, "+"))
	for len(s) > 1 && s[0] == '-' && (s[1] == '-' || s[1] == '+') {
		s = "-" + s[2:]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid real number %q: %w", value, err)
	}
	return f, nil
}

// parseNumber parses an integer or indirect reference.
// Indirect references are detected by lookahead: "num gen R" pattern.
func (p *Parser) parseNumber() (Object, error) {
	firstInt, err := strconv.ParseInt(string(p.currentToken.Value), 10, 64)
	if err != nil {
		f, err := ParseReal(p.currentToken.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", p.currentToken.Value)
		}
		p.nextToken()
		return Real(f), nil
	}

	if p.peekToken != nil && p.peekToken.Type == TokenInteger {
		secondInt, err := strconv.ParseInt(string(p.peekToken.Value), 10, 64)
		if err == nil {
			// Look past the second integer without consuming it.
			save := p.lexer.Pos()
			third, terr := p.lexer.NextToken()
			p.lexer.SetPos(save)
			if terr == nil && third.Type == TokenIndirectRef {
				p.nextToken() // second integer
				p.nextToken() // R
				p.nextToken() // past R
				return IndirectRef{
					Number:     int(firstInt),
					Generation: int(secondInt),
				}, nil
			}
		}
	}

	p.nextToken()
	return Int(firstInt), nil
}

// nest enters an array or dictionary and consumes its opening token. The
// returned function leaves it again.
func (p *Parser) nest() (func(), error) {
	if p.depth >= maxNesting {
		return nil, ErrNestingTooDeep
	}
	p.depth++
	p.nextToken()
	return func() { p.depth-- }, nil
}

// parseArray parses "[obj1 obj2 ...]".
func (p *Parser) parseArray() (Object, error) {
	leave, err := p.nest()
	if err != nil {
		return nil, err
	}
	defer leave()

	arr := Array{}
	for p.skipComments(); !p.at(TokenArrayEnd); p.skipComments() {
		if p.currentToken == nil || p.at(TokenEOF) {
			return nil, fmt.Errorf("unterminated array")
		}
		obj, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("array element %d: %w", len(arr), err)
		}
		arr = append(arr, obj)
	}
	p.nextToken()
	return arr, nil
}

// parseDict parses "<< /Key value ... >>". Entries with a null or
// missing value are left out, since they are equivalent to absent keys.
func (p *Parser) parseDict() (Object, error) {
	leave, err := p.nest()
	if err != nil {
		return nil, err
	}
	defer leave()

	dict := make(Dict)
	for p.skipComments(); !p.at(TokenDictEnd); p.skipComments() {
		if p.currentToken == nil || p.at(TokenEOF) {
			return nil, fmt.Errorf("unterminated dictionary")
		}
		if !p.at(TokenName) {
			return nil, fmt.Errorf("dictionary key is %v at position %d", p.currentToken.Type, p.currentToken.Pos)
		}
		key := string(p.currentToken.Value)
		p.nextToken()
		if p.at(TokenDictEnd) {
			break
		}

		value, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("dictionary value /%s: %w", key, err)
		}
		if _, null := value.(Null); !null {
			dict[key] = value
		}
	}
	p.nextToken()
	return dict, nil
}

// ParseIndirectObject parses "num gen obj ... endobj", including a stream
// body after a dictionary. A missing endobj is tolerated.
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	p.skipComments()
	num, err := p.expectInt("object number")
	if err != nil {
		return nil, err
	}
	gen, err := p.expectInt("generation number")
	if err != nil {
		return nil, err
	}
	if !p.atKeyword("obj") {
		return nil, fmt.Errorf("expected 'obj' keyword at position %d", p.Offset())
	}
	p.nextToken()

	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("object %d %d: %w", num, gen, err)
	}
	if p.atKeyword("stream") {
		dict, ok := obj.(Dict)
		if !ok {
			return nil, fmt.Errorf("object %d %d: stream must follow a dictionary", num, gen)
		}
		if obj, err = p.parseStream(dict); err != nil {
			return nil, fmt.Errorf("object %d %d: %w", num, gen, err)
		}
	}
	if p.atKeyword("endobj") {
		p.nextToken()
	}
	return &IndirectObject{Ref: IndirectRef{Number: num, Generation: gen}, Object: obj}, nil
}

// expectInt consumes a non-negative integer token.
func (p *Parser) expectInt(what string) (int, error) {
	if !p.at(TokenInteger) {
		return 0, fmt.Errorf("expected %s at position %d", what, p.Offset())
	}
	v, err := strconv.Atoi(string(p.currentToken.Value))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", what, p.currentToken.Value)
	}
	p.nextToken()
	return v, nil
}

// parseStream parses a stream object after the "stream" keyword.
// It reads the binary data according to the /Length entry in the dictionary.
// When /Length is missing or wrong the data is delimited by the next
// "endstream" keyword instead.
func (p *Parser) parseStream(dict Dict) (*Stream, error) {
	if err := p.lexer.SkipStreamEOL(); err != nil {
		return nil, fmt.Errorf("failed to skip EOL after stream keyword: %w", err)
	}
	start := p.lexer.Pos()

	length := -1
	switch v := dict.Get("Length").(type) {
	case Int:
		length = int(v)
	case IndirectRef:
		if p.resolver != nil {
			if resolved, err := p.resolver.ResolveReference(v); err == nil {
				if n, ok := resolved.(Int); ok {
					length = int(n)
				}
			}
		}
	}

	var data []byte
	if length >= 0 && p.endstreamFollows(start+int64(length)) {
		data, _ = p.lexer.ReadBytes(length)
	} else {
		var err error
		data, err = p.scanToEndstream(start)
		if err != nil {
			return nil, err
		}
	}

	tok, err := p.lexer.NextToken()
	if err != nil || tok.Type != TokenKeyword || string(tok.Value) != "endstream" {
		return nil, fmt.Errorf("expected 'endstream' keyword after stream data at position %d", p.lexer.Pos())
	}

	// Reload the current and peek tokens after the binary data.
	p.currentToken = nil
	p.peekToken = nil
	p.nextToken()
	p.nextToken()

	return &Stream{
		Dict: dict,
		Data: data,
	}, nil
}

// endstreamFollows reports whether "endstream" follows offset, possibly
// after whitespace.
func (p *Parser) endstreamFollows(offset int64) bool {
	data := p.lexer.Data()
	if offset > int64(len(data)) {
		return false
	}
	rest := data[offset:]
	rest = bytes.TrimLeft(rest[:min(len(rest), 32)], " \t\r\n\f\x00")
	return bytes.HasPrefix(rest, []byte("endstream"))
}

// scanToEndstream returns the bytes from start to the next "endstream"
// keyword, dropping the EOL that precedes it, and leaves the lexer at the
// keyword.
func (p *Parser) scanToEndstream(start int64) ([]byte, error) {
	data := p.lexer.Data()
	idx := bytes.Index(data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("stream starting at %d has no endstream", start)
	}
	end := start + int64(idx)
	p.lexer.SetPos(end)

	body := data[start:end]
	switch {
	case bytes.HasSuffix(body, []byte("\r\n")):
		body = body[:len(body)-2]
	case bytes.HasSuffix(body, []byte("\n")), bytes.HasSuffix(body, []byte("\r")):
		body = body[:len(body)-1]
	}
	return body, nil
}

// ParseIndirectObjectAt parses the indirect object that starts at offset.
func ParseIndirectObjectAt(data []byte, offset int64, resolver ReferenceResolver) (*IndirectObject, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("object offset %d outside file of %d bytes", offset, len(data))
	}
	p := NewParserAt(data, offset)
	p.SetReferenceResolver(resolver)
	return p.ParseIndirectObject()
}
