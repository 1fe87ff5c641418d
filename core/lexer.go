package core

import (
	"bytes"
	"fmt"
)

// TokenType represents the type of token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenWhitespace
	TokenComment
	TokenKeyword     // true, false, null, obj, endobj, stream, endstream, Tj, T*, ', "
	TokenInteger     // 123
	TokenReal        // 3.14
	TokenString      // (hello)
	TokenHexString   // <48656C6C6F>
	TokenName        // /Type
	TokenArrayStart  // [
	TokenArrayEnd    // ]
	TokenDictStart   // <<
	TokenDictEnd     // >>
	TokenIndirectRef // R (after two numbers)
)

// String returns a short description of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenWhitespace:
		return "Whitespace"
	case TokenComment:
		return "Comment"
	case TokenKeyword:
		return "Keyword"
	case TokenInteger:
		return "Integer"
	case TokenReal:
		return "Real"
	case TokenString:
		return "String"
	case TokenHexString:
		return "HexString"
	case TokenName:
		return "Name"
	case TokenArrayStart:
		return "ArrayStart"
	case TokenArrayEnd:
		return "ArrayEnd"
	case TokenDictStart:
		return "DictStart"
	case TokenDictEnd:
		return "DictEnd"
	case TokenIndirectRef:
		return "R"
	default:
		return "Unknown"
	}
}

// Token represents a lexical token. Pos and End delimit the raw bytes of the
// token in the lexer input; Value holds the decoded value (escapes resolved
// for literal strings and names, hex digits for hex strings).
type Token struct {
	Type  TokenType
	Value []byte
	Pos   int64
	End   int64
}

// Lexer performs lexical analysis of PDF content held in memory.
type Lexer struct {
	data []byte
	pos  int
}

// NewLexer creates a new lexer over data.
func NewLexer(data []byte) *Lexer {
	return &Lexer{data: data}
}

// NewLexerAt creates a lexer positioned at offset.
func NewLexerAt(data []byte, offset int64) *Lexer {
	l := &Lexer{data: data}
	l.SetPos(offset)
	return l
}

// Pos returns the current byte offset.
func (l *Lexer) Pos() int64 { return int64(l.pos) }

// SetPos moves the lexer to offset, clamped to the input.
func (l *Lexer) SetPos(offset int64) {
	switch {
	case offset < 0:
		l.pos = 0
	case offset > int64(len(l.data)):
		l.pos = len(l.data)
	default:
		l.pos = int(offset)
	}
}

// Data returns the lexer input.
func (l *Lexer) Data() []byte { return l.data }

// NextToken returns the next token from the input. Whitespace is skipped;
// comments are returned as TokenComment.
func (l *Lexer) NextToken() (*Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.data) {
		return &Token{Type: TokenEOF, Pos: int64(l.pos), End: int64(l.pos)}, nil
	}
	b := l.data[l.pos]

	switch b {
	case '%':
		return l.readComment(), nil
	case '[':
		l.pos++
		return l.token(TokenArrayStart, l.pos-1, []byte{'['}), nil
	case ']':
		l.pos++
		return l.token(TokenArrayEnd, l.pos-1, []byte{']'}), nil
	case '(':
		return l.readString()
	case '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return l.token(TokenDictStart, l.pos-2, []byte("<<")), nil
		}
		return l.readHexString()
	case '>':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '>' {
			l.pos += 2
			return l.token(TokenDictEnd, l.pos-2, []byte(">>")), nil
		}
		return nil, fmt.Errorf("unexpected '>' at position %d", l.pos)
	case '/':
		return l.readName()
	case ')', '{', '}':
		// Stray delimiters are surfaced as one-byte keywords so that callers
		// tolerant of garbage (content streams, repair) can skip them.
		l.pos++
		return l.token(TokenKeyword, l.pos-1, []byte{b}), nil
	}

	if isDigit(b) || b == '-' || b == '+' || b == '.' {
		if tok := l.readNumber(); tok != nil {
			return tok, nil
		}
	}

	return l.readKeyword(), nil
}

func (l *Lexer) token(tt TokenType, start int, value []byte) *Token {
	return &Token{Type: tt, Value: value, Pos: int64(start), End: int64(l.pos)}
}

// skipWhitespace skips all whitespace characters
// PDF whitespace: space (0x20), tab (0x09), LF (0x0A), CR (0x0D), FF (0x0C), null (0x00)
func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.data) && isWhitespace(l.data[l.pos]) {
		l.pos++
	}
}

// readComment reads a comment (% to end of line). The end of line is not
// part of the token.
func (l *Lexer) readComment() *Token {
	start := l.pos
	for l.pos < len(l.data) && l.data[l.pos] != '\r' && l.data[l.pos] != '\n' {
		l.pos++
	}
	return l.token(TokenComment, start, l.data[start:l.pos])
}

// readString reads a literal string (hello)
func (l *Lexer) readString() (*Token, error) {
	start := l.pos
	l.pos++ // (

	var buf bytes.Buffer
	depth := 1
	for depth > 0 {
		if l.pos >= len(l.data) {
			return nil, fmt.Errorf("unterminated string at position %d", start)
		}
		b := l.data[l.pos]
		l.pos++

		switch b {
		case '(':
			depth++
			buf.WriteByte(b)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(b)
			}
		case '\\':
			if l.pos >= len(l.data) {
				return nil, fmt.Errorf("unterminated string at position %d", start)
			}
			next := l.data[l.pos]
			l.pos++
			switch next {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				// Line continuation
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			case '0', '1', '2', '3', '4', '5', '6', '7':
				val := int(next - '0')
				for i := 0; i < 2 && l.pos < len(l.data) && isOctalDigit(l.data[l.pos]); i++ {
					val = val*8 + int(l.data[l.pos]-'0')
					l.pos++
				}
				buf.WriteByte(byte(val))
			default:
				// Unknown escape (including \( \) \\) keeps the character
				buf.WriteByte(next)
			}
		default:
			buf.WriteByte(b)
		}
	}

	return l.token(TokenString, start, buf.Bytes()), nil
}

// readHexString reads a hexadecimal string <48656C6C6F>
func (l *Lexer) readHexString() (*Token, error) {
	start := l.pos
	l.pos++ // <

	var buf bytes.Buffer
	for {
		if l.pos >= len(l.data) {
			return nil, fmt.Errorf("unterminated hex string at position %d", start)
		}
		b := l.data[l.pos]
		l.pos++
		if b == '>' {
			break
		}
		if isWhitespace(b) {
			continue
		}
		if !isHexDigit(b) {
			return nil, fmt.Errorf("invalid hex digit '%c' at position %d", b, l.pos-1)
		}
		buf.WriteByte(b)
	}

	return l.token(TokenHexString, start, buf.Bytes()), nil
}

// readName reads a name object /Type
func (l *Lexer) readName() (*Token, error) {
	start := l.pos
	l.pos++ // /

	var buf bytes.Buffer
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		l.pos++

		if b == '#' && l.pos+1 < len(l.data) && isHexDigit(l.data[l.pos]) && isHexDigit(l.data[l.pos+1]) {
			buf.WriteByte(hexValue(l.data[l.pos])<<4 | hexValue(l.data[l.pos+1]))
			l.pos += 2
			continue
		}
		buf.WriteByte(b)
	}

	return l.token(TokenName, start, buf.Bytes()), nil
}

// readNumber reads an integer or real number. It returns nil, without
// consuming input, when the bytes do not form a number (a lone "-" or "."),
// so they can be read as a keyword instead.
func (l *Lexer) readNumber() *Token {
	start := l.pos
	i := l.pos
	if l.data[i] == '-' || l.data[i] == '+' {
		i++
	}
	// Some producers write "--5"; treat the extra sign as noise.
	for i < len(l.data) && (l.data[i] == '-' || l.data[i] == '+') {
		i++
	}

	digits := 0
	hasDecimal := false
	for i < len(l.data) {
		b := l.data[i]
		if b == '.' && !hasDecimal {
			hasDecimal = true
		} else if isDigit(b) {
			digits++
		} else {
			break
		}
		i++
	}
	if digits == 0 {
		return nil
	}

	l.pos = i
	tokenType := TokenInteger
	if hasDecimal {
		tokenType = TokenReal
	}
	return l.token(tokenType, start, l.data[start:i])
}

// readKeyword reads a run of regular characters: true, false, null, R,
// obj, endobj, and content stream operators such as T*, ' and ".
func (l *Lexer) readKeyword() *Token {
	start := l.pos
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		l.pos++
	}
	if l.pos == start {
		l.pos++
	}

	value := l.data[start:l.pos]
	if len(value) == 1 && value[0] == 'R' {
		return l.token(TokenIndirectRef, start, value)
	}
	return l.token(TokenKeyword, start, value)
}

// ReadBytes reads exactly n bytes from the input.
// This is used for reading binary stream data.
func (l *Lexer) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative length %d", n)
	}
	if l.pos+n > len(l.data) {
		got := len(l.data) - l.pos
		l.pos = len(l.data)
		return nil, fmt.Errorf("unexpected EOF: expected %d bytes, got %d", n, got)
	}
	data := l.data[l.pos : l.pos+n]
	l.pos += n
	return data, nil
}

// SkipStreamEOL skips the end-of-line marker that follows the "stream"
// keyword: CRLF or LF, and a lone CR as written by some producers.
// Spaces before the EOL are tolerated.
func (l *Lexer) SkipStreamEOL() error {
	for l.pos < len(l.data) && (l.data[l.pos] == ' ' || l.data[l.pos] == '\t') {
		l.pos++
	}
	if l.pos >= len(l.data) {
		return fmt.Errorf("unexpected EOF after stream keyword")
	}
	switch l.data[l.pos] {
	case '\r':
		l.pos++
		if l.pos < len(l.data) && l.data[l.pos] == '\n' {
			l.pos++
		}
	case '\n':
		l.pos++
	}
	return nil
}

// SkipBytes skips n bytes.
func (l *Lexer) SkipBytes(n int) error {
	if l.pos+n > len(l.data) {
		l.pos = len(l.data)
		return fmt.Errorf("unexpected EOF skipping %d bytes", n)
	}
	l.pos += n
	return nil
}

// Peek returns the next byte without consuming it.
func (l *Lexer) Peek() (byte, bool) {
	if l.pos >= len(l.data) {
		return 0, false
	}
	return l.data[l.pos], true
}

// Helper functions

func isWhitespace(b byte) bool {
	// PDF whitespace: space, tab, LF, CR, FF, null
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == 0
}

func isDelimiter(b byte) bool {
	return b == '(' || b == ')' || b == '<' || b == '>' || b == '[' || b == ']' ||
		b == '{' || b == '}' || b == '/' || b == '%'
}

// IsWhitespace reports whether b is a PDF whitespace character.
func IsWhitespace(b byte) bool { return isWhitespace(b) }

// IsDelimiter reports whether b is a PDF delimiter character.
func IsDelimiter(b byte) bool { return isDelimiter(b) }

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isOctalDigit(b byte) bool {
	return b >= '0' && b <= '7'
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexValue(b byte) byte {
	if b >= '0' && b <= '9' {
		return b - '0'
	}
	if b >= 'a' && b <= 'f' {
		return b - 'a' + 10
	}
	if b >= 'A' && b <= 'F' {
		return b - 'A' + 10
	}
	return 0
}
