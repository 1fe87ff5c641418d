package font

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"

	"github.com/tsawler/pdfreplace/core"
	"golang.org/x/text/encoding/unicode"
)

// maxRangeExpansion bounds how many codes of a single range are expanded
// when building reverse lookups.
const maxRangeExpansion = 1 << 16

// CMap maps character codes to Unicode text (ToUnicode CMaps) or to CIDs
// (encoding CMaps). Codes are byte strings whose lengths are determined by
// the codespace ranges.
type CMap struct {
	Name string

	codespace []codespaceRange

	// Unicode mappings (bfchar / bfrange)
	charMappings  map[string]string
	rangeMappings []rangeMapping

	// CID mappings (cidchar / cidrange)
	cidMappings map[string]uint32
	cidRanges   []cidRange
}

type codespaceRange struct {
	low, high []byte
}

// rangeMapping maps the codes low..high either to consecutive values starting
// at dst (the last UTF-16 code unit is incremented) or to the entries of dsts.
type rangeMapping struct {
	low, high []byte
	dst       []uint16
	dsts      []string
}

type cidRange struct {
	low, high []byte
	cid       uint32
}

// NewCMap creates an empty CMap.
func NewCMap() *CMap {
	return &CMap{
		charMappings: make(map[string]string),
		cidMappings:  make(map[string]uint32),
	}
}

// ParseToUnicodeCMap parses a ToUnicode CMap stream.
func ParseToUnicodeCMap(stream *core.Stream) (*CMap, error) {
	return ParseCMapStream(stream)
}

// ParseCMapStream decodes stream and parses it as a CMap.
func ParseCMapStream(stream *core.Stream) (*CMap, error) {
	data, err := stream.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode CMap stream: %w", err)
	}
	return ParseCMap(data)
}

// ParseCMap parses the PostScript-like CMap syntax. Unknown operators are
// ignored; malformed sections end the parse with an error.
func ParseCMap(data []byte) (*CMap, error) {
	cm := NewCMap()
	lexer := core.NewLexer(data)

	var operands []*core.Token
	for {
		tok, err := lexer.NextToken()
		if err != nil {
			return nil, fmt.Errorf("CMap syntax error: %w", err)
		}
		switch tok.Type {
		case core.TokenEOF:
			return cm, nil
		case core.TokenComment:
			continue
		case core.TokenKeyword:
		default:
			operands = append(operands, tok)
			continue
		}

		switch string(tok.Value) {
		case "begincodespacerange":
			err = cm.parseSection(lexer, "endcodespacerange", 2, cm.addCodespace)
		case "beginbfchar":
			err = cm.parseSection(lexer, "endbfchar", 2, cm.addBfChar)
		case "beginbfrange":
			err = cm.parseSection(lexer, "endbfrange", 3, cm.addBfRange)
		case "begincidchar":
			err = cm.parseSection(lexer, "endcidchar", 2, cm.addCIDChar)
		case "begincidrange":
			err = cm.parseSection(lexer, "endcidrange", 3, cm.addCIDRange)
		case "def":
			if len(operands) >= 2 && string(operands[len(operands)-2].Value) == "CMapName" &&
				operands[len(operands)-1].Type == core.TokenName {
				cm.Name = string(operands[len(operands)-1].Value)
			}
		}
		if err != nil {
			return nil, err
		}
		operands = operands[:0]
	}
}

// cmapEntry is one operand inside a CMap section: a code or text string, an
// integer, or an array of strings.
type cmapEntry struct {
	str   []byte
	num   int
	isNum bool
	array [][]byte
}

// parseSection reads groups of n entries until the end keyword.
func (cm *CMap) parseSection(lexer *core.Lexer, end string, n int, add func([]cmapEntry) error) error {
	group := make([]cmapEntry, 0, n)
	for {
		tok, err := lexer.NextToken()
		if err != nil {
			return fmt.Errorf("CMap syntax error: %w", err)
		}
		var entry cmapEntry
		switch tok.Type {
		case core.TokenEOF:
			return fmt.Errorf("CMap: missing %s: %w", end, io.ErrUnexpectedEOF)
		case core.TokenComment:
			continue
		case core.TokenKeyword:
			if string(tok.Value) == end {
				return nil
			}
			return fmt.Errorf("CMap: unexpected %q before %s", tok.Value, end)
		case core.TokenHexString:
			entry.str = core.DecodeHex(tok.Value)
		case core.TokenString, core.TokenName:
			entry.str = tok.Value
		case core.TokenInteger:
			v, err := core.ParseReal(tok.Value)
			if err != nil {
				return err
			}
			entry.num, entry.isNum = int(v), true
		case core.TokenArrayStart:
			entry.array, err = readStringArray(lexer)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("CMap: unexpected %v in %s section", tok.Type, end)
		}
		group = append(group, entry)
		if len(group) == n {
			if err := add(group); err != nil {
				return err
			}
			group = group[:0]
		}
	}
}

func readStringArray(lexer *core.Lexer) ([][]byte, error) {
	var out [][]byte
	for {
		tok, err := lexer.NextToken()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case core.TokenArrayEnd:
			return out, nil
		case core.TokenHexString:
			out = append(out, core.DecodeHex(tok.Value))
		case core.TokenString:
			out = append(out, tok.Value)
		case core.TokenEOF:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, fmt.Errorf("CMap: unexpected %v in array", tok.Type)
		}
	}
}

var errBadRange = errors.New("CMap: invalid range")

func (cm *CMap) addCodespace(e []cmapEntry) error {
	if len(e[0].str) == 0 || len(e[0].str) != len(e[1].str) {
		return errBadRange
	}
	cm.codespace = append(cm.codespace, codespaceRange{low: e[0].str, high: e[1].str})
	return nil
}

func (cm *CMap) addBfChar(e []cmapEntry) error {
	if e[0].str == nil {
		return fmt.Errorf("CMap: bfchar source must be a string")
	}
	cm.charMappings[string(e[0].str)] = utf16Text(e[1].str)
	return nil
}

func (cm *CMap) addBfRange(e []cmapEntry) error {
	low, high := e[0].str, e[1].str
	if len(low) == 0 || len(low) != len(high) || bytes.Compare(low, high) > 0 {
		return errBadRange
	}
	r := rangeMapping{low: low, high: high}
	switch {
	case e[2].array != nil:
		for _, s := range e[2].array {
			r.dsts = append(r.dsts, utf16Text(s))
		}
	case e[2].str != nil:
		r.dst = utf16Units(e[2].str)
		if len(r.dst) == 0 {
			return errBadRange
		}
	default:
		return errBadRange
	}
	cm.rangeMappings = append(cm.rangeMappings, r)
	return nil
}

func (cm *CMap) addCIDChar(e []cmapEntry) error {
	if e[0].str == nil || !e[1].isNum {
		return fmt.Errorf("CMap: invalid cidchar entry")
	}
	cm.cidMappings[string(e[0].str)] = uint32(e[1].num)
	return nil
}

func (cm *CMap) addCIDRange(e []cmapEntry) error {
	low, high := e[0].str, e[1].str
	if len(low) == 0 || len(low) != len(high) || !e[2].isNum {
		return errBadRange
	}
	cm.cidRanges = append(cm.cidRanges, cidRange{low: low, high: high, cid: uint32(e[2].num)})
	return nil
}

// HasCodespace reports whether the CMap declares codespace ranges.
func (cm *CMap) HasCodespace() bool {
	return len(cm.codespace) > 0
}

// NextCode returns the length of the character code at the start of s.
// Codes are matched against the codespace ranges, shortest first. When no
// range matches, the shortest code length that has a matching prefix is
// consumed (at least one byte).
func (cm *CMap) NextCode(s []byte) int {
	if len(s) == 0 {
		return 0
	}
	if len(cm.codespace) == 0 {
		return cm.guessCodeLength(s)
	}
	fallback := 0
	for n := 1; n <= 4 && n <= len(s); n++ {
		for _, r := range cm.codespace {
			if len(r.low) != n {
				continue
			}
			if inRange(s[:n], r.low, r.high) {
				return n
			}
			if fallback == 0 && s[0] >= r.low[0] && s[0] <= r.high[0] {
				fallback = n
			}
		}
	}
	if fallback == 0 || fallback > len(s) {
		fallback = 1
	}
	return fallback
}

// guessCodeLength picks a code length from the mappings when a CMap has no
// codespace ranges.
func (cm *CMap) guessCodeLength(s []byte) int {
	for n := 1; n <= 4 && n <= len(s); n++ {
		if _, ok := cm.charMappings[string(s[:n])]; ok {
			return n
		}
	}
	for _, r := range cm.rangeMappings {
		if n := len(r.low); n <= len(s) && inRange(s[:n], r.low, r.high) {
			return n
		}
	}
	if len(cm.rangeMappings) > 0 {
		return min(len(cm.rangeMappings[0].low), len(s))
	}
	return 1
}

// inRange reports whether code lies in the multidimensional range
// low..high, compared byte by byte.
func inRange(code, low, high []byte) bool {
	if len(code) != len(low) {
		return false
	}
	for i := range code {
		if code[i] < low[i] || code[i] > high[i] {
			return false
		}
	}
	return true
}

// Lookup returns the Unicode text for a single character code.
func (cm *CMap) Lookup(code []byte) (string, bool) {
	if s, ok := cm.charMappings[string(code)]; ok {
		return s, true
	}
	for i := len(cm.rangeMappings) - 1; i >= 0; i-- {
		r := &cm.rangeMappings[i]
		if !inRange(code, r.low, r.high) {
			continue
		}
		offset := codeDistance(r.low, code)
		if r.dsts != nil {
			if offset < len(r.dsts) {
				return r.dsts[offset], true
			}
			return "", false
		}
		units := append([]uint16(nil), r.dst...)
		units[len(units)-1] += uint16(offset)
		return string(utf16.Decode(units)), true
	}
	return "", false
}

// LookupString decodes a byte string, splitting it with NextCode. Codes
// without a mapping are dropped.
func (cm *CMap) LookupString(data []byte) string {
	var buf bytes.Buffer
	for len(data) > 0 {
		n := cm.NextCode(data)
		if s, ok := cm.Lookup(data[:n]); ok {
			buf.WriteString(s)
		}
		data = data[n:]
	}
	return buf.String()
}

// CID returns the CID selected by code through cidchar and cidrange entries.
func (cm *CMap) CID(code []byte) (uint32, bool) {
	if cid, ok := cm.cidMappings[string(code)]; ok {
		return cid, true
	}
	for i := len(cm.cidRanges) - 1; i >= 0; i-- {
		r := &cm.cidRanges[i]
		if inRange(code, r.low, r.high) {
			return r.cid + uint32(codeDistance(r.low, code)), true
		}
	}
	return 0, false
}

// HasCIDMappings reports whether the CMap maps codes to CIDs.
func (cm *CMap) HasCIDMappings() bool {
	return len(cm.cidMappings) > 0 || len(cm.cidRanges) > 0
}

// EachUnicode calls fn for every code with a Unicode mapping. Ranges are
// visited before single mappings, so single mappings take precedence when
// fn keeps the last value per code.
func (cm *CMap) EachUnicode(fn func(code []byte, text string)) {
	for _, r := range cm.rangeMappings {
		code := append([]byte(nil), r.low...)
		for n := 0; n < maxRangeExpansion; n++ {
			if s, ok := cm.Lookup(code); ok {
				fn(append([]byte(nil), code...), s)
			}
			if !incrementCode(code, r.low, r.high) {
				break
			}
		}
	}
	for code, text := range cm.charMappings {
		fn([]byte(code), text)
	}
}

// EachCID calls fn for every code with a CID mapping.
func (cm *CMap) EachCID(fn func(code []byte, cid uint32)) {
	for _, r := range cm.cidRanges {
		code := append([]byte(nil), r.low...)
		for n := 0; n < maxRangeExpansion; n++ {
			if cid, ok := cm.CID(code); ok {
				fn(append([]byte(nil), code...), cid)
			}
			if !incrementCode(code, r.low, r.high) {
				break
			}
		}
	}
	for code, cid := range cm.cidMappings {
		fn([]byte(code), cid)
	}
}

// incrementCode advances code to the next value within low..high and
// reports whether one exists.
func incrementCode(code, low, high []byte) bool {
	for i := len(code) - 1; i >= 0; i-- {
		if code[i] < high[i] {
			code[i]++
			return true
		}
		code[i] = low[i]
	}
	return false
}

// codeDistance returns the position of code within a range starting at low.
// Only the varying trailing bytes contribute.
func codeDistance(low, code []byte) int {
	d := 0
	for i := range code {
		d = d<<8 | int(code[i])
	}
	l := 0
	for i := range low {
		l = l<<8 | int(low[i])
	}
	return d - l
}

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// utf16Text decodes a CMap destination string (UTF-16BE).
func utf16Text(b []byte) string {
	if len(b)%2 == 1 {
		return string(b)
	}
	out, err := utf16BE.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// utf16Units splits a UTF-16BE byte string into code units.
func utf16Units(b []byte) []uint16 {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	if len(b)%2 == 1 {
		units = append(units, uint16(b[len(b)-1]))
	}
	return units
}

// encodeUTF16BE encodes text as UTF-16BE without a byte order mark.
func encodeUTF16BE(text string) ([]byte, error) {
	return utf16BE.NewEncoder().Bytes([]byte(text))
}

// DecodeUTF16BE decodes UTF-16BE bytes, replacing invalid sequences.
func DecodeUTF16BE(data []byte) string {
	out, err := utf16BE.NewDecoder().Bytes(data)
	if err != nil {
		return string(utf16.Decode(utf16Units(data)))
	}
	return string(out)
}
