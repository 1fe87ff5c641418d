package font

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tsawler/pdfreplace/core"
)

// ErrUnencodable is returned when replacement text contains a character the
// font has no code for.
var ErrUnencodable = errors.New("text cannot be encoded in font")

// ErrUnsupportedFont is returned by Load for font dictionaries that cannot
// be decoded at all.
var ErrUnsupportedFont = errors.New("unsupported font")

// Char is one character code of a shown string together with its Unicode
// text. Text is empty when the code has no Unicode mapping.
type Char struct {
	Code []byte
	Text string
}

// Mapped reports whether the character has a Unicode mapping.
func (c Char) Mapped() bool { return c.Text != "" }

// Font decodes the strings shown with one PDF font and encodes replacement
// text back into character codes.
type Font struct {
	Name     string // resource name, e.g. F1
	BaseFont string
	Subtype  string
	Encoding string

	// Simple fonts
	enc        Encoding
	glyphNames [256]string
	firstChar  int
	widths     []float64
	charProcs  core.Dict

	// Composite fonts
	composite bool
	vertical  bool
	identity  bool
	ucs2      bool
	cmap      *CMap
	cidToGID  []uint16 // nil means identity
	program   *Program

	embedded bool

	// ToUnicode CMap for character code to Unicode mapping
	ToUnicodeCMap *CMap

	once       sync.Once
	reverse    map[string][]byte
	maxTextLen int
	cidCodes   map[uint32][]byte
}

// NewFont creates a simple font using the named predefined encoding
// (WinAnsiEncoding when empty or unknown).
func NewFont(name, baseFont, subtype string) *Font {
	return &Font{
		Name:     name,
		BaseFont: baseFont,
		Subtype:  subtype,
		Encoding: "WinAnsiEncoding",
		enc:      WinAnsiEncoding,
	}
}

// Load builds a Font from a font dictionary. name is the resource name the
// font is selected by in content streams.
func Load(name string, dict core.Dict, resolver core.ReferenceResolver) (*Font, error) {
	r := objectResolver{resolver}
	subtype := extractName(r.resolve(dict.Get("Subtype")))
	var (
		f   *Font
		err error
	)
	switch subtype {
	case "Type0":
		f, err = newType0Font(name, dict, r)
	case "Type1", "MMType1", "TrueType", "Type3", "":
		f, err = newSimpleFont(name, dict, r)
	default:
		return nil, fmt.Errorf("%w: subtype %s", ErrUnsupportedFont, subtype)
	}
	if err != nil {
		return nil, fmt.Errorf("font %s: %w", name, err)
	}
	if s, ok := r.resolve(dict.Get("ToUnicode")).(*core.Stream); ok {
		// A broken ToUnicode CMap falls back to the encoding.
		if cm, err := ParseToUnicodeCMap(s); err == nil {
			f.ToUnicodeCMap = cm
		}
	}
	return f, nil
}

// IsVertical reports whether the font uses vertical writing mode.
func (f *Font) IsVertical() bool {
	return f.vertical
}

// IsVerticalEncoding reports whether a CMap name selects vertical writing.
func IsVerticalEncoding(encoding string) bool {
	return encoding == "Identity-V" || strings.HasSuffix(encoding, "-V")
}

// Chars splits a shown string into character codes and decodes each one.
// The Code slices alias s.
func (f *Font) Chars(s []byte) []Char {
	chars := make([]Char, 0, len(s))
	for len(s) > 0 {
		n := f.codeLength(s)
		code := s[:n]
		chars = append(chars, Char{Code: code, Text: f.decodeCode(code)})
		s = s[n:]
	}
	return chars
}


func (f *Font) codeLength(s []byte) int {
	if !f.composite {
		return 1
	}
	var n int
	switch {
	case f.cmap != nil:
		n = f.cmap.NextCode(s)
	case f.ucs2:
		n = 2
		if len(s) >= 4 && s[0] >= 0xD8 && s[0] <= 0xDB {
			n = 4
		}
	case f.identity:
		n = 2
	case f.ToUnicodeCMap != nil && f.ToUnicodeCMap.HasCodespace():
		n = f.ToUnicodeCMap.NextCode(s)
	default:
		n = 2
	}
	return min(max(n, 1), len(s))
}

// decodeCode returns the NFC text of a single code, or "" when unmapped.
func (f *Font) decodeCode(code []byte) string {
	if f.ToUnicodeCMap != nil {
		if s, ok := f.ToUnicodeCMap.Lookup(code); ok {
			return NormalizeUnicode(strings.TrimRight(s, "\x00"))
		}
	}
	if f.composite {
		if f.ucs2 {
			return NormalizeUnicode(DecodeUTF16BE(code))
		}
		return ""
	}
	if name := f.glyphNames[code[0]]; name != "" {
		return NormalizeUnicode(glyphText(name, f.BaseFont == "ZapfDingbats"))
	}
	if f.enc == nil {
		return ""
	}
	if r := f.enc.Decode(code[0]); r != 0 {
		return NormalizeUnicode(string(r))
	}
	return ""
}

// Encode converts text into character codes of this font. Each character
// is looked up in reverse through the font's Unicode mappings; composite
// fonts with an embedded TrueType program also use the program's cmap.
// Text that has no code fails with ErrUnencodable.
func (f *Font) Encode(text string) ([]byte, error) {
	f.once.Do(f.buildReverse)
	text = NormalizeUnicode(text)
	out := make([]byte, 0, len(text)*2)
	for len(text) > 0 {
		n := min(f.maxTextLen, len(text))
		for ; n > 0; n-- {
			if code, ok := f.reverse[text[:n]]; ok {
				out = append(out, code...)
				break
			}
		}
		if n > 0 {
			text = text[n:]
			continue
		}
		r, size := utf8.DecodeRuneInString(text)
		code, ok := f.encodeRune(r)
		if !ok {
			return nil, fmt.Errorf("%w: %q in font %s", ErrUnencodable, r, f.displayName())
		}
		out = append(out, code...)
		text = text[size:]
	}
	return out, nil
}

func (f *Font) displayName() string {
	if f.BaseFont != "" {
		return f.BaseFont
	}
	return f.Name
}

// buildReverse fills the Unicode-to-code table. When several codes decode
// to the same text the shortest, then smallest code wins.
func (f *Font) buildReverse() {
	f.reverse = make(map[string][]byte)
	add := func(code []byte, text string) {
		if text == "" {
			return
		}
		if old, ok := f.reverse[text]; ok {
			if len(old) < len(code) || (len(old) == len(code) && bytes.Compare(old, code) <= 0) {
				return
			}
		}
		f.reverse[text] = code
		f.maxTextLen = max(f.maxTextLen, len(text))
	}

	if !f.composite {
		for c := 0; c < 256; c++ {
			code := []byte{byte(c)}
			if !f.hasGlyph(byte(c)) {
				continue
			}
			add(code, f.decodeCode(code))
		}
		return
	}
	if f.cmap != nil && f.program != nil {
		f.cidCodes = make(map[uint32][]byte)
		f.cmap.EachCID(func(code []byte, c uint32) {
			if old, ok := f.cidCodes[c]; !ok || bytes.Compare(code, old) < 0 {
				f.cidCodes[c] = code
			}
		})
	}
	if f.ToUnicodeCMap != nil {
		f.ToUnicodeCMap.EachUnicode(func(code []byte, text string) {
			add(code, NormalizeUnicode(strings.TrimRight(text, "\x00")))
		})
	}
}

// hasGlyph reports whether a simple font can render code. Subset fonts
// only contain the glyphs the producer used, which shows as a zero entry in
// /Widths; Type3 fonts need a glyph procedure.
func (f *Font) hasGlyph(code byte) bool {
	if f.charProcs != nil {
		name := f.glyphNames[code]
		if name == "" {
			return false
		}
		_, ok := f.charProcs[name]
		return ok
	}
	if !f.embedded || !isSubsetFont(f.BaseFont) || f.widths == nil {
		return true
	}
	i := int(code) - f.firstChar
	if i < 0 || i >= len(f.widths) {
		return false
	}
	return f.widths[i] != 0
}

// encodeRune handles characters with no reverse Unicode mapping.
func (f *Font) encodeRune(r rune) ([]byte, bool) {
	if !f.composite {
		return nil, false
	}
	if f.ucs2 {
		b, err := encodeUTF16BE(string(r))
		return b, err == nil
	}
	if f.program == nil {
		return nil, false
	}
	gid, ok := f.program.GlyphFor(r)
	if !ok || gid == 0 {
		return nil, false
	}
	cid, ok := f.cidForGID(gid)
	if !ok {
		return nil, false
	}
	return f.codeForCID(cid)
}

func (f *Font) cidForGID(gid uint16) (uint32, bool) {
	if f.cidToGID == nil {
		return uint32(gid), true
	}
	for cid, g := range f.cidToGID {
		if g == gid {
			return uint32(cid), true
		}
	}
	return 0, false
}

func (f *Font) codeForCID(cid uint32) ([]byte, bool) {
	if f.cmap == nil {
		if !f.identity || cid > 0xFFFF {
			return nil, false
		}
		return []byte{byte(cid >> 8), byte(cid)}, true
	}
	code, ok := f.cidCodes[cid]
	return code, ok
}

// isSubsetFont reports whether a BaseFont name carries a subset tag such as
// "ABCDEF+Helvetica".
func isSubsetFont(baseFont string) bool {
	if len(baseFont) < 8 || baseFont[6] != '+' {
		return false
	}
	for i := 0; i < 6; i++ {
		if baseFont[i] < 'A' || baseFont[i] > 'Z' {
			return false
		}
	}
	return true
}

// objectResolver follows indirect references, tolerating a nil resolver.
type objectResolver struct {
	r core.ReferenceResolver
}

func (o objectResolver) resolve(obj core.Object) core.Object {
	for i := 0; i < 8; i++ {
		ref, ok := obj.(core.IndirectRef)
		if !ok {
			return obj
		}
		if o.r == nil {
			return nil
		}
		res, err := o.r.ResolveReference(ref)
		if err != nil {
			return nil
		}
		obj = res
	}
	return nil
}

// extractName extracts a name from a PDF object
func extractName(obj core.Object) string {
	switch v := obj.(type) {
	case core.Name:
		return string(v)
	case core.String:
		return string(v)
	}
	return ""
}
