package font

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
	"seehuhn.de/go/postscript/psenc"
	"seehuhn.de/go/postscript/type1/names"
)

// Encoding maps the single-byte codes of a simple font to Unicode. Decode
// returns 0 for codes without a mapping.
type Encoding interface {
	Name() string
	Decode(b byte) rune
}

// tableEncoding is an Encoding backed by a 256-entry table.
type tableEncoding struct {
	name  string
	table [256]rune
}

func (e *tableEncoding) Name() string       { return e.name }
func (e *tableEncoding) Decode(b byte) rune { return e.table[b] }

func newCharmapEncoding(name string, cm *charmap.Charmap) *tableEncoding {
	e := &tableEncoding{name: name}
	for i := range 256 {
		if r := cm.DecodeByte(byte(i)); r != utf8.RuneError {
			e.table[i] = r
		}
	}
	return e
}

// Predefined simple-font encodings.
var (
	// WinAnsiEncoding is Windows code page 1252.
	WinAnsiEncoding Encoding = newCharmapEncoding("WinAnsiEncoding", charmap.Windows1252)

	// MacRomanEncoding is the classic Mac OS Roman encoding.
	MacRomanEncoding Encoding = newCharmapEncoding("MacRomanEncoding", charmap.Macintosh)

	// StandardEncodingTable is Adobe StandardEncoding, the built-in encoding
	// of most Type1 fonts.
	StandardEncodingTable Encoding = newStandardEncoding()

	// PDFDocEncoding is the encoding of PDF text strings outside content
	// streams; some producers use it for fonts too.
	PDFDocEncoding Encoding = newPDFDocEncoding()
)

func newStandardEncoding() *tableEncoding {
	e := &tableEncoding{name: "StandardEncoding"}
	for i, name := range psenc.StandardEncoding {
		if rr := []rune(names.ToUnicode(name, "")); len(rr) == 1 && name != ".notdef" {
			e.table[i] = rr[0]
		}
	}
	return e
}

// pdfDocDifferences lists the codes where PDFDocEncoding differs from
// ISO 8859-1.
var pdfDocDifferences = map[byte]rune{
	0x18: '˘', 0x19: 'ˇ', 0x1A: 'ˆ', 0x1B: '˙',
	0x1C: '˝', 0x1D: '˛', 0x1E: '˚', 0x1F: '˜',
	0x80: '•', 0x81: '†', 0x82: '‡', 0x83: '…',
	0x84: '—', 0x85: '–', 0x86: 'ƒ', 0x87: '⁄',
	0x88: '‹', 0x89: '›', 0x8A: '−', 0x8B: '‰',
	0x8C: '„', 0x8D: '“', 0x8E: '”', 0x8F: '‘',
	0x90: '’', 0x91: '‚', 0x92: '™', 0x93: 'ﬁ',
	0x94: 'ﬂ', 0x95: 'Ł', 0x96: 'Œ', 0x97: 'Š',
	0x98: 'Ÿ', 0x99: 'Ž', 0x9A: 'ı', 0x9B: 'ł',
	0x9C: 'œ', 0x9D: 'š', 0x9E: 'ž', 0xA0: '€',
}

func newPDFDocEncoding() *tableEncoding {
	e := newCharmapEncoding("PDFDocEncoding", charmap.ISO8859_1)
	for b, r := range pdfDocDifferences {
		e.table[b] = r
	}
	e.table[0x7F], e.table[0x9F], e.table[0xAD] = 0, 0, 0
	return e
}

// lookupEncoding returns the predefined encoding with the given name.
func lookupEncoding(name string) (Encoding, bool) {
	switch name {
	case "WinAnsiEncoding":
		return WinAnsiEncoding, true
	case "MacRomanEncoding":
		return MacRomanEncoding, true
	case "StandardEncoding":
		return StandardEncodingTable, true
	case "PDFDocEncoding":
		return PDFDocEncoding, true
	}
	return nil, false
}

// glyphText returns the Unicode text of a glyph name. Dingbats fonts use
// the ZapfDingbats glyph list.
func glyphText(name string, dingbats bool) string {
	if name == "" || name == ".notdef" {
		return ""
	}
	fontName := ""
	if dingbats {
		fontName = "ZapfDingbats"
	}
	return names.ToUnicode(name, fontName)
}

// NormalizeUnicode converts text to Unicode normalization form C.
func NormalizeUnicode(s string) string {
	return norm.NFC.String(s)
}
