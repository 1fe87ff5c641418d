// Package font maps the character codes of PDF text strings to Unicode and
// back.
//
// Fonts are loaded from a page's font resource dictionary:
//
//	f, err := font.Load("F1", fontDict, resolver)
//
// # Font Types
//
//   - Simple fonts (Type1, MMType1, TrueType, Type3) use one byte per code.
//     Codes are decoded through the ToUnicode CMap, then the /Encoding
//     (StandardEncoding, WinAnsiEncoding, MacRomanEncoding, PDFDocEncoding
//     and Differences arrays resolved with the Adobe Glyph List).
//   - Type0 (composite) fonts split strings with their CMap: Identity-H and
//     Identity-V use two-byte codes, embedded CMaps declare codespace ranges,
//     and UCS-2 CMaps carry Unicode directly.
//
// # Decoding
//
//	for _, c := range f.Chars(raw) {
//		if c.Mapped() {
//			fmt.Print(c.Text)
//		}
//	}
//
// Decoded text is normalized to NFC. Codes without a Unicode mapping have an
// empty Text.
//
// # Encoding
//
// Encode turns replacement text into codes of the same font. It inverts
// the decoding tables and, for Identity-encoded fonts with an embedded
// TrueType program, consults the program's cmap. Glyphs absent from subset
// fonts are not used. Characters without a code fail with [ErrUnencodable].
package font
