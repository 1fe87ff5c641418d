package font

import (
	"fmt"

	"github.com/tsawler/pdfreplace/core"
)

// Font descriptor flags
const (
	flagSymbolic    = 1 << 2
	flagNonsymbolic = 1 << 5
)

// FontDescriptor holds the font descriptor entries the engine uses.
type FontDescriptor struct {
	FontName string
	Flags    int

	FontFile  *core.Stream // Type1 font program
	FontFile2 *core.Stream // TrueType font program
	FontFile3 *core.Stream // Type1C, CIDFontType0C or OpenType program
}

// Embedded reports whether a font program is embedded.
func (fd *FontDescriptor) Embedded() bool {
	return fd != nil && (fd.FontFile != nil || fd.FontFile2 != nil || fd.FontFile3 != nil)
}

// newSimpleFont builds a single-byte font (Type1, MMType1, TrueType, Type3).
func newSimpleFont(name string, dict core.Dict, r objectResolver) (*Font, error) {
	f := &Font{
		Name:     name,
		BaseFont: extractName(r.resolve(dict.Get("BaseFont"))),
		Subtype:  extractName(r.resolve(dict.Get("Subtype"))),
	}

	fd := parseFontDescriptor(dict, r)
	f.embedded = fd.Embedded()

	if err := f.parseEncoding(dict, fd, r); err != nil {
		return nil, fmt.Errorf("failed to parse encoding: %w", err)
	}
	if err := f.parseWidths(dict, r); err != nil {
		return nil, fmt.Errorf("failed to parse widths: %w", err)
	}
	if f.Subtype == "Type3" {
		procs, _ := r.resolve(dict.Get("CharProcs")).(core.Dict)
		f.charProcs = procs
		if f.charProcs == nil {
			f.charProcs = core.Dict{}
		}
	}
	return f, nil
}

// parseEncoding sets the base encoding and applies any Differences array.
func (f *Font) parseEncoding(dict core.Dict, fd *FontDescriptor, r objectResolver) error {
	switch enc := r.resolve(dict.Get("Encoding")).(type) {
	case nil:
		f.setBuiltinEncoding(fd)
	case core.Name:
		f.setNamedEncoding(string(enc), fd)
	case core.Dict:
		if base, ok := r.resolve(enc.Get("BaseEncoding")).(core.Name); ok {
			f.setNamedEncoding(string(base), fd)
		} else {
			f.setBuiltinEncoding(fd)
		}
		if diffs, ok := r.resolve(enc.Get("Differences")).(core.Array); ok {
			if err := f.applyEncodingDifferences(diffs, r); err != nil {
				return err
			}
			if f.Encoding != "" {
				f.Encoding += "+Differences"
			} else {
				f.Encoding = "Differences"
			}
		}
	default:
		return fmt.Errorf("invalid encoding type: %T", enc)
	}
	return nil
}

func (f *Font) setNamedEncoding(name string, fd *FontDescriptor) {
	if enc, ok := lookupEncoding(name); ok {
		f.enc = enc
		f.Encoding = name
		return
	}
	f.setBuiltinEncoding(fd)
}

// setBuiltinEncoding picks the encoding of a font without a usable
// /Encoding entry. Symbolic fonts such as Symbol and ZapfDingbats use their
// own built-in encodings, which only a ToUnicode CMap can map to Unicode.
func (f *Font) setBuiltinEncoding(fd *FontDescriptor) {
	symbolic := f.BaseFont == "Symbol" || f.BaseFont == "ZapfDingbats"
	if fd != nil && fd.Flags&flagSymbolic != 0 && fd.Flags&flagNonsymbolic == 0 {
		symbolic = true
	}
	switch {
	case f.Subtype == "Type3", symbolic:
		// Type3 glyphs are named only through Differences.
	case f.Subtype == "TrueType":
		f.enc, f.Encoding = WinAnsiEncoding, "WinAnsiEncoding"
	default:
		f.enc, f.Encoding = StandardEncodingTable, "StandardEncoding"
	}
}

// applyEncodingDifferences applies the Differences array to customize encoding
// Format: [code name1 name2 ... code name1 name2 ...]
func (f *Font) applyEncodingDifferences(diffs core.Array, r objectResolver) error {
	code := 0
	for _, item := range diffs {
		switch v := r.resolve(item).(type) {
		case core.Int:
			code = int(v)
		case core.Real:
			code = int(v)
		case core.Name:
			if code >= 0 && code < 256 {
				f.glyphNames[code] = string(v)
			}
			code++
		default:
			return fmt.Errorf("invalid differences array item: %T", item)
		}
	}
	return nil
}

// parseWidths reads FirstChar and the Widths array.
func (f *Font) parseWidths(dict core.Dict, r objectResolver) error {
	if first, ok := core.Number(r.resolve(dict.Get("FirstChar"))); ok {
		f.firstChar = int(first)
	}
	widthsObj := r.resolve(dict.Get("Widths"))
	if widthsObj == nil {
		return nil
	}
	widths, ok := widthsObj.(core.Array)
	if !ok {
		return fmt.Errorf("widths is not an array: %T", widthsObj)
	}
	f.widths = make([]float64, len(widths))
	for i, w := range widths {
		v, ok := core.Number(r.resolve(w))
		if !ok {
			return fmt.Errorf("invalid width type at index %d: %T", i, w)
		}
		f.widths[i] = v
	}
	return nil
}

// parseFontDescriptor extracts the font descriptor of a simple font or
// CIDFont. A missing descriptor yields nil.
func parseFontDescriptor(dict core.Dict, r objectResolver) *FontDescriptor {
	fdDict, ok := r.resolve(dict.Get("FontDescriptor")).(core.Dict)
	if !ok {
		return nil
	}
	fd := &FontDescriptor{FontName: extractName(r.resolve(fdDict.Get("FontName")))}
	if flags, ok := core.Number(r.resolve(fdDict.Get("Flags"))); ok {
		fd.Flags = int(flags)
	}
	fd.FontFile, _ = r.resolve(fdDict.Get("FontFile")).(*core.Stream)
	fd.FontFile2, _ = r.resolve(fdDict.Get("FontFile2")).(*core.Stream)
	fd.FontFile3, _ = r.resolve(fdDict.Get("FontFile3")).(*core.Stream)
	return fd
}
