package font

import (
	"fmt"
	"strings"

	"github.com/tsawler/pdfreplace/core"
)

// newType0Font builds a composite font. The encoding may be Identity-H/V,
// a predefined UCS-2 or UTF-16 CMap, or an embedded CMap stream. Other
// predefined CMaps are accepted but only decode through ToUnicode.
func newType0Font(name string, dict core.Dict, r objectResolver) (*Font, error) {
	f := &Font{
		Name:      name,
		BaseFont:  extractName(r.resolve(dict.Get("BaseFont"))),
		Subtype:   "Type0",
		composite: true,
	}

	switch enc := r.resolve(dict.Get("Encoding")).(type) {
	case core.Name:
		f.setPredefinedCMap(string(enc))
	case *core.Stream:
		cm, err := ParseCMapStream(enc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse encoding CMap: %w", err)
		}
		f.cmap = cm
		f.Encoding = cm.Name
		if f.Encoding == "" {
			f.Encoding = "embedded"
		}
		if wmode, ok := core.Number(r.resolve(enc.Dict.Get("WMode"))); ok && wmode == 1 {
			f.vertical = true
		}
		if base, ok := r.resolve(enc.Dict.Get("UseCMap")).(core.Name); ok && !cm.HasCodespace() {
			f.setPredefinedCMap(string(base))
			f.cmap = nil
		}
	case nil:
		f.setPredefinedCMap("Identity-H")
	default:
		return nil, fmt.Errorf("invalid encoding type: %T", enc)
	}

	if err := f.parseDescendantFont(dict, r); err != nil {
		return nil, fmt.Errorf("failed to parse descendant font: %w", err)
	}
	return f, nil
}

// setPredefinedCMap configures decoding for a named CMap.
func (f *Font) setPredefinedCMap(name string) {
	f.Encoding = name
	f.vertical = IsVerticalEncoding(name)
	switch {
	case name == "Identity-H" || name == "Identity-V":
		f.identity = true
	case strings.Contains(name, "UCS2") || strings.Contains(name, "UTF16"):
		f.ucs2 = true
	}
}

// parseDescendantFont reads the CIDFont in DescendantFonts. Only the parts
// needed to map Unicode back to codes are kept: the embedded TrueType
// program and CIDToGIDMap.
func (f *Font) parseDescendantFont(dict core.Dict, r objectResolver) error {
	descendants, ok := r.resolve(dict.Get("DescendantFonts")).(core.Array)
	if !ok || len(descendants) == 0 {
		return fmt.Errorf("missing DescendantFonts")
	}
	cidDict, ok := r.resolve(descendants[0]).(core.Dict)
	if !ok {
		return fmt.Errorf("descendant font is not a dictionary: %T", descendants[0])
	}
	subtype := extractName(r.resolve(cidDict.Get("Subtype")))
	if subtype != "CIDFontType0" && subtype != "CIDFontType2" {
		return fmt.Errorf("not a CIDFont: %s", subtype)
	}

	fd := parseFontDescriptor(cidDict, r)
	f.embedded = fd.Embedded()
	if subtype != "CIDFontType2" || fd == nil || fd.FontFile2 == nil {
		return nil
	}

	if m, ok := r.resolve(cidDict.Get("CIDToGIDMap")).(*core.Stream); ok {
		data, err := m.DecodeLimited(1 << 17)
		if err != nil {
			return nil
		}
		f.cidToGID = make([]uint16, len(data)/2)
		for i := range f.cidToGID {
			f.cidToGID[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
		}
	}

	// Without the program, replacement text is limited to the ToUnicode
	// mappings; a broken program is not an error.
	if prog, err := loadProgramStream(fd.FontFile2); err == nil {
		f.program = prog
	}
	return nil
}
