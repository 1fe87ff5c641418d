package font

import (
	"bytes"
	"fmt"

	gofont "github.com/go-text/typesetting/font"
	"github.com/tsawler/pdfreplace/core"
)

// maxProgramSize bounds the size of a decoded embedded font program.
const maxProgramSize = 32 << 20

// Program is an embedded TrueType or OpenType font program.
type Program struct {
	face *gofont.Face
}

// LoadProgram parses a TrueType/OpenType font program.
func LoadProgram(data []byte) (*Program, error) {
	face, err := gofont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse font program: %w", err)
	}
	return &Program{face: face}, nil
}

// loadProgramStream decodes and parses a FontFile2 (or OpenType FontFile3)
// stream.
func loadProgramStream(s *core.Stream) (*Program, error) {
	data, err := s.DecodeLimited(maxProgramSize)
	if err != nil {
		return nil, fmt.Errorf("failed to decode font program: %w", err)
	}
	return LoadProgram(data)
}

// GlyphFor returns the glyph the program's cmap selects for r.
func (p *Program) GlyphFor(r rune) (uint16, bool) {
	gid, ok := p.face.NominalGlyph(r)
	if !ok {
		return 0, false
	}
	return uint16(gid), true
}
