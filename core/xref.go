package core

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// XRefEntryType distinguishes the three kinds of cross-reference entry.
type XRefEntryType int

const (
	XRefEntryFree         XRefEntryType = iota // type 0
	XRefEntryUncompressed                      // type 1: object at a byte offset
	XRefEntryCompressed                        // type 2: object inside an object stream
)

func (t XRefEntryType) String() string {
	switch t {
	case XRefEntryFree:
		return "free"
	case XRefEntryUncompressed:
		return "uncompressed"
	case XRefEntryCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// XRefEntry represents a single cross-reference entry. For compressed
// entries Offset holds the object stream number and Generation the index of
// the object within that stream.
type XRefEntry struct {
	Type       XRefEntryType
	Offset     int64 // Byte offset, next free object, or object stream number
	Generation int   // Generation number, or index in object stream
	InUse      bool  // true unless the entry is free
}

// XRefTable represents one cross-reference section or the merged view of a
// whole chain.
type XRefTable struct {
	Entries  map[int]*XRefEntry // Map from object number to XRef entry
	Trailer  Dict               // Trailer dictionary
	IsStream bool               // Section was an xref stream
	Offset   int64              // Byte offset of the section
}

// NewXRefTable creates a new empty XRef table
func NewXRefTable() *XRefTable {
	return &XRefTable{
		Entries: make(map[int]*XRefEntry),
		Trailer: make(Dict),
	}
}

// Get retrieves an XRef entry by object number
func (x *XRefTable) Get(objNum int) (*XRefEntry, bool) {
	entry, ok := x.Entries[objNum]
	return entry, ok
}

// Set adds or updates an XRef entry
func (x *XRefTable) Set(objNum int, entry *XRefEntry) {
	x.Entries[objNum] = entry
}

// Size returns the number of entries in the table
func (x *XRefTable) Size() int {
	return len(x.Entries)
}

// ErrXRefCycle is returned when /Prev or /XRefStm offsets loop.
var ErrXRefCycle = errors.New("xref chain contains a cycle")

// DefaultMaxXRefChain bounds the number of sections followed through /Prev.
const DefaultMaxXRefChain = 512

// XRefParser parses PDF cross-reference tables and streams
type XRefParser struct {
	data     []byte
	pos      int64 // current parse position
	MaxChain int   // maximum number of chained sections; 0 means DefaultMaxXRefChain
}

// NewXRefParser creates a new XRef parser over the whole file.
func NewXRefParser(data []byte) *XRefParser {
	return &XRefParser{data: data}
}

// FindXRef finds the byte offset of the last XRef section by scanning from
// EOF. PDFs end with "startxref\n<offset>\n%%EOF".
func (x *XRefParser) FindXRef() (int64, error) {
	tail := x.data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx == -1 {
		return 0, fmt.Errorf("startxref not found in PDF")
	}

	fields := bytes.Fields(tail[idx+len("startxref"):])
	if len(fields) == 0 {
		return 0, fmt.Errorf("invalid startxref format")
	}
	offset, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid xref offset: %w", err)
	}
	if offset < 0 || offset >= int64(len(x.data)) {
		return 0, fmt.Errorf("xref offset %d outside file", offset)
	}
	return offset, nil
}

// ParseXRef parses the section at the given byte offset, dispatching on
// whether it is a classic table or an xref stream.
func (x *XRefParser) ParseXRef(offset int64) (*XRefTable, error) {
	if offset < 0 || offset >= int64(len(x.data)) {
		return nil, fmt.Errorf("xref offset %d outside file", offset)
	}
	x.pos = offset

	isStream, err := x.isXRefStream()
	if err != nil {
		return nil, err
	}

	var table *XRefTable
	if isStream {
		table, err = x.parseXRefStream()
	} else {
		table, err = x.parseXRefTable()
	}
	if err != nil {
		return nil, err
	}
	table.Offset = offset
	return table, nil
}

// isXRefStream reports whether the data at the current position is an
// indirect object (an xref stream) rather than the "xref" keyword.
func (x *XRefParser) isXRefStream() (bool, error) {
	lex := NewLexerAt(x.data, x.pos)
	tok, err := lex.NextToken()
	if err != nil {
		return false, err
	}
	switch {
	case tok.Type == TokenKeyword && string(tok.Value) == "xref":
		return false, nil
	case tok.Type == TokenInteger:
		return true, nil
	}
	return false, fmt.Errorf("expected 'xref' or xref stream at offset %d", x.pos)
}

// parseXRefTable parses a classic table starting at the "xref" keyword.
func (x *XRefParser) parseXRefTable() (*XRefTable, error) {
	lex := NewLexerAt(x.data, x.pos)
	if tok, err := lex.NextToken(); err != nil || string(tok.Value) != "xref" {
		return nil, fmt.Errorf("expected 'xref' keyword at offset %d", x.pos)
	}

	table := NewXRefTable()
	for {
		tok, err := lex.NextToken()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenKeyword && string(tok.Value) == "trailer" {
			break
		}
		if tok.Type != TokenInteger {
			return nil, fmt.Errorf("invalid subsection header at offset %d", tok.Pos)
		}
		first, _ := strconv.Atoi(string(tok.Value))

		tok, err = lex.NextToken()
		if err != nil || tok.Type != TokenInteger {
			return nil, fmt.Errorf("invalid subsection count at offset %d", lex.Pos())
		}
		count, _ := strconv.Atoi(string(tok.Value))
		if count < 0 || count > len(x.data)/18+1 {
			return nil, fmt.Errorf("implausible subsection count %d", count)
		}

		for i := 0; i < count; i++ {
			entry, err := x.readTableEntry(lex)
			if err != nil {
				return nil, fmt.Errorf("failed to parse xref entry %d: %w", first+i, err)
			}
			// The first section entry of a table starting at 1 is a
			// common producer bug; keep whatever was declared.
			table.Set(first+i, entry)
		}
	}

	p := NewParserAt(x.data, lex.Pos())
	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trailer: %w", err)
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return nil, fmt.Errorf("trailer is not a dictionary, got %T", obj)
	}
	table.Trailer = trailer
	return table, nil
}

// readTableEntry reads "nnnnnnnnnn ggggg n" using the lexer so that
// entries with irregular spacing or line endings are accepted.
func (x *XRefParser) readTableEntry(lex *Lexer) (*XRefEntry, error) {
	offTok, err := lex.NextToken()
	if err != nil || offTok.Type != TokenInteger {
		return nil, fmt.Errorf("expected offset")
	}
	genTok, err := lex.NextToken()
	if err != nil || genTok.Type != TokenInteger {
		return nil, fmt.Errorf("expected generation")
	}
	flagTok, err := lex.NextToken()
	if err != nil || flagTok.Type != TokenKeyword {
		return nil, fmt.Errorf("expected in-use flag")
	}

	offset, err := strconv.ParseInt(string(offTok.Value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid offset %q: %w", offTok.Value, err)
	}
	generation, err := strconv.Atoi(string(genTok.Value))
	if err != nil {
		return nil, fmt.Errorf("invalid generation %q: %w", genTok.Value, err)
	}

	switch string(flagTok.Value) {
	case "n":
		return &XRefEntry{Type: XRefEntryUncompressed, Offset: offset, Generation: generation, InUse: true}, nil
	case "f":
		return &XRefEntry{Type: XRefEntryFree, Offset: offset, Generation: generation}, nil
	}
	return nil, fmt.Errorf("invalid in-use flag: %q", flagTok.Value)
}

// parseXRefStream parses an xref stream object at the current position.
func (x *XRefParser) parseXRefStream() (*XRefTable, error) {
	obj, err := ParseIndirectObjectAt(x.data, x.pos, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse xref stream object: %w", err)
	}
	stream, ok := obj.Object.(*Stream)
	if !ok {
		return nil, fmt.Errorf("xref stream object is %T, not a stream", obj.Object)
	}

	if typ, _ := stream.Dict.GetName("Type"); typ != "XRef" {
		return nil, fmt.Errorf("xref stream has /Type %q", typ)
	}
	size, ok := stream.Dict.GetInt("Size")
	if !ok || size < 0 {
		return nil, fmt.Errorf("xref stream missing /Size")
	}
	wArr, ok := stream.Dict.GetArray("W")
	if !ok || len(wArr) != 3 {
		return nil, fmt.Errorf("xref stream /W must have 3 elements")
	}
	w := make([]int, 3)
	for i := range w {
		n, ok := wArr.GetInt(i)
		if !ok || n < 0 || n > 8 {
			return nil, fmt.Errorf("invalid /W entry %d", i)
		}
		w[i] = int(n)
	}

	// /Index defaults to [0 Size]
	index := []int{0, int(size)}
	if idxArr, ok := stream.Dict.GetArray("Index"); ok {
		if len(idxArr)%2 != 0 {
			return nil, fmt.Errorf("xref stream /Index has odd length")
		}
		index = index[:0]
		for i := range idxArr {
			n, ok := idxArr.GetInt(i)
			if !ok || n < 0 {
				return nil, fmt.Errorf("invalid /Index entry %d", i)
			}
			index = append(index, int(n))
		}
	}

	data, err := stream.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode xref stream: %w", err)
	}

	table := NewXRefTable()
	table.IsStream = true
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			entry, n, err := x.parseXRefStreamEntry(data[pos:], w)
			if err != nil {
				return nil, fmt.Errorf("xref stream entry %d: %w", first+j, err)
			}
			pos += n
			table.Set(first+j, entry)
		}
	}

	trailer := stream.Dict.Clone()
	for _, k := range []string{"Length", "Filter", "DecodeParms", "W", "Index", "Type"} {
		trailer.Delete(k)
	}
	table.Trailer = trailer
	return table, nil
}

// parseXRefStreamEntry decodes one entry of widths w from data and reports
// how many bytes it used. A zero-width type field defaults to type 1.
func (x *XRefParser) parseXRefStreamEntry(data []byte, w []int) (*XRefEntry, int, error) {
	total := w[0] + w[1] + w[2]
	if len(data) < total {
		return nil, 0, fmt.Errorf("need %d bytes, have %d", total, len(data))
	}

	typ := int64(1)
	if w[0] > 0 {
		typ = readBigEndianInt(data, w[0])
	}
	field1 := readBigEndianInt(data[w[0]:], w[1])
	field2 := readBigEndianInt(data[w[0]+w[1]:], w[2])

	entry := &XRefEntry{Offset: field1, Generation: int(field2)}
	switch typ {
	case 0:
		entry.Type = XRefEntryFree
	case 1:
		entry.Type = XRefEntryUncompressed
		entry.InUse = true
	case 2:
		entry.Type = XRefEntryCompressed
		entry.InUse = true
	default:
		// Unknown types are treated as references to the null object.
		entry.Type = XRefEntryFree
	}
	return entry, total, nil
}

// readBigEndianInt reads a big-endian unsigned integer of width bytes.
func readBigEndianInt(data []byte, width int) int64 {
	var v int64
	for i := 0; i < width && i < len(data); i++ {
		v = v<<8 | int64(data[i])
	}
	return v
}

// ParseAllXRefs parses the section named by startxref and every section it
// chains to through /Prev and /XRefStm. Sections are returned oldest first,
// so that merging them in order lets later sections override earlier ones.
func (x *XRefParser) ParseAllXRefs() ([]*XRefTable, error) {
	offset, err := x.FindXRef()
	if err != nil {
		return nil, fmt.Errorf("failed to find xref: %w", err)
	}

	maxChain := x.MaxChain
	if maxChain <= 0 {
		maxChain = DefaultMaxXRefChain
	}

	seen := make(map[int64]bool)
	var newestFirst []*XRefTable
	for {
		if seen[offset] {
			return nil, ErrXRefCycle
		}
		if len(seen) >= maxChain {
			return nil, fmt.Errorf("xref chain longer than %d sections", maxChain)
		}
		seen[offset] = true

		table, err := x.ParseXRef(offset)
		if err != nil {
			return nil, fmt.Errorf("failed to parse xref at %d: %w", offset, err)
		}

		// Hybrid files: entries of the /XRefStm stream take precedence over
		// the classic table they accompany, but not over newer sections.
		if stmOff, ok := table.Trailer.GetInt("XRefStm"); ok && !seen[int64(stmOff)] {
			seen[int64(stmOff)] = true
			if stm, err := x.ParseXRef(int64(stmOff)); err == nil {
				for num, e := range stm.Entries {
					table.Set(num, e)
				}
			}
		}
		newestFirst = append(newestFirst, table)

		prev, ok := table.Trailer.GetInt("Prev")
		if !ok {
			break
		}
		offset = int64(prev)
	}

	tables := make([]*XRefTable, len(newestFirst))
	for i, t := range newestFirst {
		tables[len(tables)-1-i] = t
	}
	return tables, nil
}

// MergeXRefTables merges multiple XRef tables (from incremental updates)
// Later entries override earlier ones. The merged trailer is the newest
// trailer; IsStream and Offset describe the newest section.
func MergeXRefTables(tables ...*XRefTable) *XRefTable {
	merged := NewXRefTable()
	for _, table := range tables {
		for objNum, entry := range table.Entries {
			merged.Set(objNum, entry)
		}
		merged.Trailer = table.Trailer
		merged.IsStream = table.IsStream
		merged.Offset = table.Offset
	}
	return merged
}
