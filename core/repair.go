package core

import (
	"bytes"
	"regexp"
	"strconv"
)

// objHeaderPattern matches "N G obj" at the start of a line or after
// whitespace.
var objHeaderPattern = regexp.MustCompile(`(?:^|[\r\n\s])(\d{1,10})[ \t\r\n\f\x00]+(\d{1,5})[ \t\r\n\f\x00]+obj\b`)

var (
	catalogTypePattern = regexp.MustCompile(`/Type\s*/Catalog\b`)
	xrefTypePattern    = regexp.MustCompile(`/Type\s*/XRef\b`)
)

// trailerKeys are copied from an xref stream dictionary into a rebuilt
// trailer.
var trailerKeys = []string{"Root", "Info", "ID", "Encrypt"}

// ScanObjects rebuilds a cross-reference table by scanning data for object
// headers. When an object number occurs more than once the last occurrence
// wins, matching incremental update semantics. The trailer is the last
// "trailer" dictionary that names a /Root, else the dictionary of the last
// xref stream that names one, else it is synthesized from the last catalog
// object found directly in the file.
func ScanObjects(data []byte) *XRefTable {
	table := NewXRefTable()

	var catalog *IndirectRef
	var streamTrailer Dict
	for _, m := range objHeaderPattern.FindAllSubmatchIndex(data, -1) {
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		offset := int64(m[2])
		table.Set(num, &XRefEntry{
			Type:       XRefEntryUncompressed,
			Offset:     offset,
			Generation: gen,
			InUse:      true,
		})

		// Peek at the object's dictionary; bounded so that a broken object
		// cannot stall the scan. Stream data is not part of the peek.
		head := data[m[1]:min(len(data), m[1]+512)]
		if i := bytes.Index(head, []byte("endobj")); i >= 0 {
			head = head[:i]
		}
		isStream := false
		if i := bytes.Index(head, []byte("stream")); i >= 0 {
			head = head[:i]
			isStream = true
		}

		switch {
		case !isStream && catalogTypePattern.Match(head):
			ref := IndirectRef{Number: num, Generation: gen}
			catalog = &ref
		case isStream && xrefTypePattern.Match(head):
			obj, err := ParseIndirectObjectAt(data, offset, nil)
			if err != nil {
				continue
			}
			if s, ok := obj.Object.(*Stream); ok && s.Dict.Has("Root") {
				streamTrailer = make(Dict)
				for _, key := range trailerKeys {
					if v := s.Dict.Get(key); v != nil {
						streamTrailer[key] = v
					}
				}
			}
		}
	}

	table.Trailer = scanTrailer(data)
	if !table.Trailer.Has("Root") && streamTrailer != nil {
		table.Trailer = streamTrailer
	}
	if !table.Trailer.Has("Root") && catalog != nil {
		table.Trailer["Root"] = *catalog
	}
	maxNum := 0
	for n := range table.Entries {
		maxNum = max(maxNum, n)
	}
	if size, ok := table.Trailer.GetInt("Size"); !ok || int(size) <= maxNum {
		table.Trailer["Size"] = Int(maxNum + 1)
	}
	return table
}

// scanTrailer returns the last parseable trailer dictionary containing
// /Root, or an empty dictionary.
func scanTrailer(data []byte) Dict {
	keyword := []byte("trailer")
	end := len(data)
	for end > 0 {
		idx := bytes.LastIndex(data[:end], keyword)
		if idx < 0 {
			break
		}
		p := NewParserAt(data, int64(idx+len(keyword)))
		if obj, err := p.ParseObject(); err == nil {
			if d, ok := obj.(Dict); ok && d.Has("Root") {
				return d.Clone()
			}
		}
		end = idx
	}
	return make(Dict)
}
