package writer

import (
	"fmt"
	"sort"

	"github.com/tsawler/pdfreplace/core"
	"github.com/tsawler/pdfreplace/internal/filters"
)

// subsection is a run of consecutive object numbers.
type subsection struct {
	first, count int
}

// subsections groups the object numbers of a section. A complete section
// covers every number below size.
func subsections(entries map[int]*core.XRefEntry, size int, full bool) ([]int, []subsection) {
	if full {
		nums := make([]int, size)
		for i := range nums {
			nums[i] = i
		}
		return nums, []subsection{{0, size}}
	}

	nums := make([]int, 0, len(entries))
	for num := range entries {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	var subs []subsection
	for _, num := range nums {
		if n := len(subs); n > 0 && subs[n-1].first+subs[n-1].count == num {
			subs[n-1].count++
			continue
		}
		subs = append(subs, subsection{num, 1})
	}
	return nums, subs
}

// appendXRefTable appends a classic cross-reference table, the trailer and
// the startxref footer.
func appendXRefTable(out []byte, entries map[int]*core.XRefEntry, trailer core.Dict, size int, full bool) []byte {
	xrefAt := len(out)
	nums, subs := subsections(entries, size, full)

	out = append(out, "xref\n"...)
	i := 0
	for _, s := range subs {
		out = fmt.Appendf(out, "%d %d\n", s.first, s.count)
		for range s.count {
			num := nums[i]
			i++
			e, ok := entries[num]
			switch {
			case ok && e.InUse:
				out = fmt.Appendf(out, "%010d %05d n\r\n", e.Offset, e.Generation)
			default:
				out = append(out, "0000000000 65535 f\r\n"...)
			}
		}
	}

	trailer["Size"] = core.Int(size)
	out = append(out, "trailer\n"...)
	out = core.AppendObject(out, trailer)
	return fmt.Appendf(out, "\nstartxref\n%d\n%%%%EOF\n", xrefAt)
}

// appendXRefStream appends a cross-reference stream object and the
// startxref footer. The stream takes the next free object number.
func appendXRefStream(out []byte, entries map[int]*core.XRefEntry, trailer core.Dict, size int, full bool) []byte {
	xrefAt := len(out)
	self := size
	size++
	entries[self] = &core.XRefEntry{Type: core.XRefEntryUncompressed, Offset: int64(xrefAt), InUse: true}

	maxField := int64(0)
	for _, e := range entries {
		maxField = max(maxField, e.Offset, int64(e.Generation))
	}
	w1 := byteWidth(maxField)
	w := [3]int{1, w1, 2}
	for _, e := range entries {
		if e.Generation > 0xFFFF {
			w[2] = byteWidth(int64(e.Generation))
		}
	}

	nums, subs := subsections(entries, size, full)
	rows := make([]byte, 0, len(nums)*(w[0]+w[1]+w[2]))
	for _, num := range nums {
		e, ok := entries[num]
		switch {
		case ok && e.Type == core.XRefEntryCompressed:
			rows = append(rows, 2)
			rows = appendBigEndian(rows, e.Offset, w[1])
			rows = appendBigEndian(rows, int64(e.Generation), w[2])
		case ok && e.InUse:
			rows = append(rows, 1)
			rows = appendBigEndian(rows, e.Offset, w[1])
			rows = appendBigEndian(rows, int64(e.Generation), w[2])
		default:
			rows = append(rows, 0)
			rows = appendBigEndian(rows, 0, w[1])
			rows = appendBigEndian(rows, 0xFFFF, w[2])
		}
	}

	dict := trailer
	dict["Type"] = core.Name("XRef")
	dict["Size"] = core.Int(size)
	dict["W"] = core.Array{core.Int(w[0]), core.Int(w[1]), core.Int(w[2])}
	if !full {
		index := make(core.Array, 0, 2*len(subs))
		for _, s := range subs {
			index = append(index, core.Int(s.first), core.Int(s.count))
		}
		dict["Index"] = index
	}
	if compressed, err := filters.FlateEncode(rows); err == nil {
		rows = compressed
		dict["Filter"] = core.Name("FlateDecode")
	}

	out = core.AppendIndirectObject(out, core.IndirectRef{Number: self}, &core.Stream{Dict: dict, Data: rows})
	return fmt.Appendf(out, "startxref\n%d\n%%%%EOF\n", xrefAt)
}

// byteWidth returns the number of bytes needed to store v, at least one.
func byteWidth(v int64) int {
	n := 1
	for v > 0xFF {
		v >>= 8
		n++
	}
	return n
}

func appendBigEndian(buf []byte, v int64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}
