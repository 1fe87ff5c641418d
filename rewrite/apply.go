package rewrite

import (
	"sort"

	"github.com/tsawler/pdfreplace/contentstream"
	"github.com/tsawler/pdfreplace/core"
	"github.com/tsawler/pdfreplace/text"
)

// edit replaces characters [from, to) of one operation's run with repl.
type edit struct {
	from, to int
	repl     []byte
}

// opRange locates the characters of one operation within a run.
type opRange struct {
	run         int
	first, last int
}

// Apply returns a copy of ops with matches rewritten. Matches must not
// share characters.
func Apply(ops []contentstream.Operation, runs []text.Run, matches []Match) []contentstream.Operation {
	ranges := opRanges(runs)
	edits := make(map[int][]edit)
	removed := make(map[int]bool)
	zeroMove := make(map[int]bool)

	for _, m := range matches {
		chars := runs[m.Run].Chars
		var covered []int
		for i := m.First; i < m.Last; i++ {
			if n := len(covered); n == 0 || covered[n-1] != chars[i].Op {
				covered = append(covered, chars[i].Op)
			}
		}

		if len(covered) == 1 {
			op := covered[0]
			edits[op] = append(edits[op], edit{m.First, m.Last, m.Replacement})
			continue
		}

		firstOp := covered[0]
		edits[firstOp] = append(edits[firstOp], edit{m.First, ranges[firstOp].last, m.Replacement})

		lastRemoved := -1
		for _, op := range covered[1 : len(covered)-1] {
			removed[op] = true
			lastRemoved = op
		}
		tail := covered[len(covered)-1]
		if r := ranges[tail]; m.Last == r.last {
			removed[tail] = true
			lastRemoved = tail
		} else {
			edits[tail] = append(edits[tail], edit{r.first, m.Last, nil})
		}
		if lastRemoved >= 0 {
			zeroMove[lastRemoved] = true
		}
	}

	out := make([]contentstream.Operation, 0, len(ops)+len(zeroMove))
	for i := range ops {
		op := ops[i]
		switch {
		case removed[i]:
			out = append(out, lineMoves(&op)...)
			if zeroMove[i] {
				out = append(out, contentstream.NewOperation("Td", core.Int(0), core.Int(0)))
			}
		case len(edits[i]) > 0:
			out = append(out, applyEdits(op, runs[ranges[i].run].Chars, edits[i]))
		default:
			out = append(out, op)
		}
	}
	return out
}

// opRanges maps each showing operation to its characters. An operation's
// characters are contiguous and belong to a single run.
func opRanges(runs []text.Run) map[int]opRange {
	ranges := make(map[int]opRange)
	for ri, run := range runs {
		for i, c := range run.Chars {
			r, ok := ranges[c.Op]
			if !ok {
				r = opRange{run: ri, first: i}
			}
			r.last = i + 1
			ranges[c.Op] = r
		}
	}
	return ranges
}

// lineMoves returns the operations that keep the text line movement of a
// removed ' or " operation.
func lineMoves(op *contentstream.Operation) []contentstream.Operation {
	switch op.Operator {
	case "'":
		return []contentstream.Operation{contentstream.NewOperation("T*")}
	case "\"":
		if len(op.Operands) == 3 {
			return []contentstream.Operation{
				contentstream.NewOperation("Tw", op.Operands[0]),
				contentstream.NewOperation("Tc", op.Operands[1]),
				contentstream.NewOperation("T*"),
			}
		}
		return []contentstream.Operation{contentstream.NewOperation("T*")}
	}
	return nil
}

// applyEdits rewrites the string operand of a ShowText operation. Edits
// are applied back to front so that earlier segment indices stay valid.
func applyEdits(op contentstream.Operation, chars []text.Char, edits []edit) contentstream.Operation {
	op = op.Clone()
	op.Modified = true
	last := len(op.Operands) - 1

	var elems core.Array
	arr, isArray := op.Operands[last].(core.Array)
	if isArray {
		elems = arr
	} else {
		elems = core.Array{op.Operands[last]}
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].from > edits[j].from })
	for _, e := range edits {
		start, end := chars[e.from], chars[e.to-1]
		elems = splice(elems, start.Segment, start.Offset, end.Segment, end.Offset+end.Len, e.repl)
	}

	if isArray {
		op.Operands[last] = elems
	} else {
		op.Operands[last] = elems[0]
	}
	return op
}

// splice replaces the bytes from segment sa offset oa to segment sb offset
// ob with repl. The segments in between and the kerning numbers separating
// them are dropped.
func splice(elems core.Array, sa, oa, sb, ob int, repl []byte) core.Array {
	ia, ib := segmentIndex(elems, sa), segmentIndex(elems, sb)
	if ia < 0 || ib < 0 {
		return elems
	}
	a := elems[ia].(core.String)
	b := elems[ib].(core.String)

	merged := make([]byte, 0, oa+len(repl)+len(b)-ob)
	merged = append(merged, a[:oa]...)
	merged = append(merged, repl...)
	merged = append(merged, b[ob:]...)

	out := make(core.Array, 0, len(elems)-(ib-ia))
	out = append(out, elems[:ia]...)
	out = append(out, core.String(merged))
	return append(out, elems[ib+1:]...)
}

// segmentIndex returns the array index of the n-th string element.
func segmentIndex(elems core.Array, n int) int {
	for i, e := range elems {
		if _, ok := e.(core.String); ok {
			if n == 0 {
				return i
			}
			n--
		}
	}
	return -1
}
