package writer

import (
	"crypto/md5"
	"errors"
	"fmt"
	"sort"

	"github.com/tsawler/pdfreplace/core"
	"github.com/tsawler/pdfreplace/internal/filters"
	"github.com/tsawler/pdfreplace/pages"
)

// Source is the document an update is appended to.
type Source interface {
	Data() []byte
	Trailer() core.Dict
	XRefTable() *core.XRefTable
	Repaired() bool
}

// ErrDirectPage is returned when a page to be modified has no object
// number of its own.
var ErrDirectPage = errors.New("page is not an indirect object")

// Incremental collects redefined and new objects and appends them to the
// source document as an incremental update.
type Incremental struct {
	src     Source
	objects map[int]core.Object
	gens    map[int]int
	next    int
}

// NewIncremental starts an empty update of src.
func NewIncremental(src Source) *Incremental {
	next := 1
	if size, ok := src.Trailer().GetInt("Size"); ok {
		next = int(size)
	}
	for num := range src.XRefTable().Entries {
		next = max(next, num+1)
	}
	return &Incremental{
		src:     src,
		objects: make(map[int]core.Object),
		gens:    make(map[int]int),
		next:    next,
	}
}

// Len returns the number of objects in the update.
func (w *Incremental) Len() int {
	return len(w.objects)
}

// Add stores a new object and returns its reference.
func (w *Incremental) Add(obj core.Object) core.IndirectRef {
	ref := core.IndirectRef{Number: w.next}
	w.next++
	w.objects[ref.Number] = obj
	return ref
}

// Set redefines an existing object.
func (w *Incremental) Set(ref core.IndirectRef, obj core.Object) {
	w.objects[ref.Number] = obj
	w.gens[ref.Number] = ref.Generation
	if ref.Number >= w.next {
		w.next = ref.Number + 1
	}
}

// SetPageContent replaces the content of page with a single
// Flate-compressed stream. The page dictionary is copied; inherited
// attributes keep coming from the unchanged parent nodes.
func (w *Incremental) SetPageContent(page *pages.Page, content []byte) error {
	if page.Ref.Number <= 0 {
		return fmt.Errorf("page %d: %w", page.Index+1, ErrDirectPage)
	}
	compressed, err := filters.FlateEncode(content)
	if err != nil {
		return fmt.Errorf("page %d: compress content: %w", page.Index+1, err)
	}
	stream := &core.Stream{
		Dict: core.Dict{"Filter": core.Name("FlateDecode")},
		Data: compressed,
	}
	dict := page.Dict().Clone()
	dict["Contents"] = w.Add(stream)
	w.Set(page.Ref, dict)
	return nil
}

// Bytes returns the source document followed by the update. Without
// objects the source bytes are returned unchanged.
//
// The new cross-reference section uses the style of the newest section of
// the source and links to it with /Prev. A repaired source gets a complete
// section instead, since its own sections cannot be trusted.
func (w *Incremental) Bytes() ([]byte, error) {
	data := w.src.Data()
	if len(w.objects) == 0 {
		return data, nil
	}
	xref := w.src.XRefTable()
	full := w.src.Repaired()

	out := make([]byte, 0, len(data)+4096)
	out = append(out, data...)
	if n := len(out); n > 0 && out[n-1] != '\n' && out[n-1] != '\r' {
		out = append(out, '\n')
	}

	nums := make([]int, 0, len(w.objects))
	for num := range w.objects {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	entries := make(map[int]*core.XRefEntry)
	if full {
		for num, e := range xref.Entries {
			if e.InUse {
				entries[num] = e
			}
		}
	}
	for _, num := range nums {
		ref := core.IndirectRef{Number: num, Generation: w.gens[num]}
		entries[num] = &core.XRefEntry{
			Type:       core.XRefEntryUncompressed,
			Offset:     int64(len(out)),
			Generation: ref.Generation,
			InUse:      true,
		}
		out = core.AppendIndirectObject(out, ref, w.objects[num])
	}

	trailer := w.trailer(data, out[len(data):], xref, full)
	useStream := xref.IsStream && !full
	if full {
		for _, e := range entries {
			if e.Type == core.XRefEntryCompressed {
				useStream = true
				break
			}
		}
	}

	if useStream {
		return appendXRefStream(out, entries, trailer, w.next, full), nil
	}
	return appendXRefTable(out, entries, trailer, w.next, full), nil
}

// trailer builds the trailer entries shared by both section styles.
func (w *Incremental) trailer(data, update []byte, xref *core.XRefTable, full bool) core.Dict {
	old := w.src.Trailer()
	trailer := core.Dict{}
	for _, key := range []string{"Root", "Info"} {
		if v := old.Get(key); v != nil {
			trailer[key] = v
		}
	}
	if !full {
		trailer["Prev"] = core.Int(xref.Offset)
	}

	h := md5.New()
	h.Write(update)
	fmt.Fprintf(h, "%d", len(data))
	second := core.String(h.Sum(nil))
	first := second
	if ids, ok := old.GetArray("ID"); ok && len(ids) == 2 {
		if s, ok := ids[0].(core.String); ok {
			first = s
		}
	} else {
		sum := md5.Sum(data)
		first = core.String(sum[:])
	}
	trailer["ID"] = core.Array{first, second}
	return trailer
}
