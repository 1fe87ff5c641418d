// Package pdftest builds small PDF files with correct cross-reference
// offsets for tests.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"
	"strings"
)

// Builder assembles a PDF from numbered objects.
type Builder struct {
	// XRefStream writes a cross-reference stream instead of a classic
	// table.
	XRefStream bool

	// ObjectStream packs every non-stream object into one object stream.
	// It requires XRefStream.
	ObjectStream bool

	// Compress applies FlateDecode to streams added with AddStream.
	Compress bool

	// ID is written as both elements of the trailer /ID when set.
	ID string

	objects map[int]object
	next    int
	root    int
	info    int
}

type object struct {
	body   string
	stream []byte
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{objects: make(map[int]object), next: 1}
}

// Reserve returns a fresh object number to be filled with Set.
func (b *Builder) Reserve() int {
	n := b.next
	b.next++
	return n
}

// Add stores an object and returns its number. body is the text between
// "obj" and "endobj".
func (b *Builder) Add(body string) int {
	n := b.Reserve()
	b.Set(n, body)
	return n
}

// Set stores body under a reserved number.
func (b *Builder) Set(num int, body string) {
	b.objects[num] = object{body: body}
	if num >= b.next {
		b.next = num + 1
	}
}

// AddStream stores a stream object. dict holds extra entries without the
// surrounding << >>; /Length and, when compressing, /Filter are added.
func (b *Builder) AddStream(dict string, data []byte) int {
	if b.Compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		zw.Write(data)
		zw.Close()
		data = buf.Bytes()
		dict += " /Filter /FlateDecode"
	}
	n := b.Reserve()
	b.objects[n] = object{body: fmt.Sprintf("<< %s /Length %d >>", strings.TrimSpace(dict), len(data)), stream: data}
	return n
}

// SetRoot names the catalog object.
func (b *Builder) SetRoot(num int) { b.root = num }

// SetInfo names the document information dictionary.
func (b *Builder) SetInfo(num int) { b.info = num }

// Bytes serializes the document.
func (b *Builder) Bytes() []byte {
	var out bytes.Buffer
	out.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	nums := make([]int, 0, len(b.objects))
	for n := range b.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	type entry struct {
		typ    int
		field2 int
		field3 int
	}
	entries := make(map[int]entry)

	var packed []int
	if b.XRefStream && b.ObjectStream {
		for _, n := range nums {
			if b.objects[n].stream == nil {
				packed = append(packed, n)
			}
		}
	}
	isPacked := make(map[int]bool)
	for _, n := range packed {
		isPacked[n] = true
	}

	for _, n := range nums {
		if isPacked[n] {
			continue
		}
		obj := b.objects[n]
		entries[n] = entry{1, out.Len(), 0}
		fmt.Fprintf(&out, "%d 0 obj\n%s\n", n, obj.body)
		if obj.stream != nil {
			out.WriteString("stream\n")
			out.Write(obj.stream)
			out.WriteString("\nendstream\n")
		}
		out.WriteString("endobj\n")
	}

	size := b.next
	if len(packed) > 0 {
		stmNum := size
		size++
		var header, body bytes.Buffer
		for i, n := range packed {
			fmt.Fprintf(&header, "%d %d ", n, body.Len())
			body.WriteString(b.objects[n].body)
			body.WriteString("\n")
			entries[n] = entry{2, stmNum, i}
		}
		first := header.Len()
		data := append(header.Bytes(), body.Bytes()...)
		entries[stmNum] = entry{1, out.Len(), 0}
		fmt.Fprintf(&out, "%d 0 obj\n<< /Type /ObjStm /N %d /First %d /Length %d >>\nstream\n", stmNum, len(packed), first, len(data))
		out.Write(data)
		out.WriteString("\nendstream\nendobj\n")
	}

	trailer := fmt.Sprintf("/Size %d /Root %d 0 R", size, b.root)
	if b.info > 0 {
		trailer += fmt.Sprintf(" /Info %d 0 R", b.info)
	}
	if b.ID != "" {
		trailer += fmt.Sprintf(" /ID [<%x> <%x>]", b.ID, b.ID)
	}

	if !b.XRefStream {
		xrefAt := out.Len()
		fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f\r\n", size)
		for n := 1; n < size; n++ {
			if e, ok := entries[n]; ok {
				fmt.Fprintf(&out, "%010d 00000 n\r\n", e.field2)
			} else {
				out.WriteString("0000000000 65535 f\r\n")
			}
		}
		fmt.Fprintf(&out, "trailer\n<< %s >>\nstartxref\n%d\n%%%%EOF\n", trailer, xrefAt)
		return out.Bytes()
	}

	xrefNum := size
	size++
	entries[xrefNum] = entry{1, out.Len(), 0}
	var rows []byte
	for n := 0; n < size; n++ {
		e, ok := entries[n]
		if !ok {
			e = entry{0, 0, 0}
			if n == 0 {
				e.field3 = 65535
			}
		}
		rows = append(rows, byte(e.typ),
			byte(e.field2>>24), byte(e.field2>>16), byte(e.field2>>8), byte(e.field2),
			byte(e.field3>>8), byte(e.field3))
	}
	trailer = strings.Replace(trailer, fmt.Sprintf("/Size %d", size-1), fmt.Sprintf("/Size %d", size), 1)
	xrefAt := entries[xrefNum].field2
	fmt.Fprintf(&out, "%d 0 obj\n<< /Type /XRef %s /W [1 4 2] /Length %d >>\nstream\n", xrefNum, trailer, len(rows))
	out.Write(rows)
	fmt.Fprintf(&out, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefAt)
	return out.Bytes()
}

// Helvetica is a WinAnsi-encoded standard font dictionary.
const Helvetica = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"

// Courier is a second WinAnsi font, used to build mixed-font text.
const Courier = "<< /Type /Font /Subtype /Type1 /BaseFont /Courier /Encoding /WinAnsiEncoding >>"

// Options configures Document.
type Options struct {
	XRefStream   bool
	ObjectStream bool
	Compress     bool
	ID           string

	// Fonts maps resource names to font dictionaries. The default is F1
	// Helvetica and F2 Courier.
	Fonts map[string]string
}

// Document builds a document with one page per content string. All pages
// share a resource dictionary inherited from the page tree root.
func Document(opts Options, contents ...string) []byte {
	b := New()
	b.XRefStream = opts.XRefStream
	b.ObjectStream = opts.ObjectStream
	b.Compress = opts.Compress
	b.ID = opts.ID

	fonts := opts.Fonts
	if fonts == nil {
		fonts = map[string]string{"F1": Helvetica, "F2": Courier}
	}
	names := make([]string, 0, len(fonts))
	for name := range fonts {
		names = append(names, name)
	}
	sort.Strings(names)

	catalog := b.Reserve()
	pagesNum := b.Reserve()

	var fontEntries []string
	for _, name := range names {
		fontEntries = append(fontEntries, fmt.Sprintf("/%s %d 0 R", name, b.Add(fonts[name])))
	}

	var kids []string
	for _, content := range contents {
		stream := b.AddStream("", []byte(content))
		page := b.Add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /Contents %d 0 R >>", pagesNum, stream))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}

	b.Set(pagesNum, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] /Resources << /Font << %s >> >> >>",
		strings.Join(kids, " "), len(kids), strings.Join(fontEntries, " ")))
	b.Set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesNum))
	b.SetRoot(catalog)
	return b.Bytes()
}

// Page returns a content stream showing each line with font F1 at 12 points,
// one line below the other.
func Page(lines ...string) string {
	var sb strings.Builder
	sb.WriteString("BT\n/F1 12 Tf\n72 720 Td\n14 TL\n")
	for i, line := range lines {
		if i > 0 {
			sb.WriteString("T*\n")
		}
		sb.WriteString("(")
		sb.WriteString(escape(line))
		sb.WriteString(") Tj\n")
	}
	sb.WriteString("ET\n")
	return sb.String()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
