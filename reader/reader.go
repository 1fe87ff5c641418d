package reader

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"

	"github.com/tsawler/pdfreplace/core"
	"github.com/tsawler/pdfreplace/logging"
	"github.com/tsawler/pdfreplace/pages"
)

var (
	// ErrMalformed is wrapped by every error that makes a document
	// unusable.
	ErrMalformed = errors.New("malformed document")

	// ErrEncrypted is returned, together with ErrMalformed, for documents
	// with an /Encrypt dictionary.
	ErrEncrypted = errors.New("encrypted documents are not supported")
)

// Limits bounds the resources a single document may consume. Zero fields
// take the value from DefaultLimits.
type Limits struct {
	MaxObjects       int   // cross-reference entries
	MaxXRefChain     int   // sections followed through /Prev
	MaxStreamSize    int64 // decoded bytes of one content stream or page
	MaxOperations    int   // content stream operations per page
	MaxPages         int
	MaxFileSize      int64
	MaxObjectStreams int // object streams expanded during repair
}

// DefaultLimits returns the limits used when none are given.
func DefaultLimits() Limits {
	return Limits{
		MaxObjects:       5_000_000,
		MaxXRefChain:     core.DefaultMaxXRefChain,
		MaxStreamSize:    256 << 20,
		MaxOperations:    5_000_000,
		MaxPages:         100_000,
		MaxFileSize:      2 << 30,
		MaxObjectStreams: 100_000,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxObjects <= 0 {
		l.MaxObjects = d.MaxObjects
	}
	if l.MaxXRefChain <= 0 {
		l.MaxXRefChain = d.MaxXRefChain
	}
	if l.MaxStreamSize <= 0 {
		l.MaxStreamSize = d.MaxStreamSize
	}
	if l.MaxOperations <= 0 {
		l.MaxOperations = d.MaxOperations
	}
	if l.MaxPages <= 0 {
		l.MaxPages = d.MaxPages
	}
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = d.MaxFileSize
	}
	if l.MaxObjectStreams <= 0 {
		l.MaxObjectStreams = d.MaxObjectStreams
	}
	return l
}

// PDFVersion represents a PDF version
type PDFVersion struct {
	Major int
	Minor int
}

// String returns the version as a string (e.g., "1.7")
func (v PDFVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

var versionPattern = regexp.MustCompile(`^%PDF-(\d+)\.(\d+)`)

// headerWindow is how far into the file the %PDF- header is searched for.
const headerWindow = 1024

// Reader gives access to the objects and pages of a PDF held in memory.
// It is safe for concurrent use.
type Reader struct {
	data     []byte
	limits   Limits
	version  PDFVersion
	xref     *core.XRefTable
	trailer  core.Dict
	repaired bool

	mu         sync.Mutex
	objCache   map[int]core.Object
	objStreams map[int]*core.ObjectStream

	scanOnce sync.Once
	scanned  *core.XRefTable

	treeOnce sync.Once
	pageList []*pages.Page
	treeErr  error
}

// Ensure Reader implements pages.ObjectResolver
var _ pages.ObjectResolver = (*Reader)(nil)

// NewReader parses the header and cross-reference data of a document with
// the default limits.
func NewReader(data []byte) (*Reader, error) {
	return NewReaderWithLimits(data, Limits{})
}

// NewReaderWithLimits is NewReader with explicit limits. A document whose
// cross-reference data is damaged is repaired by scanning for objects.
// Every error wraps ErrMalformed.
func NewReaderWithLimits(data []byte, limits Limits) (*Reader, error) {
	limits = limits.withDefaults()
	if int64(len(data)) > limits.MaxFileSize {
		return nil, malformed("file of %d bytes exceeds limit of %d", len(data), limits.MaxFileSize)
	}

	r := &Reader{
		data:       data,
		limits:     limits,
		objCache:   make(map[int]core.Object),
		objStreams: make(map[int]*core.ObjectStream),
	}

	version, err := parseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse header: %w", ErrMalformed, err)
	}
	r.version = version

	if err := r.loadXRef(); err != nil {
		return nil, err
	}

	if r.trailer.Has("Encrypt") {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrEncrypted)
	}
	if r.xref.Size() > limits.MaxObjects {
		return nil, malformed("%d objects exceed limit of %d", r.xref.Size(), limits.MaxObjects)
	}
	return r, nil
}

// Open reads a PDF file into memory and returns a Reader
func Open(filename string) (*Reader, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return NewReader(data)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// parseHeader parses the PDF header (%PDF-x.y). Leading garbage before the
// header is tolerated.
func parseHeader(data []byte) (PDFVersion, error) {
	idx := bytes.Index(data[:min(len(data), headerWindow)], []byte("%PDF-"))
	if idx < 0 {
		return PDFVersion{}, fmt.Errorf("invalid PDF header")
	}

	matches := versionPattern.FindSubmatch(data[idx:min(len(data), idx+16)])
	if matches == nil {
		return PDFVersion{}, fmt.Errorf("invalid version format: %q", data[idx:min(len(data), idx+8)])
	}

	major, _ := strconv.Atoi(string(matches[1]))
	minor, _ := strconv.Atoi(string(matches[2]))
	return PDFVersion{Major: major, Minor: minor}, nil
}

// loadXRef loads the cross-reference chain, falling back to repair when the
// chain is unusable or does not lead to a catalog.
func (r *Reader) loadXRef() error {
	xrefParser := core.NewXRefParser(r.data)
	xrefParser.MaxChain = r.limits.MaxXRefChain

	tables, err := xrefParser.ParseAllXRefs()
	if err == nil {
		r.xref = core.MergeXRefTables(tables...)
		r.trailer = r.xref.Trailer
		if _, err = r.GetCatalog(); err == nil {
			return nil
		}
	}

	logging.Logger().Debug("rebuilding cross-reference table", "reason", err)
	r.resetCache()
	table := r.scan()
	if err := r.addObjectStreams(table); err != nil {
		return err
	}
	r.xref = table
	r.trailer = table.Trailer
	r.repaired = true

	if _, err := r.GetCatalog(); err != nil {
		return fmt.Errorf("%w: repair failed: %w", ErrMalformed, err)
	}
	return nil
}

// scan returns the table rebuilt from object headers. It is computed once.
func (r *Reader) scan() *core.XRefTable {
	r.scanOnce.Do(func() {
		r.scanned = core.ScanObjects(r.data)
	})
	return r.scanned
}

// addObjectStreams registers the objects stored in the object streams of a
// scanned table. Objects found directly in the file take precedence.
func (r *Reader) addObjectStreams(table *core.XRefTable) error {
	count := 0
	for num, entry := range table.Entries {
		if entry.Type != core.XRefEntryUncompressed {
			continue
		}
		ind, err := core.ParseIndirectObjectAt(r.data, entry.Offset, nil)
		if err != nil {
			continue
		}
		stream, ok := ind.Object.(*core.Stream)
		if !ok {
			continue
		}
		if name, _ := stream.Dict.GetName("Type"); name != "ObjStm" {
			continue
		}
		count++
		if count > r.limits.MaxObjectStreams {
			return malformed("more than %d object streams", r.limits.MaxObjectStreams)
		}

		objStm, err := core.OpenObjectStream(stream, r.limits.MaxStreamSize)
		if err != nil {
			continue
		}
		for i, n := range objStm.Numbers() {
			if _, exists := table.Get(n); exists {
				continue
			}
			if !table.Trailer.Has("Root") {
				if obj, _, err := objStm.At(i); err == nil {
					if d, ok := obj.(core.Dict); ok {
						if t, _ := d.GetName("Type"); t == "Catalog" {
							table.Trailer["Root"] = core.IndirectRef{Number: n}
						}
					}
				}
			}
			table.Set(n, &core.XRefEntry{
				Type:       core.XRefEntryCompressed,
				Offset:     int64(num),
				Generation: i,
				InUse:      true,
			})
		}
	}
	return nil
}

func (r *Reader) resetCache() {
	r.mu.Lock()
	r.objCache = make(map[int]core.Object)
	r.objStreams = make(map[int]*core.ObjectStream)
	r.mu.Unlock()
}

// Version returns the PDF version
func (r *Reader) Version() PDFVersion {
	return r.version
}

// Trailer returns the trailer dictionary
func (r *Reader) Trailer() core.Dict {
	return r.trailer
}

// Data returns the document bytes. Callers must not modify them.
func (r *Reader) Data() []byte {
	return r.data
}

// Limits returns the limits in effect.
func (r *Reader) Limits() Limits {
	return r.limits
}

// Repaired reports whether the cross-reference table was rebuilt by
// scanning the file.
func (r *Reader) Repaired() bool {
	return r.repaired
}

// XRefTable returns the merged cross-reference table
func (r *Reader) XRefTable() *core.XRefTable {
	return r.xref
}

// NumObjects returns the trailer /Size, or one more than the highest object
// number in the cross-reference table if that is larger.
func (r *Reader) NumObjects() int {
	size := 0
	if n, ok := r.trailer.GetInt("Size"); ok {
		size = int(n)
	}
	for num := range r.xref.Entries {
		size = max(size, num+1)
	}
	return size
}

// GetObject loads an object by its number. Free and missing objects are
// null. Loaded objects are cached and must be treated as immutable.
func (r *Reader) GetObject(objNum int) (core.Object, error) {
	r.mu.Lock()
	obj, ok := r.objCache[objNum]
	r.mu.Unlock()
	if ok {
		return obj, nil
	}

	entry, ok := r.xref.Get(objNum)
	if !ok || !entry.InUse {
		return core.Null{}, nil
	}

	switch entry.Type {
	case core.XRefEntryCompressed:
		obj, err := r.loadCompressed(objNum, entry)
		if err != nil {
			return nil, err
		}
		r.store(objNum, obj)
		return obj, nil
	default:
		obj, err := r.loadAt(objNum, entry.Offset)
		if err != nil {
			// The offset may be stale; fall back to the scanned location.
			scanned, ok := r.scan().Get(objNum)
			if !ok || scanned.Type != core.XRefEntryUncompressed || scanned.Offset == entry.Offset {
				return nil, err
			}
			logging.Logger().Debug("object offset repaired", "object", objNum, "offset", scanned.Offset)
			if obj, err = r.loadAt(objNum, scanned.Offset); err != nil {
				return nil, err
			}
		}
		r.store(objNum, obj)
		return obj, nil
	}
}

func (r *Reader) store(objNum int, obj core.Object) {
	r.mu.Lock()
	r.objCache[objNum] = obj
	r.mu.Unlock()
}

// loadAt parses the indirect object at offset and checks its number.
func (r *Reader) loadAt(objNum int, offset int64) (core.Object, error) {
	ind, err := core.ParseIndirectObjectAt(r.data, offset, lengthResolver{r})
	if err != nil {
		return nil, fmt.Errorf("failed to parse object %d: %w", objNum, err)
	}
	if ind.Ref.Number != objNum {
		return nil, fmt.Errorf("object number mismatch: expected %d, got %d", objNum, ind.Ref.Number)
	}
	return ind.Object, nil
}

// loadCompressed extracts an object from its object stream.
func (r *Reader) loadCompressed(objNum int, entry *core.XRefEntry) (core.Object, error) {
	stmNum := int(entry.Offset)
	if stmNum == objNum {
		return nil, fmt.Errorf("object %d is stored in itself", objNum)
	}

	objStm, err := r.objectStream(stmNum)
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", objNum, err)
	}

	obj, num, err := objStm.At(entry.Generation)
	if err == nil && num == objNum {
		return obj, nil
	}
	obj, err = objStm.Find(objNum)
	if err != nil {
		return nil, fmt.Errorf("object %d in stream %d: %w", objNum, stmNum, err)
	}
	return obj, nil
}

func (r *Reader) objectStream(stmNum int) (*core.ObjectStream, error) {
	r.mu.Lock()
	objStm, ok := r.objStreams[stmNum]
	r.mu.Unlock()
	if ok {
		return objStm, nil
	}

	entry, ok := r.xref.Get(stmNum)
	if !ok || entry.Type != core.XRefEntryUncompressed {
		return nil, fmt.Errorf("object stream %d not found", stmNum)
	}
	obj, err := r.loadAt(stmNum, entry.Offset)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("object stream %d is %T", stmNum, obj)
	}
	objStm, err = core.OpenObjectStream(stream, r.limits.MaxStreamSize)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.objStreams[stmNum]; ok {
		return existing, nil
	}
	r.objStreams[stmNum] = objStm
	return objStm, nil
}

// lengthResolver resolves indirect /Length values without following
// further references, so that an object cannot recurse into itself.
type lengthResolver struct{ r *Reader }

func (l lengthResolver) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	entry, ok := l.r.xref.Get(ref.Number)
	if !ok || entry.Type != core.XRefEntryUncompressed {
		return l.r.GetObject(ref.Number)
	}
	ind, err := core.ParseIndirectObjectAt(l.r.data, entry.Offset, nil)
	if err != nil {
		return nil, err
	}
	return ind.Object, nil
}

// ResolveReference resolves an indirect reference
func (r *Reader) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return r.GetObject(ref.Number)
}

// Resolve resolves an object if it's an indirect reference, otherwise returns it as-is
// Implements pages.ObjectResolver interface
func (r *Reader) Resolve(obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return r.ResolveReference(ref)
	}
	return obj, nil
}

// GetCatalog returns the document catalog (root object)
func (r *Reader) GetCatalog() (core.Dict, error) {
	rootRef := r.trailer.Get("Root")
	if rootRef == nil {
		return nil, fmt.Errorf("trailer missing /Root entry")
	}

	obj, err := r.Resolve(rootRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog: %w", err)
	}

	catalog, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("catalog is not a dictionary: %T", obj)
	}
	return catalog, nil
}

// GetInfo returns the document info dictionary (metadata), or nil.
func (r *Reader) GetInfo() (core.Dict, error) {
	infoRef := r.trailer.Get("Info")
	if infoRef == nil {
		return nil, nil // Info is optional
	}

	obj, err := r.Resolve(infoRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve info: %w", err)
	}

	info, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("info is not a dictionary: %T", obj)
	}
	return info, nil
}

// Pages returns every page in document order.
func (r *Reader) Pages() ([]*pages.Page, error) {
	r.treeOnce.Do(func() {
		r.pageList, r.treeErr = r.loadPages()
	})
	return r.pageList, r.treeErr
}

func (r *Reader) loadPages() ([]*pages.Page, error) {
	catalog, err := r.GetCatalog()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get catalog: %w", ErrMalformed, err)
	}
	tree, err := pages.NewCatalog(catalog, r).PageTree()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	list, err := tree.Pages()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(list) > r.limits.MaxPages {
		return nil, malformed("%d pages exceed limit of %d", len(list), r.limits.MaxPages)
	}
	return list, nil
}

// PageCount returns the number of pages in the PDF
func (r *Reader) PageCount() (int, error) {
	list, err := r.Pages()
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// GetPage returns the page at the given index (0-based)
func (r *Reader) GetPage(index int) (*pages.Page, error) {
	list, err := r.Pages()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(list) {
		return nil, fmt.Errorf("page index %d out of range [0, %d)", index, len(list))
	}
	return list[index], nil
}

// CacheSize returns the number of cached objects
func (r *Reader) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objCache)
}
