package pages

import (
	"errors"
	"fmt"

	"github.com/tsawler/pdfreplace/core"
)

// ErrPageTreeCycle is returned when a /Kids entry points back at one of its
// ancestors.
var ErrPageTreeCycle = errors.New("page tree contains a cycle")

// maxTreeDepth bounds the nesting of page tree nodes.
const maxTreeDepth = 256

// inheritable lists the page attributes that may be set on an ancestor.
var inheritable = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

// ObjectResolver interface for resolving indirect references
type ObjectResolver interface {
	Resolve(obj core.Object) (core.Object, error)
	ResolveReference(ref core.IndirectRef) (core.Object, error)
}

// Catalog represents the PDF document catalog (root of document structure)
type Catalog struct {
	dict     core.Dict
	resolver ObjectResolver
}

// NewCatalog creates a new catalog from a dictionary
func NewCatalog(dict core.Dict, resolver ObjectResolver) *Catalog {
	return &Catalog{
		dict:     dict,
		resolver: resolver,
	}
}

// Type returns the catalog type (should be "Catalog")
func (c *Catalog) Type() string {
	if name, ok := c.dict.GetName("Type"); ok {
		return string(name)
	}
	return ""
}

// PageTree returns the page tree rooted at /Pages.
func (c *Catalog) PageTree() (*PageTree, error) {
	pagesObj := c.dict.Get("Pages")
	if pagesObj == nil {
		return nil, fmt.Errorf("catalog missing /Pages entry")
	}

	resolved, err := c.resolver.Resolve(pagesObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Pages: %w", err)
	}
	root, ok := resolved.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("invalid /Pages type: %T", resolved)
	}

	tree := NewPageTree(root, c.resolver)
	if ref, ok := pagesObj.(core.IndirectRef); ok {
		tree.rootRef = &ref
	}
	return tree, nil
}

// PageTree represents the PDF page tree
type PageTree struct {
	root     core.Dict
	rootRef  *core.IndirectRef
	resolver ObjectResolver
	pages    []*Page // Cached flattened page list
}

// NewPageTree creates a new page tree from the root pages dictionary
func NewPageTree(root core.Dict, resolver ObjectResolver) *PageTree {
	return &PageTree{
		root:     root,
		resolver: resolver,
	}
}

// Count returns the number of leaf pages. The declared /Count is not
// trusted.
func (t *PageTree) Count() (int, error) {
	pages, err := t.Pages()
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

// GetPage returns the page at the given index (0-based)
func (t *PageTree) GetPage(index int) (*Page, error) {
	pages, err := t.Pages()
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(pages) {
		return nil, fmt.Errorf("page index %d out of range [0, %d)", index, len(pages))
	}

	return pages[index], nil
}

// Pages returns all pages in document order.
func (t *PageTree) Pages() ([]*Page, error) {
	if t.pages == nil {
		if err := t.loadPages(); err != nil {
			return nil, err
		}
	}
	return t.pages, nil
}

// loadPages traverses the page tree and builds the flattened page list
func (t *PageTree) loadPages() error {
	w := walker{
		tree:    t,
		visited: make(map[core.IndirectRef]bool),
		pages:   make([]*Page, 0),
	}
	var ref core.IndirectRef
	if t.rootRef != nil {
		ref = *t.rootRef
		w.visited[ref] = true
	}
	if err := w.visit(t.root, ref, nil); err != nil {
		return fmt.Errorf("failed to traverse page tree: %w", err)
	}
	t.pages = w.pages
	return nil
}

type walker struct {
	tree    *PageTree
	visited map[core.IndirectRef]bool
	pages   []*Page
}

// visit walks one node. ancestors holds the enclosing Pages nodes, nearest
// first.
func (w *walker) visit(node core.Dict, ref core.IndirectRef, ancestors []core.Dict) error {
	if len(ancestors) > maxTreeDepth {
		return fmt.Errorf("page tree deeper than %d levels", maxTreeDepth)
	}

	if !isPagesNode(node) {
		w.pages = append(w.pages, &Page{
			Ref:       ref,
			Index:     len(w.pages),
			dict:      node,
			ancestors: ancestors,
			resolver:  w.tree.resolver,
		})
		return nil
	}

	kidsResolved, err := w.tree.resolver.Resolve(node.Get("Kids"))
	if err != nil {
		return fmt.Errorf("failed to resolve /Kids: %w", err)
	}
	kids, ok := kidsResolved.(core.Array)
	if !ok {
		return fmt.Errorf("invalid /Kids type: %T", kidsResolved)
	}

	chain := make([]core.Dict, 0, len(ancestors)+1)
	chain = append(chain, node)
	chain = append(chain, ancestors...)

	for i, kidObj := range kids {
		kidRef, isRef := kidObj.(core.IndirectRef)
		if isRef {
			if w.visited[kidRef] {
				return fmt.Errorf("kid %d (object %d): %w", i, kidRef.Number, ErrPageTreeCycle)
			}
			w.visited[kidRef] = true
		}

		kidResolved, err := w.tree.resolver.Resolve(kidObj)
		if err != nil {
			return fmt.Errorf("failed to resolve kid %d: %w", i, err)
		}
		kidDict, ok := kidResolved.(core.Dict)
		if !ok {
			// Broken kids are skipped so the remaining pages stay reachable.
			continue
		}

		if err := w.visit(kidDict, kidRef, chain); err != nil {
			return err
		}
	}
	return nil
}

// isPagesNode reports whether node is an intermediate node. Nodes without a
// /Type are classified by the presence of /Kids.
func isPagesNode(node core.Dict) bool {
	if name, ok := node.GetName("Type"); ok {
		switch name {
		case "Pages":
			return true
		case "Page":
			return false
		}
	}
	return node.Has("Kids")
}

// Page represents a single PDF page
type Page struct {
	// Ref is the page object's reference; zero for a direct page dictionary.
	Ref core.IndirectRef

	// Index is the 0-based position of the page in the document.
	Index int

	dict      core.Dict
	ancestors []core.Dict // Enclosing Pages nodes, nearest first
	resolver  ObjectResolver
}

// NewPage creates a page from a dictionary and its ancestors, nearest first.
func NewPage(dict core.Dict, ancestors []core.Dict, resolver ObjectResolver) *Page {
	return &Page{
		dict:      dict,
		ancestors: ancestors,
		resolver:  resolver,
	}
}

// Dict returns the page dictionary. Callers must not modify it.
func (p *Page) Dict() core.Dict {
	return p.dict
}

// Type returns the page type (should be "Page")
func (p *Page) Type() string {
	if name, ok := p.dict.GetName("Type"); ok {
		return string(name)
	}
	return ""
}

// inherited looks key up on the page and then on every ancestor.
func (p *Page) inherited(key string) core.Object {
	if obj := p.dict.Get(key); obj != nil {
		return obj
	}
	for _, a := range p.ancestors {
		if obj := a.Get(key); obj != nil {
			return obj
		}
	}
	return nil
}

// Flatten returns a copy of the page dictionary with every inherited
// attribute copied onto it.
func (p *Page) Flatten() core.Dict {
	d := p.dict.Clone()
	for _, key := range inheritable {
		if !d.Has(key) {
			if obj := p.inherited(key); obj != nil {
				d[key] = obj
			}
		}
	}
	return d
}

// MediaBox returns the page media box [x1 y1 x2 y2]
// This is inheritable, so checks ancestors if not present
func (p *Page) MediaBox() ([]float64, error) {
	return p.getBox("MediaBox")
}

// CropBox returns the page crop box [x1 y1 x2 y2]
// This is inheritable, defaults to MediaBox if not present
func (p *Page) CropBox() ([]float64, error) {
	box, err := p.getBox("CropBox")
	if err != nil {
		return p.MediaBox()
	}
	return box, nil
}

// getBox retrieves a box attribute (inheritable)
func (p *Page) getBox(name string) ([]float64, error) {
	boxObj := p.inherited(name)
	if boxObj == nil {
		return nil, fmt.Errorf("%s not found", name)
	}

	boxResolved, err := p.resolver.Resolve(boxObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", name, err)
	}

	boxArr, ok := boxResolved.(core.Array)
	if !ok {
		return nil, fmt.Errorf("invalid %s type: %T", name, boxResolved)
	}
	if len(boxArr) != 4 {
		return nil, fmt.Errorf("invalid %s length: %d (expected 4)", name, len(boxArr))
	}

	box := make([]float64, 4)
	for i, elem := range boxArr {
		v, ok := core.Number(elem)
		if !ok {
			return nil, fmt.Errorf("invalid %s element type: %T", name, elem)
		}
		box[i] = v
	}
	return box, nil
}

// Resources returns the page resources dictionary. A page without
// resources gets an empty dictionary.
func (p *Page) Resources() (core.Dict, error) {
	resourcesObj := p.inherited("Resources")
	if resourcesObj == nil {
		return core.Dict{}, nil
	}

	resolved, err := p.resolver.Resolve(resourcesObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Resources: %w", err)
	}
	resources, ok := resolved.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("invalid Resources type: %T", resolved)
	}
	return resources, nil
}

// Fonts returns the /Font dictionary of the page resources, or an empty
// dictionary.
func (p *Page) Fonts() (core.Dict, error) {
	resources, err := p.Resources()
	if err != nil {
		return nil, err
	}
	fontsObj := resources.Get("Font")
	if fontsObj == nil {
		return core.Dict{}, nil
	}
	resolved, err := p.resolver.Resolve(fontsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Font: %w", err)
	}
	fonts, ok := resolved.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("invalid /Font type: %T", resolved)
	}
	return fonts, nil
}

// Contents returns the page content stream(s)
func (p *Page) Contents() ([]*core.Stream, error) {
	contentsObj := p.dict.Get("Contents")
	if contentsObj == nil {
		return nil, nil // Contents is optional
	}

	resolved, err := p.resolver.Resolve(contentsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Contents: %w", err)
	}

	// Contents can be a single stream or array of streams
	switch v := resolved.(type) {
	case *core.Stream:
		return []*core.Stream{v}, nil
	case core.Array:
		streams := make([]*core.Stream, 0, len(v))
		for i, elem := range v {
			obj, err := p.resolver.Resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve contents[%d]: %w", i, err)
			}
			s, ok := obj.(*core.Stream)
			if !ok {
				return nil, fmt.Errorf("contents[%d] is %T, not a stream", i, obj)
			}
			streams = append(streams, s)
		}
		return streams, nil
	case core.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid Contents type: %T", resolved)
	}
}

// ContentData decodes the page content streams and joins them with a
// newline. Each stream may decode to at most limit bytes (0 for no limit).
func (p *Page) ContentData(limit int64) ([]byte, error) {
	streams, err := p.Contents()
	if err != nil {
		return nil, err
	}

	var data []byte
	for i, s := range streams {
		decoded, err := s.DecodeLimited(limit)
		if err != nil {
			return nil, fmt.Errorf("failed to decode content stream %d: %w", i, err)
		}
		if i > 0 {
			data = append(data, '\n')
		}
		data = append(data, decoded...)
		if limit > 0 && int64(len(data)) > limit {
			return nil, fmt.Errorf("page content: %w", core.ErrStreamTooLarge)
		}
	}
	return data, nil
}

// Rotate returns the page rotation (0, 90, 180, or 270)
// This is inheritable
func (p *Page) Rotate() int {
	if rotate, ok := p.inherited("Rotate").(core.Int); ok {
		return int(rotate)
	}
	return 0
}

// Width returns the page width (from MediaBox)
func (p *Page) Width() (float64, error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, err
	}
	return box[2] - box[0], nil
}

// Height returns the page height (from MediaBox)
func (p *Page) Height() (float64, error) {
	box, err := p.MediaBox()
	if err != nil {
		return 0, err
	}
	return box[3] - box[1], nil
}
