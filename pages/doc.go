// Package pages provides PDF page tree traversal and page access.
//
// # Page Tree
//
// PDF documents organize pages in a tree structure. The [PageTree] type
// flattens this hierarchy in document order:
//
//	tree, _ := pages.NewCatalog(catalogDict, resolver).PageTree()
//	count, _ := tree.Count()
//	page, _ := tree.GetPage(0)  // 0-indexed
//
// The declared /Count of the root is ignored in favour of the number of
// leaves actually reached. Nodes without /Type are classified by the
// presence of /Kids, kids that are not dictionaries are skipped, and a kid
// that refers back to an ancestor fails with [ErrPageTreeCycle].
//
// # Page Access
//
// The [Page] type represents a single PDF page with:
//
//   - Ref - the page object's reference, used when the page is rewritten
//   - MediaBox, CropBox, Rotate and Resources, inherited from any ancestor
//   - Fonts - the resolved /Font resource dictionary
//   - Contents and ContentData - the content streams, raw or decoded and joined
//
// # Object Resolution
//
// The [ObjectResolver] interface abstracts object lookup so the page tree
// does not depend on the reader.
package pages
