// Package reader provides access to the objects and pages of a PDF held in
// memory.
//
// # Opening Documents
//
//	r, err := reader.NewReader(data)
//	if err != nil {
//	    return err // wraps reader.ErrMalformed
//	}
//
// [NewReaderWithLimits] bounds the resources one document may use: object
// count, xref chain length, decoded stream size, operations per page and
// page count. A document whose cross-reference data is damaged is rebuilt by
// scanning for object headers; [Reader.Repaired] reports when that happened.
// Encrypted documents are rejected with [ErrEncrypted].
//
// # Document Information
//
//   - Version() - PDF version (e.g., 1.7)
//   - PageCount() - number of pages
//   - GetCatalog() - document catalog dictionary
//   - GetInfo() - document info dictionary
//   - Trailer() and XRefTable() - the newest trailer and the merged table
//
// # Page Access
//
// Pages are numbered from zero:
//
//	page, err := r.GetPage(0)
//	content, err := page.ContentData(r.Limits().MaxStreamSize)
//
// # Object Resolution
//
//   - GetObject(objNum) - load object by number
//   - ResolveReference(ref) - resolve an IndirectRef
//   - Resolve(obj) - resolve if indirect, otherwise return as-is
//
// Missing and free objects resolve to null. Loaded objects are cached and
// must be treated as immutable; the Reader is safe for concurrent use.
package reader
