// Package writer appends incremental updates to PDF documents.
//
// An [Incremental] collects redefined and new objects and writes them
// after the original bytes, followed by a cross-reference section that
// chains to the previous one through /Prev. The original bytes are never
// changed, so untouched objects stay byte-for-byte identical.
//
//	up := writer.NewIncremental(r)
//	if err := up.SetPageContent(page, content); err != nil {
//		return err
//	}
//	out, err := up.Bytes()
package writer
