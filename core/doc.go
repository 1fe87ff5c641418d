// Package core reads and writes PDF objects.
//
// # Objects
//
// [Object] is implemented by [Null], [Bool], [Int], [Real], [String],
// [Name], [Array], [Dict], [*Stream] and [IndirectRef], and by nothing
// else. Dictionaries drop null entries when parsed, so a missing key and
// a null value look the same:
//
//	if font, ok := resources.GetDict("Font"); ok {
//		ref, _ := font.GetIndirectRef("F1")
//	}
//
// # Parsing
//
// [Parser] reads objects, indirect object definitions and streams from a
// byte slice. [Lexer] tokenizes the same input and reports the byte span of
// every token; the content stream parser relies on the spans to copy
// untouched operators verbatim. A stream whose /Length is wrong is
// delimited by its endstream keyword instead.
//
// # Cross-Reference Data
//
// [XRefParser] reads classic tables, xref streams and hybrid files into an
// [XRefTable], following /Prev chains with cycle detection. [ScanObjects]
// rebuilds a table from the object headers of a damaged file.
// [OpenObjectStream] gives access to objects compressed into /ObjStm
// streams.
//
// # Stream Data
//
// [Stream.Decode] applies the filter chain of a stream.
// [Stream.DecodeLimited] fails with [ErrStreamTooLarge] once any filter
// output exceeds a limit.
//
// # Serialization
//
// [AppendObject] and [AppendIndirectObject] write objects in PDF syntax
// with dictionary keys sorted.
package core
