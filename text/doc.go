// Package text reconstructs the logical text shown by a page content stream.
//
// The [Extractor] walks content stream operations with a graphics state and
// groups the characters shown by Tj, TJ, ' and " into [Run] values. A run is
// the unit of substring search: it ends at BT and wherever the text line
// origin moves to another line by more than [Extractor.Threshold]. Lines
// are stacked along y, or along x for vertical fonts.
//
//	ex := text.NewExtractor()
//	if err := ex.RegisterFontsFromPage(page, resolver); err != nil {
//		// fonts that failed to load show unmappable characters
//	}
//	runs := ex.Extract(content.Ops)
//
// Every [Char] of a run points back at the operation, string segment and
// byte range it was decoded from, so a match in Run.Text can be mapped to
// the bytes that have to change.
package text
