// Package rewrite finds search keys in the text runs of a page and rewrites
// the content stream operations that show them.
//
// Keys are normalized to NFC and tried in byte order. Within a run each key
// is searched left to right; characters consumed by one match cannot be
// part of another, so when keys overlap the one that sorts first wins.
//
// A match inside one operation edits that operation's string bytes, and a
// TJ array loses the kerning between the replaced strings. A match that
// crosses operations puts the whole replacement into the first one, drops
// the operations it covers completely and trims the covered prefix of the
// last one. A "0 0 Td" takes the place of the last dropped operation.
//
// Matches that would need characters from more than one font, or whose
// replacement the font cannot encode, are reported as skips wrapping
// [ErrUnsupportedFont].
package rewrite
