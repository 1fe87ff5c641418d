package pdfreplace

import (
	"errors"
	"fmt"
)

// Kind classifies errors and skipped matches.
type Kind int

const (
	// Unknown is the kind of errors that did not come from this package.
	Unknown Kind = iota
	// MalformedDocument means the document could not be parsed. No output
	// is produced.
	MalformedDocument
	// UnsupportedFont means a match could not be rewritten with the fonts
	// that show it. It only appears in Report.Skipped.
	UnsupportedFont
	// Canceled means the context ended before all pages were processed.
	Canceled
	// InvalidInput means the arguments were unusable, such as a page
	// number outside the document or an empty search key.
	InvalidInput
)

func (k Kind) String() string {
	switch k {
	case MalformedDocument:
		return "MalformedDocument"
	case UnsupportedFont:
		return "UnsupportedFont"
	case Canceled:
		return "Canceled"
	case InvalidInput:
		return "InvalidInput"
	default:
		return "Unknown"
	}
}

// Error is returned by Process and the Replacer terminal methods.
type Error struct {
	Kind Kind
	Op   string // stage or page that failed, e.g. "open" or "page 3"
	Err  error

	// Report holds what was found before the failure. It is never nil.
	Report *Report
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("pdfreplace: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("pdfreplace: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or Unknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
