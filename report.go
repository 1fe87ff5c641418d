package pdfreplace

import (
	"fmt"
	"strings"
)

// Replacement maps search text to the text that replaces it.
type Replacement map[string]string

// Report summarizes a run.
type Report struct {
	Replaced int       `json:"replaced"`
	Skipped  []Skipped `json:"skipped"`
}

// Skipped is a key, or one occurrence of it, that was not replaced.
type Skipped struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
	Page   int    `json:"page,omitempty"` // 1-based; zero for keys rejected up front
	Kind   Kind   `json:"-"`
}

func newReport() *Report {
	return &Report{Skipped: []Skipped{}}
}

// String formats the report for humans, one skipped entry per line.
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d replaced, %d skipped", r.Replaced, len(r.Skipped))
	for _, s := range r.Skipped {
		if s.Page > 0 {
			fmt.Fprintf(&sb, "\n  page %d: %q: %s", s.Page, s.Key, s.Reason)
		} else {
			fmt.Fprintf(&sb, "\n  %q: %s", s.Key, s.Reason)
		}
	}
	return sb.String()
}
