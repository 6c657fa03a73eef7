package kicadsexp

import "fmt"

// GrammarError reports malformed input. Parsing never returns a partial tree
// alongside it.
type GrammarError struct {
	File   string
	Line   int
	Reason string
}

func (e *GrammarError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}
