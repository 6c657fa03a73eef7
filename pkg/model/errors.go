package model

import (
	"fmt"
	"strings"
)

// ReferenceConflictError reports two components claiming one designator in
// a scope. First and Second locate both claims (file:line or a description
// path).
type ReferenceConflictError struct {
	Ref    string
	First  string
	Second string
}

func (e *ReferenceConflictError) Error() string {
	return fmt.Sprintf("reference %s is used twice: %s and %s", e.Ref, e.First, e.Second)
}

// SymmetryError lists every broken net membership found by CheckSymmetry.
type SymmetryError struct {
	Problems []string
}

func (e *SymmetryError) Error() string {
	if len(e.Problems) == 1 {
		return "net symmetry: " + e.Problems[0]
	}
	return fmt.Sprintf("net symmetry: %d problems:\n  %s", len(e.Problems), strings.Join(e.Problems, "\n  "))
}
