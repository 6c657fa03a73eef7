package synchronizer

import (
	"fmt"
	"strings"
)

// WarningKind classifies a non-fatal finding.
type WarningKind string

const (
	// ConflictResolution: description and baseline disagreed on a field and
	// the authority rule picked one side.
	ConflictResolution WarningKind = "conflict_resolution"
	// RenameDetected: a component was found under another reference by
	// UUID.
	RenameDetected WarningKind = "rename"
	// OverlapDetected: two existing units overlap.
	OverlapDetected WarningKind = "overlap"
	// OrphanSheet: a schematic file no sheet references.
	OrphanSheet WarningKind = "orphan_sheet"
	// NewerGenerator: a file was written by a newer KiCad than supported.
	NewerGenerator WarningKind = "generator_version"
	// SymbolNotFound: no library defines a symbol; a generic one is used.
	SymbolNotFound WarningKind = "symbol_not_found"
	// PaperGrown: the sheet was enlarged to fit new units.
	PaperGrown WarningKind = "paper_grown"
)

// Warning is a non-fatal finding collected during a run.
type Warning struct {
	Kind    WarningKind
	File    string
	Ref     string
	Field   string
	Message string
}

func (w Warning) String() string {
	var b strings.Builder
	b.WriteString(string(w.Kind))
	if w.File != "" {
		b.WriteString(" ")
		b.WriteString(w.File)
	}
	if w.Ref != "" {
		b.WriteString(" ")
		b.WriteString(w.Ref)
		if w.Field != "" {
			b.WriteString(".")
			b.WriteString(w.Field)
		}
	}
	b.WriteString(": ")
	b.WriteString(w.Message)
	return b.String()
}

func conflictWarning(file, ref, field, baseline, declared string, winner Side) Warning {
	return Warning{
		Kind:    ConflictResolution,
		File:    file,
		Ref:     ref,
		Field:   field,
		Message: fmt.Sprintf("baseline %q, description %q; %s wins", baseline, declared, winner),
	}
}
