package cmd

import (
	"errors"
	"strings"

	"github.com/OpenTraceLab/kisync/pkg/hierarchy"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
	"github.com/OpenTraceLab/kisync/pkg/placement"
	"github.com/OpenTraceLab/kisync/pkg/synchronizer"
)

// errorAttrs classifies err into slog key/value pairs so scripts can tell
// failures apart.
func errorAttrs(err error) []any {
	var (
		grammar  *kicadsexp.GrammarError
		cycle    *hierarchy.CycleError
		conflict *model.ReferenceConflictError
		symmetry *model.SymmetryError
		overflow *placement.OverflowError
		missing  *synchronizer.MissingDocumentError
		check    *synchronizer.CheckError
		edited   *synchronizer.ConcurrentEditError
	)
	switch {
	case errors.As(err, &grammar):
		return []any{"kind", "grammar", "file", grammar.File, "line", grammar.Line, "reason", grammar.Reason}
	case errors.As(err, &cycle):
		return []any{"kind", "cycle", "path", strings.Join(cycle.Path, " -> ")}
	case errors.As(err, &conflict):
		return []any{"kind", "reference_conflict", "ref", conflict.Ref, "first", conflict.First, "second", conflict.Second}
	case errors.As(err, &symmetry):
		return []any{"kind", "symmetry", "problems", len(symmetry.Problems)}
	case errors.As(err, &overflow):
		return []any{"kind", "overflow", "max_paper", overflow.Max.Name}
	case errors.As(err, &missing):
		return []any{"kind", "missing_document", "file", missing.File, "sheet", missing.Sheet}
	case errors.As(err, &check):
		return []any{"kind", "check", "problems", len(check.Problems)}
	case errors.As(err, &edited):
		return []any{"kind", "concurrent_edit", "file", edited.File}
	}
	return []any{"kind", "other"}
}
