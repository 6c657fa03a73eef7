package synchronizer

import "fmt"

// State is a step of a generation run. Runs move forward through the
// states in order and end in Done or Aborted.
type State int

const (
	Idle State = iota
	LoadBaseline
	DiffModel
	ResolveConflicts
	Place
	Emit
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadBaseline:
		return "load_baseline"
	case DiffModel:
		return "diff_model"
	case ResolveConflicts:
		return "resolve_conflicts"
	case Place:
		return "place"
	case Emit:
		return "emit"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Done || s == Aborted
}
