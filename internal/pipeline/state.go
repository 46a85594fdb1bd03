package pipeline

import "fmt"

// State is the lifecycle of one file within a load.
type State int

const (
	// Pending files wait for a worker slot.
	Pending State = iota
	// Reading files hold a slot and an open stream.
	Reading
	// Succeeded files reached the end of their stream or the error limit.
	Succeeded
	// Aborted files were stopped by the ABORT policy, a collaborator failure
	// or cancellation.
	Aborted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Reading:
		return "reading"
	case Succeeded:
		return "succeeded"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Succeeded || s == Aborted }

// canMove lists the legal transitions. A Pending file may abort without
// reading when its stream cannot be opened or the load is canceled first.
func canMove(from, to State) bool {
	switch from {
	case Pending:
		return to == Reading || to == Aborted
	case Reading:
		return to == Succeeded || to == Aborted
	}
	return false
}

// fileState guards the transitions of one file. It is owned by the file's
// task.
type fileState struct {
	path  string
	state State
}

func (f *fileState) moveTo(to State) error {
	if !canMove(f.state, to) {
		return fmt.Errorf("pipeline: file %s: illegal transition %s -> %s", f.path, f.state, to)
	}
	f.state = to
	return nil
}
