package grid

import (
	"errors"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/validation"
)

var (
	ErrRowOutOfRange = errors.New("row index out of range")
	ErrUnknownField  = errors.New("unknown field")
	ErrRowDeleted    = errors.New("row is marked for deletion")
	ErrUnknownRow    = errors.New("unknown row")
)

// Status is the lifecycle state of a row. Invalid is reported separately
// because it can overlay any status.
type Status int

const (
	Clean Status = iota
	Modified
	New
	Deleted
)

func (s Status) String() string {
	switch s {
	case Clean:
		return "clean"
	case Modified:
		return "modified"
	case New:
		return "new"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Dirty reports whether rows in this status are commit candidates.
func (s Status) Dirty() bool {
	return s != Clean
}

// CoercionError means raw input could not be turned into the field's type.
// The cell keeps its previous value.
type CoercionError struct {
	Field core.Field
	Input string
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("%s: cannot use %q: %v", e.Field, e.Input, e.Err)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

// Row is the read-only view of one grid row handed to renderers.
type Row struct {
	Index  int
	Ref    ledger.RowRef
	Data   core.Transaction
	Status Status
	// Invalid is set when Errors is non-empty; such rows are not committed.
	Invalid     bool
	Errors      validation.Errors
	InputErrors []CoercionError
	// Display holds the rendered text of every field, with references
	// shown by name.
	Display map[core.Field]string
}

type entry struct {
	ref       ledger.RowRef
	row       core.Transaction
	isNew     bool
	deleted   bool
	edits     int
	inputErrs map[core.Field]*CoercionError
	errs      validation.Errors
}

func newEntry(ref ledger.RowRef, row core.Transaction, isNew bool) *entry {
	return &entry{ref: ref, row: row, isNew: isNew, inputErrs: map[core.Field]*CoercionError{}}
}

func (e *entry) status() Status {
	switch {
	case e.deleted:
		return Deleted
	case e.isNew:
		return New
	case e.edits > 0:
		return Modified
	default:
		return Clean
	}
}
