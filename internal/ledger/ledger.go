// Package ledger keeps the undo and redo history of grid mutations.
//
// Records are immutable values that reference rows through a RowRef handle,
// never through a store identifier, so rows that were never persisted can be
// tracked the same way as loaded ones. Applying a record is delegated to a
// Target, which the grid implements.
package ledger

import (
	"errors"

	"github.com/google/uuid"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// RowRef is the stable in-memory identity of a grid row.
type RowRef uuid.UUID

func NewRowRef() RowRef {
	return RowRef(uuid.New())
}

func (r RowRef) String() string {
	return uuid.UUID(r).String()
}

// Record is one reversible mutation: EditCell, AddRow or DeleteRow.
type Record interface {
	touches(ref RowRef) bool
	kind() string
}

// EditCell replaces the value of one field. Follow lists the cells reset
// as a consequence of the edit; they are undone and redone with it.
type EditCell struct {
	Ref    RowRef
	Field  core.Field
	Old    core.Value
	New    core.Value
	Follow []CellChange
}

// CellChange is one follow-on cell of an EditCell.
type CellChange struct {
	Field core.Field
	Old   core.Value
	New   core.Value
}

// AddRow appends a row. Row holds its content at creation time so that redo
// can recreate it.
type AddRow struct {
	Ref   RowRef
	Index int
	Row   core.Transaction
}

// DeleteRow covers every row removed or marked by one delete intent.
type DeleteRow struct {
	Rows []DeletedRow
}

// DeletedRow describes one row of a DeleteRow record. Unsaved rows are
// removed from the grid (WasNew); persisted ones are only marked.
type DeletedRow struct {
	Ref    RowRef
	Index  int
	Row    core.Transaction
	WasNew bool
}

func (r EditCell) touches(ref RowRef) bool { return r.Ref == ref }
func (r AddRow) touches(ref RowRef) bool   { return r.Ref == ref }
func (r DeleteRow) touches(ref RowRef) bool {
	for _, d := range r.Rows {
		if d.Ref == ref {
			return true
		}
	}
	return false
}

func (EditCell) kind() string  { return "edit_cell" }
func (AddRow) kind() string    { return "add_row" }
func (DeleteRow) kind() string { return "delete_row" }

// Target applies records to the grid without recording them again.
type Target interface {
	// ApplyEdit writes v into field f. forward is false when the edit is
	// being undone.
	ApplyEdit(ref RowRef, f core.Field, v core.Value, forward bool) error
	// InsertRow puts row back at index (clamped to the grid size).
	InsertRow(ref RowRef, index int, row core.Transaction, isNew bool) error
	// RemoveRow drops a row from the grid entirely.
	RemoveRow(ref RowRef) error
	// MarkDeleted sets or clears the pending-delete mark of a persisted row.
	MarkDeleted(ref RowRef, deleted bool) error
}

// Ledger holds the undo and redo stacks. It is owned by a single grid and
// is not safe for concurrent use.
type Ledger struct {
	undo   []Record
	redo   []Record
	logger *applog.Logger
}

func New(logger *applog.Logger) *Ledger {
	if logger == nil {
		logger = applog.Nop()
	}
	return &Ledger{logger: logger}
}

func (l *Ledger) RecordEdit(ref RowRef, f core.Field, from, to core.Value, follow ...CellChange) {
	l.push(EditCell{Ref: ref, Field: f, Old: from, New: to, Follow: append([]CellChange(nil), follow...)})
}

func (l *Ledger) RecordRowAdd(ref RowRef, index int, row core.Transaction) {
	l.push(AddRow{Ref: ref, Index: index, Row: row.Clone()})
}

func (l *Ledger) RecordRowDelete(rows []DeletedRow) {
	if len(rows) == 0 {
		return
	}
	cp := make([]DeletedRow, len(rows))
	for i, d := range rows {
		d.Row = d.Row.Clone()
		cp[i] = d
	}
	l.push(DeleteRow{Rows: cp})
}

// push records a new mutation; diverging from the redo history discards it.
func (l *Ledger) push(r Record) {
	l.undo = append(l.undo, r)
	if len(l.redo) > 0 {
		l.logger.Debug("Redo history discarded", applog.FieldRedo, len(l.redo))
	}
	l.redo = nil
	l.logger.Debug("Recorded", applog.FieldOperation, r.kind(), applog.FieldUndo, len(l.undo))
}

// Undo reverts the most recent record and moves it to the redo stack.
func (l *Ledger) Undo(t Target) (Record, error) {
	if len(l.undo) == 0 {
		return nil, ErrNothingToUndo
	}
	r := l.undo[len(l.undo)-1]
	if err := revert(t, r); err != nil {
		return nil, err
	}
	l.undo = l.undo[:len(l.undo)-1]
	l.redo = append(l.redo, r)
	l.logger.Debug("Undone", applog.FieldOperation, r.kind(),
		applog.FieldUndo, len(l.undo), applog.FieldRedo, len(l.redo))
	return r, nil
}

// Redo re-applies the most recently undone record.
func (l *Ledger) Redo(t Target) (Record, error) {
	if len(l.redo) == 0 {
		return nil, ErrNothingToRedo
	}
	r := l.redo[len(l.redo)-1]
	if err := apply(t, r); err != nil {
		return nil, err
	}
	l.redo = l.redo[:len(l.redo)-1]
	l.undo = append(l.undo, r)
	l.logger.Debug("Redone", applog.FieldOperation, r.kind(),
		applog.FieldUndo, len(l.undo), applog.FieldRedo, len(l.redo))
	return r, nil
}

func apply(t Target, r Record) error {
	switch r := r.(type) {
	case EditCell:
		if err := t.ApplyEdit(r.Ref, r.Field, r.New, true); err != nil {
			return err
		}
		for _, c := range r.Follow {
			if err := t.ApplyEdit(r.Ref, c.Field, c.New, true); err != nil {
				return err
			}
		}
	case AddRow:
		return t.InsertRow(r.Ref, r.Index, r.Row, true)
	case DeleteRow:
		// highest index first so earlier removals do not shift later ones
		for i := len(r.Rows) - 1; i >= 0; i-- {
			d := r.Rows[i]
			var err error
			if d.WasNew {
				err = t.RemoveRow(d.Ref)
			} else {
				err = t.MarkDeleted(d.Ref, true)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func revert(t Target, r Record) error {
	switch r := r.(type) {
	case EditCell:
		for i := len(r.Follow) - 1; i >= 0; i-- {
			c := r.Follow[i]
			if err := t.ApplyEdit(r.Ref, c.Field, c.Old, false); err != nil {
				return err
			}
		}
		return t.ApplyEdit(r.Ref, r.Field, r.Old, false)
	case AddRow:
		return t.RemoveRow(r.Ref)
	case DeleteRow:
		for _, d := range r.Rows {
			var err error
			if d.WasNew {
				err = t.InsertRow(d.Ref, d.Index, d.Row, true)
			} else {
				err = t.MarkDeleted(d.Ref, false)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Clear drops all history.
func (l *Ledger) Clear() {
	l.undo, l.redo = nil, nil
}

// Forget drops every record that touches a row for which drop returns true.
// Rows inside a DeleteRow record are filtered individually.
func (l *Ledger) Forget(drop func(RowRef) bool) {
	l.undo = forget(l.undo, drop)
	l.redo = forget(l.redo, drop)
}

func forget(stack []Record, drop func(RowRef) bool) []Record {
	out := stack[:0]
	for _, r := range stack {
		switch rec := r.(type) {
		case EditCell:
			if drop(rec.Ref) {
				continue
			}
		case AddRow:
			if drop(rec.Ref) {
				continue
			}
		case DeleteRow:
			var keep []DeletedRow
			for _, d := range rec.Rows {
				if !drop(d.Ref) {
					keep = append(keep, d)
				}
			}
			if len(keep) == 0 {
				continue
			}
			r = DeleteRow{Rows: keep}
		}
		out = append(out, r)
	}
	return out
}

// Depth returns the sizes of the undo and redo stacks.
func (l *Ledger) Depth() (undo, redo int) {
	return len(l.undo), len(l.redo)
}
