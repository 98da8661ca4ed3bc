package grid

import (
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
	"fintrack/internal/validation"
)

// Pending is a dirty row offered for commit.
type Pending struct {
	Index  int
	Ref    ledger.RowRef
	Status Status
	Row    core.Transaction
}

// Pending lists the New, Modified and Deleted rows in display order.
func (m *Model) Pending() []Pending {
	var out []Pending
	for i, e := range m.rows {
		s := e.status()
		if !s.Dirty() {
			continue
		}
		out = append(out, Pending{Index: i, Ref: e.ref, Status: s, Row: e.row.Clone()})
	}
	return out
}

// Committed describes the outcome of a successful store write.
type Committed struct {
	// Inserted maps new rows to the identifiers the store assigned.
	Inserted map[ledger.RowRef]int64
	Updated  []ledger.RowRef
	Deleted  []ledger.RowRef
	// Rejected rows stay dirty with these errors.
	Rejected map[ledger.RowRef]validation.Errors
}

// Reconcile brings the model in line with a committed batch: accepted rows
// become Clean (deleted ones disappear) and their history is dropped. When
// nothing was rejected the whole history is cleared.
func (m *Model) Reconcile(c Committed) {
	accepted := map[ledger.RowRef]bool{}
	for ref, id := range c.Inserted {
		accepted[ref] = true
		if e, ok := m.byRef[ref]; ok {
			e.row.ID = core.Ref(id)
			e.isNew = false
			e.edits = 0
		}
	}
	for _, ref := range c.Updated {
		accepted[ref] = true
		if e, ok := m.byRef[ref]; ok {
			e.edits = 0
		}
	}
	for _, ref := range c.Deleted {
		accepted[ref] = true
		_ = target{m}.RemoveRow(ref)
	}
	for ref, errs := range c.Rejected {
		if e, ok := m.byRef[ref]; ok {
			e.errs = errs
		}
	}

	if len(c.Rejected) == 0 {
		m.ledger.Clear()
	} else {
		m.ledger.Forget(func(ref ledger.RowRef) bool { return accepted[ref] })
	}

	undo, redo := m.ledger.Depth()
	m.logger.Debug("Grid reconciled",
		applog.FieldInserted, len(c.Inserted),
		applog.FieldUpdated, len(c.Updated),
		applog.FieldDeleted, len(c.Deleted),
		applog.FieldRejected, len(c.Rejected),
		applog.FieldUndo, undo,
		applog.FieldRedo, redo)
}
