package grid

import (
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// target applies ledger records to the model without recording them again.
type target struct {
	m *Model
}

var _ ledger.Target = target{}

func (t target) entry(ref ledger.RowRef) (*entry, error) {
	e, ok := t.m.byRef[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRow, ref)
	}
	return e, nil
}

func (t target) ApplyEdit(ref ledger.RowRef, f core.Field, v core.Value, forward bool) error {
	e, err := t.entry(ref)
	if err != nil {
		return err
	}
	e.row.Set(f, v)
	if forward {
		e.edits++
	} else if e.edits > 0 {
		e.edits--
	}
	delete(e.inputErrs, f)
	t.m.validate(e)
	return nil
}

func (t target) InsertRow(ref ledger.RowRef, index int, row core.Transaction, isNew bool) error {
	if _, exists := t.m.byRef[ref]; exists {
		return fmt.Errorf("row %s already present", ref)
	}
	e := newEntry(ref, row.Clone(), isNew)
	t.m.validate(e)
	if index < 0 {
		index = 0
	}
	if index > len(t.m.rows) {
		index = len(t.m.rows)
	}
	t.m.rows = append(t.m.rows, nil)
	copy(t.m.rows[index+1:], t.m.rows[index:])
	t.m.rows[index] = e
	t.m.byRef[ref] = e
	return nil
}

func (t target) RemoveRow(ref ledger.RowRef) error {
	if _, err := t.entry(ref); err != nil {
		return err
	}
	i, _ := t.m.IndexOf(ref)
	t.m.rows = append(t.m.rows[:i], t.m.rows[i+1:]...)
	delete(t.m.byRef, ref)
	return nil
}

func (t target) MarkDeleted(ref ledger.RowRef, deleted bool) error {
	e, err := t.entry(ref)
	if err != nil {
		return err
	}
	e.deleted = deleted
	return nil
}
