// Package grid holds the editable table of transactions: the rows the user
// sees, their lifecycle status, per-cell errors and the undo history.
//
// All methods must be called from one goroutine. Every intent fully
// completes before the next one is accepted.
package grid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
	"fintrack/internal/lookup"
	"fintrack/internal/store"
	"fintrack/internal/validation"
)

// Lookups resolves reference text and serves as the validation view.
// *lookup.Resolver implements it.
type Lookups interface {
	validation.References
	Refresh(ctx context.Context) error
	Resolve(ctx context.Context, kind lookup.Kind, text string, hint lookup.Hint) (int64, error)
	Reverse(kind lookup.Kind, id int64) (string, bool)
	DefaultCategory(ctx context.Context, t core.Type) (int64, error)
	DefaultSubCategory(ctx context.Context, parent int64) (int64, error)
}

// Defaults pre-fill rows created with AddRow. Values are raw text and go
// through the same coercion as SetCell.
type Defaults struct {
	Name        string
	Value       string
	Type        string
	Account     string
	Category    string
	SubCategory string
	Description string
	DateToday   bool
}

func (d Defaults) raw(f core.Field) string {
	switch f {
	case core.FieldName:
		return d.Name
	case core.FieldValue:
		return d.Value
	case core.FieldType:
		return d.Type
	case core.FieldAccount:
		return d.Account
	case core.FieldCategory:
		return d.Category
	case core.FieldSubCategory:
		return d.SubCategory
	case core.FieldDescription:
		return d.Description
	}
	return ""
}

type Options struct {
	// Defaults is nil when new rows start empty.
	Defaults *Defaults
	Now      func() time.Time
	Logger   *applog.Logger
}

type Model struct {
	reader    store.TransactionReader
	lookups   Lookups
	validator *validation.Engine
	ledger    *ledger.Ledger
	defaults  *Defaults
	now       func() time.Time
	logger    *applog.Logger

	rows  []*entry
	byRef map[ledger.RowRef]*entry
}

func NewModel(reader store.TransactionReader, lookups Lookups, l *ledger.Ledger, opts Options) *Model {
	if l == nil {
		l = ledger.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = applog.Nop()
	}
	return &Model{
		reader:    reader,
		lookups:   lookups,
		validator: validation.New(lookups),
		ledger:    l,
		defaults:  opts.Defaults,
		now:       opts.Now,
		logger:    opts.Logger,
		byRef:     map[ledger.RowRef]*entry{},
	}
}

// Load replaces every row with the store's content and clears the history.
// Lookup tables and transactions are fetched concurrently.
func (m *Model) Load(ctx context.Context) error {
	start := time.Now()
	var txs []core.Transaction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.lookups.Refresh(gctx)
	})
	g.Go(func() (err error) {
		txs, err = m.reader.ListTransactions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load grid: %w", err)
	}

	m.rows = make([]*entry, 0, len(txs))
	m.byRef = make(map[ledger.RowRef]*entry, len(txs))
	for _, tx := range txs {
		e := newEntry(ledger.NewRowRef(), tx, false)
		m.validate(e)
		m.rows = append(m.rows, e)
		m.byRef[e.ref] = e
	}
	m.ledger.Clear()

	m.logger.InfoContext(ctx, "Grid loaded",
		applog.FieldOperation, applog.OpLoad,
		"rows", len(m.rows),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// Discard drops every uncommitted change by reloading from the store.
func (m *Model) Discard(ctx context.Context) error {
	m.logger.DebugContext(ctx, "Discarding changes", applog.FieldOperation, applog.OpDiscard)
	return m.Load(ctx)
}

func (m *Model) Len() int {
	return len(m.rows)
}

func (m *Model) at(index int) (*entry, error) {
	if index < 0 || index >= len(m.rows) {
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, index)
	}
	return m.rows[index], nil
}

// GetRow returns the view of the row at index.
func (m *Model) GetRow(index int) (Row, error) {
	e, err := m.at(index)
	if err != nil {
		return Row{}, err
	}
	return m.view(index, e), nil
}

// Snapshot returns every row in display order.
func (m *Model) Snapshot() []Row {
	out := make([]Row, len(m.rows))
	for i, e := range m.rows {
		out[i] = m.view(i, e)
	}
	return out
}

// IndexOf returns the current position of ref.
func (m *Model) IndexOf(ref ledger.RowRef) (int, bool) {
	for i, e := range m.rows {
		if e.ref == ref {
			return i, true
		}
	}
	return -1, false
}

// Depth reports the undo and redo stack sizes.
func (m *Model) Depth() (undo, redo int) {
	return m.ledger.Depth()
}

// HasChanges reports whether any row is dirty.
func (m *Model) HasChanges() bool {
	for _, e := range m.rows {
		if e.status().Dirty() {
			return true
		}
	}
	return false
}

// SetCell coerces raw into field f of the row at index and records the
// edit. A *CoercionError leaves the row untouched; validation failures are
// applied and reported through the row's Errors.
func (m *Model) SetCell(ctx context.Context, index int, f core.Field, raw string) error {
	e, err := m.at(index)
	if err != nil {
		return err
	}
	if !isField(f) {
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	if e.deleted {
		return fmt.Errorf("%w: %d", ErrRowDeleted, index)
	}

	v, err := m.coerce(ctx, e.row, f, raw)
	if err != nil {
		var ce *CoercionError
		if errors.As(err, &ce) {
			e.inputErrs[f] = ce
			m.logger.DebugContext(ctx, "Cell input rejected",
				applog.FieldRow, index, applog.FieldField, f.String(), applog.FieldError, ce.Err)
		}
		return err
	}
	delete(e.inputErrs, f)

	old := e.row.Get(f)
	if old.Equal(v) {
		return nil
	}
	next := e.row.Clone()
	next.Set(f, v)
	follow, err := m.cascade(ctx, next, f)
	if err != nil {
		return fmt.Errorf("set %s: %w", f, err)
	}
	e.row.Set(f, v)
	for _, c := range follow {
		e.row.Set(c.Field, c.New)
	}
	e.edits += 1 + len(follow)
	m.ledger.RecordEdit(e.ref, f, old, v, follow...)
	m.validate(e)

	m.logger.DebugContext(ctx, "Cell set",
		applog.FieldOperation, applog.OpSetCell,
		applog.FieldRow, index,
		applog.FieldField, f.String(),
		"cascaded", len(follow),
		"invalid", len(e.errs) > 0)
	return nil
}

// cascade returns the dependent cells that change together with field f of
// row, which already holds the new value. A type change moves a category of
// another type to the type's UNCATEGORIZED fallback; a category change moves
// a sub-category of another parent to the category's fallback.
func (m *Model) cascade(ctx context.Context, row core.Transaction, f core.Field) ([]ledger.CellChange, error) {
	var out []ledger.CellChange
	change := func(f core.Field, to *int64) {
		from := row.Get(f)
		v := core.Value{Ref: to}
		if from.Equal(v) {
			return
		}
		out = append(out, ledger.CellChange{Field: f, Old: from, New: v})
		row.Set(f, v)
	}

	switch f {
	case core.FieldType:
		if !row.Type.IsCategoryType() {
			return nil, nil
		}
		if row.CategoryID != nil {
			if c, ok := m.lookups.Category(*row.CategoryID); ok && c.Type == row.Type {
				return nil, nil
			}
		}
		cat, err := m.lookups.DefaultCategory(ctx, row.Type)
		if err != nil {
			return nil, err
		}
		change(core.FieldCategory, core.Ref(cat))
		fallthrough
	case core.FieldCategory:
		if row.CategoryID == nil {
			change(core.FieldSubCategory, nil)
			break
		}
		if row.SubCategoryID != nil {
			if sc, ok := m.lookups.SubCategory(*row.SubCategoryID); ok && sc.CategoryID == *row.CategoryID {
				break
			}
		}
		sub, err := m.lookups.DefaultSubCategory(ctx, *row.CategoryID)
		if err != nil {
			return nil, err
		}
		change(core.FieldSubCategory, core.Ref(sub))
	}
	return out, nil
}

// AddRow appends a new row pre-filled with the configured defaults.
func (m *Model) AddRow(ctx context.Context) (ledger.RowRef, error) {
	row := m.defaultRow(ctx)
	e := newEntry(ledger.NewRowRef(), row, true)
	m.validate(e)
	m.rows = append(m.rows, e)
	m.byRef[e.ref] = e
	m.ledger.RecordRowAdd(e.ref, len(m.rows)-1, row)

	m.logger.DebugContext(ctx, "Row added", applog.FieldOperation, applog.OpAddRow, applog.FieldRow, len(m.rows)-1)
	return e.ref, nil
}

func (m *Model) defaultRow(ctx context.Context) core.Transaction {
	var row core.Transaction
	if m.defaults == nil {
		return row
	}
	for _, f := range core.Fields {
		raw := m.defaults.raw(f)
		if raw == "" {
			continue
		}
		v, err := m.coerce(ctx, row, f, raw)
		if err != nil {
			m.logger.WarnContext(ctx, "Ignoring row default",
				applog.FieldField, f.String(), applog.FieldError, err)
			continue
		}
		row.Set(f, v)
	}
	if m.defaults.DateToday {
		row.Date = core.Today(m.now())
	}
	if row.CategoryID == nil && row.Type.IsCategoryType() {
		if id, err := m.lookups.DefaultCategory(ctx, row.Type); err == nil {
			row.CategoryID = core.Ref(id)
		}
	}
	if row.CategoryID != nil && row.SubCategoryID == nil {
		if id, err := m.lookups.DefaultSubCategory(ctx, *row.CategoryID); err == nil {
			row.SubCategoryID = core.Ref(id)
		}
	}
	return row
}

// DeleteRows removes unsaved rows and marks persisted ones for deletion.
// The whole call is one undo step. Rows already marked are skipped.
func (m *Model) DeleteRows(ctx context.Context, indices ...int) error {
	seen := map[int]bool{}
	var sorted []int
	for _, i := range indices {
		if _, err := m.at(i); err != nil {
			return err
		}
		if !seen[i] {
			seen[i] = true
			sorted = append(sorted, i)
		}
	}
	sort.Ints(sorted)

	var rec []ledger.DeletedRow
	for _, i := range sorted {
		e := m.rows[i]
		if e.deleted {
			continue
		}
		rec = append(rec, ledger.DeletedRow{Ref: e.ref, Index: i, Row: e.row.Clone(), WasNew: e.isNew})
	}
	if len(rec) == 0 {
		return nil
	}

	t := target{m}
	for i := len(rec) - 1; i >= 0; i-- {
		d := rec[i]
		if d.WasNew {
			_ = t.RemoveRow(d.Ref)
		} else {
			_ = t.MarkDeleted(d.Ref, true)
		}
	}
	m.ledger.RecordRowDelete(rec)

	m.logger.DebugContext(ctx, "Rows deleted", applog.FieldOperation, applog.OpDelete, "count", len(rec))
	return nil
}

// Undo reverts the most recent intent.
func (m *Model) Undo() error {
	_, err := m.ledger.Undo(target{m})
	return err
}

// Redo re-applies the most recently undone intent.
func (m *Model) Redo() error {
	_, err := m.ledger.Redo(target{m})
	return err
}

func (m *Model) validate(e *entry) {
	e.errs = m.validator.ValidateRow(e.row)
}

// Validate re-checks every row against the current lookup tables.
func (m *Model) Validate() {
	for _, e := range m.rows {
		m.validate(e)
	}
}

func (m *Model) view(index int, e *entry) Row {
	r := Row{
		Index:   index,
		Ref:     e.ref,
		Data:    e.row.Clone(),
		Status:  e.status(),
		Invalid: len(e.errs) > 0,
		Errors:  append(validation.Errors(nil), e.errs...),
		Display: m.display(e.row),
	}
	for _, f := range core.Fields {
		if ce, ok := e.inputErrs[f]; ok {
			r.InputErrors = append(r.InputErrors, *ce)
		}
	}
	return r
}

func (m *Model) display(row core.Transaction) map[core.Field]string {
	out := make(map[core.Field]string, len(core.Fields))
	for _, f := range core.Fields {
		v := row.Get(f)
		switch {
		case f.IsReference():
			if v.Ref == nil {
				out[f] = ""
				break
			}
			kind, _ := lookup.KindOf(f)
			if name, ok := m.lookups.Reverse(kind, *v.Ref); ok {
				out[f] = name
			} else {
				out[f] = fmt.Sprintf("#%d", *v.Ref)
			}
		case f == core.FieldValue:
			if v.Amount.Valid {
				out[f] = core.FormatAmount(v.Amount.Decimal)
			} else {
				out[f] = ""
			}
		case f == core.FieldDate:
			out[f] = v.Date.String()
		default:
			out[f] = v.Text
		}
	}
	return out
}

func isField(f core.Field) bool {
	for _, k := range core.Fields {
		if k == f {
			return true
		}
	}
	return false
}
