package grid

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/lookup"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
	"fintrack/internal/validation"
)

type fixture struct {
	store    *memory.Store
	lookups  *lookup.Resolver
	model    *Model
	checking int64
	food     int64
}

// newFixture seeds one account, one Expense category and one persisted row
// ("Rent") and loads the grid.
func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	checking, err := s.CreateAccount(ctx, "Checking", "EUR")
	require.NoError(t, err)
	food, err := s.CreateCategory(ctx, "Food", core.TypeExpense)
	require.NoError(t, err)
	_, err = s.Apply(ctx, store.Batch{Inserts: []core.Transaction{{
		Name:      "Rent",
		Value:     core.NullAmount(decimal.NewFromInt(-900)),
		AccountID: core.Ref(checking),
		Type:      core.TypeExpense,
		Date:      core.NewDate(2024, 1, 1),
	}}})
	require.NoError(t, err)

	r := lookup.New(s, s, lookup.Options{})
	m := NewModel(s, r, nil, opts)
	require.NoError(t, m.Load(ctx))
	return &fixture{store: s, lookups: r, model: m, checking: checking, food: food}
}

func fill(t *testing.T, m *Model, index int, cells map[core.Field]string) {
	t.Helper()
	for _, f := range core.Fields {
		if raw, ok := cells[f]; ok {
			require.NoError(t, m.SetCell(context.Background(), index, f, raw), f)
		}
	}
}

func TestLoad(t *testing.T) {
	fx := newFixture(t, Options{})
	require.Equal(t, 1, fx.model.Len())

	row, err := fx.model.GetRow(0)
	require.NoError(t, err)
	assert.Equal(t, Clean, row.Status)
	assert.False(t, row.Invalid)
	assert.Equal(t, "Checking", row.Display[core.FieldAccount])
	assert.Equal(t, "-900.00", row.Display[core.FieldValue])
	assert.Equal(t, "2024-01-01", row.Display[core.FieldDate])
	assert.False(t, fx.model.HasChanges())
}

func TestAddressing(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()

	_, err := fx.model.GetRow(5)
	assert.ErrorIs(t, err, ErrRowOutOfRange)
	assert.ErrorIs(t, fx.model.SetCell(ctx, -1, core.FieldName, "x"), ErrRowOutOfRange)
	assert.ErrorIs(t, fx.model.SetCell(ctx, 0, core.Field("colour"), "x"), ErrUnknownField)
	assert.ErrorIs(t, fx.model.DeleteRows(ctx, 0, 3), ErrRowOutOfRange)

	row, _ := fx.model.GetRow(0)
	assert.Equal(t, Clean, row.Status, "failed delete touches nothing")
}

func TestEditMarksModified(t *testing.T) {
	fx := newFixture(t, Options{})
	require.NoError(t, fx.model.SetCell(context.Background(), 0, core.FieldName, "Rent March"))

	row, _ := fx.model.GetRow(0)
	assert.Equal(t, Modified, row.Status)
	assert.Equal(t, "Rent March", row.Data.Name)
	assert.True(t, fx.model.HasChanges())

	pending := fx.model.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, Modified, pending[0].Status)
}

func TestSettingSameValueRecordsNothing(t *testing.T) {
	fx := newFixture(t, Options{})
	require.NoError(t, fx.model.SetCell(context.Background(), 0, core.FieldAccount, "checking"))

	row, _ := fx.model.GetRow(0)
	assert.Equal(t, Clean, row.Status)
	undo, _ := fx.model.Depth()
	assert.Zero(t, undo)
}

func TestEditsThenEqualUndosRestoreState(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	before := fx.model.Snapshot()

	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldValue, "-950"))
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldCategory, "Food"))
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldDescription, "late"))
	_, err := fx.model.AddRow(ctx)
	require.NoError(t, err)
	require.NoError(t, fx.model.DeleteRows(ctx, 0))

	for i := 0; i < 5; i++ {
		require.NoError(t, fx.model.Undo())
	}
	assert.Equal(t, before, fx.model.Snapshot())
	assert.ErrorIs(t, fx.model.Undo(), ledger.ErrNothingToUndo)
}

func TestUndoThenRedoReproducesState(t *testing.T) {
	ctx := context.Background()
	intents := map[string]func(m *Model) error{
		"edit": func(m *Model) error { return m.SetCell(ctx, 0, core.FieldName, "Rent 2") },
		"add": func(m *Model) error {
			_, err := m.AddRow(ctx)
			return err
		},
		"delete": func(m *Model) error { return m.DeleteRows(ctx, 0) },
	}
	for name, intent := range intents {
		t.Run(name, func(t *testing.T) {
			fx := newFixture(t, Options{})
			require.NoError(t, intent(fx.model))
			after := fx.model.Snapshot()

			require.NoError(t, fx.model.Undo())
			require.NoError(t, fx.model.Redo())
			assert.Equal(t, after, fx.model.Snapshot())
		})
	}
}

func TestNewEditDiscardsRedo(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldName, "a"))
	require.NoError(t, fx.model.Undo())
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldName, "b"))

	assert.ErrorIs(t, fx.model.Redo(), ledger.ErrNothingToRedo)
	row, _ := fx.model.GetRow(0)
	assert.Equal(t, "b", row.Data.Name)
}

func TestCoercionErrorKeepsPreviousValue(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()

	err := fx.model.SetCell(ctx, 0, core.FieldValue, "abc")
	var ce *CoercionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.FieldValue, ce.Field)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	row, _ := fx.model.GetRow(0)
	assert.Equal(t, Clean, row.Status)
	assert.False(t, row.Invalid)
	assert.Equal(t, "-900.00", row.Display[core.FieldValue])
	require.Len(t, row.InputErrors, 1)
	assert.Equal(t, "abc", row.InputErrors[0].Input)

	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldValue, "-901"))
	row, _ = fx.model.GetRow(0)
	assert.Empty(t, row.InputErrors, "a successful set clears the input error")
}

func TestBadDateIsCoercionError(t *testing.T) {
	fx := newFixture(t, Options{})
	err := fx.model.SetCell(context.Background(), 0, core.FieldDate, "2024-02-30")
	var ce *CoercionError
	assert.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}

func TestCategoryTypeMismatchMarksInvalid(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldType, "income"))
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldCategory, "Food"))

	row, _ := fx.model.GetRow(0)
	assert.Equal(t, Modified, row.Status)
	assert.True(t, row.Invalid)
	fe, ok := row.Errors.For(core.FieldCategory)
	require.True(t, ok)
	assert.Equal(t, validation.WrongType, fe.Reason)
	assert.Equal(t, core.TypeIncome, row.Data.Type)
	assert.Equal(t, fx.food, *row.Data.CategoryID, "existing category reused")
}

func TestUnknownTypeFailsValidation(t *testing.T) {
	fx := newFixture(t, Options{})
	require.NoError(t, fx.model.SetCell(context.Background(), 0, core.FieldType, "Refund"))
	row, _ := fx.model.GetRow(0)
	fe, ok := row.Errors.For(core.FieldType)
	require.True(t, ok)
	assert.Equal(t, validation.WrongType, fe.Reason)
}

func TestSubCategoryNeedsCategory(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()

	err := fx.model.SetCell(ctx, 0, core.FieldSubCategory, "Groceries")
	assert.ErrorIs(t, err, lookup.ErrMissingParent)
	subs, _ := fx.store.SubCategories(ctx)
	assert.Empty(t, subs)

	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldCategory, "Food"))
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldSubCategory, "Groceries"))
	row, _ := fx.model.GetRow(0)
	assert.False(t, row.Invalid)
	assert.Equal(t, "Groceries", row.Display[core.FieldSubCategory])
}

func TestTypeChangeResetsCategoriesInOneStep(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldCategory, "Food"))
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldSubCategory, "Groceries"))
	before := fx.model.Snapshot()

	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldType, "income"))
	row, _ := fx.model.GetRow(0)
	assert.False(t, row.Invalid)
	assert.Equal(t, lookup.Uncategorized, row.Display[core.FieldCategory])
	assert.Equal(t, lookup.Uncategorized, row.Display[core.FieldSubCategory])
	c, ok := fx.lookups.Category(*row.Data.CategoryID)
	require.True(t, ok)
	assert.Equal(t, core.TypeIncome, c.Type)
	sc, ok := fx.lookups.SubCategory(*row.Data.SubCategoryID)
	require.True(t, ok)
	assert.Equal(t, c.ID, sc.CategoryID)
	after := fx.model.Snapshot()

	require.NoError(t, fx.model.Undo())
	assert.Equal(t, before, fx.model.Snapshot())
	require.NoError(t, fx.model.Redo())
	assert.Equal(t, after, fx.model.Snapshot())

	for i := 0; i < 3; i++ {
		require.NoError(t, fx.model.Undo())
	}
	row, _ = fx.model.GetRow(0)
	assert.Equal(t, Clean, row.Status)
}

func TestCategoryChangeResetsSubCategory(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldCategory, "Food"))
	row, _ := fx.model.GetRow(0)
	assert.Equal(t, lookup.Uncategorized, row.Display[core.FieldSubCategory])

	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldSubCategory, "Groceries"))
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldCategory, "Travel"))
	row, _ = fx.model.GetRow(0)
	assert.False(t, row.Invalid)
	assert.Equal(t, "Travel", row.Display[core.FieldCategory])
	assert.Equal(t, lookup.Uncategorized, row.Display[core.FieldSubCategory])
	sc, ok := fx.lookups.SubCategory(*row.Data.SubCategoryID)
	require.True(t, ok)
	assert.Equal(t, *row.Data.CategoryID, sc.CategoryID)

	require.NoError(t, fx.model.Undo())
	row, _ = fx.model.GetRow(0)
	assert.Equal(t, "Food", row.Display[core.FieldCategory])
	assert.Equal(t, "Groceries", row.Display[core.FieldSubCategory])

	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldCategory, ""))
	row, _ = fx.model.GetRow(0)
	assert.Nil(t, row.Data.CategoryID)
	assert.Nil(t, row.Data.SubCategoryID, "clearing the category clears its sub-category")
}

func TestTypeChangeKeepsFittingCategory(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldCategory, "Food"))
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldSubCategory, "Groceries"))

	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldType, "transfer"))
	row, _ := fx.model.GetRow(0)
	assert.Equal(t, fx.food, *row.Data.CategoryID, "transfers keep their category")

	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldType, "expense"))
	row, _ = fx.model.GetRow(0)
	assert.Equal(t, fx.food, *row.Data.CategoryID)
	assert.Equal(t, "Groceries", row.Display[core.FieldSubCategory])
	undo, _ := fx.model.Depth()
	assert.Equal(t, 4, undo)
}

func TestAddRowFallsBackToUncategorized(t *testing.T) {
	fx := newFixture(t, Options{Defaults: &Defaults{Type: "income"}})
	ctx := context.Background()
	_, err := fx.model.AddRow(ctx)
	require.NoError(t, err)

	row, _ := fx.model.GetRow(1)
	assert.Equal(t, lookup.Uncategorized, row.Display[core.FieldCategory])
	assert.Equal(t, lookup.Uncategorized, row.Display[core.FieldSubCategory])
	_, ok := row.Errors.For(core.FieldCategory)
	assert.False(t, ok)
	undo, _ := fx.model.Depth()
	assert.Equal(t, 1, undo)
}

func TestDeletePersistedRowThenUndo(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldName, "Rent (edited)"))
	before, _ := fx.model.GetRow(0)

	require.NoError(t, fx.model.DeleteRows(ctx, 0))
	row, _ := fx.model.GetRow(0)
	assert.Equal(t, Deleted, row.Status)
	assert.ErrorIs(t, fx.model.SetCell(ctx, 0, core.FieldName, "x"), ErrRowDeleted)

	require.NoError(t, fx.model.Undo())
	after, _ := fx.model.GetRow(0)
	assert.Equal(t, before, after)
	assert.Equal(t, Modified, after.Status)
}

func TestDeleteNewRowRemovesIt(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	ref, err := fx.model.AddRow(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, fx.model.Len())

	require.NoError(t, fx.model.DeleteRows(ctx, 1))
	assert.Equal(t, 1, fx.model.Len())
	_, ok := fx.model.IndexOf(ref)
	assert.False(t, ok)

	require.NoError(t, fx.model.Undo())
	i, ok := fx.model.IndexOf(ref)
	require.True(t, ok)
	row, _ := fx.model.GetRow(i)
	assert.Equal(t, New, row.Status)
}

func TestDeleteManyIsOneUndoStep(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	_, err := fx.model.AddRow(ctx)
	require.NoError(t, err)
	_, err = fx.model.AddRow(ctx)
	require.NoError(t, err)
	before := fx.model.Snapshot()

	require.NoError(t, fx.model.DeleteRows(ctx, 2, 0, 1, 2))
	assert.Equal(t, 1, fx.model.Len())
	row, _ := fx.model.GetRow(0)
	assert.Equal(t, Deleted, row.Status)

	require.NoError(t, fx.model.Undo())
	assert.Equal(t, before, fx.model.Snapshot())
}

func TestUndoAddRemovesRowEntirely(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	_, err := fx.model.AddRow(ctx)
	require.NoError(t, err)
	require.NoError(t, fx.model.SetCell(ctx, 1, core.FieldName, "Coffee"))
	require.NoError(t, fx.model.SetCell(ctx, 1, core.FieldValue, "-4.50"))

	row, _ := fx.model.GetRow(1)
	assert.Equal(t, New, row.Status, "new rows stay New when edited")

	for i := 0; i < 3; i++ {
		require.NoError(t, fx.model.Undo())
	}
	assert.Equal(t, 1, fx.model.Len())
	assert.False(t, fx.model.HasChanges())
}

func TestAddRowAppliesDefaults(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 6, 15, 22, 0, 0, 0, time.UTC) }
	fx := newFixture(t, Options{
		Now: now,
		Defaults: &Defaults{
			Value:     "0",
			Type:      "expense",
			Account:   "Checking",
			Category:  "Food",
			DateToday: true,
		},
	})
	ctx := context.Background()

	_, err := fx.model.AddRow(ctx)
	require.NoError(t, err)
	row, _ := fx.model.GetRow(1)
	assert.Equal(t, New, row.Status)
	assert.Equal(t, fx.checking, *row.Data.AccountID)
	assert.Equal(t, fx.food, *row.Data.CategoryID)
	assert.Equal(t, core.TypeExpense, row.Data.Type)
	assert.Equal(t, "2024-06-15", row.Display[core.FieldDate])

	// only the name is missing
	require.Len(t, row.Errors, 1)
	assert.Equal(t, core.FieldName, row.Errors[0].Field)

	undo, _ := fx.model.Depth()
	assert.Equal(t, 1, undo, "defaults add no undo records")
}

func TestAddRowWithoutDefaultsIsEmpty(t *testing.T) {
	fx := newFixture(t, Options{})
	_, err := fx.model.AddRow(context.Background())
	require.NoError(t, err)
	row, _ := fx.model.GetRow(1)
	assert.True(t, row.Invalid)
	assert.Nil(t, row.Data.ID)
	assert.Equal(t, "", row.Display[core.FieldAccount])
}

func TestDiscardReloads(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	before := fx.model.Snapshot()

	require.NoError(t, fx.model.SetCell(ctx, 0, core.FieldName, "changed"))
	_, err := fx.model.AddRow(ctx)
	require.NoError(t, err)
	require.NoError(t, fx.model.Discard(ctx))

	after := fx.model.Snapshot()
	require.Len(t, after, 1)
	assert.Equal(t, before[0].Data, after[0].Data)
	assert.Equal(t, Clean, after[0].Status)
	undo, redo := fx.model.Depth()
	assert.Zero(t, undo+redo)
}

func TestReconcilePartial(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	good, _ := fx.model.AddRow(ctx)
	bad, _ := fx.model.AddRow(ctx)
	require.NoError(t, fx.model.SetCell(ctx, 2, core.FieldName, "still broken"))

	fx.model.Reconcile(Committed{
		Inserted: map[ledger.RowRef]int64{good: 42},
		Rejected: map[ledger.RowRef]validation.Errors{bad: {{Field: core.FieldValue, Reason: validation.Required}}},
	})

	i, _ := fx.model.IndexOf(good)
	row, _ := fx.model.GetRow(i)
	assert.Equal(t, Clean, row.Status)
	assert.Equal(t, int64(42), *row.Data.ID)

	i, _ = fx.model.IndexOf(bad)
	row, _ = fx.model.GetRow(i)
	assert.Equal(t, New, row.Status)

	// the rejected row's history survives: edit then add
	require.NoError(t, fx.model.Undo())
	require.NoError(t, fx.model.Undo())
	_, ok := fx.model.IndexOf(bad)
	assert.False(t, ok)
	_, ok = fx.model.IndexOf(good)
	assert.True(t, ok)
	assert.ErrorIs(t, fx.model.Undo(), ledger.ErrNothingToUndo)
}
