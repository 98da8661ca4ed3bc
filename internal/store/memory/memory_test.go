package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

func seeded(t *testing.T) (*Store, int64, int64) {
	t.Helper()
	ctx := context.Background()
	s := New()
	acc, err := s.CreateAccount(ctx, "Checking", "EUR")
	require.NoError(t, err)
	cat, err := s.CreateCategory(ctx, "Food", core.TypeExpense)
	require.NoError(t, err)
	return s, acc, cat
}

func row(acc int64, name string) core.Transaction {
	return core.Transaction{
		Name:      name,
		Value:     core.NullAmount(decimal.RequireFromString("-4.50")),
		AccountID: core.Ref(acc),
		Type:      core.TypeExpense,
		Date:      core.NewDate(2024, 3, 1),
	}
}

func TestApplyInsertsReturnIDsInOrder(t *testing.T) {
	s, acc, _ := seeded(t)
	ids, err := s.Apply(context.Background(), store.Batch{Inserts: []core.Transaction{row(acc, "a"), row(acc, "b")}})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1])

	txs, err := s.ListTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 2)
	// same date: newest id first
	assert.Equal(t, "b", txs[0].Name)
}

func TestApplyIsAllOrNothing(t *testing.T) {
	s, acc, _ := seeded(t)
	ctx := context.Background()
	ids, err := s.Apply(ctx, store.Batch{Inserts: []core.Transaction{row(acc, "keep")}})
	require.NoError(t, err)

	bad := row(acc, "bad")
	bad.AccountID = core.Ref(999)
	_, err = s.Apply(ctx, store.Batch{
		Deletes: []int64{ids[0]},
		Inserts: []core.Transaction{row(acc, "new"), bad},
	})
	require.Error(t, err)

	txs, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "keep", txs[0].Name)
}

func TestFailApplyHook(t *testing.T) {
	s, acc, _ := seeded(t)
	boom := errors.New("disk full")
	s.FailApply = func(store.Batch) error { return boom }

	_, err := s.Apply(context.Background(), store.Batch{Inserts: []core.Transaction{row(acc, "x")}})
	assert.ErrorIs(t, err, boom)

	txs, _ := s.ListTransactions(context.Background())
	assert.Empty(t, txs)
}

func TestForeignKeys(t *testing.T) {
	s, acc, cat := seeded(t)
	ctx := context.Background()

	tx := row(acc, "x")
	tx.CategoryID = core.Ref(cat + 100)
	_, err := s.Apply(ctx, store.Batch{Inserts: []core.Transaction{tx}})
	assert.Error(t, err)

	tx.CategoryID = core.Ref(cat)
	tx.SubCategoryID = core.Ref(12345)
	_, err = s.Apply(ctx, store.Batch{Inserts: []core.Transaction{tx}})
	assert.Error(t, err)

	_, err = s.CreateSubCategory(ctx, "Groceries", cat+100)
	assert.Error(t, err)
}

func TestUniqueness(t *testing.T) {
	s, _, cat := seeded(t)
	ctx := context.Background()

	_, err := s.CreateAccount(ctx, "Checking", "EUR")
	assert.Error(t, err)
	_, err = s.CreateCategory(ctx, "Food", core.TypeExpense)
	assert.Error(t, err)
	_, err = s.CreateCategory(ctx, "Food", core.TypeIncome)
	assert.NoError(t, err)
	_, err = s.CreateCategory(ctx, "Moves", core.TypeTransfer)
	assert.Error(t, err)

	_, err = s.CreateSubCategory(ctx, "Groceries", cat)
	require.NoError(t, err)
	_, err = s.CreateSubCategory(ctx, "Groceries", cat)
	assert.Error(t, err)
}

func TestUpdateAndDeleteMissingRow(t *testing.T) {
	s, acc, _ := seeded(t)
	ctx := context.Background()

	_, err := s.Apply(ctx, store.Batch{Deletes: []int64{42}})
	assert.Error(t, err)

	tx := row(acc, "ghost")
	tx.ID = core.Ref(42)
	_, err = s.Apply(ctx, store.Batch{Updates: []core.Transaction{tx}})
	assert.Error(t, err)
}

func TestListReturnsCopies(t *testing.T) {
	s, acc, _ := seeded(t)
	ctx := context.Background()
	_, err := s.Apply(ctx, store.Batch{Inserts: []core.Transaction{row(acc, "x")}})
	require.NoError(t, err)

	txs, _ := s.ListTransactions(ctx)
	*txs[0].AccountID = 777
	txs[0].Name = "mutated"

	again, _ := s.ListTransactions(ctx)
	assert.Equal(t, "x", again[0].Name)
	assert.Equal(t, acc, *again[0].AccountID)
}

func TestNewFromFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed_accounts.txt"),
		[]byte("Checking\n# comment\n\nSavings\nChecking\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed_categories.txt"),
		[]byte("Expense:Food > Groceries\nExpense:Food > Restaurants\nIncome:Salary\n"), 0o644))

	s, err := NewFromFiles(context.Background(), dir, "EUR")
	require.NoError(t, err)

	accs, _ := s.Accounts(context.Background())
	assert.Len(t, accs, 2)
	cats, _ := s.Categories(context.Background())
	assert.Len(t, cats, 2)
	subs, _ := s.SubCategories(context.Background())
	assert.Len(t, subs, 2)
	assert.Equal(t, subs[0].CategoryID, subs[1].CategoryID)
}

func TestNewFromFilesMissingDir(t *testing.T) {
	s, err := NewFromFiles(context.Background(), filepath.Join(t.TempDir(), "nope"), "EUR")
	require.NoError(t, err)
	accs, _ := s.Accounts(context.Background())
	assert.Empty(t, accs)
}
