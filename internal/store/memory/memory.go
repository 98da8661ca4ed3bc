package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

// Store keeps the relational tables in memory. It enforces the same
// uniqueness and foreign-key rules as the SQLite schema.
type Store struct {
	mu    sync.Mutex
	state tables

	// FailApply, when set, is consulted after a batch has been applied to
	// the working copy and before it is swapped in. A non-nil error aborts
	// the batch.
	FailApply func(b store.Batch) error
}

type tables struct {
	nextID     int64
	accounts   []core.Account
	categories []core.Category
	subs       []core.SubCategory
	txs        map[int64]core.Transaction
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: tables{txs: map[int64]core.Transaction{}}}
}

// NewFromFiles seeds accounts and categories from base/seed_accounts.txt and
// base/seed_categories.txt. Category lines are "Type:Name" or
// "Type:Name > Sub". Missing files leave the tables empty.
func NewFromFiles(ctx context.Context, base, currency string) (*Store, error) {
	s := New()
	for _, name := range readLines(filepath.Join(base, "seed_accounts.txt")) {
		if _, err := s.CreateAccount(ctx, name, currency); err != nil {
			return nil, err
		}
	}
	for _, line := range readLines(filepath.Join(base, "seed_categories.txt")) {
		typ, rest, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("seed category %q: missing type prefix", line)
		}
		t, ok := core.ParseType(typ)
		if !ok || !t.IsCategoryType() {
			return nil, fmt.Errorf("seed category %q: invalid type %q", line, typ)
		}
		catName, subName, hasSub := strings.Cut(rest, ">")
		catID, err := s.ensureCategory(strings.TrimSpace(catName), t)
		if err != nil {
			return nil, err
		}
		if hasSub {
			if _, err := s.CreateSubCategory(ctx, strings.TrimSpace(subName), catID); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Accounts(_ context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Account(nil), s.state.accounts...), nil
}

func (s *Store) Categories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.state.categories...), nil
}

func (s *Store) SubCategories(_ context.Context) ([]core.SubCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.SubCategory(nil), s.state.subs...), nil
}

func (s *Store) CreateAccount(_ context.Context, name, currency string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.state.accounts {
		if a.Name == name {
			return 0, fmt.Errorf("account %q already exists", name)
		}
	}
	s.state.nextID++
	s.state.accounts = append(s.state.accounts, core.Account{ID: s.state.nextID, Name: name, Currency: currency})
	return s.state.nextID, nil
}

func (s *Store) CreateCategory(_ context.Context, name string, t core.Type) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.IsCategoryType() {
		return 0, fmt.Errorf("invalid category type %q", t)
	}
	for _, c := range s.state.categories {
		if c.Name == name && c.Type == t {
			return 0, fmt.Errorf("category %q (%s) already exists", name, t)
		}
	}
	s.state.nextID++
	s.state.categories = append(s.state.categories, core.Category{ID: s.state.nextID, Name: name, Type: t})
	return s.state.nextID, nil
}

func (s *Store) CreateSubCategory(_ context.Context, name string, categoryID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.hasCategory(categoryID) {
		return 0, fmt.Errorf("category %d does not exist", categoryID)
	}
	for _, sc := range s.state.subs {
		if sc.Name == name && sc.CategoryID == categoryID {
			return 0, fmt.Errorf("sub-category %q already exists under category %d", name, categoryID)
		}
	}
	s.state.nextID++
	s.state.subs = append(s.state.subs, core.SubCategory{ID: s.state.nextID, Name: name, CategoryID: categoryID})
	return s.state.nextID, nil
}

func (s *Store) ensureCategory(name string, t core.Type) (int64, error) {
	s.mu.Lock()
	for _, c := range s.state.categories {
		if c.Name == name && c.Type == t {
			s.mu.Unlock()
			return c.ID, nil
		}
	}
	s.mu.Unlock()
	return s.CreateCategory(context.Background(), name, t)
}

// ListTransactions returns rows ordered by date then id, newest first.
func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.state.txs))
	for _, tx := range s.state.txs {
		out = append(out, tx.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return *out[i].ID > *out[j].ID
	})
	return out, nil
}

// Apply runs the batch against a copy of the tables and swaps it in only
// when every operation succeeded.
func (s *Store) Apply(_ context.Context, b store.Batch) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	for _, id := range b.Deletes {
		if _, ok := work.txs[id]; !ok {
			return nil, fmt.Errorf("delete transaction %d: not found", id)
		}
		delete(work.txs, id)
	}
	for _, tx := range b.Updates {
		if tx.ID == nil {
			return nil, fmt.Errorf("update transaction: missing id")
		}
		if _, ok := work.txs[*tx.ID]; !ok {
			return nil, fmt.Errorf("update transaction %d: not found", *tx.ID)
		}
		if err := work.checkRow(tx); err != nil {
			return nil, fmt.Errorf("update transaction %d: %w", *tx.ID, err)
		}
		work.txs[*tx.ID] = tx.Clone()
	}
	ids := make([]int64, 0, len(b.Inserts))
	for i, tx := range b.Inserts {
		if err := work.checkRow(tx); err != nil {
			return nil, fmt.Errorf("insert transaction %d: %w", i, err)
		}
		work.nextID++
		row := tx.Clone()
		row.ID = core.Ref(work.nextID)
		work.txs[work.nextID] = row
		ids = append(ids, work.nextID)
	}
	if s.FailApply != nil {
		if err := s.FailApply(b); err != nil {
			return nil, err
		}
	}
	s.state = work
	return ids, nil
}

func (t tables) clone() tables {
	c := tables{
		nextID:     t.nextID,
		accounts:   append([]core.Account(nil), t.accounts...),
		categories: append([]core.Category(nil), t.categories...),
		subs:       append([]core.SubCategory(nil), t.subs...),
		txs:        make(map[int64]core.Transaction, len(t.txs)),
	}
	for id, tx := range t.txs {
		c.txs[id] = tx.Clone()
	}
	return c
}

// checkRow mirrors the NOT NULL, CHECK and FOREIGN KEY constraints of the
// transactions table.
func (t tables) checkRow(tx core.Transaction) error {
	if tx.AccountID == nil || !t.hasAccount(*tx.AccountID) {
		return fmt.Errorf("foreign key: account")
	}
	if !tx.Type.IsValid() {
		return fmt.Errorf("check: transaction type %q", tx.Type)
	}
	if !tx.Value.Valid {
		return fmt.Errorf("not null: value")
	}
	if tx.Date.IsEmpty() {
		return fmt.Errorf("not null: date")
	}
	if tx.CategoryID != nil && !t.hasCategory(*tx.CategoryID) {
		return fmt.Errorf("foreign key: category")
	}
	if tx.SubCategoryID != nil && !t.hasSub(*tx.SubCategoryID) {
		return fmt.Errorf("foreign key: sub-category")
	}
	return nil
}

func (t tables) hasAccount(id int64) bool {
	for _, a := range t.accounts {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (t tables) hasCategory(id int64) bool {
	for _, c := range t.categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (t tables) hasSub(id int64) bool {
	for _, sc := range t.subs {
		if sc.ID == id {
			return true
		}
	}
	return false
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
