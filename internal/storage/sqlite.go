package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the finance tables in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *applog.Logger
}

var _ store.Store = (*SQLiteStore)(nil)

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and brings
// the schema up to date.
func NewSQLiteStore(dbPath string, logger *applog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = applog.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer; keeps pragmas and transactions on a single connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("SQLite store ready", applog.FieldPath, dbPath, applog.FieldSchema, version)
	return &SQLiteStore{db: db, path: dbPath, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// VacuumInto writes a consistent copy of the database to dest.
func (s *SQLiteStore) VacuumInto(ctx context.Context, dest string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

func (s *SQLiteStore) Accounts(ctx context.Context) ([]core.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.account, c.currency_code
		FROM bank_accounts a JOIN currencies c ON c.id = a.currency_id
		ORDER BY a.id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Currency); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Categories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, category, type FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var typ string
		if err := rows.Scan(&c.ID, &c.Name, &typ); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.Type(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SubCategories(ctx context.Context) ([]core.SubCategory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, sub_category, category_id FROM sub_categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sub-categories: %w", err)
	}
	defer rows.Close()

	var out []core.SubCategory
	for rows.Next() {
		var sc core.SubCategory
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.CategoryID); err != nil {
			return nil, fmt.Errorf("scan sub-category: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// CreateAccount inserts an account, registering currency first when the
// code is not yet known.
func (s *SQLiteStore) CreateAccount(ctx context.Context, name, currency string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO currencies (currency, currency_code) VALUES (?, ?)`, currency, currency); err != nil {
		return 0, fmt.Errorf("ensure currency %s: %w", currency, err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO bank_accounts (account, currency_id)
		VALUES (?, (SELECT id FROM currencies WHERE currency_code = ?))`, name, currency)
	if err != nil {
		return 0, fmt.Errorf("create account %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create account %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit account %q: %w", name, err)
	}
	s.logger.DebugContext(ctx, "Account created", applog.FieldID, id, applog.FieldName, name)
	return id, nil
}

func (s *SQLiteStore) CreateCategory(ctx context.Context, name string, t core.Type) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO categories (category, type) VALUES (?, ?)`, name, string(t))
	if err != nil {
		return 0, fmt.Errorf("create category %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create category %q: %w", name, err)
	}
	s.logger.DebugContext(ctx, "Category created", applog.FieldID, id, applog.FieldName, name)
	return id, nil
}

func (s *SQLiteStore) CreateSubCategory(ctx context.Context, name string, categoryID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sub_categories (sub_category, category_id) VALUES (?, ?)`, name, categoryID)
	if err != nil {
		return 0, fmt.Errorf("create sub-category %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create sub-category %q: %w", name, err)
	}
	s.logger.DebugContext(ctx, "Sub-category created", applog.FieldID, id, applog.FieldName, name)
	return id, nil
}

const selectTransactions = `
	SELECT id, transaction_name, transaction_description, account_id, transaction_value,
	       transaction_type, transaction_category, transaction_sub_category, transaction_date
	FROM transactions
	ORDER BY transaction_date DESC, id DESC`

func (s *SQLiteStore) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, selectTransactions)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (core.Transaction, error) {
	var (
		tx                 core.Transaction
		id, account        int64
		value, typ, date   string
		category, subCateg sql.NullInt64
	)
	if err := rows.Scan(&id, &tx.Name, &tx.Description, &account, &value, &typ, &category, &subCateg, &date); err != nil {
		return tx, fmt.Errorf("scan transaction: %w", err)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return tx, fmt.Errorf("transaction %d: amount %q: %w", id, value, err)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return tx, fmt.Errorf("transaction %d: date %q: %w", id, date, err)
	}
	tx.ID = core.Ref(id)
	tx.AccountID = core.Ref(account)
	tx.Value = core.NullAmount(amount)
	tx.Type = core.Type(typ)
	tx.Date = d
	if category.Valid {
		tx.CategoryID = core.Ref(category.Int64)
	}
	if subCateg.Valid {
		tx.SubCategoryID = core.Ref(subCateg.Int64)
	}
	return tx, nil
}

// Apply runs the batch in one transaction: deletes, updates, inserts. Any
// failure rolls back the whole batch.
func (s *SQLiteStore) Apply(ctx context.Context, b store.Batch) ([]int64, error) {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, id := range b.Deletes {
		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("delete transaction %d: %w", id, err)
		}
		if err := expectOne(res); err != nil {
			return nil, fmt.Errorf("delete transaction %d: %w", id, err)
		}
	}

	for _, row := range b.Updates {
		if row.ID == nil {
			return nil, errors.New("update transaction: missing id")
		}
		args, err := columns(row)
		if err != nil {
			return nil, fmt.Errorf("update transaction %d: %w", *row.ID, err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE transactions SET
				transaction_name = ?, transaction_description = ?, account_id = ?,
				transaction_value = ?, transaction_type = ?, transaction_category = ?,
				transaction_sub_category = ?, transaction_date = ?
			WHERE id = ?`, append(args, *row.ID)...)
		if err != nil {
			return nil, fmt.Errorf("update transaction %d: %w", *row.ID, err)
		}
		if err := expectOne(res); err != nil {
			return nil, fmt.Errorf("update transaction %d: %w", *row.ID, err)
		}
	}

	ids := make([]int64, 0, len(b.Inserts))
	for i, row := range b.Inserts {
		args, err := columns(row)
		if err != nil {
			return nil, fmt.Errorf("insert transaction %d: %w", i, err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (
				transaction_name, transaction_description, account_id,
				transaction_value, transaction_type, transaction_category,
				transaction_sub_category, transaction_date
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return nil, fmt.Errorf("insert transaction %d: %w", i, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert transaction %d: %w", i, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.InfoContext(ctx, "Batch applied",
		applog.FieldOperation, applog.OpApply,
		applog.FieldDeleted, len(b.Deletes),
		applog.FieldUpdated, len(b.Updates),
		applog.FieldInserted, len(b.Inserts),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return ids, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("row not found")
	}
	return nil
}

// columns renders a row in the column order shared by INSERT and UPDATE.
func columns(row core.Transaction) ([]any, error) {
	if row.AccountID == nil {
		return nil, errors.New("account is required")
	}
	if !row.Value.Valid {
		return nil, errors.New("value is required")
	}
	if row.Date.IsEmpty() {
		return nil, errors.New("date is required")
	}
	return []any{
		row.Name,
		row.Description,
		*row.AccountID,
		core.FormatAmount(row.Value.Decimal),
		string(row.Type),
		nullable(row.CategoryID),
		nullable(row.SubCategoryID),
		row.Date.String(),
	}, nil
}

func nullable(ref *int64) sql.NullInt64 {
	if ref == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *ref, Valid: true}
}
