package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeIncome   Type = "Income"
	TypeExpense  Type = "Expense"
	TypeTransfer Type = "Transfer"
)

// DateLayout is the storage and display format of transaction dates.
const DateLayout = "2006-01-02"

type (
	// Type classifies transactions (Income, Expense, Transfer) and
	// categories (Income, Expense only).
	Type string

	Date struct {
		time.Time
	}

	Account struct {
		ID       int64
		Name     string
		Currency string // ISO 4217 code
	}

	Category struct {
		ID   int64
		Name string
		Type Type
	}

	SubCategory struct {
		ID         int64
		Name       string
		CategoryID int64
	}

	// Transaction is one row of the editable grid. ID is nil until the row
	// has been persisted; reference fields are nil when unset.
	Transaction struct {
		ID            *int64
		Name          string
		Value         decimal.NullDecimal
		AccountID     *int64
		Type          Type
		CategoryID    *int64
		SubCategoryID *int64
		Description   string
		Date          Date
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Types lists every transaction type in display order.
var Types = []Type{TypeIncome, TypeExpense, TypeTransfer}

// ParseType matches s case-insensitively against the known types.
func ParseType(s string) (Type, bool) {
	s = strings.TrimSpace(s)
	for _, t := range Types {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return Type(s), false
}

// IsValid reports whether t is one of the three transaction types.
func (t Type) IsValid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer:
		return true
	default:
		return false
	}
}

// IsCategoryType reports whether a category may carry t.
func (t Type) IsCategoryType() bool {
	return t == TypeIncome || t == TypeExpense
}

func (t Type) String() string {
	return string(t)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar date in UTC.
func Today(now time.Time) Date {
	y, m, d := now.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses YYYY-MM-DD (also accepting slashes) into a Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	for _, layout := range []string{DateLayout, "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t}, nil
		}
	}
	return Date{}, ErrInvalidDate
}

// IsEmpty returns true if the date is unset.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// String formats the date as YYYY-MM-DD, or "" when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Equal compares calendar dates.
func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

// IsPersisted reports whether the store has assigned an identifier.
func (t Transaction) IsPersisted() bool {
	return t.ID != nil
}

// Clone returns a copy that shares no pointers with t.
func (t Transaction) Clone() Transaction {
	c := t
	c.ID = cloneRef(t.ID)
	c.AccountID = cloneRef(t.AccountID)
	c.CategoryID = cloneRef(t.CategoryID)
	c.SubCategoryID = cloneRef(t.SubCategoryID)
	return c
}

// Ref returns a pointer to a copy of id.
func Ref(id int64) *int64 {
	return &id
}

func cloneRef(r *int64) *int64 {
	if r == nil {
		return nil
	}
	v := *r
	return &v
}

// RefEqual compares two optional identifiers.
func RefEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
