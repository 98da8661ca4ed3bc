// Package validation checks transaction rows before they can be committed.
package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Reason classifies a field failure.
type Reason string

const (
	Required                Reason = "required"
	WrongType               Reason = "wrong_type"
	OutOfRange              Reason = "out_of_range"
	DanglingReference       Reason = "dangling_reference"
	InconsistentSubcategory Reason = "inconsistent_subcategory"
)

// FieldError reports one failing field of a row.
type FieldError struct {
	Field   core.Field
	Reason  Reason
	Message string
}

func (e FieldError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Reason, e.Message)
}

// Errors is the set of failures of one row, in field display order.
type Errors []FieldError

func (es Errors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// For returns the error recorded for field f, if any.
func (es Errors) For(f core.Field) (FieldError, bool) {
	for _, e := range es {
		if e.Field == f {
			return e, true
		}
	}
	return FieldError{}, false
}

// References is the lookup view rows are checked against.
type References interface {
	Account(id int64) (core.Account, bool)
	Category(id int64) (core.Category, bool)
	SubCategory(id int64) (core.SubCategory, bool)
}

// DefaultMaxAmount bounds the magnitude of a single transaction.
var DefaultMaxAmount = decimal.New(1, 12)

type Engine struct {
	refs      References
	maxAmount decimal.Decimal
}

type Option func(*Engine)

// WithMaxAmount overrides DefaultMaxAmount.
func WithMaxAmount(d decimal.Decimal) Option {
	return func(e *Engine) { e.maxAmount = d.Abs() }
}

func New(refs References, opts ...Option) *Engine {
	e := &Engine{refs: refs, maxAmount: DefaultMaxAmount}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ValidateRow runs every field rule against row. Rules are independent, so
// one row can report several failures. A nil result means the row is valid.
func (e *Engine) ValidateRow(row core.Transaction) Errors {
	var errs Errors
	add := func(f core.Field, r Reason, format string, args ...any) {
		errs = append(errs, FieldError{Field: f, Reason: r, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(row.Name) == "" {
		add(core.FieldName, Required, "name is empty")
	}

	switch {
	case !row.Value.Valid:
		add(core.FieldValue, Required, "value is empty")
	case row.Value.Decimal.Abs().GreaterThan(e.maxAmount):
		add(core.FieldValue, OutOfRange, "magnitude exceeds %s", e.maxAmount.String())
	}

	if row.AccountID == nil {
		add(core.FieldAccount, Required, "account is empty")
	} else if _, ok := e.refs.Account(*row.AccountID); !ok {
		add(core.FieldAccount, DanglingReference, "account %d does not exist", *row.AccountID)
	}

	switch {
	case row.Type == "":
		add(core.FieldType, Required, "type is empty")
	case !row.Type.IsValid():
		add(core.FieldType, WrongType, "%q is not one of Income, Expense, Transfer", string(row.Type))
	}

	var category *core.Category
	if row.CategoryID != nil {
		c, ok := e.refs.Category(*row.CategoryID)
		if !ok {
			add(core.FieldCategory, DanglingReference, "category %d does not exist", *row.CategoryID)
		} else {
			category = &c
			if row.Type.IsCategoryType() && c.Type != row.Type {
				add(core.FieldCategory, WrongType, "category %q is %s, row is %s", c.Name, c.Type, row.Type)
			}
		}
	}

	if row.SubCategoryID != nil {
		sc, ok := e.refs.SubCategory(*row.SubCategoryID)
		switch {
		case !ok:
			add(core.FieldSubCategory, DanglingReference, "sub-category %d does not exist", *row.SubCategoryID)
		case row.CategoryID == nil:
			add(core.FieldSubCategory, InconsistentSubcategory, "sub-category %q needs a category", sc.Name)
		case sc.CategoryID != *row.CategoryID:
			parent := fmt.Sprint(*row.CategoryID)
			if category != nil {
				parent = category.Name
			}
			add(core.FieldSubCategory, InconsistentSubcategory, "sub-category %q does not belong to %s", sc.Name, parent)
		}
	}

	switch {
	case row.Date.IsEmpty():
		add(core.FieldDate, Required, "date is empty")
	case row.Date.Year() < 1 || row.Date.Year() > 9999:
		add(core.FieldDate, OutOfRange, "year %d", row.Date.Year())
	}

	return errs
}
