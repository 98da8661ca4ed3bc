package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Field names a column of the transaction grid.
type Field string

const (
	FieldName        Field = "name"
	FieldValue       Field = "value"
	FieldAccount     Field = "account"
	FieldType        Field = "type"
	FieldCategory    Field = "category"
	FieldSubCategory Field = "sub_category"
	FieldDescription Field = "description"
	FieldDate        Field = "date"
)

// Fields lists the grid columns in display order.
var Fields = []Field{
	FieldName,
	FieldValue,
	FieldAccount,
	FieldType,
	FieldCategory,
	FieldSubCategory,
	FieldDescription,
	FieldDate,
}

var fieldAliases = map[string]Field{
	"subcategory":  FieldSubCategory,
	"sub-category": FieldSubCategory,
	"amount":       FieldValue,
	"desc":         FieldDescription,
}

// ParseField resolves a column name, accepting a few common aliases.
func ParseField(s string) (Field, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	f, ok := fieldAliases[s]
	return f, ok
}

// IsReference reports whether the field holds a foreign key.
func (f Field) IsReference() bool {
	switch f {
	case FieldAccount, FieldCategory, FieldSubCategory:
		return true
	default:
		return false
	}
}

func (f Field) String() string {
	return string(f)
}

// Value is the content of one cell in its semantic type. Only the member
// matching the field is meaningful.
type Value struct {
	Text   string
	Amount decimal.NullDecimal
	Date   Date
	Ref    *int64
}

// Equal compares two cell values member by member.
func (v Value) Equal(o Value) bool {
	if v.Text != o.Text || v.Amount.Valid != o.Amount.Valid {
		return false
	}
	if v.Amount.Valid && !v.Amount.Decimal.Equal(o.Amount.Decimal) {
		return false
	}
	return v.Date.Equal(o.Date) && RefEqual(v.Ref, o.Ref)
}

// Get reads field f of the transaction.
func (t Transaction) Get(f Field) Value {
	switch f {
	case FieldName:
		return Value{Text: t.Name}
	case FieldValue:
		return Value{Amount: t.Value}
	case FieldAccount:
		return Value{Ref: cloneRef(t.AccountID)}
	case FieldType:
		return Value{Text: string(t.Type)}
	case FieldCategory:
		return Value{Ref: cloneRef(t.CategoryID)}
	case FieldSubCategory:
		return Value{Ref: cloneRef(t.SubCategoryID)}
	case FieldDescription:
		return Value{Text: t.Description}
	case FieldDate:
		return Value{Date: t.Date}
	}
	return Value{}
}

// Set writes field f of the transaction.
func (t *Transaction) Set(f Field, v Value) {
	switch f {
	case FieldName:
		t.Name = v.Text
	case FieldValue:
		t.Value = v.Amount
	case FieldAccount:
		t.AccountID = cloneRef(v.Ref)
	case FieldType:
		t.Type = Type(v.Text)
	case FieldCategory:
		t.CategoryID = cloneRef(v.Ref)
	case FieldSubCategory:
		t.SubCategoryID = cloneRef(v.Ref)
	case FieldDescription:
		t.Description = v.Text
	case FieldDate:
		t.Date = v.Date
	}
}
