package grid

import (
	"context"
	"errors"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/lookup"
)

// coerce turns raw input into the semantic value of field f. Empty input
// clears the cell. Reference fields are resolved, creating the entity if
// needed, with row supplying the type and parent category.
func (m *Model) coerce(ctx context.Context, row core.Transaction, f core.Field, raw string) (core.Value, error) {
	text := strings.TrimSpace(raw)
	switch f {
	case core.FieldValue:
		if text == "" {
			return core.Value{}, nil
		}
		d, err := core.ParseAmount(text)
		if err != nil {
			return core.Value{}, &CoercionError{Field: f, Input: raw, Err: err}
		}
		return core.Value{Amount: core.NullAmount(d)}, nil

	case core.FieldDate:
		if text == "" {
			return core.Value{}, nil
		}
		d, err := core.ParseDate(text)
		if err != nil {
			return core.Value{}, &CoercionError{Field: f, Input: raw, Err: err}
		}
		return core.Value{Date: d}, nil

	case core.FieldType:
		// unknown types pass through and fail validation instead
		t, _ := core.ParseType(text)
		return core.Value{Text: string(t)}, nil

	case core.FieldAccount, core.FieldCategory, core.FieldSubCategory:
		if text == "" {
			return core.Value{}, nil
		}
		kind, _ := lookup.KindOf(f)
		id, err := m.lookups.Resolve(ctx, kind, text, lookup.Hint{Type: row.Type, ParentID: row.CategoryID})
		if errors.Is(err, lookup.ErrMissingParent) {
			return core.Value{}, &CoercionError{Field: f, Input: raw, Err: err}
		}
		if err != nil {
			return core.Value{}, err
		}
		return core.Value{Ref: core.Ref(id)}, nil

	case core.FieldName:
		return core.Value{Text: text}, nil

	default:
		return core.Value{Text: raw}, nil
	}
}
