package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
	FieldRow       = "row"
	FieldRowID     = "row_id"
	FieldField     = "field"
	FieldKind      = "kind"
	FieldName      = "name"
	FieldID        = "id"
	FieldApplied   = "applied"
	FieldInserted  = "inserted"
	FieldUpdated   = "updated"
	FieldDeleted   = "deleted"
	FieldRejected  = "rejected"
	FieldUndo      = "undo_depth"
	FieldRedo      = "redo_depth"
	FieldPath      = "path"
	FieldBackend   = "backend"
	FieldSchema    = "schema_version"
)

// Components double as the debug categories accepted in the settings file.
const (
	ComponentApp      = "app"
	ComponentGrid     = "grid"
	ComponentLedger   = "ledger"
	ComponentLookup   = "lookup"
	ComponentCommit   = "commit"
	ComponentStorage  = "storage"
	ComponentBackend  = "backend"
	ComponentBackup   = "backup"
	ComponentSettings = "settings"
)

// Components lists every debug category.
var Components = []string{
	ComponentApp,
	ComponentGrid,
	ComponentLedger,
	ComponentLookup,
	ComponentCommit,
	ComponentStorage,
	ComponentBackend,
	ComponentBackup,
	ComponentSettings,
}

// Operations defines standard operation names
const (
	OpLoad     = "load"
	OpSetCell  = "set_cell"
	OpAddRow   = "add_row"
	OpDelete   = "delete_rows"
	OpUndo     = "undo"
	OpRedo     = "redo"
	OpCommit   = "commit"
	OpDiscard  = "discard"
	OpResolve  = "resolve"
	OpApply    = "apply"
	OpBackup   = "backup"
	OpValidate = "validate"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithCommit adds the counters of a commit outcome.
func (f LogFields) WithCommit(inserted, updated, deleted, rejected int) LogFields {
	f[FieldInserted] = inserted
	f[FieldUpdated] = updated
	f[FieldDeleted] = deleted
	f[FieldRejected] = rejected
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
