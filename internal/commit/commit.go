// Package commit writes the dirty rows of a grid to the store as one atomic
// batch and reconciles the grid with the outcome.
package commit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/grid"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
	"fintrack/internal/store"
	"fintrack/internal/validation"
)

// Source is the grid side of a commit. *grid.Model implements it.
type Source interface {
	Pending() []grid.Pending
	Reconcile(c grid.Committed)
}

// Rejection is a dirty row left out of the commit because it is invalid.
type Rejection struct {
	Index  int
	Ref    ledger.RowRef
	Status grid.Status
	Errors validation.Errors
}

type Result struct {
	// Applied counts accepted rows: Inserted + Updated + Deleted.
	Applied  int
	Inserted int
	Updated  int
	Deleted  int
	Rejected []Rejection
}

// StorageError wraps a store failure. Nothing in the batch was persisted and
// the grid was left unchanged.
type StorageError struct {
	Ops int
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("commit %d operations: %v", e.Ops, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ErrIDMismatch reports a store that committed a batch but returned a
// different number of insert ids than rows. The batch is durable; the rows
// that got an id are reconciled and the rest stay New.
var ErrIDMismatch = errors.New("insert id count mismatch")

type Coordinator struct {
	writer    store.TransactionWriter
	validator *validation.Engine
	logger    *applog.Logger
}

func New(w store.TransactionWriter, refs validation.References, logger *applog.Logger) *Coordinator {
	if logger == nil {
		logger = applog.Nop()
	}
	return &Coordinator{writer: w, validator: validation.New(refs), logger: logger}
}

// Commit re-validates every dirty row, applies the valid ones in a single
// store transaction and reconciles src. Invalid rows are reported in
// Result.Rejected and stay dirty. A store failure returns *StorageError and
// leaves src untouched. ErrIDMismatch is returned after src has been
// reconciled with the ids the store did return.
func (c *Coordinator) Commit(ctx context.Context, src Source) (Result, error) {
	start := time.Now()
	var (
		res      Result
		batch    store.Batch
		inserted []ledger.RowRef
		updated  []ledger.RowRef
		deleted  []ledger.RowRef
		rejected = map[ledger.RowRef]validation.Errors{}
	)

	for _, p := range src.Pending() {
		if errs := c.validator.ValidateRow(p.Row); len(errs) > 0 {
			res.Rejected = append(res.Rejected, Rejection{Index: p.Index, Ref: p.Ref, Status: p.Status, Errors: errs})
			rejected[p.Ref] = errs
			continue
		}
		switch p.Status {
		case grid.Deleted:
			if p.Row.ID == nil {
				continue
			}
			batch.Deletes = append(batch.Deletes, *p.Row.ID)
			deleted = append(deleted, p.Ref)
		case grid.Modified:
			batch.Updates = append(batch.Updates, p.Row)
			updated = append(updated, p.Ref)
		case grid.New:
			row := p.Row.Clone()
			row.ID = nil
			batch.Inserts = append(batch.Inserts, row)
			inserted = append(inserted, p.Ref)
		}
	}

	var ids []int64
	if !batch.Empty() {
		var err error
		ids, err = c.writer.Apply(ctx, batch)
		if err != nil {
			c.logger.ErrorContext(ctx, "Commit failed",
				applog.FieldOperation, applog.OpCommit,
				applog.FieldError, err)
			return Result{}, &StorageError{Ops: batch.Size(), Err: err}
		}
	}

	done := grid.Committed{
		Inserted: make(map[ledger.RowRef]int64, len(ids)),
		Updated:  updated,
		Deleted:  deleted,
		Rejected: rejected,
	}
	var mismatch error
	if len(ids) != len(inserted) {
		mismatch = fmt.Errorf("%w: %d ids for %d inserts", ErrIDMismatch, len(ids), len(inserted))
		c.logger.ErrorContext(ctx, "Commit ids do not match inserts",
			applog.FieldOperation, applog.OpCommit,
			applog.FieldError, mismatch)
	}
	for i, ref := range inserted {
		if i >= len(ids) {
			break
		}
		done.Inserted[ref] = ids[i]
	}
	src.Reconcile(done)

	res.Inserted, res.Updated, res.Deleted = len(inserted), len(updated), len(deleted)
	res.Applied = res.Inserted + res.Updated + res.Deleted

	fields := applog.NewFields().
		WithOperation(applog.OpCommit).
		WithCommit(res.Inserted, res.Updated, res.Deleted, len(res.Rejected))
	fields[applog.FieldApplied] = res.Applied
	fields[applog.FieldDuration] = time.Since(start).Milliseconds()
	c.logger.InfoContext(ctx, "Commit finished", fields.ToSlice()...)
	return res, mismatch
}
