// Package store declares the persistence ports used by the grid core.
package store

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// LookupReader lists the reference entities rows point at.
	LookupReader interface {
		Accounts(ctx context.Context) ([]core.Account, error)
		Categories(ctx context.Context) ([]core.Category, error)
		SubCategories(ctx context.Context) ([]core.SubCategory, error)
	}

	// LookupWriter creates reference entities. Each call is durable on return.
	LookupWriter interface {
		CreateAccount(ctx context.Context, name, currency string) (int64, error)
		CreateCategory(ctx context.Context, name string, t core.Type) (int64, error)
		CreateSubCategory(ctx context.Context, name string, categoryID int64) (int64, error)
	}

	// TransactionReader returns persisted rows, newest date first.
	TransactionReader interface {
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	// TransactionWriter applies a batch atomically: deletes, then updates,
	// then inserts. It returns the identifiers assigned to Batch.Inserts in
	// order. On error nothing in the batch is persisted.
	TransactionWriter interface {
		Apply(ctx context.Context, b Batch) ([]int64, error)
	}

	Store interface {
		LookupReader
		LookupWriter
		TransactionReader
		TransactionWriter
		Close() error
	}
)

// Batch is the set of row operations of one commit.
type Batch struct {
	Deletes []int64
	Updates []core.Transaction
	Inserts []core.Transaction
}

// Empty reports whether the batch carries no operations.
func (b Batch) Empty() bool {
	return len(b.Deletes) == 0 && len(b.Updates) == 0 && len(b.Inserts) == 0
}

// Size returns the number of row operations in the batch.
func (b Batch) Size() int {
	return len(b.Deletes) + len(b.Updates) + len(b.Inserts)
}
