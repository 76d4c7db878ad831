package repositories

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned (wrapped) when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// SyncMark names the version of a record that was copied to the replica
type SyncMark struct {
	ID      string
	Updated time.Time
}

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns a context carrying the transaction
	Context() context.Context
}

// RecordRepository handles the storage of one record kind inside a project.
// R is a pointer to a models record type.
type RecordRepository[R any] interface {
	// List returns records ordered by creation time, newest first
	List(ctx context.Context, skip, limit int) ([]R, error)

	// GetByID retrieves a record by ID, wrapping ErrNotFound when absent
	GetByID(ctx context.Context, id string) (R, error)

	// Create inserts a new record
	Create(ctx context.Context, record R) error

	// Update overwrites every writable column of an existing record
	Update(ctx context.Context, record R) error

	// Delete removes a record, wrapping ErrNotFound when absent
	Delete(ctx context.Context, id string) error

	// ListUnsynced returns up to limit records not yet copied to the remote replica
	ListUnsynced(ctx context.Context, limit int) ([]R, error)

	// MarkSynced flags the given records as replicated. A record whose
	// updated time no longer matches its mark stays unsynced.
	MarkSynced(ctx context.Context, marks []SyncMark) error
}
