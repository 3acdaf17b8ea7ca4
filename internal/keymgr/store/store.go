package store

import (
	"context"
	"errors"
	"time"

	"github.com/fluxtrade/keymgr/internal/keymgr/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrVersionConflict reports a compare-and-swap write against a
	// stale version. The record is unchanged; the caller should re-read
	// and decide whether to retry.
	ErrVersionConflict = errors.New("store: version conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep
// concerns tidy and testable, and to actively stop callers from
// accidentally nesting transactions.
type Store interface {
	Keys() Keys
	Audit() Audit

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., rotation).
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// ListFilter narrows ListKeyRecords. Zero values match everything.
type ListFilter struct {
	Exchange string
	Status   domain.Status
}

type Keys interface {
	// CreateKeyRecord inserts a new record (id is provided by app via ULID).
	// Returns ErrAlreadyExists if the exchange already has an active record
	// (enforced by a partial unique index as a storage-level backstop).
	CreateKeyRecord(ctx context.Context, rec domain.KeyRecord) error

	// GetKeyRecord returns a record by id.
	GetKeyRecord(ctx context.Context, id string) (domain.KeyRecord, error)

	// GetActiveKeyRecord returns the single active record for an exchange.
	GetActiveKeyRecord(ctx context.Context, exchange string) (domain.KeyRecord, error)

	// ListKeyRecords returns records matching the filter, newest first.
	ListKeyRecords(ctx context.Context, filter ListFilter) ([]domain.KeyRecord, error)

	// ListExpiringKeyRecords returns active and grace records whose
	// expiry falls at or before the cutoff, soonest first.
	ListExpiringKeyRecords(ctx context.Context, cutoff time.Time) ([]domain.KeyRecord, error)

	// ListGraceElapsedKeyRecords returns grace records whose grace
	// period ended at or before now.
	ListGraceElapsedKeyRecords(ctx context.Context, now time.Time) ([]domain.KeyRecord, error)

	// UpdateKeyRecord writes rec if and only if the stored version still
	// equals expectedVersion, bumping the version by one. Returns
	// ErrVersionConflict on a stale write and ErrNotFound for unknown ids.
	UpdateKeyRecord(ctx context.Context, rec domain.KeyRecord, expectedVersion int64) error

	// TouchLastUsed records advisory usage from the external
	// usage-tracking collaborator. Bumps the version so concurrent
	// compare-and-swap writers observe the mutation.
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

type Audit interface {
	// AppendAuditEntry appends one immutable lifecycle event.
	// There is no update or delete.
	AppendAuditEntry(ctx context.Context, entry domain.AuditEntry) error

	// ListAuditEntries returns a key's history in append order.
	ListAuditEntries(ctx context.Context, keyID string) ([]domain.AuditEntry, error)
}
