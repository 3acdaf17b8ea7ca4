// Package secret defines the external secret store collaborator. The
// manager hands plaintext to the store exactly once at issuance and
// keeps only the opaque reference; destruction on terminal transitions
// is best-effort.
package secret

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("secret: not found")
	ErrUnavailable = errors.New("secret: store unavailable")
)

// Store holds secret material on behalf of the manager.
type Store interface {
	// CreateSecret stores plaintext and returns an opaque reference.
	CreateSecret(ctx context.Context, plaintext string) (string, error)

	// FetchSecret returns the plaintext for a reference. Only valid at
	// issuance/rotation response time; the manager never re-reads
	// secrets afterwards.
	FetchSecret(ctx context.Context, ref string) (string, error)

	// DestroySecret removes the material behind a reference.
	DestroySecret(ctx context.Context, ref string) error
}
