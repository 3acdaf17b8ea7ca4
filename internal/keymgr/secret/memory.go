package secret

import (
	"context"
	"sync"

	"github.com/fluxtrade/keymgr/pkg/idx"
)

// MemoryStore is an in-process Store for development and tests.
// Production deployments should use the Vault driver.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

func (s *MemoryStore) CreateSecret(ctx context.Context, plaintext string) (string, error) {
	ref := idx.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ref] = plaintext
	return ref, nil
}

func (s *MemoryStore) FetchSecret(ctx context.Context, ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plaintext, ok := s.secrets[ref]
	if !ok {
		return "", ErrNotFound
	}
	return plaintext, nil
}

func (s *MemoryStore) DestroySecret(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.secrets[ref]; !ok {
		return ErrNotFound
	}
	delete(s.secrets, ref)
	return nil
}
