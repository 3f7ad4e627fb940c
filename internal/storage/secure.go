package storage

import (
	"context"
	"fmt"

	"github.com/lifeline-care/crisis/internal/privacy"
)

// SecureStore seals every value before it reaches the underlying backend.
type SecureStore struct {
	backend Store
	sealer  privacy.Sealer
}

// NewSecureStore wraps backend with sealer
func NewSecureStore(backend Store, sealer privacy.Sealer) *SecureStore {
	return &SecureStore{backend: backend, sealer: sealer}
}

func (s *SecureStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return plain, nil
}

func (s *SecureStore) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.sealer.Seal(value)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return s.backend.Set(ctx, key, sealed)
}
