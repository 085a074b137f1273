package persist

import (
	"context"
	"sync"

	apperrors "github.com/veritahealth/onboard/internal/errors"
)

// MemoryStore is the session-scoped tier of last resort. Data survives a
// same-session reload of the engine but nothing beyond process lifetime.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Name identifies the tier.
func (ms *MemoryStore) Name() string { return "memory" }

// Available always reports true; memory is the tier of last resort.
func (ms *MemoryStore) Available(ctx context.Context) bool { return true }

// Save stores a copy of data under key.
func (ms *MemoryStore) Save(ctx context.Context, key string, data []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	ms.data[key] = buf
	return nil
}

// Load retrieves a copy of the data for key.
func (ms *MemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	data, ok := ms.data[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Delete removes the data for key.
func (ms *MemoryStore) Delete(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.data, key)
	return nil
}
