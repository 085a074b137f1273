// Package persist provides the persistence port the autosave pipeline
// writes through. Business logic never touches a storage backend directly;
// it sees one injected port composed of priority-ordered tiers: the durable
// remote store, a local persistent cache, and a session-scoped in-memory
// cache. A startup availability probe selects which tiers participate.
package persist

import (
	"context"
)

// Port is one persistence tier.
type Port interface {
	// Name identifies the tier ("remote", "file", "memory") for logging
	// and events.
	Name() string

	// Available probes whether the tier can currently serve requests.
	Available(ctx context.Context) bool

	// Save persists data under key, overwriting any previous value.
	Save(ctx context.Context, key string, data []byte) error

	// Load retrieves data for key. Returns errors.ErrNotFound when the key
	// does not exist.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes the data for key. Deleting a missing key is not an
	// error; drafts are superseded rather than strictly tracked.
	Delete(ctx context.Context, key string) error
}
