// Package progress holds the cached onboarding progress and the
// advancement coordinator that reconciles completion signals against the
// server's authoritative state.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/veritahealth/onboard/internal/api"
)

// Snapshot is the client-cached view of the server-owned UserProgress.
type Snapshot struct {
	CurrentStep      int
	TasksCompleted   []string
	PBClientRecordID string
	UpdatedAt        time.Time
}

// TaskDone reports whether the given task is completed in this snapshot.
func (s Snapshot) TaskDone(taskID string) bool {
	for _, id := range s.TasksCompleted {
		if id == taskID {
			return true
		}
	}
	return false
}

// StateStore caches the last known UserProgress. It is a pure cache: one
// writer (the coordinator) and many readers, no business logic.
type StateStore struct {
	client *api.Client

	mu   sync.RWMutex
	snap Snapshot
}

// NewStateStore creates a StateStore over the given API client.
func NewStateStore(client *api.Client) *StateStore {
	return &StateStore{client: client}
}

// Get returns the last known snapshot without contacting the server.
func (s *StateStore) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Refresh fetches the authoritative progress from the server and replaces
// the cache. The cache is untouched when the fetch fails.
func (s *StateStore) Refresh(ctx context.Context) (Snapshot, error) {
	wire, err := s.client.Progress(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := fromWire(wire)
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return snap, nil
}

// apply replaces the cache with a server-returned progress snapshot.
func (s *StateStore) apply(wire *api.UserProgress) Snapshot {
	snap := fromWire(wire)
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return snap
}

// clearTasks empties the cached task set. Used by the rollback path when
// the clear-on-rollback policy is enabled; the server itself only clears
// tasks on forward advance.
func (s *StateStore) clearTasks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.TasksCompleted = nil
}

func fromWire(wire *api.UserProgress) Snapshot {
	tasks := make([]string, len(wire.TasksCompleted))
	copy(tasks, wire.TasksCompleted)
	return Snapshot{
		CurrentStep:      wire.CurrentStep,
		TasksCompleted:   tasks,
		PBClientRecordID: wire.PBClientRecordID,
		UpdatedAt:        wire.UpdatedAt,
	}
}
