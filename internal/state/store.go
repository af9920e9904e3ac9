package state

import (
	"sync"

	"github.com/podwatch/podwatch/internal/types"
)

// SnapshotStore holds the most recent snapshot set, used as the diff
// baseline. Replace swaps the whole set atomically so readers never
// observe a half-updated baseline.
type SnapshotStore struct {
	mu       sync.RWMutex
	baseline map[types.SnapshotKey]types.ResourceSnapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Baseline returns the current snapshot set, or nil before the first
// successful poll cycle. The returned map must not be mutated.
func (s *SnapshotStore) Baseline() map[types.SnapshotKey]types.ResourceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseline
}

// Replace installs a new baseline. Called only after the cycle's events
// have been persisted.
func (s *SnapshotStore) Replace(next map[types.SnapshotKey]types.ResourceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline = next
}

// Get returns the current snapshot for a key, if one exists.
func (s *SnapshotStore) Get(key types.SnapshotKey) (types.ResourceSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.baseline[key]
	return snap, ok
}

// Snapshots returns current snapshots, optionally filtered by namespace.
func (s *SnapshotStore) Snapshots(namespace string) []types.ResourceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]types.ResourceSnapshot, 0, len(s.baseline))
	for _, snap := range s.baseline {
		if namespace != "" && snap.Namespace != namespace {
			continue
		}
		results = append(results, snap)
	}
	return results
}

// Len reports the number of resources in the current baseline.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.baseline)
}
