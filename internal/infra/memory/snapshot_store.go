package memory

import (
	"context"
	"encoding/json"
	"sync"

	"quiz-attempt-engine/internal/domain"
)

// SnapshotStore keeps attempt snapshots in memory. Values are stored encoded so
// callers never share slices or maps with the store.
type SnapshotStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	saves int
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[string][]byte)}
}

func (s *SnapshotStore) Save(_ context.Context, snapshot domain.AttemptSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snapshot.AttemptID] = raw
	s.saves++
	return nil
}

func (s *SnapshotStore) Load(_ context.Context, attemptID string) (domain.AttemptSnapshot, error) {
	s.mu.RLock()
	raw, ok := s.data[attemptID]
	s.mu.RUnlock()
	if !ok {
		return domain.AttemptSnapshot{}, domain.ErrSnapshotNotFound
	}
	var snapshot domain.AttemptSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return domain.AttemptSnapshot{}, err
	}
	return snapshot, nil
}

// Saves reports how many writes the store has accepted.
func (s *SnapshotStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
