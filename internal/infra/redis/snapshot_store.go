package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-engine/internal/domain"
)

// SnapshotStore keeps attempt snapshots as JSON strings:
// SET attempt:snapshot:{attemptID} {json} EX ttl
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) Save(ctx context.Context, snapshot domain.AttemptSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(snapshot.AttemptID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snapshot.AttemptID, err)
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context, attemptID string) (domain.AttemptSnapshot, error) {
	raw, err := s.client.Get(ctx, snapshotKey(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AttemptSnapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.AttemptSnapshot{}, fmt.Errorf("load snapshot %s: %w", attemptID, err)
	}
	var snapshot domain.AttemptSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return domain.AttemptSnapshot{}, fmt.Errorf("decode snapshot %s: %w", attemptID, err)
	}
	return snapshot, nil
}

// Delete removes a stored snapshot.
func (s *SnapshotStore) Delete(ctx context.Context, attemptID string) error {
	return s.client.Del(ctx, snapshotKey(attemptID)).Err()
}

func snapshotKey(attemptID string) string {
	return "attempt:snapshot:" + attemptID
}
