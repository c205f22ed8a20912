package redis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-engine/internal/app"
)

// AttemptStore is a Redis-aware implementation of app.AttemptRepository.
// Attempts stay in a local map so ticks and broadcasts remain in-process; Redis
// holds a liveness marker per attempt so other instances can tell which node owns it.
type AttemptStore struct {
	client *redis.Client
	ttl    time.Duration
	owner  string

	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptStore(client *redis.Client, ttl time.Duration, owner string) *AttemptStore {
	return &AttemptStore{
		client:   client,
		ttl:      ttl,
		owner:    owner,
		attempts: make(map[string]*app.Attempt),
	}
}

func (s *AttemptStore) Put(attempt *app.Attempt) {
	s.mu.Lock()
	s.attempts[attempt.ID()] = attempt
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), liveKey(attempt.ID()), s.owner, s.ttl).Err()
}

func (s *AttemptStore) Get(attemptID string) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	return attempt, ok
}

func (s *AttemptStore) Delete(attemptID string) {
	s.mu.Lock()
	_, ok := s.attempts[attemptID]
	delete(s.attempts, attemptID)
	s.mu.Unlock()
	if ok {
		_ = s.client.Del(context.Background(), liveKey(attemptID)).Err()
	}
}

func (s *AttemptStore) List() []*app.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Attempt, 0, len(s.attempts))
	for _, attempt := range s.attempts {
		out = append(out, attempt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Refresh rewrites the liveness marker of a locally held attempt and resets its TTL.
func (s *AttemptStore) Refresh(ctx context.Context, attemptID string) error {
	if _, ok := s.Get(attemptID); !ok {
		return nil
	}
	return s.client.Set(ctx, liveKey(attemptID), s.owner, s.ttl).Err()
}

// Owner reports which instance holds attemptID live, if any.
func (s *AttemptStore) Owner(ctx context.Context, attemptID string) (string, bool, error) {
	owner, err := s.client.Get(ctx, liveKey(attemptID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return owner, true, nil
}

var _ app.LivenessMarker = (*AttemptStore)(nil)

func liveKey(attemptID string) string {
	return "attempt:live:" + attemptID
}
