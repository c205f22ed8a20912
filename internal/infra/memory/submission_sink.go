package memory

import (
	"context"
	"sync"

	"quiz-attempt-engine/internal/domain"
)

// SubmissionSink records submissions in memory, keyed by attempt. A repeated
// submission for the same attempt replaces the earlier one.
type SubmissionSink struct {
	mu          sync.RWMutex
	order       []string
	submissions map[string]domain.Submission
}

func NewSubmissionSink() *SubmissionSink {
	return &SubmissionSink{submissions: make(map[string]domain.Submission)}
}

func (s *SubmissionSink) Submit(_ context.Context, submission domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[submission.AttemptID]; !ok {
		s.order = append(s.order, submission.AttemptID)
	}
	s.submissions[submission.AttemptID] = submission
	return nil
}

// Get returns the submission recorded for attemptID.
func (s *SubmissionSink) Get(attemptID string) (domain.Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[attemptID]
	return sub, ok
}

// List returns every submission in arrival order.
func (s *SubmissionSink) List(_ context.Context) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.submissions[id])
	}
	return out, nil
}
