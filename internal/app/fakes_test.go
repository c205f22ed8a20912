package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"quiz-attempt-engine/internal/clock"
	"quiz-attempt-engine/internal/domain"
)

type attemptMap struct {
	mu sync.Mutex
	m  map[string]*Attempt
}

func (s *attemptMap) Put(a *Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[a.ID()] = a
}

func (s *attemptMap) Get(id string) (*Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	return a, ok
}

func (s *attemptMap) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}

func (s *attemptMap) List() []*Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Attempt, 0, len(s.m))
	for _, a := range s.m {
		out = append(out, a)
	}
	return out
}

type snapshotMap struct {
	mu    sync.Mutex
	m     map[string]domain.AttemptSnapshot
	fail  error
	saves int
	// gate, when set, holds every Save until it is closed.
	gate chan struct{}
}

func (s *snapshotMap) Save(ctx context.Context, snap domain.AttemptSnapshot) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.saves++
	s.m[snap.AttemptID] = snap
	return nil
}

func (s *snapshotMap) Load(_ context.Context, id string) (domain.AttemptSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.m[id]
	if !ok {
		return domain.AttemptSnapshot{}, domain.ErrSnapshotNotFound
	}
	return snap, nil
}

func (s *snapshotMap) hold() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

func (s *snapshotMap) get(id string) (domain.AttemptSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.m[id]
	return snap, ok
}

type sinkRecorder struct {
	mu   sync.Mutex
	subs []domain.Submission
}

func (s *sinkRecorder) Submit(_ context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	return nil
}

func (s *sinkRecorder) all() []domain.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Submission(nil), s.subs...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.AttemptEvent
}

func (r *eventRecorder) Publish(_ context.Context, ev domain.AttemptEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type staticQuizzes map[string]domain.Quiz

func (q staticQuizzes) GetQuiz(_ context.Context, id string) (domain.Quiz, error) {
	quiz, ok := q[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

type harness struct {
	svc       *AttemptService
	clock     *clock.Manual
	attempts  *attemptMap
	snapshots *snapshotMap
	sink      *sinkRecorder
	events    *eventRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     clock.NewManual(time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)),
		attempts:  &attemptMap{m: make(map[string]*Attempt)},
		snapshots: &snapshotMap{m: make(map[string]domain.AttemptSnapshot)},
		sink:      &sinkRecorder{},
		events:    &eventRecorder{},
	}
	h.svc = NewAttemptService(Dependencies{
		Attempts:    h.attempts,
		Quizzes:     staticQuizzes{"total": totalQuiz(), "timed": perQuestionQuiz()},
		Snapshots:   h.snapshots,
		Submissions: h.sink,
		Events:      h.events,
		Clock:       h.clock,
	}, Options{AutosaveInterval: 5 * time.Second, SaveRetries: 2})

	next := 0
	h.svc.newID = func() string {
		next++
		return fmt.Sprintf("attempt-%d", next)
	}
	t.Cleanup(func() { _ = h.svc.Shutdown(context.Background()) })
	return h
}

// ticks drives the attempt's timer directly, bypassing the runner goroutine.
func (h *harness) ticks(t *testing.T, attemptID string, n int) {
	t.Helper()
	a, ok := h.attempts.Get(attemptID)
	if !ok {
		t.Fatalf("attempt %s is not live", attemptID)
	}
	for i := 0; i < n; i++ {
		h.svc.tick(a)
	}
}

func selectQuestion(id string) domain.Question {
	return domain.Question{
		ID:     id,
		Type:   domain.SingleSelect,
		Prompt: "Pick " + id,
		Points: 1,
		Options: []domain.Option{
			{ID: "a", Text: "A", Correct: true},
			{ID: "b", Text: "B"},
		},
	}
}

func totalQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "total",
		TimingMode:      domain.TimingTotal,
		DurationMinutes: 1,
		Questions:       []domain.Question{selectQuestion("q1"), selectQuestion("q2"), selectQuestion("q3")},
	}
}

func perQuestionQuiz() domain.Quiz {
	q1, q2, q3 := selectQuestion("q1"), selectQuestion("q2"), selectQuestion("q3")
	q1.TimeLimitSeconds = 2
	q2.TimeLimitSeconds = 3
	q3.TimeLimitSeconds = 4
	return domain.Quiz{
		ID:         "timed",
		TimingMode: domain.TimingPerQuestion,
		Questions:  []domain.Question{q1, q2, q3},
	}
}
