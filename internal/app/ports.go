package app

import (
	"context"

	"quiz-attempt-engine/internal/domain"
)

// AttemptRepository holds the attempts that are live in this process.
type AttemptRepository interface {
	Put(attempt *Attempt)
	Get(attemptID string) (*Attempt, bool)
	Delete(attemptID string)
	List() []*Attempt
}

// LivenessMarker is implemented by repositories that advertise live attempts
// outside the process. Refresh runs whenever an attempt is saved.
type LivenessMarker interface {
	Refresh(ctx context.Context, attemptID string) error
	Owner(ctx context.Context, attemptID string) (string, bool, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SnapshotStore persists attempt snapshots for resume. Load returns
// domain.ErrSnapshotNotFound when nothing is stored. Save must tolerate
// redundant calls.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot domain.AttemptSnapshot) error
	Load(ctx context.Context, attemptID string) (domain.AttemptSnapshot, error)
}

// SubmissionSink receives the final result of every attempt.
type SubmissionSink interface {
	Submit(ctx context.Context, submission domain.Submission) error
}

// EventPublisher forwards attempt events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.AttemptEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.AttemptEvent) error { return nil }
