package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAttemptNotFound is returned when an attempt is neither live nor persisted.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptFinished is returned when acting on a submitted or expired attempt.
	ErrAttemptFinished = errors.New("attempt already finished")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAnswerLocked is returned when a draft is written to a locked answer.
	// Callers treat it as an expected race, not a failure.
	ErrAnswerLocked = errors.New("answer is locked")
	// ErrQuestionNotActive is returned when a per-question attempt receives a draft
	// for a question other than the current one.
	ErrQuestionNotActive = errors.New("question is not active")
	// ErrSnapshotNotFound indicates no persisted snapshot exists for an attempt.
	ErrSnapshotNotFound = errors.New("attempt snapshot not found")
)

// ConfigurationError reports an engine or quiz setup that cannot run.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
