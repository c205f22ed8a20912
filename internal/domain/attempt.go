package domain

import "time"

// QuestionTimeLimit is the list form of per-question remaining time some clients persist.
type QuestionTimeLimit struct {
	QuestionID    string   `json:"questionId"`
	TimeRemaining *float64 `json:"timeRemaining,omitempty"`
}

// AttemptSnapshot is the persisted form of an attempt used to resume it.
// Timing fields are optional and may be stale or partial.
type AttemptSnapshot struct {
	AttemptID             string              `json:"attemptId"`
	QuizID                string              `json:"quizId"`
	UserID                string              `json:"userId"`
	Status                AttemptStatus       `json:"status"`
	StartTime             time.Time           `json:"startTime"`
	RemainingTime         *float64            `json:"remainingTime,omitempty"`
	OverallRemainingTime  *float64            `json:"overallRemainingTime,omitempty"`
	Answers               []AnswerRecord      `json:"answers"`
	QuestionTimeRemaining map[string]float64  `json:"questionTimeRemaining,omitempty"`
	QuestionTimeLimits    []QuestionTimeLimit `json:"questionTimeLimits,omitempty"`
	SavedAt               time.Time           `json:"savedAt"`
}

// Event types published to attempt subscribers.
const (
	EventTick            = "tick"
	EventWarning         = "warning"
	EventCritical        = "critical"
	EventQuestionTimeout = "questionTimeout"
	EventExpired         = "expired"
	EventLocked          = "locked"
	EventSubmitted       = "submitted"
)

// AttemptEvent is broadcast to subscribers of a live attempt.
type AttemptEvent struct {
	Type          string      `json:"type"`
	AttemptID     string      `json:"attemptId"`
	Mode          TimingMode  `json:"mode,omitempty"`
	Remaining     int         `json:"remainingSeconds"`
	QuestionIndex int         `json:"questionIndex"`
	QuestionID    string      `json:"questionId,omitempty"`
	Submission    *Submission `json:"submission,omitempty"`
	At            time.Time   `json:"at"`
}

// OptionView hides correctness from the attempt taker.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is one question as shown during an attempt.
type QuestionView struct {
	ID               string       `json:"id"`
	Type             QuestionType `json:"type"`
	Prompt           string       `json:"prompt"`
	Points           float64      `json:"points"`
	TimeLimitSeconds int          `json:"timeLimitSeconds,omitempty"`
	Options          []OptionView `json:"options,omitempty"`
	Locked           bool         `json:"locked"`
	Answer           AnswerRecord `json:"answer"`
}

// AttemptView is the state a client needs to render an attempt.
type AttemptView struct {
	AttemptID     string         `json:"attemptId"`
	QuizID        string         `json:"quizId"`
	UserID        string         `json:"userId"`
	Status        AttemptStatus  `json:"status"`
	Mode          TimingMode     `json:"mode"`
	CurrentIndex  int            `json:"currentIndex"`
	ReadyToSubmit bool           `json:"readyToSubmit"`
	Timer         TimerState     `json:"timer"`
	Questions     []QuestionView `json:"questions"`
	StartedAt     time.Time      `json:"startedAt"`
}
