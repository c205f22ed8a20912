package domain

import "time"

// QuestionType selects how a question is answered and scored.
type QuestionType string

const (
	SingleSelect QuestionType = "single-select"
	MultiSelect  QuestionType = "multi-select"
	FreeText     QuestionType = "free-text"
)

// TimingMode selects between one countdown for the whole attempt and one per question.
type TimingMode string

const (
	TimingTotal       TimingMode = "total"
	TimingPerQuestion TimingMode = "per-question"
)

// DefaultQuestionTimeLimit applies in per-question mode when a question sets none.
const DefaultQuestionTimeLimit = 60

// Option represents a possible answer for a select question.
type Option struct {
	ID          string   `json:"id" yaml:"id" validate:"required"`
	Text        string   `json:"text" yaml:"text"`
	Correct     bool     `json:"isCorrect" yaml:"isCorrect"`
	Probability *float64 `json:"probability,omitempty" yaml:"probability,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Question is immutable for the lifetime of an attempt.
type Question struct {
	ID               string       `json:"id" yaml:"id" validate:"required"`
	Type             QuestionType `json:"type" yaml:"type" validate:"required,oneof=single-select multi-select free-text"`
	Prompt           string       `json:"prompt" yaml:"prompt"`
	Points           float64      `json:"points" yaml:"points" validate:"gt=0"`
	TimeLimitSeconds int          `json:"timeLimitSeconds,omitempty" yaml:"timeLimitSeconds,omitempty" validate:"gte=0"`
	Options          []Option     `json:"options,omitempty" yaml:"options,omitempty" validate:"dive"`
	CorrectAnswer    *string      `json:"correctAnswer,omitempty" yaml:"correctAnswer,omitempty"`
	Keywords         []string     `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// TimeLimit returns the per-question limit in seconds, defaulting to 60.
func (q Question) TimeLimit() int {
	if q.TimeLimitSeconds <= 0 {
		return DefaultQuestionTimeLimit
	}
	return q.TimeLimitSeconds
}

// UsesProbabilityValues reports whether any option carries a probability,
// which switches multi-select scoring to the weighted rule.
func (q Question) UsesProbabilityValues() bool {
	for _, opt := range q.Options {
		if opt.Probability != nil {
			return true
		}
	}
	return false
}

// CorrectOptionIDs lists the ids of options flagged correct, in option order.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// HasOption reports whether id names one of the question's options.
func (q Question) HasOption(id string) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// Quiz is the definition an attempt runs against.
type Quiz struct {
	ID              string     `json:"id" yaml:"id" validate:"required"`
	Title           string     `json:"title,omitempty" yaml:"title,omitempty"`
	TimingMode      TimingMode `json:"timingMode" yaml:"timingMode" validate:"required,oneof=total per-question"`
	DurationMinutes float64    `json:"durationMinutes,omitempty" yaml:"durationMinutes,omitempty" validate:"gte=0"`
	Questions       []Question `json:"questions" yaml:"questions" validate:"required,min=1,dive"`
}

// DurationSeconds converts the total-mode duration to whole seconds.
func (q Quiz) DurationSeconds() int {
	return int(q.DurationMinutes * 60)
}

// QuestionIndex returns the position of a question id, or -1.
func (q Quiz) QuestionIndex(questionID string) int {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return i
		}
	}
	return -1
}

// QuestionLimits lists every question's per-question limit in quiz order.
func (q Quiz) QuestionLimits() []int {
	limits := make([]int, len(q.Questions))
	for i, question := range q.Questions {
		limits[i] = question.TimeLimit()
	}
	return limits
}

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
)

// Finished reports whether the attempt can no longer change.
func (s AttemptStatus) Finished() bool {
	return s == AttemptSubmitted || s == AttemptExpired
}

// TimerState is a read-only view of the timer engine.
type TimerState struct {
	Mode          TimingMode `json:"mode"`
	Remaining     int        `json:"remainingSeconds"`
	Duration      int        `json:"durationSeconds"`
	QuestionIndex int        `json:"currentQuestionIndex"`
	WarningFired  bool       `json:"warningFired"`
	CriticalFired bool       `json:"criticalFired"`
	Running       bool       `json:"running"`
	Paused        bool       `json:"paused"`
}

// QuestionScore is the graded outcome of one locked response.
type QuestionScore struct {
	QuestionID           string       `json:"questionId"`
	Type                 QuestionType `json:"type"`
	MaxPoints            float64      `json:"maxPoints"`
	Score                float64      `json:"score"`
	Answered             bool         `json:"answered"`
	IsCorrect            bool         `json:"isCorrect"`
	IsFullyCorrect       bool         `json:"isFullyCorrect"`
	RequiresManualReview bool         `json:"requiresManualReview"`
	Reason               string       `json:"reason"`
	MatchedKeywords      int          `json:"matchedKeywords,omitempty"`
}

// NegativeMarking is the positive/negative split reported when the policy is enabled.
type NegativeMarking struct {
	Positive  float64 `json:"positive"`
	Penalty   float64 `json:"penalty"`
	Net       float64 `json:"net"`
	Incorrect int     `json:"incorrect"`
}

// AttemptScore aggregates question scores for an attempt.
type AttemptScore struct {
	TotalScore           float64          `json:"totalScore"`
	MaxScore             float64          `json:"maxScore"`
	Percentage           float64          `json:"percentage"`
	RequiresManualReview bool             `json:"requiresManualReview"`
	Correct              int              `json:"correct"`
	Incorrect            int              `json:"incorrect"`
	Unanswered           int              `json:"unanswered"`
	PendingReview        int              `json:"pendingReview"`
	Questions            []QuestionScore  `json:"questions"`
	Negative             *NegativeMarking `json:"negative,omitempty"`
}

// Submission is emitted once per attempt when it ends.
type Submission struct {
	AttemptID     string         `json:"attemptId"`
	QuizID        string         `json:"quizId"`
	UserID        string         `json:"userId"`
	Answers       []AnswerRecord `json:"answers"`
	Score         AttemptScore   `json:"score"`
	TimeExpired   bool           `json:"timeExpired"`
	ForcedRefresh bool           `json:"forcedRefresh"`
	SubmittedAt   time.Time      `json:"submittedAt"`
}
