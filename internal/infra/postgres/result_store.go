package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-attempt-engine/internal/domain"
)

type attemptResult struct {
	bun.BaseModel `bun:"table:attempt_results,alias:ar"`

	AttemptID      string                `bun:"attempt_id,pk"`
	QuizID         string                `bun:"quiz_id,notnull"`
	UserID         string                `bun:"user_id,notnull"`
	TotalScore     float64               `bun:"total_score,notnull"`
	MaxScore       float64               `bun:"max_score,notnull"`
	Percentage     float64               `bun:"percentage,notnull"`
	RequiresReview bool                  `bun:"requires_review,notnull"`
	TimeExpired    bool                  `bun:"time_expired,notnull"`
	ForcedRefresh  bool                  `bun:"forced_refresh,notnull"`
	Answers        []domain.AnswerRecord `bun:"answers,type:jsonb"`
	Score          domain.AttemptScore   `bun:"score,type:jsonb"`
	SubmittedAt    time.Time             `bun:"submitted_at,notnull"`
}

// ResultStore persists final attempt results with bun. It implements the
// submission sink; a resubmitted attempt overwrites its row.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

func (s *ResultStore) Submit(ctx context.Context, submission domain.Submission) error {
	row := attemptResult{
		AttemptID:      submission.AttemptID,
		QuizID:         submission.QuizID,
		UserID:         submission.UserID,
		TotalScore:     submission.Score.TotalScore,
		MaxScore:       submission.Score.MaxScore,
		Percentage:     submission.Score.Percentage,
		RequiresReview: submission.Score.RequiresManualReview,
		TimeExpired:    submission.TimeExpired,
		ForcedRefresh:  submission.ForcedRefresh,
		Answers:        submission.Answers,
		Score:          submission.Score,
		SubmittedAt:    submission.SubmittedAt,
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (attempt_id) DO UPDATE").
		Set("total_score = EXCLUDED.total_score").
		Set("max_score = EXCLUDED.max_score").
		Set("percentage = EXCLUDED.percentage").
		Set("requires_review = EXCLUDED.requires_review").
		Set("time_expired = EXCLUDED.time_expired").
		Set("forced_refresh = EXCLUDED.forced_refresh").
		Set("answers = EXCLUDED.answers").
		Set("score = EXCLUDED.score").
		Set("submitted_at = EXCLUDED.submitted_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store result %s: %w", submission.AttemptID, err)
	}
	return nil
}

// List returns stored results ordered by submission time. An empty quizID lists all quizzes.
func (s *ResultStore) List(ctx context.Context, quizID string) ([]domain.Submission, error) {
	var rows []attemptResult
	q := s.db.NewSelect().Model(&rows).Order("submitted_at ASC", "attempt_id ASC")
	if quizID != "" {
		q = q.Where("quiz_id = ?", quizID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	out := make([]domain.Submission, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Submission{
			AttemptID:     row.AttemptID,
			QuizID:        row.QuizID,
			UserID:        row.UserID,
			Answers:       row.Answers,
			Score:         row.Score,
			TimeExpired:   row.TimeExpired,
			ForcedRefresh: row.ForcedRefresh,
			SubmittedAt:   row.SubmittedAt,
		})
	}
	return out, nil
}
