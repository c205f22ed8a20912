// Package scoring grades locked responses. Grading is pure: the same question and
// response always produce the same score.
package scoring

import (
	"math"
	"strings"

	"quiz-attempt-engine/internal/domain"
)

// Reasons reported on a QuestionScore.
const (
	ReasonUnanswered    = "unanswered"
	ReasonCorrect       = "correct"
	ReasonWrong         = "wrong"
	ReasonPartial       = "partial"
	ReasonWeighted      = "weighted"
	ReasonExactMatch    = "exact_match"
	ReasonMismatch      = "mismatch"
	ReasonKeywords      = "keywords"
	ReasonNoGradingData = "no_grading_data"
	ReasonNoStrategy    = "no_strategy"
)

// Policy holds the grading parameters that are set per deployment.
type Policy struct {
	// IncorrectSelectionPenalty is the slope applied to wrong picks in multi-select
	// partial credit, in units of one correct option.
	IncorrectSelectionPenalty float64
	// NegativeMarking enables the per-attempt penalty split.
	NegativeMarking bool
	// NegativePenalty is subtracted once for every incorrect select-type answer.
	NegativePenalty float64
}

// DefaultPolicy grades with a penalty slope of one and no negative marking.
func DefaultPolicy() Policy {
	return Policy{IncorrectSelectionPenalty: 1}
}

// Strategy grades one question type.
type Strategy interface {
	Grade(q domain.Question, r domain.Response) domain.QuestionScore
}

// LockedAnswers exposes the locked response for each question.
type LockedAnswers interface {
	GetLocked(questionID string) (domain.Response, bool)
}

// Grader routes each question to the strategy for its type.
type Grader struct {
	policy     Policy
	strategies map[domain.QuestionType]Strategy
}

// NewGrader installs the built-in strategies.
func NewGrader(policy Policy) *Grader {
	if policy.IncorrectSelectionPenalty < 0 {
		policy.IncorrectSelectionPenalty = 0
	}
	if policy.NegativePenalty < 0 {
		policy.NegativePenalty = 0
	}
	return &Grader{
		policy: policy,
		strategies: map[domain.QuestionType]Strategy{
			domain.SingleSelect: singleSelectStrategy{},
			domain.MultiSelect:  multiSelectStrategy{slope: policy.IncorrectSelectionPenalty},
			domain.FreeText:     freeTextStrategy{},
		},
	}
}

// Policy returns the grader's policy.
func (g *Grader) Policy() Policy { return g.policy }

// Grade scores a single locked response. A nil response is unanswered and scores zero.
// Free text without an exact answer to compare against still goes to review.
func (g *Grader) Grade(q domain.Question, r domain.Response) domain.QuestionScore {
	r = domain.Normalize(q, r)
	if r == nil {
		return domain.QuestionScore{
			QuestionID:           q.ID,
			Type:                 q.Type,
			MaxPoints:            q.Points,
			RequiresManualReview: q.Type == domain.FreeText && !hasExactAnswer(q),
			Reason:               ReasonUnanswered,
		}
	}
	s, ok := g.strategies[q.Type]
	if !ok {
		return domain.QuestionScore{
			QuestionID:           q.ID,
			Type:                 q.Type,
			MaxPoints:            q.Points,
			Answered:             true,
			RequiresManualReview: true,
			Reason:               ReasonNoStrategy,
		}
	}
	score := s.Grade(q, r)
	score.QuestionID = q.ID
	score.Type = q.Type
	score.MaxPoints = q.Points
	score.Answered = true
	score.Score = clamp(score.Score, 0, q.Points)
	return score
}

// ScoreAttempt grades every question in order and aggregates the totals. Totals are
// rounded to two decimals here and never per question.
func (g *Grader) ScoreAttempt(questions []domain.Question, answers LockedAnswers) domain.AttemptScore {
	result := domain.AttemptScore{Questions: make([]domain.QuestionScore, 0, len(questions))}
	var total, maxScore float64
	incorrectSelect := 0

	for _, q := range questions {
		var r domain.Response
		if answers != nil {
			r, _ = answers.GetLocked(q.ID)
		}
		qs := g.Grade(q, r)
		result.Questions = append(result.Questions, qs)

		total += qs.Score
		maxScore += qs.MaxPoints
		result.RequiresManualReview = result.RequiresManualReview || qs.RequiresManualReview

		switch {
		case !qs.Answered:
			result.Unanswered++
		case qs.IsFullyCorrect:
			result.Correct++
		case qs.RequiresManualReview:
			result.PendingReview++
		default:
			result.Incorrect++
		}
		if qs.Answered && !qs.IsFullyCorrect && q.Type != domain.FreeText {
			incorrectSelect++
		}
	}

	result.TotalScore = round2(total)
	result.MaxScore = round2(maxScore)
	if maxScore > 0 {
		result.Percentage = round2(total / maxScore * 100)
	}

	if g.policy.NegativeMarking {
		penalty := round2(float64(incorrectSelect) * g.policy.NegativePenalty)
		result.Negative = &domain.NegativeMarking{
			Positive:  result.TotalScore,
			Penalty:   penalty,
			Net:       round2(result.TotalScore - penalty),
			Incorrect: incorrectSelect,
		}
	}
	return result
}

type singleSelectStrategy struct{}

func (singleSelectStrategy) Grade(q domain.Question, r domain.Response) domain.QuestionScore {
	choice, _ := r.(domain.SingleChoice)
	for _, opt := range q.Options {
		if opt.Correct && opt.ID == string(choice) {
			return domain.QuestionScore{Score: q.Points, IsCorrect: true, IsFullyCorrect: true, Reason: ReasonCorrect}
		}
	}
	return domain.QuestionScore{Reason: ReasonWrong}
}

type multiSelectStrategy struct{ slope float64 }

func (s multiSelectStrategy) Grade(q domain.Question, r domain.Response) domain.QuestionScore {
	selected := r.(domain.MultiChoice).Set()

	if q.UsesProbabilityValues() {
		sum := 0.0
		for _, opt := range q.Options {
			if _, ok := selected[opt.ID]; ok && opt.Probability != nil {
				sum += *opt.Probability
			}
		}
		score := math.Min(q.Points*sum/100, q.Points)
		full := score >= q.Points
		return domain.QuestionScore{Score: score, IsCorrect: full, IsFullyCorrect: full, Reason: ReasonWeighted}
	}

	correct := q.CorrectOptionIDs()
	if len(correct) == 0 {
		return domain.QuestionScore{Reason: ReasonWrong}
	}
	hits := 0
	for _, id := range correct {
		if _, ok := selected[id]; ok {
			hits++
		}
	}
	misses := len(selected) - hits

	if misses == 0 && hits == len(correct) {
		return domain.QuestionScore{Score: q.Points, IsCorrect: true, IsFullyCorrect: true, Reason: ReasonCorrect}
	}
	score := q.Points * (float64(hits) - s.slope*float64(misses)) / float64(len(correct))
	score = clamp(score, 0, q.Points)
	reason := ReasonWrong
	if score > 0 {
		reason = ReasonPartial
	}
	return domain.QuestionScore{Score: score, Reason: reason}
}

type freeTextStrategy struct{}

func (freeTextStrategy) Grade(q domain.Question, r domain.Response) domain.QuestionScore {
	text, _ := r.(domain.TextAnswer)
	answer := strings.ToLower(strings.TrimSpace(string(text)))

	if hasExactAnswer(q) {
		if answer == strings.ToLower(strings.TrimSpace(*q.CorrectAnswer)) {
			return domain.QuestionScore{Score: q.Points, IsCorrect: true, IsFullyCorrect: true, Reason: ReasonExactMatch}
		}
		return domain.QuestionScore{RequiresManualReview: true, Reason: ReasonMismatch}
	}

	keywords := normalizedKeywords(q.Keywords)
	if len(keywords) == 0 {
		return domain.QuestionScore{RequiresManualReview: true, Reason: ReasonNoGradingData}
	}
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(answer, kw) {
			matched++
		}
	}
	full := matched == len(keywords)
	return domain.QuestionScore{
		Score:                q.Points * float64(matched) / float64(len(keywords)),
		IsCorrect:            full,
		IsFullyCorrect:       full,
		RequiresManualReview: true,
		Reason:               ReasonKeywords,
		MatchedKeywords:      matched,
	}
}

func hasExactAnswer(q domain.Question) bool {
	return q.CorrectAnswer != nil && strings.TrimSpace(*q.CorrectAnswer) != ""
}

func normalizedKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
