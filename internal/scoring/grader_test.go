package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-attempt-engine/internal/domain"
	"quiz-attempt-engine/internal/ledger"
)

func prob(v float64) *float64 { return &v }

func strPtr(s string) *string { return &s }

func capitalQuestion() domain.Question {
	return domain.Question{
		ID:     "capital",
		Type:   domain.SingleSelect,
		Points: 1,
		Options: []domain.Option{
			{ID: "paris", Text: "Paris", Correct: true},
			{ID: "rome", Text: "Rome"},
			{ID: "madrid", Text: "Madrid"},
			{ID: "berlin", Text: "Berlin"},
		},
	}
}

func languagesQuestion() domain.Question {
	return domain.Question{
		ID:     "languages",
		Type:   domain.MultiSelect,
		Points: 2,
		Options: []domain.Option{
			{ID: "js", Text: "JS", Correct: true},
			{ID: "python", Text: "Python", Correct: true},
			{ID: "html", Text: "HTML"},
			{ID: "css", Text: "CSS"},
		},
	}
}

func weightedQuestion() domain.Question {
	return domain.Question{
		ID:     "weighted",
		Type:   domain.MultiSelect,
		Points: 2,
		Options: []domain.Option{
			{ID: "js", Correct: true, Probability: prob(80)},
			{ID: "python", Correct: true, Probability: prob(60)},
			{ID: "html"},
		},
	}
}

func essayQuestion(correct *string, keywords ...string) domain.Question {
	return domain.Question{ID: "essay", Type: domain.FreeText, Points: 3, CorrectAnswer: correct, Keywords: keywords}
}

func TestGradeQuestion(t *testing.T) {
	grader := NewGrader(DefaultPolicy())

	tests := []struct {
		name       string
		q          domain.Question
		r          domain.Response
		wantScore  float64
		wantFull   bool
		wantReview bool
		wantReason string
	}{
		{name: "single correct", q: capitalQuestion(), r: domain.SingleChoice("paris"), wantScore: 1, wantFull: true, wantReason: ReasonCorrect},
		{name: "single wrong", q: capitalQuestion(), r: domain.SingleChoice("rome"), wantScore: 0, wantReason: ReasonWrong},
		{name: "single unanswered", q: capitalQuestion(), r: nil, wantScore: 0, wantReason: ReasonUnanswered},
		{name: "multi exact", q: languagesQuestion(), r: domain.MultiChoice{"python", "js"}, wantScore: 2, wantFull: true, wantReason: ReasonCorrect},
		{name: "multi half", q: languagesQuestion(), r: domain.MultiChoice{"js"}, wantScore: 1, wantReason: ReasonPartial},
		{name: "multi one wrong pick cancels one hit", q: languagesQuestion(), r: domain.MultiChoice{"js", "python", "html"}, wantScore: 1, wantReason: ReasonPartial},
		{name: "multi penalty clamps at zero", q: languagesQuestion(), r: domain.MultiChoice{"js", "html", "css"}, wantScore: 0, wantReason: ReasonWrong},
		{name: "multi only wrong", q: languagesQuestion(), r: domain.MultiChoice{"html"}, wantScore: 0, wantReason: ReasonWrong},
		{name: "weighted capped", q: weightedQuestion(), r: domain.MultiChoice{"js", "python"}, wantScore: 2, wantFull: true, wantReason: ReasonWeighted},
		{name: "weighted partial", q: weightedQuestion(), r: domain.MultiChoice{"python"}, wantScore: 1.2, wantReason: ReasonWeighted},
		{name: "weighted option without probability", q: weightedQuestion(), r: domain.MultiChoice{"html"}, wantScore: 0, wantReason: ReasonWeighted},
		{name: "text exact ignores case and spaces", q: essayQuestion(strPtr("Photosynthesis")), r: domain.TextAnswer("  photosynthesis "), wantScore: 3, wantFull: true, wantReason: ReasonExactMatch},
		{name: "text near miss needs review", q: essayQuestion(strPtr("Photosynthesis")), r: domain.TextAnswer("photosynthesys"), wantScore: 0, wantReview: true, wantReason: ReasonMismatch},
		{name: "text no grading data", q: essayQuestion(nil), r: domain.TextAnswer("anything"), wantScore: 0, wantReview: true, wantReason: ReasonNoGradingData},
		{name: "text all keywords", q: essayQuestion(nil, "alpha", "beta"), r: domain.TextAnswer("ALPHA and beta"), wantScore: 3, wantFull: true, wantReview: true, wantReason: ReasonKeywords},
		{name: "text unanswered without grading data needs review", q: essayQuestion(nil), r: nil, wantScore: 0, wantReview: true, wantReason: ReasonUnanswered},
		{name: "text unanswered with keywords needs review", q: essayQuestion(nil, "alpha", "beta"), r: nil, wantScore: 0, wantReview: true, wantReason: ReasonUnanswered},
		{name: "text unanswered with exact answer", q: essayQuestion(strPtr("Photosynthesis")), r: nil, wantScore: 0, wantReason: ReasonUnanswered},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := grader.Grade(tc.q, tc.r)
			assert.InDelta(t, tc.wantScore, got.Score, 1e-9)
			assert.Equal(t, tc.wantFull, got.IsFullyCorrect)
			assert.Equal(t, tc.wantReview, got.RequiresManualReview)
			assert.Equal(t, tc.wantReason, got.Reason)
			assert.Equal(t, tc.q.Points, got.MaxPoints)
			assert.Equal(t, tc.r != nil, got.Answered)
		})
	}
}

func TestScenarioSingleSelectParis(t *testing.T) {
	got := NewGrader(DefaultPolicy()).Grade(capitalQuestion(), domain.SingleChoice("paris"))
	assert.Equal(t, 1.0, got.Score)
	assert.True(t, got.IsCorrect)
}

func TestScenarioMultiSelectPartial(t *testing.T) {
	q := languagesQuestion()
	q.Options = q.Options[:2]
	got := NewGrader(DefaultPolicy()).Grade(q, domain.MultiChoice{"js"})
	assert.Equal(t, 1.0, got.Score)
	assert.False(t, got.IsFullyCorrect)
}

func TestScenarioProbabilityCapped(t *testing.T) {
	got := NewGrader(DefaultPolicy()).Grade(weightedQuestion(), domain.MultiChoice{"js", "python"})
	assert.Equal(t, 2.0, got.Score, "80 plus 60 percent caps at full points rather than 2.8")
}

func TestScenarioKeywordsTwoOfThree(t *testing.T) {
	q := essayQuestion(nil, "important", "concept", "theory")
	got := NewGrader(DefaultPolicy()).Grade(q, domain.TextAnswer("The important concept is explained here"))
	assert.InDelta(t, 2.0, got.Score, 1e-9)
	assert.Equal(t, 2, got.MatchedKeywords)
	assert.True(t, got.RequiresManualReview)
}

func TestPenaltySlopeIsPolicy(t *testing.T) {
	lenient := NewGrader(Policy{IncorrectSelectionPenalty: 0})
	got := lenient.Grade(languagesQuestion(), domain.MultiChoice{"js", "html"})
	assert.Equal(t, 1.0, got.Score)

	strict := NewGrader(Policy{IncorrectSelectionPenalty: 0.5})
	got = strict.Grade(languagesQuestion(), domain.MultiChoice{"js", "html"})
	assert.Equal(t, 0.5, got.Score)
}

func lockedLedger(t *testing.T, questions []domain.Question, answers map[string]domain.Response) *ledger.Ledger {
	t.Helper()
	l := ledger.New(questions)
	for id, r := range answers {
		require.NoError(t, l.SetDraft(id, r))
	}
	for _, q := range questions {
		_, _, err := l.Lock(q.ID)
		require.NoError(t, err)
	}
	return l
}

func TestScoreAttemptAggregates(t *testing.T) {
	third := domain.Question{ID: "third", Type: domain.MultiSelect, Points: 1, Options: []domain.Option{
		{ID: "a", Correct: true}, {ID: "b", Correct: true}, {ID: "c", Correct: true},
	}}
	questions := []domain.Question{capitalQuestion(), languagesQuestion(), third, essayQuestion(nil)}
	l := lockedLedger(t, questions, map[string]domain.Response{
		"capital":   domain.SingleChoice("paris"),
		"languages": domain.MultiChoice{"js"},
		"third":     domain.MultiChoice{"a"},
	})

	got := NewGrader(DefaultPolicy()).ScoreAttempt(questions, l)

	// 1 + 1 + 1/3 rounds once at the attempt level.
	assert.Equal(t, 2.33, got.TotalScore)
	assert.Equal(t, 7.0, got.MaxScore)
	assert.Equal(t, 33.33, got.Percentage)
	assert.True(t, got.RequiresManualReview, "an essay without an exact answer is reviewed even when blank")
	assert.Equal(t, 0, got.PendingReview)
	assert.Equal(t, 1, got.Correct)
	assert.Equal(t, 2, got.Incorrect)
	assert.Equal(t, 1, got.Unanswered)
	assert.Nil(t, got.Negative)
	require.Len(t, got.Questions, 4)
	assert.InDelta(t, 1.0/3.0, got.Questions[2].Score, 1e-9, "question scores are not rounded")
}

func TestScoreAttemptManualReviewIsOr(t *testing.T) {
	questions := []domain.Question{capitalQuestion(), essayQuestion(nil)}
	l := lockedLedger(t, questions, map[string]domain.Response{
		"capital": domain.SingleChoice("paris"),
		"essay":   domain.TextAnswer("free form"),
	})
	got := NewGrader(DefaultPolicy()).ScoreAttempt(questions, l)
	assert.True(t, got.RequiresManualReview)
	assert.Equal(t, 1, got.PendingReview)
}

func TestScoreAttemptNegativeMarking(t *testing.T) {
	questions := []domain.Question{capitalQuestion(), languagesQuestion(), essayQuestion(strPtr("x"))}
	l := lockedLedger(t, questions, map[string]domain.Response{
		"capital":   domain.SingleChoice("rome"),
		"languages": domain.MultiChoice{"js"},
		"essay":     domain.TextAnswer("y"),
	})

	got := NewGrader(Policy{IncorrectSelectionPenalty: 1, NegativeMarking: true, NegativePenalty: 0.25}).ScoreAttempt(questions, l)
	require.NotNil(t, got.Negative)
	assert.Equal(t, 1.0, got.TotalScore, "base total is unchanged by negative marking")
	assert.Equal(t, 1.0, got.Negative.Positive)
	assert.Equal(t, 2, got.Negative.Incorrect)
	assert.Equal(t, 0.5, got.Negative.Penalty)
	assert.Equal(t, 0.5, got.Negative.Net)
}

func TestScoreAttemptIsIdempotent(t *testing.T) {
	questions := []domain.Question{capitalQuestion(), languagesQuestion(), weightedQuestion(), essayQuestion(nil, "alpha")}
	l := lockedLedger(t, questions, map[string]domain.Response{
		"capital":   domain.SingleChoice("madrid"),
		"languages": domain.MultiChoice{"python", "css"},
		"weighted":  domain.MultiChoice{"js"},
		"essay":     domain.TextAnswer("alpha"),
	})
	grader := NewGrader(DefaultPolicy())
	first := grader.ScoreAttempt(questions, l)
	second := grader.ScoreAttempt(questions, l)
	assert.Equal(t, first, second)
}

func TestScoreAttemptWithoutAnswers(t *testing.T) {
	questions := []domain.Question{capitalQuestion(), languagesQuestion()}
	got := NewGrader(DefaultPolicy()).ScoreAttempt(questions, nil)
	assert.Equal(t, 0.0, got.TotalScore)
	assert.Equal(t, 3.0, got.MaxScore)
	assert.Equal(t, 2, got.Unanswered)
}
