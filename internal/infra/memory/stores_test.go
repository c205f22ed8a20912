package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-attempt-engine/internal/domain"
)

const quizYAML = `
quizzes:
  - id: capitals
    title: Capitals
    timingMode: per-question
    questions:
      - id: q1
        type: single-select
        prompt: Capital of France?
        points: 1
        timeLimitSeconds: 30
        options:
          - {id: paris, text: Paris, isCorrect: true}
          - {id: rome, text: Rome}
      - id: q2
        type: multi-select
        prompt: Pick the languages
        points: 2
        options:
          - {id: js, text: JS, isCorrect: true, probability: 80}
          - {id: python, text: Python, isCorrect: true, probability: 60}
      - id: q3
        type: free-text
        prompt: Explain
        points: 3
        keywords: [important, concept]
`

func TestParseQuizFile(t *testing.T) {
	loader, err := ParseQuizFile([]byte(quizYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	quiz, err := loader.LoadQuiz(context.Background(), "capitals")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if quiz.TimingMode != domain.TimingPerQuestion || len(quiz.Questions) != 3 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if quiz.Questions[0].TimeLimit() != 30 || quiz.Questions[1].TimeLimit() != domain.DefaultQuestionTimeLimit {
		t.Fatalf("unexpected limits %v", quiz.QuestionLimits())
	}
	if !quiz.Questions[1].UsesProbabilityValues() {
		t.Fatalf("expected probability values on q2")
	}
	if got := quiz.Questions[2].Keywords; len(got) != 2 || got[0] != "important" {
		t.Fatalf("unexpected keywords %v", got)
	}
}

func TestParseQuizFileRejectsInvalidQuiz(t *testing.T) {
	const bad = `
quizzes:
  - id: broken
    timingMode: total
    questions:
      - id: q1
        type: single-select
        points: 1
        options:
          - {id: a}
`
	_, err := ParseQuizFile([]byte(bad))
	if !domain.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}

	remaining := 42.0
	snap := domain.AttemptSnapshot{
		AttemptID:     "a-1",
		QuizID:        "capitals",
		Status:        domain.AttemptInProgress,
		StartTime:     time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC),
		RemainingTime: &remaining,
		Answers:       []domain.AnswerRecord{{QuestionID: "q1", SelectedOptions: []string{"paris"}}},
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.Answers[0].SelectedOptions[0] = "rome"

	got, err := store.Load(ctx, "a-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Answers[0].SelectedOptions[0] != "paris" {
		t.Fatalf("stored snapshot shares memory with caller: %+v", got.Answers)
	}
	if got.RemainingTime == nil || *got.RemainingTime != 42 {
		t.Fatalf("unexpected remaining %v", got.RemainingTime)
	}
	if store.Saves() != 1 {
		t.Fatalf("expected one save, got %d", store.Saves())
	}
}

func TestSubmissionSinkReplacesByAttempt(t *testing.T) {
	sink := NewSubmissionSink()
	ctx := context.Background()

	_ = sink.Submit(ctx, domain.Submission{AttemptID: "a-1", Score: domain.AttemptScore{TotalScore: 1}})
	_ = sink.Submit(ctx, domain.Submission{AttemptID: "a-2"})
	_ = sink.Submit(ctx, domain.Submission{AttemptID: "a-1", Score: domain.AttemptScore{TotalScore: 2}})

	all, err := sink.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].AttemptID != "a-1" || all[0].Score.TotalScore != 2 {
		t.Fatalf("unexpected submissions %+v", all)
	}
	if _, ok := sink.Get("a-2"); !ok {
		t.Fatalf("expected a-2 recorded")
	}
}

func TestBundledQuizFileLoads(t *testing.T) {
	loader, err := LoadQuizFile("../../../config/quizzes.yaml")
	if err != nil {
		t.Fatalf("load bundled quizzes: %v", err)
	}
	all := loader.All()
	if len(all) != 2 || all[0].ID != "capitals" || all[1].ID != "sprint" {
		t.Fatalf("unexpected quizzes %+v", all)
	}
}
