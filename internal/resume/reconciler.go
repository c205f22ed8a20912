// Package resume rebuilds in-memory attempt state from a persisted snapshot.
package resume

import (
	"math"
	"time"

	"quiz-attempt-engine/internal/domain"
	"quiz-attempt-engine/internal/ledger"
	"quiz-attempt-engine/internal/navigation"
)

// Source names the rung of the fallback ladder that produced the remaining time.
type Source string

const (
	SourceStoredRemaining  Source = "stored_remaining"
	SourceStoredOverall    Source = "stored_overall_remaining"
	SourceStoredQuestion   Source = "stored_question_remaining"
	SourceStoredLimitsList Source = "stored_question_limits"
	SourceElapsedEstimate  Source = "elapsed_estimate"
	SourceFullLimit        Source = "full_limit"
	SourceNone             Source = "none"
)

// Plan is the countdown the timer engine should start with.
type Plan struct {
	Mode          domain.TimingMode
	QuestionIndex int
	Remaining     int
	Source        Source
}

// Result is the reconstructed attempt state.
type Result struct {
	Ledger       *ledger.Ledger
	Navigation   *navigation.Controller
	CurrentIndex int
	Complete     bool
	Timer        Plan
	// Ignored lists snapshot answers that name no question of the quiz.
	Ignored []string
}

// Reconcile restores locked answers from snapshot and picks a valid remaining time.
// Timing fields that are missing, negative or not finite never reach the timer; the
// fallback ladder is evaluated in a fixed order and never grants more than the limit.
func Reconcile(snapshot domain.AttemptSnapshot, quiz domain.Quiz, now time.Time) (Result, error) {
	if snapshot.Status.Finished() {
		return Result{}, domain.ErrAttemptFinished
	}

	l := ledger.New(quiz.Questions)
	var ignored []string
	for _, rec := range snapshot.Answers {
		idx := quiz.QuestionIndex(rec.QuestionID)
		if idx < 0 {
			ignored = append(ignored, rec.QuestionID)
			continue
		}
		if err := l.Restore(rec.QuestionID, domain.ResponseFromRecord(quiz.Questions[idx], rec)); err != nil {
			return Result{}, err
		}
	}

	nav := navigation.New(l)
	res := Result{
		Ledger:       l,
		Navigation:   nav,
		CurrentIndex: nav.CurrentIndex(),
		Complete:     nav.Ready(),
		Ignored:      ignored,
	}

	elapsed, elapsedKnown := elapsedSince(snapshot.StartTime, now)

	switch quiz.TimingMode {
	case domain.TimingTotal:
		duration := quiz.DurationSeconds()
		remaining, source := firstValid(duration,
			candidate{SourceStoredRemaining, func() (float64, bool) { return deref(snapshot.RemainingTime) }},
			candidate{SourceStoredOverall, func() (float64, bool) { return deref(snapshot.OverallRemainingTime) }},
			candidate{SourceElapsedEstimate, func() (float64, bool) {
				if !elapsedKnown {
					return 0, false
				}
				return math.Max(float64(duration)-elapsed, 0), true
			}},
		)
		res.Timer = Plan{Mode: domain.TimingTotal, QuestionIndex: res.CurrentIndex, Remaining: remaining, Source: source}

	case domain.TimingPerQuestion:
		res.Timer = Plan{Mode: domain.TimingPerQuestion, QuestionIndex: res.CurrentIndex, Source: SourceNone}
		if res.Complete || len(quiz.Questions) == 0 {
			break
		}
		question := quiz.Questions[res.CurrentIndex]
		limit := question.TimeLimit()
		remaining, source := firstValid(limit,
			candidate{SourceStoredQuestion, func() (float64, bool) {
				v, ok := snapshot.QuestionTimeRemaining[question.ID]
				return v, ok
			}},
			candidate{SourceStoredLimitsList, func() (float64, bool) {
				for _, entry := range snapshot.QuestionTimeLimits {
					if entry.QuestionID == question.ID {
						return deref(entry.TimeRemaining)
					}
				}
				return 0, false
			}},
			candidate{SourceElapsedEstimate, func() (float64, bool) {
				if !elapsedKnown {
					return 0, false
				}
				prior := 0
				for _, q := range quiz.Questions[:res.CurrentIndex] {
					prior += q.TimeLimit()
				}
				estimate := float64(limit) - (elapsed - float64(prior))
				// A spent or negative estimate says nothing reliable about this
				// question, so it falls through to the full limit.
				if estimate <= 0 {
					return 0, false
				}
				return estimate, true
			}},
		)
		res.Timer.Remaining = remaining
		res.Timer.Source = source
	}
	return res, nil
}

type candidate struct {
	source Source
	value  func() (float64, bool)
}

// firstValid returns the first finite, non-negative candidate clamped to limit,
// or limit itself when none qualifies.
func firstValid(limit int, candidates ...candidate) (int, Source) {
	for _, c := range candidates {
		v, ok := c.value()
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			continue
		}
		seconds := int(math.Floor(v))
		if seconds > limit {
			seconds = limit
		}
		return seconds, c.source
	}
	return limit, SourceFullLimit
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func elapsedSince(start, now time.Time) (float64, bool) {
	if start.IsZero() || now.Before(start) {
		return 0, false
	}
	return now.Sub(start).Seconds(), true
}
