package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"quiz-attempt-engine/internal/clock"
	"quiz-attempt-engine/internal/domain"
	"quiz-attempt-engine/internal/ledger"
	"quiz-attempt-engine/internal/logging"
	"quiz-attempt-engine/internal/navigation"
	"quiz-attempt-engine/internal/resume"
	"quiz-attempt-engine/internal/scoring"
	"quiz-attempt-engine/internal/timer"
)

// Options tune attempt timing and persistence.
type Options struct {
	WarningPercent  float64
	CriticalPercent float64
	// AutosaveInterval is the periodic save period in per-question mode.
	AutosaveInterval time.Duration
	SaveRetries      int
	SaveBackoff      time.Duration
	TickInterval     time.Duration
}

// Dependencies are the collaborators an AttemptService needs. Events, Grader, Clock
// and Logger are optional.
type Dependencies struct {
	Attempts    AttemptRepository
	Quizzes     QuizRepository
	Snapshots   SnapshotStore
	Submissions SubmissionSink
	Events      EventPublisher
	Grader      *scoring.Grader
	Clock       clock.Clock
	Logger      *slog.Logger
}

// AttemptService contains the attempt use cases.
type AttemptService struct {
	attempts  AttemptRepository
	quizzes   QuizRepository
	snapshots SnapshotStore
	sink      SubmissionSink
	publisher EventPublisher
	grader    *scoring.Grader
	clock     clock.Clock
	logger    *slog.Logger
	opts      Options
	newID     func() string

	resumes singleflight.Group
	runners sync.WaitGroup

	// suspending holds one channel per attempt whose final snapshot is still being
	// written; it is closed once the attempt has left the repository.
	suspendMu  sync.Mutex
	suspending map[string]chan struct{}
}

func NewAttemptService(deps Dependencies, opts Options) *AttemptService {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.SaveRetries <= 0 {
		opts.SaveRetries = 3
	}
	s := &AttemptService{
		attempts:  deps.Attempts,
		quizzes:   deps.Quizzes,
		snapshots: deps.Snapshots,
		sink:      deps.Submissions,
		publisher: deps.Events,
		grader:    deps.Grader,
		clock:     deps.Clock,
		logger:    deps.Logger,
		opts:      opts,
		newID:     uuid.NewString,

		suspending: make(map[string]chan struct{}),
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.grader == nil {
		s.grader = scoring.NewGrader(scoring.DefaultPolicy())
	}
	if s.clock == nil {
		s.clock = clock.NewReal()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// Start begins a new attempt of quizID for userID.
func (s *AttemptService) Start(ctx context.Context, quizID, userID string) (domain.AttemptView, error) {
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return domain.AttemptView{}, err
	}

	l := ledger.New(quiz.Questions)
	nav := navigation.New(l)
	a, err := s.newAttempt(s.newID(), userID, quiz, s.clock.Now(), l, nav)
	if err != nil {
		return domain.AttemptView{}, err
	}
	fx, err := a.mutate(func() error {
		if err := a.engine.Start(timer.StartOptions{QuestionIndex: nav.CurrentIndex()}); err != nil {
			return err
		}
		a.requestSaveLocked()
		return nil
	})
	if err != nil {
		_ = a.saver.close(ctx)
		return domain.AttemptView{}, err
	}

	s.launch(a)
	s.apply(ctx, a, fx)
	s.logger.Info("attempt started", "attempt_id", a.id, "quiz_id", quiz.ID, "user_id", userID, "mode", quiz.TimingMode)
	return a.View(), nil
}

// Resume returns the live attempt, or rebuilds it from its latest snapshot. An attempt
// whose time ran out while it was away is submitted straight away with ForcedRefresh.
func (s *AttemptService) Resume(ctx context.Context, attemptID string) (domain.AttemptView, error) {
	if view, ok, err := s.liveView(ctx, attemptID); err != nil || ok {
		return view, err
	}
	result, err, _ := s.resumes.Do(attemptID, func() (interface{}, error) {
		if view, ok, err := s.liveView(ctx, attemptID); err != nil || ok {
			return view, err
		}
		return s.restore(ctx, attemptID)
	})
	if err != nil {
		return domain.AttemptView{}, err
	}
	return result.(domain.AttemptView), nil
}

func (s *AttemptService) restore(ctx context.Context, attemptID string) (domain.AttemptView, error) {
	snap, err := s.snapshots.Load(ctx, attemptID)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return domain.AttemptView{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.AttemptView{}, fmt.Errorf("load snapshot %s: %w", attemptID, err)
	}
	if snap.Status.Finished() {
		return domain.AttemptView{}, domain.ErrAttemptFinished
	}
	if marker, ok := s.attempts.(LivenessMarker); ok {
		if owner, held, err := marker.Owner(ctx, attemptID); err == nil && held {
			s.logger.Warn("attempt still marked live", "attempt_id", attemptID, "owner", owner)
		}
	}
	quiz, err := s.loadQuiz(ctx, snap.QuizID)
	if err != nil {
		return domain.AttemptView{}, err
	}

	now := s.clock.Now()
	rec, err := resume.Reconcile(snap, quiz, now)
	if err != nil {
		return domain.AttemptView{}, err
	}
	if len(rec.Ignored) > 0 {
		s.logger.Warn("snapshot answers ignored", "attempt_id", attemptID, "question_ids", rec.Ignored)
	}

	startedAt := snap.StartTime
	if startedAt.IsZero() {
		startedAt = now
	}
	a, err := s.newAttempt(attemptID, snap.UserID, quiz, startedAt, rec.Ledger, rec.Navigation)
	if err != nil {
		return domain.AttemptView{}, err
	}

	timeUp := quiz.TimingMode == domain.TimingTotal && rec.Timer.Remaining == 0
	exhausted := rec.Complete || timeUp
	fx, err := a.mutate(func() error {
		if exhausted {
			a.finishLocked(timeUp, true)
			return nil
		}
		remaining := rec.Timer.Remaining
		return a.engine.Start(timer.StartOptions{QuestionIndex: rec.Timer.QuestionIndex, Remaining: &remaining})
	})
	if err != nil {
		_ = a.saver.close(ctx)
		return domain.AttemptView{}, err
	}

	if !exhausted {
		s.launch(a)
	}
	s.apply(ctx, a, fx)
	s.logger.Info("attempt resumed",
		"attempt_id", attemptID,
		"current_index", rec.CurrentIndex,
		"remaining", rec.Timer.Remaining,
		"source", rec.Timer.Source,
		"forced_submit", exhausted,
	)
	return a.View(), nil
}

// View returns the state of a live attempt.
func (s *AttemptService) View(_ context.Context, attemptID string) (domain.AttemptView, error) {
	a, err := s.live(attemptID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	return a.View(), nil
}

// SetDraft stores an unlocked answer. Writes to a locked question return
// domain.ErrAnswerLocked and change nothing.
func (s *AttemptService) SetDraft(ctx context.Context, attemptID string, answer domain.AnswerRecord) error {
	a, err := s.live(attemptID)
	if err != nil {
		return err
	}
	fx, err := a.mutate(func() error { return a.setDraftLocked(answer) })
	s.apply(ctx, a, fx)
	return err
}

// Next locks the current question and moves forward. Locking the last open
// question submits the attempt.
func (s *AttemptService) Next(ctx context.Context, attemptID string) (domain.AttemptView, error) {
	a, err := s.live(attemptID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	fx, err := a.mutate(a.advanceLocked)
	s.apply(ctx, a, fx)
	if err != nil {
		return domain.AttemptView{}, err
	}
	return a.View(), nil
}

// Pause freezes the attempt's countdown.
func (s *AttemptService) Pause(ctx context.Context, attemptID string) error {
	a, err := s.live(attemptID)
	if err != nil {
		return err
	}
	fx, err := a.mutate(func() error {
		a.pauseLocked()
		return nil
	})
	s.apply(ctx, a, fx)
	return err
}

// Unpause continues a paused countdown.
func (s *AttemptService) Unpause(_ context.Context, attemptID string) error {
	a, err := s.live(attemptID)
	if err != nil {
		return err
	}
	_, err = a.mutate(func() error {
		a.engine.Resume()
		return nil
	})
	return err
}

// Submit ends the attempt now with whatever has been answered.
func (s *AttemptService) Submit(ctx context.Context, attemptID string) (domain.Submission, error) {
	a, err := s.live(attemptID)
	if err != nil {
		return domain.Submission{}, err
	}
	fx, err := a.mutate(func() error {
		a.finishLocked(false, false)
		return nil
	})
	if err != nil {
		return domain.Submission{}, err
	}
	s.apply(ctx, a, fx)
	return *fx.submission, nil
}

// Suspend saves the attempt and releases it from memory. It continues on Resume.
func (s *AttemptService) Suspend(ctx context.Context, attemptID string) error {
	a, err := s.live(attemptID)
	if err != nil {
		return err
	}
	done, ok := s.beginSuspend(attemptID)
	if !ok {
		return domain.ErrAttemptFinished
	}
	defer done()

	fx, err := a.mutate(func() error {
		a.suspendLocked()
		return nil
	})
	if err != nil {
		return err
	}
	a.stopRunner()
	s.publish(ctx, a, fx.outbound)
	a.saver.request(fx.seq, *fx.snapshot)
	// The attempt stays registered until its final snapshot is written, so a
	// reconnect cannot restore from an older one.
	saveErr := a.saver.close(context.WithoutCancel(ctx))
	s.attempts.Delete(a.id)
	if saveErr != nil {
		return fmt.Errorf("save snapshot %s: %w", a.id, saveErr)
	}
	s.logger.Info("attempt suspended", "attempt_id", a.id)
	return nil
}

func (s *AttemptService) beginSuspend(attemptID string) (func(), bool) {
	s.suspendMu.Lock()
	defer s.suspendMu.Unlock()
	if _, busy := s.suspending[attemptID]; busy {
		return nil, false
	}
	ch := make(chan struct{})
	s.suspending[attemptID] = ch
	return func() {
		s.suspendMu.Lock()
		delete(s.suspending, attemptID)
		s.suspendMu.Unlock()
		close(ch)
	}, true
}

// awaitSuspend blocks while attemptID is being suspended.
func (s *AttemptService) awaitSuspend(ctx context.Context, attemptID string) error {
	s.suspendMu.Lock()
	ch, ok := s.suspending[attemptID]
	s.suspendMu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// liveView returns the view of attemptID if it is live and not on its way out.
// A suspending attempt is waited for, after which it is no longer live.
func (s *AttemptService) liveView(ctx context.Context, attemptID string) (domain.AttemptView, bool, error) {
	for {
		if err := s.awaitSuspend(ctx, attemptID); err != nil {
			return domain.AttemptView{}, false, err
		}
		a, ok := s.attempts.Get(attemptID)
		if !ok {
			return domain.AttemptView{}, false, nil
		}
		if !a.suspended() {
			return a.View(), true, nil
		}
		// Closed attempts are always registered in suspending first.
	}
}

// Subscribe returns a channel of attempt events. The channel closes when the attempt
// finishes or is suspended; the caller must invoke cancel to avoid leaks.
func (s *AttemptService) Subscribe(_ context.Context, attemptID string) (<-chan domain.AttemptEvent, func(), error) {
	a, err := s.live(attemptID)
	if err != nil {
		return nil, nil, err
	}
	return a.subscribe()
}

// Shutdown suspends every live attempt so each can resume after a restart.
func (s *AttemptService) Shutdown(ctx context.Context) error {
	var errs []error
	for _, a := range s.attempts.List() {
		if err := s.Suspend(ctx, a.id); err != nil && !errors.Is(err, domain.ErrAttemptFinished) && !errors.Is(err, domain.ErrAttemptNotFound) {
			errs = append(errs, err)
		}
	}
	s.runners.Wait()
	return errors.Join(errs...)
}

func (s *AttemptService) live(attemptID string) (*Attempt, error) {
	a, ok := s.attempts.Get(attemptID)
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return a, nil
}

func (s *AttemptService) loadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func (s *AttemptService) newAttempt(id, userID string, quiz domain.Quiz, startedAt time.Time, l *ledger.Ledger, nav *navigation.Controller) (*Attempt, error) {
	autosaveEvery := 0
	if s.opts.AutosaveInterval > 0 {
		autosaveEvery = int(s.opts.AutosaveInterval / s.opts.TickInterval)
		if autosaveEvery < 1 {
			autosaveEvery = 1
		}
	}
	return newAttempt(attemptParams{
		id:              id,
		userID:          userID,
		quiz:            quiz,
		startedAt:       startedAt,
		ledger:          l,
		nav:             nav,
		now:             s.clock.Now,
		grader:          s.grader,
		saver:           newSaver(s.snapshots, s.logger.With("attempt_id", id), s.opts.SaveRetries, s.opts.SaveBackoff),
		warningPercent:  s.opts.WarningPercent,
		criticalPercent: s.opts.CriticalPercent,
		autosaveEvery:   autosaveEvery,
	})
}

// launch registers a and starts its tick pump. The ticker exists before launch returns.
func (s *AttemptService) launch(a *Attempt) {
	s.attempts.Put(a)
	ticker := s.clock.NewTicker(s.opts.TickInterval)
	s.runners.Add(1)
	go func() {
		defer s.runners.Done()
		defer ticker.Stop()
		for {
			select {
			case <-a.done:
				return
			case <-ticker.C():
				s.tick(a)
			}
		}
	}()
}

func (s *AttemptService) tick(a *Attempt) {
	fx, err := a.mutate(func() error {
		a.engine.Tick()
		return nil
	})
	if err != nil {
		return
	}
	s.apply(context.Background(), a, fx)
}

// apply carries out side effects outside the attempt lock.
func (s *AttemptService) apply(ctx context.Context, a *Attempt, fx effects) {
	s.publish(ctx, a, fx.outbound)
	if fx.submission != nil {
		s.complete(context.WithoutCancel(ctx), a, fx)
		return
	}
	if fx.snapshot != nil {
		a.saver.request(fx.seq, *fx.snapshot)
		s.refreshLiveness(ctx, a.id)
	}
}

func (s *AttemptService) refreshLiveness(ctx context.Context, attemptID string) {
	marker, ok := s.attempts.(LivenessMarker)
	if !ok {
		return
	}
	if err := marker.Refresh(ctx, attemptID); err != nil {
		s.logger.Warn("refresh liveness marker failed", "attempt_id", attemptID, "error", err)
	}
}

func (s *AttemptService) publish(ctx context.Context, a *Attempt, events []domain.AttemptEvent) {
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn("publish attempt event failed", "attempt_id", a.id, "type", ev.Type, "error", err)
		}
	}
}

// complete tears a finished attempt down and hands its submission to the sink.
func (s *AttemptService) complete(ctx context.Context, a *Attempt, fx effects) {
	a.stopRunner()
	s.attempts.Delete(a.id)

	if fx.snapshot != nil {
		a.saver.request(fx.seq, *fx.snapshot)
	}
	if err := a.saver.close(ctx); err != nil {
		s.logger.Error("final snapshot save failed", "attempt_id", a.id, "error", err)
	}

	sub := *fx.submission
	if err := retry(ctx, s.opts.SaveRetries, s.opts.SaveBackoff, func(ctx context.Context) error {
		return s.sink.Submit(ctx, sub)
	}); err != nil {
		s.logger.Error("submission delivery failed", "attempt_id", a.id, "error", err)
	}
	s.logger.Info("attempt submitted",
		"attempt_id", a.id,
		"total_score", sub.Score.TotalScore,
		"max_score", sub.Score.MaxScore,
		"time_expired", sub.TimeExpired,
		"forced_refresh", sub.ForcedRefresh,
	)
}
