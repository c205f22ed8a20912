package app

import (
	"sync"
	"time"

	"quiz-attempt-engine/internal/domain"
	"quiz-attempt-engine/internal/ledger"
	"quiz-attempt-engine/internal/navigation"
	"quiz-attempt-engine/internal/scoring"
	"quiz-attempt-engine/internal/timer"
)

// Attempt is one user's live run through a quiz. Every mutation, timer callbacks
// included, happens under mu, so the ledger, navigation and timer never interleave.
type Attempt struct {
	id        string
	quiz      domain.Quiz
	userID    string
	startedAt time.Time
	now       func() time.Time
	grader    *scoring.Grader
	saver     *saver
	// autosaveEvery is the per-question save period in ticks; zero disables it.
	autosaveEvery int

	mu          sync.Mutex
	status      domain.AttemptStatus
	closed      bool
	ledger      *ledger.Ledger
	nav         *navigation.Controller
	engine      *timer.Engine
	subscribers map[chan domain.AttemptEvent]struct{}
	sinceSave   int
	seq         uint64
	fx          effects
	result      *domain.Submission

	done     chan struct{}
	stopOnce sync.Once
}

// effects are collected while mu is held and carried out by the service after it is released.
type effects struct {
	snapshot   *domain.AttemptSnapshot
	seq        uint64
	submission *domain.Submission
	outbound   []domain.AttemptEvent
}

type attemptParams struct {
	id              string
	userID          string
	quiz            domain.Quiz
	startedAt       time.Time
	ledger          *ledger.Ledger
	nav             *navigation.Controller
	now             func() time.Time
	grader          *scoring.Grader
	saver           *saver
	warningPercent  float64
	criticalPercent float64
	autosaveEvery   int
}

func newAttempt(p attemptParams) (*Attempt, error) {
	a := &Attempt{
		id:            p.id,
		quiz:          p.quiz,
		userID:        p.userID,
		startedAt:     p.startedAt,
		now:           p.now,
		grader:        p.grader,
		saver:         p.saver,
		autosaveEvery: p.autosaveEvery,
		status:        domain.AttemptInProgress,
		ledger:        p.ledger,
		nav:           p.nav,
		subscribers:   make(map[chan domain.AttemptEvent]struct{}),
		done:          make(chan struct{}),
	}
	engine, err := timer.New(timer.Config{
		Mode:            p.quiz.TimingMode,
		DurationSeconds: p.quiz.DurationSeconds(),
		QuestionLimits:  p.quiz.QuestionLimits(),
		WarningPercent:  p.warningPercent,
		CriticalPercent: p.criticalPercent,
		Next:            p.nav.Next,
	}, a.onTimerEvent)
	if err != nil {
		return nil, err
	}
	a.engine = engine
	return a, nil
}

// ID returns the attempt id.
func (a *Attempt) ID() string { return a.id }

// QuizID returns the id of the quiz being attempted.
func (a *Attempt) QuizID() string { return a.quiz.ID }

// Status returns the lifecycle state.
func (a *Attempt) Status() domain.AttemptStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Result returns the submission once the attempt has finished.
func (a *Attempt) Result() (domain.Submission, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return domain.Submission{}, false
	}
	return *a.result, true
}

// suspended reports whether the attempt has been closed for suspension.
func (a *Attempt) suspended() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// View renders the attempt for the attempt taker. Correct answers are never included.
func (a *Attempt) View() domain.AttemptView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewLocked()
}

// mutate runs fn under the attempt lock and hands back the side effects it produced.
func (a *Attempt) mutate(fn func() error) (effects, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.status.Finished() {
		return effects{}, domain.ErrAttemptFinished
	}
	err := fn()
	fx := a.fx
	a.fx = effects{}
	return fx, err
}

func (a *Attempt) setDraftLocked(rec domain.AnswerRecord) error {
	idx := a.quiz.QuestionIndex(rec.QuestionID)
	if idx < 0 {
		return domain.ErrQuestionNotFound
	}
	if a.quiz.TimingMode == domain.TimingPerQuestion && idx != a.nav.CurrentIndex() && !a.ledger.IsLockedAt(idx) {
		return domain.ErrQuestionNotActive
	}
	return a.ledger.SetDraft(rec.QuestionID, domain.ResponseFromRecord(a.quiz.Questions[idx], rec))
}

func (a *Attempt) advanceLocked() error {
	step := a.nav.Advance()
	if step.Changed {
		a.emitLocked(domain.EventLocked, a.engine.Remaining(), step.Locked, true)
		a.requestSaveLocked()
	}
	if step.Ready {
		a.finishLocked(false, false)
		return nil
	}
	if !step.Changed {
		return nil
	}
	return a.engine.SwitchToQuestion(step.Current, nil)
}

func (a *Attempt) pauseLocked() {
	a.engine.Pause()
	a.requestSaveLocked()
}

func (a *Attempt) suspendLocked() {
	a.engine.Stop()
	a.requestSaveLocked()
	a.closed = true
	a.closeSubscribersLocked()
}

// onTimerEvent runs synchronously inside engine calls, which always happen under mu.
func (a *Attempt) onTimerEvent(ev timer.Event) {
	switch ev.Kind {
	case timer.KindTick:
		a.emitLocked(domain.EventTick, ev.Remaining, ev.QuestionIndex, false)
		if a.quiz.TimingMode == domain.TimingPerQuestion && a.autosaveEvery > 0 {
			a.sinceSave++
			if a.sinceSave >= a.autosaveEvery {
				a.requestSaveLocked()
			}
		}
	case timer.KindWarning:
		a.emitLocked(domain.EventWarning, ev.Remaining, ev.QuestionIndex, true)
	case timer.KindCritical:
		a.emitLocked(domain.EventCritical, ev.Remaining, ev.QuestionIndex, true)
	case timer.KindQuestionTimeout:
		a.emitLocked(domain.EventQuestionTimeout, ev.Remaining, ev.QuestionIndex, true)
		if step := a.nav.OnTimeout(ev.QuestionIndex); step.Changed {
			a.emitLocked(domain.EventLocked, 0, step.Locked, true)
			a.requestSaveLocked()
		}
	case timer.KindExpired:
		a.emitLocked(domain.EventExpired, 0, ev.QuestionIndex, true)
		a.finishLocked(true, false)
	}
}

// finishLocked locks every remaining question with its draft, scores the ledger and
// records the submission. It runs at most once.
func (a *Attempt) finishLocked(timeExpired, forcedRefresh bool) {
	if a.status.Finished() {
		return
	}
	a.engine.Stop()
	for i := 0; i < a.ledger.Len(); i++ {
		_, _, _ = a.ledger.Lock(a.ledger.QuestionID(i))
	}

	a.status = domain.AttemptSubmitted
	if timeExpired {
		a.status = domain.AttemptExpired
	}
	sub := domain.Submission{
		AttemptID:     a.id,
		QuizID:        a.quiz.ID,
		UserID:        a.userID,
		Answers:       a.ledger.Records(),
		Score:         a.grader.ScoreAttempt(a.quiz.Questions, a.ledger),
		TimeExpired:   timeExpired,
		ForcedRefresh: forcedRefresh,
		SubmittedAt:   a.now(),
	}
	a.result = &sub
	a.fx.submission = &sub
	a.requestSaveLocked()

	ev := a.eventLocked(domain.EventSubmitted, 0, a.nav.CurrentIndex())
	ev.Submission = &sub
	a.broadcastLocked(ev)
	a.fx.outbound = append(a.fx.outbound, ev)
	a.closeSubscribersLocked()
}

func (a *Attempt) requestSaveLocked() {
	snap := a.snapshotLocked()
	a.seq++
	a.fx.snapshot = &snap
	a.fx.seq = a.seq
	a.sinceSave = 0
}

func (a *Attempt) snapshotLocked() domain.AttemptSnapshot {
	state := a.engine.State()
	snap := domain.AttemptSnapshot{
		AttemptID: a.id,
		QuizID:    a.quiz.ID,
		UserID:    a.userID,
		Status:    a.status,
		StartTime: a.startedAt,
		Answers:   a.ledger.Records(),
		SavedAt:   a.now(),
	}
	remaining := float64(state.Remaining)
	switch a.quiz.TimingMode {
	case domain.TimingTotal:
		snap.RemainingTime = &remaining
	case domain.TimingPerQuestion:
		if !a.nav.Ready() {
			current := a.nav.CurrentIndex()
			// A timeout locks the question before the engine starts the next countdown.
			if state.QuestionIndex != current {
				remaining = float64(a.quiz.Questions[current].TimeLimit())
			}
			qid := a.ledger.QuestionID(current)
			snap.QuestionTimeRemaining = map[string]float64{qid: remaining}
			snap.QuestionTimeLimits = []domain.QuestionTimeLimit{{QuestionID: qid, TimeRemaining: &remaining}}
		}
	}
	return snap
}

func (a *Attempt) eventLocked(typ string, remaining, index int) domain.AttemptEvent {
	ev := domain.AttemptEvent{
		Type:          typ,
		AttemptID:     a.id,
		Mode:          a.quiz.TimingMode,
		Remaining:     remaining,
		QuestionIndex: index,
		At:            a.now(),
	}
	if index >= 0 && index < a.ledger.Len() {
		ev.QuestionID = a.ledger.QuestionID(index)
	}
	return ev
}

// emitLocked broadcasts to subscribers and, when external is set, queues the event
// for the publisher.
func (a *Attempt) emitLocked(typ string, remaining, index int, external bool) {
	ev := a.eventLocked(typ, remaining, index)
	a.broadcastLocked(ev)
	if external {
		a.fx.outbound = append(a.fx.outbound, ev)
	}
}

func (a *Attempt) subscribe() (<-chan domain.AttemptEvent, func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.status.Finished() {
		return nil, nil, domain.ErrAttemptFinished
	}
	ch := make(chan domain.AttemptEvent, 16)
	a.subscribers[ch] = struct{}{}

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel, nil
}

func (a *Attempt) broadcastLocked(ev domain.AttemptEvent) {
	for ch := range a.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow readers lose the oldest update rather than block the attempt.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (a *Attempt) closeSubscribersLocked() {
	for ch := range a.subscribers {
		delete(a.subscribers, ch)
		close(ch)
	}
}

func (a *Attempt) stopRunner() {
	a.stopOnce.Do(func() { close(a.done) })
}

func (a *Attempt) viewLocked() domain.AttemptView {
	view := domain.AttemptView{
		AttemptID:     a.id,
		QuizID:        a.quiz.ID,
		UserID:        a.userID,
		Status:        a.status,
		Mode:          a.quiz.TimingMode,
		CurrentIndex:  a.nav.CurrentIndex(),
		ReadyToSubmit: a.nav.Ready(),
		Timer:         a.engine.State(),
		Questions:     make([]domain.QuestionView, 0, len(a.quiz.Questions)),
		StartedAt:     a.startedAt,
	}
	entries := a.ledger.Entries()
	for i, q := range a.quiz.Questions {
		entry := entries[i]
		qv := domain.QuestionView{
			ID:               q.ID,
			Type:             q.Type,
			Prompt:           q.Prompt,
			Points:           q.Points,
			TimeLimitSeconds: q.TimeLimitSeconds,
		}
		for _, opt := range q.Options {
			qv.Options = append(qv.Options, domain.OptionView{ID: opt.ID, Text: opt.Text})
		}
		if entry.Locked {
			qv.Locked = true
			qv.Answer = domain.RecordFromResponse(q.ID, entry.LockedResponse)
		} else {
			qv.Answer = domain.RecordFromResponse(q.ID, entry.Draft)
		}
		view.Questions = append(view.Questions, qv)
	}
	return view
}
