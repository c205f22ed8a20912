// Package timer drives the countdown of a quiz attempt, either one countdown for the
// whole attempt or one per question. The engine is tick driven and single threaded:
// callers serialise Tick and the control methods.
package timer

import (
	"errors"
	"fmt"

	"quiz-attempt-engine/internal/domain"
)

// Kind identifies an engine event.
type Kind string

const (
	KindTick            Kind = "tick"
	KindWarning         Kind = "warning"
	KindCritical        Kind = "critical"
	KindQuestionTimeout Kind = "questionTimeout"
	KindExpired         Kind = "expired"
)

const (
	DefaultWarningPercent  = 25.0
	DefaultCriticalPercent = 10.0
)

// ErrQuestionOutOfRange is returned when a countdown targets a missing question.
var ErrQuestionOutOfRange = errors.New("question index out of range")

// Event is delivered synchronously to the engine's Handler.
type Event struct {
	Kind          Kind
	Mode          domain.TimingMode
	Remaining     int
	QuestionIndex int
}

// Handler receives engine events. It may call back into the engine.
type Handler func(Event)

// Config describes the countdowns an engine runs.
type Config struct {
	Mode domain.TimingMode
	// DurationSeconds is required in total mode.
	DurationSeconds int
	// QuestionLimits holds every question's limit in per-question mode.
	QuestionLimits  []int
	WarningPercent  float64
	CriticalPercent float64
	// Next resolves the question that follows a timed-out one. Defaults to index+1.
	Next func(index int) (int, bool)
}

// StartOptions selects where a countdown begins. A nil Remaining means a fresh countdown.
type StartOptions struct {
	QuestionIndex int
	Remaining     *int
}

type countdown struct {
	gen           uint64
	index         int
	duration      int
	remaining     int
	warningFired  bool
	criticalFired bool
}

// Engine owns at most one active countdown.
type Engine struct {
	cfg     Config
	handler Handler

	active *countdown
	last   countdown
	gen    uint64
	paused bool
	index  int
}

// New validates cfg and returns an idle engine.
func New(cfg Config, handler Handler) (*Engine, error) {
	switch cfg.Mode {
	case domain.TimingTotal:
		if cfg.DurationSeconds <= 0 {
			return nil, domain.NewConfigurationError("duration", "total mode requires a positive duration")
		}
	case domain.TimingPerQuestion:
		if len(cfg.QuestionLimits) == 0 {
			return nil, domain.NewConfigurationError("questions", "per-question mode requires at least one question")
		}
		for i, limit := range cfg.QuestionLimits {
			if limit <= 0 {
				return nil, domain.NewConfigurationError(fmt.Sprintf("questions[%d]", i), "time limit must be positive")
			}
		}
	default:
		return nil, domain.NewConfigurationError("mode", fmt.Sprintf("unsupported timing mode %q", cfg.Mode))
	}

	if cfg.WarningPercent == 0 {
		cfg.WarningPercent = DefaultWarningPercent
	}
	if cfg.CriticalPercent == 0 {
		cfg.CriticalPercent = DefaultCriticalPercent
	}
	if cfg.WarningPercent < 0 || cfg.WarningPercent > 100 || cfg.CriticalPercent < 0 || cfg.CriticalPercent > cfg.WarningPercent {
		return nil, domain.NewConfigurationError("thresholds", "need 0 <= critical <= warning <= 100")
	}
	if cfg.Next == nil {
		count := len(cfg.QuestionLimits)
		cfg.Next = func(index int) (int, bool) {
			if index+1 < count {
				return index + 1, true
			}
			return 0, false
		}
	}
	if handler == nil {
		handler = func(Event) {}
	}
	return &Engine{cfg: cfg, handler: handler}, nil
}

// Mode returns the engine's timing mode.
func (e *Engine) Mode() domain.TimingMode { return e.cfg.Mode }

// Start begins a countdown, replacing any active one.
func (e *Engine) Start(opts StartOptions) error {
	if e.cfg.Mode == domain.TimingTotal {
		e.index = opts.QuestionIndex
		e.begin(0, e.cfg.DurationSeconds, opts.Remaining)
		return nil
	}
	return e.SwitchToQuestion(opts.QuestionIndex, opts.Remaining)
}

// SwitchToQuestion replaces the active countdown with one scoped to index.
// Without an override the question gets its full limit. In total mode only the
// reported question index changes.
func (e *Engine) SwitchToQuestion(index int, override *int) error {
	if e.cfg.Mode == domain.TimingTotal {
		e.index = index
		return nil
	}
	if index < 0 || index >= len(e.cfg.QuestionLimits) {
		return fmt.Errorf("%w: %d", ErrQuestionOutOfRange, index)
	}
	e.index = index
	e.begin(index, e.cfg.QuestionLimits[index], override)
	return nil
}

func (e *Engine) begin(index, duration int, override *int) {
	remaining := duration
	if override != nil {
		remaining = clamp(*override, 0, duration)
	}
	e.gen++
	e.active = &countdown{gen: e.gen, index: index, duration: duration, remaining: remaining}
}

// Pause freezes the active countdown. Elapsed time is kept exactly.
func (e *Engine) Pause() {
	if e.active != nil {
		e.paused = true
	}
}

// Resume continues a paused countdown from where it stopped.
func (e *Engine) Resume() {
	e.paused = false
}

// Stop tears down the active countdown. It is safe to call repeatedly.
func (e *Engine) Stop() {
	if e.active != nil {
		e.last = *e.active
		e.active = nil
	}
	e.gen++
	e.paused = false
}

// Running reports whether a countdown is active.
func (e *Engine) Running() bool { return e.active != nil }

// Remaining returns the seconds left on the active countdown.
func (e *Engine) Remaining() int {
	if e.active == nil {
		return e.last.remaining
	}
	return e.active.remaining
}

// State reports the engine's current view.
func (e *Engine) State() domain.TimerState {
	cd := e.last
	if e.active != nil {
		cd = *e.active
	}
	index := cd.index
	if e.cfg.Mode == domain.TimingTotal {
		index = e.index
	}
	return domain.TimerState{
		Mode:          e.cfg.Mode,
		Remaining:     cd.remaining,
		Duration:      cd.duration,
		QuestionIndex: index,
		WarningFired:  cd.warningFired,
		CriticalFired: cd.criticalFired,
		Running:       e.active != nil,
		Paused:        e.paused,
	}
}

// Tick advances the active countdown by one second.
func (e *Engine) Tick() {
	cd := e.active
	if cd == nil || e.paused {
		return
	}
	if cd.remaining > 0 {
		cd.remaining--
	}
	gen := cd.gen

	if !e.emit(gen, KindTick, cd) {
		return
	}
	if !cd.warningFired && below(cd.remaining, cd.duration, e.cfg.WarningPercent) {
		cd.warningFired = true
		if !e.emit(gen, KindWarning, cd) {
			return
		}
	}
	if !cd.criticalFired && cd.warningFired && below(cd.remaining, cd.duration, e.cfg.CriticalPercent) {
		cd.criticalFired = true
		if !e.emit(gen, KindCritical, cd) {
			return
		}
	}
	if cd.remaining > 0 {
		return
	}

	if e.cfg.Mode == domain.TimingTotal {
		e.Stop()
		e.handler(Event{Kind: KindExpired, Mode: e.cfg.Mode, Remaining: 0, QuestionIndex: e.index})
		return
	}

	if !e.emit(gen, KindQuestionTimeout, cd) {
		return
	}
	next, ok := e.cfg.Next(cd.index)
	if !ok || next < 0 || next >= len(e.cfg.QuestionLimits) {
		e.Stop()
		e.handler(Event{Kind: KindExpired, Mode: e.cfg.Mode, Remaining: 0, QuestionIndex: cd.index})
		return
	}
	e.index = next
	e.begin(next, e.cfg.QuestionLimits[next], nil)
}

// emit delivers an event and reports whether the countdown survived the handler.
func (e *Engine) emit(gen uint64, kind Kind, cd *countdown) bool {
	index := cd.index
	if e.cfg.Mode == domain.TimingTotal {
		index = e.index
	}
	e.handler(Event{Kind: kind, Mode: e.cfg.Mode, Remaining: cd.remaining, QuestionIndex: index})
	return e.active != nil && e.active.gen == gen
}

// below reports whether remaining has dropped strictly under pct percent of duration.
func below(remaining, duration int, pct float64) bool {
	if duration <= 0 {
		return false
	}
	return float64(remaining)*100 < pct*float64(duration)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
