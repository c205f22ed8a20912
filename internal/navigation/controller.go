// Package navigation decides which question is current and moves forward by locking.
package navigation

import "quiz-attempt-engine/internal/ledger"

// Step describes the outcome of Advance or OnTimeout.
type Step struct {
	// Locked is the index locked by this step, or -1 when nothing changed.
	Locked  int
	Current int
	// Ready is true once every question is locked and the attempt can be submitted.
	Ready   bool
	Changed bool
}

// Controller moves strictly forward through the ledger.
type Controller struct {
	ledger  *ledger.Ledger
	current int
}

// New positions the controller at the first unlocked question.
func New(l *ledger.Ledger) *Controller {
	c := &Controller{ledger: l}
	c.current = c.firstUnlockedFrom(0)
	return c
}

// CurrentIndex is the first unlocked question in quiz order, or the last index once
// everything is locked.
func (c *Controller) CurrentIndex() int { return c.current }

// Ready reports whether every question is locked.
func (c *Controller) Ready() bool {
	return c.ledger.LockedCount() == c.ledger.Len()
}

// Advance locks the current question with whatever draft it has and moves on.
func (c *Controller) Advance() Step {
	return c.lockAndMove(c.current)
}

// OnTimeout applies the same transition for a timed-out question. A timeout for a
// question that is no longer current, or already locked, changes nothing.
func (c *Controller) OnTimeout(index int) Step {
	if index != c.current {
		return c.step(-1, false)
	}
	return c.lockAndMove(index)
}

// Next reports the question that follows index, for the timer engine's resolver.
func (c *Controller) Next(index int) (int, bool) {
	if c.current > index && !c.ledger.IsLockedAt(c.current) {
		return c.current, true
	}
	for i := index + 1; i < c.ledger.Len(); i++ {
		if !c.ledger.IsLockedAt(i) {
			return i, true
		}
	}
	return 0, false
}

func (c *Controller) lockAndMove(index int) Step {
	if c.ledger.Len() == 0 || c.ledger.IsLockedAt(index) {
		return c.step(-1, false)
	}
	if _, changed, err := c.ledger.Lock(c.ledger.QuestionID(index)); err != nil || !changed {
		return c.step(-1, false)
	}
	c.current = c.firstUnlockedFrom(index + 1)
	return c.step(index, true)
}

// firstUnlockedFrom scans forward from start and falls back to the last index.
func (c *Controller) firstUnlockedFrom(start int) int {
	n := c.ledger.Len()
	for i := start; i < n; i++ {
		if !c.ledger.IsLockedAt(i) {
			return i
		}
	}
	if n == 0 {
		return 0
	}
	return n - 1
}

func (c *Controller) step(locked int, changed bool) Step {
	return Step{Locked: locked, Current: c.current, Ready: c.Ready(), Changed: changed}
}
