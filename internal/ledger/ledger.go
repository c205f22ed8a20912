// Package ledger tracks the draft and locked response of every question in an attempt.
package ledger

import (
	"fmt"

	"quiz-attempt-engine/internal/domain"
)

// Entry is the state of one question's answer.
type Entry struct {
	QuestionID     string
	Draft          domain.Response
	Locked         bool
	LockedResponse domain.Response
}

// Ledger holds one entry per question, in quiz order. Entries are never removed.
type Ledger struct {
	order     []string
	questions map[string]domain.Question
	entries   map[string]*Entry
}

// New creates an empty ledger for questions.
func New(questions []domain.Question) *Ledger {
	l := &Ledger{
		order:     make([]string, 0, len(questions)),
		questions: make(map[string]domain.Question, len(questions)),
		entries:   make(map[string]*Entry, len(questions)),
	}
	for _, q := range questions {
		l.order = append(l.order, q.ID)
		l.questions[q.ID] = q
		l.entries[q.ID] = &Entry{QuestionID: q.ID}
	}
	return l
}

// Len returns the number of questions.
func (l *Ledger) Len() int { return len(l.order) }

// QuestionID returns the id at index i in quiz order.
func (l *Ledger) QuestionID(i int) string { return l.order[i] }

// SetDraft stores r as the draft for questionID. A locked entry is never changed
// and the write is rejected with domain.ErrAnswerLocked.
func (l *Ledger) SetDraft(questionID string, r domain.Response) error {
	entry, err := l.entry(questionID)
	if err != nil {
		return err
	}
	if entry.Locked {
		return domain.ErrAnswerLocked
	}
	entry.Draft = domain.CloneResponse(r)
	return nil
}

// Lock commits the current draft. Invalid drafts lock as nil ("no answer").
// It reports whether this call performed the transition; locking twice is a no-op.
func (l *Ledger) Lock(questionID string) (domain.Response, bool, error) {
	entry, err := l.entry(questionID)
	if err != nil {
		return nil, false, err
	}
	if entry.Locked {
		return domain.CloneResponse(entry.LockedResponse), false, nil
	}
	entry.LockedResponse = domain.Normalize(l.questions[questionID], entry.Draft)
	entry.Locked = true
	return domain.CloneResponse(entry.LockedResponse), true, nil
}

// Restore locks questionID with a previously persisted response.
// An entry that is already locked keeps its value.
func (l *Ledger) Restore(questionID string, r domain.Response) error {
	entry, err := l.entry(questionID)
	if err != nil {
		return err
	}
	if entry.Locked {
		return nil
	}
	normalized := domain.Normalize(l.questions[questionID], r)
	entry.Draft = domain.CloneResponse(normalized)
	entry.LockedResponse = normalized
	entry.Locked = true
	return nil
}

// IsLocked reports whether questionID is locked. Unknown ids report false.
func (l *Ledger) IsLocked(questionID string) bool {
	entry, ok := l.entries[questionID]
	return ok && entry.Locked
}

// IsLockedAt reports whether the question at index i is locked.
func (l *Ledger) IsLockedAt(i int) bool {
	if i < 0 || i >= len(l.order) {
		return false
	}
	return l.entries[l.order[i]].Locked
}

// GetDraft returns a copy of the draft for questionID.
func (l *Ledger) GetDraft(questionID string) domain.Response {
	if entry, ok := l.entries[questionID]; ok {
		return domain.CloneResponse(entry.Draft)
	}
	return nil
}

// GetLocked returns a copy of the locked response and whether the entry is locked.
func (l *Ledger) GetLocked(questionID string) (domain.Response, bool) {
	entry, ok := l.entries[questionID]
	if !ok || !entry.Locked {
		return nil, false
	}
	return domain.CloneResponse(entry.LockedResponse), true
}

// LockedCount returns how many entries are locked.
func (l *Ledger) LockedCount() int {
	n := 0
	for _, entry := range l.entries {
		if entry.Locked {
			n++
		}
	}
	return n
}

// Entries returns copies of every entry in quiz order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, 0, len(l.order))
	for _, id := range l.order {
		entry := l.entries[id]
		out = append(out, Entry{
			QuestionID:     entry.QuestionID,
			Draft:          domain.CloneResponse(entry.Draft),
			Locked:         entry.Locked,
			LockedResponse: domain.CloneResponse(entry.LockedResponse),
		})
	}
	return out
}

// Records returns the locked answers in persistence form, in quiz order.
func (l *Ledger) Records() []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, 0, len(l.order))
	for _, id := range l.order {
		entry := l.entries[id]
		if !entry.Locked {
			continue
		}
		out = append(out, domain.RecordFromResponse(id, entry.LockedResponse))
	}
	return out
}

func (l *Ledger) entry(questionID string) (*Entry, error) {
	entry, ok := l.entries[questionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	return entry, nil
}
