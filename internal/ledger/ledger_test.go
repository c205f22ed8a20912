package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-attempt-engine/internal/domain"
)

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID: "capital", Type: domain.SingleSelect, Points: 1,
			Options: []domain.Option{{ID: "paris", Correct: true}, {ID: "rome"}},
		},
		{
			ID: "langs", Type: domain.MultiSelect, Points: 2,
			Options: []domain.Option{{ID: "js", Correct: true}, {ID: "python", Correct: true}, {ID: "html"}},
		},
		{ID: "essay", Type: domain.FreeText, Points: 3},
	}
}

func TestLockIsMonotonic(t *testing.T) {
	l := New(sampleQuestions())

	require.NoError(t, l.SetDraft("capital", domain.SingleChoice("rome")))
	require.NoError(t, l.SetDraft("capital", domain.SingleChoice("paris")))
	locked, changed, err := l.Lock("capital")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.SingleChoice("paris"), locked)

	assert.ErrorIs(t, l.SetDraft("capital", domain.SingleChoice("rome")), domain.ErrAnswerLocked)
	_, changed, err = l.Lock("capital")
	require.NoError(t, err)
	assert.False(t, changed, "second lock is a no-op")

	got, ok := l.GetLocked("capital")
	assert.True(t, ok)
	assert.Equal(t, domain.SingleChoice("paris"), got)
}

func TestLockedMultiChoiceCannotBeMutatedThroughAlias(t *testing.T) {
	l := New(sampleQuestions())
	draft := domain.MultiChoice{"js", "python"}
	require.NoError(t, l.SetDraft("langs", draft))
	draft[0] = "html"

	_, _, err := l.Lock("langs")
	require.NoError(t, err)
	got, _ := l.GetLocked("langs")
	got.(domain.MultiChoice)[0] = "html"

	again, _ := l.GetLocked("langs")
	assert.Equal(t, domain.MultiChoice{"js", "python"}, again)
}

func TestInvalidDraftLocksAsNoAnswer(t *testing.T) {
	l := New(sampleQuestions())
	require.NoError(t, l.SetDraft("langs", domain.MultiChoice{"js", "cobol"}))
	locked, changed, err := l.Lock("langs")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Nil(t, locked)
	assert.True(t, l.IsLocked("langs"))

	_, _, err = l.Lock("essay")
	require.NoError(t, err)
	got, ok := l.GetLocked("essay")
	assert.True(t, ok)
	assert.Nil(t, got)
}

func TestUnknownQuestion(t *testing.T) {
	l := New(sampleQuestions())
	assert.ErrorIs(t, l.SetDraft("missing", domain.TextAnswer("x")), domain.ErrQuestionNotFound)
	_, _, err := l.Lock("missing")
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
	assert.False(t, l.IsLocked("missing"))
}

func TestRestoreAndRecords(t *testing.T) {
	l := New(sampleQuestions())
	require.NoError(t, l.Restore("langs", domain.MultiChoice{"python", "js"}))
	require.NoError(t, l.Restore("langs", domain.MultiChoice{"html"}))

	assert.True(t, l.IsLockedAt(1))
	assert.False(t, l.IsLockedAt(0))
	assert.Equal(t, 1, l.LockedCount())

	records := l.Records()
	require.Len(t, records, 1)
	assert.Equal(t, domain.AnswerRecord{QuestionID: "langs", SelectedOptions: []string{"js", "python"}}, records[0])

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "capital", entries[0].QuestionID)
	assert.False(t, entries[0].Locked)
}
