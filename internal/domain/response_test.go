package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func capitals() Question {
	return Question{
		ID:     "q1",
		Type:   SingleSelect,
		Points: 1,
		Options: []Option{
			{ID: "paris", Text: "Paris", Correct: true},
			{ID: "rome", Text: "Rome"},
			{ID: "madrid", Text: "Madrid"},
			{ID: "berlin", Text: "Berlin"},
		},
	}
}

func languages() Question {
	return Question{
		ID:     "q2",
		Type:   MultiSelect,
		Points: 2,
		Options: []Option{
			{ID: "js", Correct: true},
			{ID: "python", Correct: true},
			{ID: "html"},
		},
	}
}

func TestNormalize(t *testing.T) {
	essay := Question{ID: "q3", Type: FreeText, Points: 1}

	tests := []struct {
		name string
		q    Question
		in   Response
		want Response
	}{
		{name: "single valid", q: capitals(), in: SingleChoice(" paris "), want: SingleChoice("paris")},
		{name: "single unknown option", q: capitals(), in: SingleChoice("london"), want: nil},
		{name: "single wrong shape", q: capitals(), in: MultiChoice{"paris"}, want: nil},
		{name: "multi sorted and deduped", q: languages(), in: MultiChoice{"python", "js", "js"}, want: MultiChoice{"js", "python"}},
		{name: "multi unknown option", q: languages(), in: MultiChoice{"js", "go"}, want: nil},
		{name: "multi empty", q: languages(), in: MultiChoice{}, want: nil},
		{name: "text kept", q: essay, in: TextAnswer("An answer"), want: TextAnswer("An answer")},
		{name: "text blank", q: essay, in: TextAnswer("   "), want: nil},
		{name: "nil", q: essay, in: nil, want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.q, tc.in))
		})
	}
}

func TestRecordConversion(t *testing.T) {
	q := languages()
	r := ResponseFromRecord(q, AnswerRecord{QuestionID: "q2", SelectedOptions: []string{"js"}})
	assert.Equal(t, MultiChoice{"js"}, r)

	rec := RecordFromResponse("q2", r)
	rec.SelectedOptions[0] = "mutated"
	assert.Equal(t, MultiChoice{"js"}, r, "record must not alias the response")

	single := ResponseFromRecord(capitals(), AnswerRecord{SelectedOptions: []string{"paris", "rome"}})
	assert.Nil(t, Normalize(capitals(), single), "two selections never form a single choice")

	assert.Nil(t, ResponseFromRecord(capitals(), AnswerRecord{QuestionID: "q1"}))
}

func TestCloneResponse(t *testing.T) {
	original := MultiChoice{"js", "python"}
	clone := CloneResponse(original).(MultiChoice)
	clone[0] = "html"
	assert.Equal(t, "js", original[0])
}
