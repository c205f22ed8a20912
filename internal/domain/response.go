package domain

import (
	"sort"
	"strings"
)

// Response is the answer value held by the ledger. A nil Response means "no answer".
// Concrete values are SingleChoice, MultiChoice and TextAnswer.
type Response interface {
	responseType() QuestionType
}

// SingleChoice selects one option id.
type SingleChoice string

// MultiChoice selects a set of option ids. Normalised values are sorted and unique.
type MultiChoice []string

// TextAnswer is a free-text answer.
type TextAnswer string

func (SingleChoice) responseType() QuestionType { return SingleSelect }
func (MultiChoice) responseType() QuestionType  { return MultiSelect }
func (TextAnswer) responseType() QuestionType   { return FreeText }

// Set returns the selection as a set.
func (m MultiChoice) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(m))
	for _, id := range m {
		set[id] = struct{}{}
	}
	return set
}

// CloneResponse copies r so the caller cannot mutate a ledger value through an alias.
func CloneResponse(r Response) Response {
	if m, ok := r.(MultiChoice); ok {
		if m == nil {
			return MultiChoice(nil)
		}
		out := make(MultiChoice, len(m))
		copy(out, m)
		return out
	}
	return r
}

// Normalize checks the shape of r against q and returns the effective response.
// Any shape mismatch or empty value yields nil, which is scored as unanswered.
func Normalize(q Question, r Response) Response {
	switch v := r.(type) {
	case SingleChoice:
		if q.Type != SingleSelect {
			return nil
		}
		id := strings.TrimSpace(string(v))
		if id == "" || !q.HasOption(id) {
			return nil
		}
		return SingleChoice(id)
	case MultiChoice:
		if q.Type != MultiSelect {
			return nil
		}
		seen := make(map[string]struct{}, len(v))
		out := make(MultiChoice, 0, len(v))
		for _, raw := range v {
			id := strings.TrimSpace(raw)
			if id == "" {
				continue
			}
			if !q.HasOption(id) {
				return nil
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
		if len(out) == 0 {
			return nil
		}
		sort.Strings(out)
		return out
	case TextAnswer:
		if q.Type != FreeText || strings.TrimSpace(string(v)) == "" {
			return nil
		}
		return v
	default:
		return nil
	}
}

// AnswerRecord is the wire and persistence form of a response.
type AnswerRecord struct {
	QuestionID      string   `json:"questionId"`
	SelectedOptions []string `json:"selectedOptions,omitempty"`
	TextAnswer      string   `json:"textAnswer,omitempty"`
}

// ResponseFromRecord converts a boundary record into a typed response for q.
func ResponseFromRecord(q Question, rec AnswerRecord) Response {
	switch q.Type {
	case SingleSelect:
		if len(rec.SelectedOptions) == 0 {
			return nil
		}
		if len(rec.SelectedOptions) > 1 {
			// More than one selection is not a single choice; keep it so
			// Normalize rejects it instead of silently picking one.
			return MultiChoice(append([]string(nil), rec.SelectedOptions...))
		}
		return SingleChoice(rec.SelectedOptions[0])
	case MultiSelect:
		if len(rec.SelectedOptions) == 0 {
			return nil
		}
		return MultiChoice(append([]string(nil), rec.SelectedOptions...))
	case FreeText:
		if rec.TextAnswer == "" {
			return nil
		}
		return TextAnswer(rec.TextAnswer)
	default:
		return nil
	}
}

// RecordFromResponse converts a response into its boundary record.
func RecordFromResponse(questionID string, r Response) AnswerRecord {
	rec := AnswerRecord{QuestionID: questionID}
	switch v := r.(type) {
	case SingleChoice:
		rec.SelectedOptions = []string{string(v)}
	case MultiChoice:
		rec.SelectedOptions = append([]string(nil), v...)
	case TextAnswer:
		rec.TextAnswer = string(v)
	}
	return rec
}
