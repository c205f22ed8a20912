package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quiz-attempt-engine/internal/domain"
)

type quizFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// LoadQuizFile reads a YAML document with a top-level `quizzes` list and returns a
// loader over it. Every quiz is validated up front.
func LoadQuizFile(path string) (*StaticQuizLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz file: %w", err)
	}
	return ParseQuizFile(data)
}

// ParseQuizFile is LoadQuizFile over raw bytes.
func ParseQuizFile(data []byte) (*StaticQuizLoader, error) {
	var file quizFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse quiz file: %w", err)
	}
	quizzes := make(map[string]domain.Quiz, len(file.Quizzes))
	for _, quiz := range file.Quizzes {
		if err := quiz.Validate(); err != nil {
			return nil, fmt.Errorf("quiz %q: %w", quiz.ID, err)
		}
		if _, dup := quizzes[quiz.ID]; dup {
			return nil, domain.NewConfigurationError("quizzes", fmt.Sprintf("duplicate quiz id %q", quiz.ID))
		}
		quizzes[quiz.ID] = quiz
	}
	return NewStaticQuizLoader(quizzes), nil
}
