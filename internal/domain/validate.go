package domain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	structRules  *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		structRules = validator.New()
	})
	return structRules
}

// Validate checks struct rules and the per-type rules an attempt relies on.
// Failures are reported as *ConfigurationError.
func (q Quiz) Validate() error {
	if err := structValidator().Struct(q); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return NewConfigurationError(fe.Namespace(), fmt.Sprintf("failed %q rule", fe.Tag()))
		}
		return NewConfigurationError("quiz", err.Error())
	}

	if q.TimingMode == TimingTotal && q.DurationSeconds() <= 0 {
		return NewConfigurationError("durationMinutes", "total timing mode requires a positive duration")
	}

	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		if _, dup := seen[question.ID]; dup {
			return NewConfigurationError(fmt.Sprintf("questions[%d].id", i), "duplicate question id "+question.ID)
		}
		seen[question.ID] = struct{}{}
		if err := question.validateType(); err != nil {
			return NewConfigurationError(fmt.Sprintf("questions[%d]", i), err.Error())
		}
	}
	return nil
}

func (q Question) validateType() error {
	correct := len(q.CorrectOptionIDs())
	switch q.Type {
	case SingleSelect:
		if correct != 1 {
			return fmt.Errorf("single-select question %s needs exactly one correct option, has %d", q.ID, correct)
		}
	case MultiSelect:
		if correct < 1 && !q.UsesProbabilityValues() {
			return fmt.Errorf("multi-select question %s needs at least one correct option", q.ID)
		}
	case FreeText:
		if len(q.Options) > 0 {
			return fmt.Errorf("free-text question %s must not define options", q.ID)
		}
	}
	optionIDs := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if _, dup := optionIDs[opt.ID]; dup {
			return fmt.Errorf("question %s has duplicate option id %s", q.ID, opt.ID)
		}
		optionIDs[opt.ID] = struct{}{}
	}
	return nil
}
