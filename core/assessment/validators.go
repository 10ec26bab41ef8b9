package assessment

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/assessly/core"
)

var (
	questionTypeTag  = "qtype"
	questionTypeText = fmt.Sprintf("question type must be one of %v", QuestionTypes)
)

// InitValidators registers the assessment validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(questionTypeTag, questionTypeValidation)
	core.RegisterCustomTranslation(validate, translator, questionTypeTag, questionTypeText)
}

func questionTypeValidation(fl validator.FieldLevel) bool {
	return QuestionType(fl.Field().String()).Valid()
}

// Validate cleans & validates the new assessment: struct tags first, then the rules tags cannot express.
func (na *NewAssessment) Validate(validate *validator.Validate) error {
	na.Clean()
	if err := validate.Struct(na); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(na.Questions))
	for i, q := range na.Questions {
		fld := fmt.Sprintf("questions[%d]", i)
		if _, dup := seen[q.ID]; dup {
			return core.NewValidationError(nil, core.FieldError{Field: fld + ".id", Error: "duplicate question id"})
		}
		seen[q.ID] = struct{}{}

		switch q.Type {
		case TypeMCQ:
			if len(q.Options) < 2 {
				return core.NewValidationError(nil, core.FieldError{Field: fld + ".options", Error: "at least two options are required"})
			}
		case TypeTrueFalse:
			if len(q.Options) != 2 {
				return core.NewValidationError(nil, core.FieldError{Field: fld + ".options", Error: "exactly two options are required"})
			}
		default:
			if len(q.Options) > 0 {
				return core.NewValidationError(nil, core.FieldError{Field: fld + ".options", Error: "options are only allowed on choice questions"})
			}
		}

		optSeen := make(map[string]struct{}, len(q.Options))
		for _, o := range q.Options {
			if _, dup := optSeen[o.ID]; dup {
				return core.NewValidationError(nil, core.FieldError{Field: fld + ".options", Error: "duplicate option id " + o.ID})
			}
			optSeen[o.ID] = struct{}{}
		}
	}
	return nil
}
