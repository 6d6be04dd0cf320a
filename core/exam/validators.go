package exam

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core"
)

var (
	answerRangeTag  = "answerrange"
	answerRangeText = "{0} must point to one of the choices"

	uniqueIDsTag  = "uniqueids"
	uniqueIDsText = "question IDs must be unique"
)

// InitValidators registers the exam validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(questionStructValidation, Question{})
	core.RegisterCustomTranslation(validate, translator, answerRangeTag, answerRangeText)

	validate.RegisterStructValidation(examStructValidation, Exam{})
	core.RegisterCustomTranslation(validate, translator, uniqueIDsTag, uniqueIDsText)
}

func (e Exam) Validate(validate *validator.Validate, translator ut.Translator) error {
	if len(e.Questions) == 0 {
		return ErrNoQuestions
	}
	if err := validate.Struct(e); err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			return core.TranslateErrors(err, translator)
		}
		return errors.Wrap(err, "validating exam")
	}
	return nil
}

func questionStructValidation(sl validator.StructLevel) {
	q := sl.Current().Interface().(Question)
	if q.Answer < 0 || q.Answer >= len(q.Choices) {
		sl.ReportError(q.Answer, "answer", "Answer", answerRangeTag, fmt.Sprint(len(q.Choices)))
	}
}

func examStructValidation(sl validator.StructLevel) {
	e := sl.Current().Interface().(Exam)
	seen := make(map[int]struct{}, len(e.Questions))
	for _, q := range e.Questions {
		if _, ok := seen[q.ID]; ok {
			sl.ReportError(e.Questions, "questions", "Questions", uniqueIDsTag, "")
			return
		}
		seen[q.ID] = struct{}{}
	}
}
