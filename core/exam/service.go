package exam

import (
	"context"
	"errors"
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/ulms/core"
)

var (
	// errors
	ErrNotFound       = errors.New("exam not found")
	ErrNoQuestions    = errors.New("exam has no questions")
	ErrSessionStarted = errors.New("exam session already started")
	ErrInvalidChoice  = errors.New("choice is out of range")
	ErrInvalidIndex   = errors.New("question index is out of range")
)

type (
	// Provider is the course/exam data source.
	Provider interface {
		GetExam(ctx context.Context, id int) (Exam, error)
		SubmitExam(ctx context.Context, sub Submission) error
	}

	Service struct {
		provider   Provider
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
	}
)

func NewService(provider Provider, validate *validator.Validate, translator ut.Translator, logger core.Logger) *Service {
	return &Service{
		provider:   provider,
		validate:   validate,
		translator: translator,
		logger:     logger,
	}
}

// Load fetches an exam and makes sure it can be taken.
// Failures here are blocking: without exam content there is nothing to proctor.
func (svc *Service) Load(ctx context.Context, id int) (Exam, error) {
	e, err := svc.provider.GetExam(ctx, id)
	if err != nil {
		return Exam{}, pkgerrors.Wrap(err, fmt.Sprintf("loading exam %d", id))
	}
	if err = e.Validate(svc.validate, svc.translator); err != nil {
		return Exam{}, pkgerrors.Wrap(err, fmt.Sprintf("validating exam %d", id))
	}
	return e, nil
}

// NewSession loads an exam and prepares a session for it, not started yet.
func (svc *Service) NewSession(ctx context.Context, id int, opts ...SessionOption) (*Session, error) {
	e, err := svc.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewSession(e, opts...), nil
}

// Submit hands a finished attempt back to the provider. A failure never affects the local result.
func (svc *Service) Submit(ctx context.Context, student Student, res Result) error {
	if err := svc.provider.SubmitExam(ctx, NewSubmission(student.ID, res)); err != nil {
		svc.logger.Error(fmt.Sprintf("submitting exam %d: %v", res.ExamID, err), err, student)
		return err
	}
	svc.logger.Info(fmt.Sprintf("exam %d submitted: %d/%d", res.ExamID, res.Score, res.TotalQuestions), student)
	return nil
}
