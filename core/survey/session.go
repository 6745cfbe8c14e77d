package survey

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
)

var (
	ErrIncomplete       = core.NewValidationError(errors.New("answer all questions before submitting"))
	ErrAlreadySubmitted = core.NewConflictError("survey already submitted")
)

// SubmitFunc persists a completed set of answers.
type SubmitFunc func(ctx context.Context, answers Answers) error

// Session walks a respondent through a questionnaire one question at a time.
// It is answering until Submit succeeds, then submitted for good.
type Session struct {
	formType  FormType
	questions []Question
	index     int
	answers   Answers
	submitted bool
	submit    SubmitFunc
}

func NewSession(t FormType, submit SubmitFunc) *Session {
	return &Session{
		formType:  t,
		questions: Questions(t),
		answers:   make(Answers),
		submit:    submit,
	}
}

func (s *Session) FormType() FormType { return s.formType }
func (s *Session) Index() int         { return s.index }
func (s *Session) Len() int           { return len(s.questions) }
func (s *Session) Submitted() bool    { return s.submitted }
func (s *Session) Current() Question  { return s.questions[s.index] }

// Next moves to the next question; it is a no-op on the last one.
func (s *Session) Next() bool {
	if s.submitted || s.index >= len(s.questions)-1 {
		return false
	}
	s.index++
	return true
}

// Previous moves to the previous question; it is a no-op on the first one.
func (s *Session) Previous() bool {
	if s.submitted || s.index == 0 {
		return false
	}
	s.index--
	return true
}

// Answer records the answer of a question, overwriting any previous one.
func (s *Session) Answer(questionID string, value interface{}) {
	if s.submitted {
		return
	}
	s.answers[questionID] = value
}

// Fill records many answers at once.
func (s *Session) Fill(answers Answers) {
	for id, v := range answers {
		s.Answer(id, v)
	}
}

func (s *Session) Answers() Answers {
	out := make(Answers, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Submit writes the answers once they are complete.
// On failure the session stays answering and may be submitted again.
func (s *Session) Submit(ctx context.Context) error {
	if s.submitted {
		return ErrAlreadySubmitted
	}
	if !ValidateAnswers(s.questions, s.answers) {
		return ErrIncomplete
	}
	if err := s.submit(ctx, s.Answers()); err != nil {
		return err
	}
	s.submitted = true
	return nil
}
