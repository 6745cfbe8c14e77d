package survey

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
)

type (
	Repository interface {
		CreateFormAnswer(ctx context.Context, fa FormAnswer) (FormAnswer, error)
		// QueryFormAnswers applies AND operation on available FormFilter fields.
		QueryFormAnswers(ctx context.Context, filter FormFilter) ([]FormAnswer, error)
	}

	// ProgramChecker fails with a not-found error when the program does not exist or is not owned by uid.
	ProgramChecker interface {
		CheckProgram(ctx context.Context, uid, pid string) error
	}

	Service struct {
		repo     Repository
		programs ProgramChecker
		now      func() time.Time
	}
)

func NewService(repo Repository, programs ProgramChecker) *Service {
	return &Service{
		repo:     repo,
		programs: programs,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Questionnaire returns the form a respondent fills for a public link.
func (svc *Service) Questionnaire(kind, link string) (Questionnaire, error) {
	t, err := ParseKind(kind)
	if err != nil {
		return Questionnaire{}, err
	}
	pid, sid, err := ParseLink(link)
	if err != nil {
		return Questionnaire{}, err
	}
	return Questionnaire{FormType: t, ProgramID: pid, StudentID: sid, Questions: Questions(t)}, nil
}

// Submit stores the answers of a public form as one FormAnswer.
func (svc *Service) Submit(ctx context.Context, kind, link string, answers Answers) (FormAnswer, error) {
	t, err := ParseKind(kind)
	if err != nil {
		return FormAnswer{}, err
	}
	pid, sid, err := ParseLink(link)
	if err != nil {
		return FormAnswer{}, err
	}

	var saved FormAnswer
	session := NewSession(t, func(ctx context.Context, answers Answers) error {
		if err := CheckAnswerValues(Questions(t), answers); err != nil {
			return err
		}
		fa, err := svc.repo.CreateFormAnswer(ctx, FormAnswer{
			ID:          core.NewID(),
			FormType:    t,
			StudentID:   sid,
			ProgramID:   pid,
			SubmittedAt: svc.now(),
			Answers:     answers,
		})
		if err != nil {
			return errors.Wrap(err, "saving form answer")
		}
		saved = fa
		return nil
	})
	session.Fill(answers)
	if err := session.Submit(ctx); err != nil {
		return FormAnswer{}, err
	}
	return saved, nil
}

// AnswersByProgram returns the answers of a program owned by uid, oldest first.
func (svc *Service) AnswersByProgram(ctx context.Context, uid, pid string) (ProgramAnswers, error) {
	if err := svc.programs.CheckProgram(ctx, uid, pid); err != nil {
		return ProgramAnswers{}, err
	}
	forms, err := svc.repo.QueryFormAnswers(ctx, FormFilter{ProgramID: pid})
	if err != nil {
		return ProgramAnswers{}, errors.Wrap(err, "querying form answers")
	}
	SortAnswers(forms)

	res := ProgramAnswers{Hot: []FormAnswer{}, Cold: []FormAnswer{}}
	for _, fa := range forms {
		switch fa.FormType {
		case Hot:
			res.Hot = append(res.Hot, fa)
		case Cold:
			res.Cold = append(res.Cold, fa)
		}
	}
	return res, nil
}

// ExportCSV exports the answers of one form type of a program owned by uid.
func (svc *Service) ExportCSV(ctx context.Context, uid, pid string, t FormType) (ExportResult, error) {
	if !t.IsValid() {
		return ExportResult{}, core.NewValidationError(
			errors.Errorf("invalid form type %q", t),
			core.FieldError{Field: "type", Error: "must be one of hot, cold"},
		)
	}
	if err := svc.programs.CheckProgram(ctx, uid, pid); err != nil {
		return ExportResult{}, err
	}
	forms, err := svc.repo.QueryFormAnswers(ctx, FormFilter{ProgramID: pid, FormType: t})
	if err != nil {
		return ExportResult{}, errors.Wrap(err, "querying form answers")
	}
	SortAnswers(forms)
	return ExportResult{
		Filename:    CSVFilename(t),
		ContentType: CSVContentType,
		Data:        GenerateCSV(t, forms),
	}, nil
}

// SortAnswers orders answers by submission time, then id.
func SortAnswers(forms []FormAnswer) {
	sort.SliceStable(forms, func(i, j int) bool {
		if !forms[i].SubmittedAt.Equal(forms[j].SubmittedAt) {
			return forms[i].SubmittedAt.Before(forms[j].SubmittedAt)
		}
		return forms[i].ID < forms[j].ID
	})
}
