package sqlxrepos

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core/survey"
)

const formColumns = "id, form_type, program_id, student_id, submitted_at, answers"

type formRow struct {
	ID          string         `db:"id"`
	FormType    string         `db:"form_type"`
	ProgramID   string         `db:"program_id"`
	StudentID   string         `db:"student_id"`
	SubmittedAt time.Time      `db:"submitted_at"`
	Answers     types.JSONText `db:"answers"`
}

func (r formRow) formAnswer() (survey.FormAnswer, error) {
	fa := survey.FormAnswer{
		ID:          r.ID,
		FormType:    survey.FormType(r.FormType),
		ProgramID:   r.ProgramID,
		StudentID:   r.StudentID,
		SubmittedAt: r.SubmittedAt.UTC(),
		Answers:     make(survey.Answers),
	}
	if err := r.Answers.Unmarshal(&fa.Answers); err != nil {
		return survey.FormAnswer{}, errors.Wrapf(err, "decoding answers of %s", r.ID)
	}
	return fa, nil
}

type formRepository struct {
	db *sqlx.DB
}

var _ survey.Repository = (*formRepository)(nil) // interface compliance check

func NewFormRepository(db *sqlx.DB) survey.Repository {
	return &formRepository{db: db}
}

func (repo *formRepository) CreateFormAnswer(ctx context.Context, fa survey.FormAnswer) (survey.FormAnswer, error) {
	answers, err := json.Marshal(fa.Answers)
	if err != nil {
		return survey.FormAnswer{}, errors.Wrap(err, "encoding answers")
	}
	_, err = repo.db.NamedExecContext(ctx,
		`INSERT INTO form_answers (`+formColumns+`)
		VALUES (:id, :form_type, :program_id, :student_id, :submitted_at, :answers)`,
		formRow{
			ID:          fa.ID,
			FormType:    string(fa.FormType),
			ProgramID:   fa.ProgramID,
			StudentID:   fa.StudentID,
			SubmittedAt: fa.SubmittedAt.UTC(),
			Answers:     types.JSONText(answers),
		})
	if err != nil {
		return survey.FormAnswer{}, errors.Wrap(err, "inserting form answer")
	}
	return fa, nil
}

func (repo *formRepository) QueryFormAnswers(ctx context.Context, filter survey.FormFilter) ([]survey.FormAnswer, error) {
	var (
		conds []string
		args  []interface{}
	)
	where := func(col, val string) {
		if val != "" {
			args = append(args, val)
			conds = append(conds, col+" = $"+strconv.Itoa(len(args)))
		}
	}
	where("program_id", filter.ProgramID)
	where("student_id", filter.StudentID)
	where("form_type", string(filter.FormType))

	q := `SELECT ` + formColumns + ` FROM form_answers`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY submitted_at, id`

	var rows []formRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying form answers")
	}
	forms := make([]survey.FormAnswer, 0, len(rows))
	for _, r := range rows {
		fa, err := r.formAnswer()
		if err != nil {
			return nil, err
		}
		forms = append(forms, fa)
	}
	return forms, nil
}
