package inmemdb

import (
	"context"

	"github.com/trezcool/feeded/core/survey"
)

type formRepository struct {
	db *DB
}

func NewFormRepository(db *DB) survey.Repository {
	return &formRepository{db: db}
}

func (repo *formRepository) CreateFormAnswer(_ context.Context, fa survey.FormAnswer) (survey.FormAnswer, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	answers := make(survey.Answers, len(fa.Answers))
	for k, v := range fa.Answers {
		answers[k] = v
	}
	fa.Answers = answers
	repo.db.forms[fa.ID] = &fa
	return fa, nil
}

func (repo *formRepository) QueryFormAnswers(_ context.Context, filter survey.FormFilter) ([]survey.FormAnswer, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	forms := make([]survey.FormAnswer, 0)
	for _, fa := range repo.db.forms {
		if filter.Match(*fa) {
			forms = append(forms, *fa)
		}
	}
	survey.SortAnswers(forms)
	return forms, nil
}
