package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/feeded/core/survey"
)

type formDoc struct {
	ID          string                 `bson:"_id"`
	FormType    string                 `bson:"form_type"`
	ProgramID   string                 `bson:"program_id"`
	StudentID   string                 `bson:"student_id"`
	SubmittedAt time.Time              `bson:"submitted_at"`
	Answers     map[string]interface{} `bson:"answers"`
}

func (d formDoc) formAnswer() survey.FormAnswer {
	answers := make(survey.Answers, len(d.Answers))
	for k, v := range d.Answers {
		answers[k] = normalize(v)
	}
	return survey.FormAnswer{
		ID:          d.ID,
		FormType:    survey.FormType(d.FormType),
		ProgramID:   d.ProgramID,
		StudentID:   d.StudentID,
		SubmittedAt: d.SubmittedAt.UTC(),
		Answers:     answers,
	}
}

// normalize decodes stored numbers as float64, like JSON answers.
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	}
	return v
}

type formRepository struct {
	coll *mongo.Collection
}

var _ survey.Repository = (*formRepository)(nil) // interface compliance check

func NewFormRepository(db *DB) survey.Repository {
	return &formRepository{coll: db.collection(collectionForms)}
}

func (repo *formRepository) CreateFormAnswer(ctx context.Context, fa survey.FormAnswer) (survey.FormAnswer, error) {
	_, err := repo.coll.InsertOne(ctx, formDoc{
		ID:          fa.ID,
		FormType:    string(fa.FormType),
		ProgramID:   fa.ProgramID,
		StudentID:   fa.StudentID,
		SubmittedAt: fa.SubmittedAt.UTC(),
		Answers:     fa.Answers,
	})
	if err != nil {
		return survey.FormAnswer{}, errors.Wrap(err, "inserting form answer")
	}
	return fa, nil
}

func (repo *formRepository) QueryFormAnswers(ctx context.Context, filter survey.FormFilter) ([]survey.FormAnswer, error) {
	query := bson.M{}
	if filter.ProgramID != "" {
		query["program_id"] = filter.ProgramID
	}
	if filter.StudentID != "" {
		query["student_id"] = filter.StudentID
	}
	if filter.FormType != "" {
		query["form_type"] = string(filter.FormType)
	}

	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := repo.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying form answers")
	}
	defer cursor.Close(ctx)

	var docs []formDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding form answers")
	}
	forms := make([]survey.FormAnswer, 0, len(docs))
	for _, d := range docs {
		forms = append(forms, d.formAnswer())
	}
	return forms, nil
}
