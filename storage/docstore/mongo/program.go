package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
)

type countersDoc struct {
	Sent     int `bson:"sent"`
	Pending  int `bson:"pending"`
	Reminded int `bson:"reminded"`
}

type programDoc struct {
	ID           string      `bson:"_id"`
	UserID       string      `bson:"user_id"`
	Name         string      `bson:"name"`
	StartDate    time.Time   `bson:"start_date"`
	EndDate      time.Time   `bson:"end_date"`
	StudentCount int         `bson:"student_count"`
	Hot          countersDoc `bson:"hot"`
	Cold         countersDoc `bson:"cold"`
	CreatedAt    time.Time   `bson:"created_at"`
	UpdatedAt    time.Time   `bson:"updated_at"`
}

func toProgramDoc(p program.Program) programDoc {
	return programDoc{
		ID:           p.ID,
		UserID:       p.UserID,
		Name:         p.Name,
		StartDate:    p.StartDate.UTC(),
		EndDate:      p.EndDate.UTC(),
		StudentCount: p.StudentCount,
		Hot:          countersDoc(p.HotResponses),
		Cold:         countersDoc(p.ColdResponses),
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func (d programDoc) program() program.Program {
	return program.Program{
		ID:            d.ID,
		UserID:        d.UserID,
		Name:          d.Name,
		StartDate:     d.StartDate.UTC(),
		EndDate:       d.EndDate.UTC(),
		StudentCount:  d.StudentCount,
		HotResponses:  program.SurveyCounters(d.Hot),
		ColdResponses: program.SurveyCounters(d.Cold),
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

type emailDoc struct {
	EmailSent        bool       `bson:"email_sent"`
	EmailSentDate    *time.Time `bson:"email_sent_date,omitempty"`
	ReminderSent     bool       `bson:"reminder_sent"`
	ReminderSentDate *time.Time `bson:"reminder_sent_date,omitempty"`
	ClaimedAt        *time.Time `bson:"claimed_at,omitempty"`
}

func toEmailDoc(es program.EmailState) emailDoc {
	return emailDoc{
		EmailSent:        es.EmailSent,
		EmailSentDate:    timePtr(es.EmailSentDate),
		ReminderSent:     es.ReminderSent,
		ReminderSentDate: timePtr(es.ReminderSentDate),
		ClaimedAt:        timePtr(es.ClaimedAt),
	}
}

func (d emailDoc) state() program.EmailState {
	return program.EmailState{
		EmailSent:        d.EmailSent,
		EmailSentDate:    timeVal(d.EmailSentDate),
		ReminderSent:     d.ReminderSent,
		ReminderSentDate: timeVal(d.ReminderSentDate),
		ClaimedAt:        timeVal(d.ClaimedAt),
	}
}

type studentDoc struct {
	ID        string    `bson:"_id"`
	ProgramID string    `bson:"program_id"`
	UserID    string    `bson:"user_id"`
	FirstName string    `bson:"first_name"`
	LastName  string    `bson:"last_name"`
	Email     string    `bson:"email"`
	Hot       emailDoc  `bson:"hot"`
	Cold      emailDoc  `bson:"cold"`
	CreatedAt time.Time `bson:"created_at"`
}

func toStudentDoc(st program.Student) studentDoc {
	return studentDoc{
		ID:        st.ID,
		ProgramID: st.ProgramID,
		UserID:    st.UserID,
		FirstName: st.FirstName,
		LastName:  st.LastName,
		Email:     st.Email,
		Hot:       toEmailDoc(st.Hot),
		Cold:      toEmailDoc(st.Cold),
		CreatedAt: st.CreatedAt.UTC(),
	}
}

func (d studentDoc) student() program.Student {
	return program.Student{
		ID:        d.ID,
		ProgramID: d.ProgramID,
		UserID:    d.UserID,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
		Hot:       d.Hot.state(),
		Cold:      d.Cold.state(),
		CreatedAt: d.CreatedAt.UTC(),
	}
}

// emailFields returns the flag, date and claim field paths of the email of key.
func emailFields(key program.EmailKey) (flag, date, claim string, err error) {
	if !key.FormType.IsValid() {
		return "", "", "", errors.Errorf("invalid form type %q", key.FormType)
	}
	prefix := string(key.FormType) + "."
	if key.Reminder {
		return prefix + "reminder_sent", prefix + "reminder_sent_date", prefix + "claimed_at", nil
	}
	return prefix + "email_sent", prefix + "email_sent_date", prefix + "claimed_at", nil
}

type programRepository struct {
	programs *mongo.Collection
	students *mongo.Collection
}

var _ program.Repository = (*programRepository)(nil) // interface compliance check

func NewProgramRepository(db *DB) program.Repository {
	return &programRepository{
		programs: db.collection(collectionPrograms),
		students: db.collection(collectionStudents),
	}
}

func (repo *programRepository) CreateProgram(ctx context.Context, p program.Program) (program.Program, error) {
	if _, err := repo.programs.InsertOne(ctx, toProgramDoc(p)); err != nil {
		return program.Program{}, errors.Wrap(err, "inserting program")
	}
	return p, nil
}

func (repo *programRepository) GetProgram(ctx context.Context, id string) (program.Program, error) {
	var doc programDoc
	if err := repo.programs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return program.Program{}, program.ErrNotFound
		}
		return program.Program{}, errors.Wrap(err, "finding program by ID")
	}
	return doc.program(), nil
}

func (repo *programRepository) QueryPrograms(ctx context.Context, uid string) ([]program.Program, error) {
	filter := bson.M{}
	if uid != "" {
		filter["user_id"] = uid
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := repo.programs.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	defer cursor.Close(ctx)

	var docs []programDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding programs")
	}
	progs := make([]program.Program, 0, len(docs))
	for _, d := range docs {
		progs = append(progs, d.program())
	}
	return progs, nil
}

func (repo *programRepository) DeleteProgram(ctx context.Context, id string) error {
	res, err := repo.programs.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting program")
	}
	if res.DeletedCount == 0 {
		return program.ErrNotFound
	}
	_, err = repo.students.DeleteMany(ctx, bson.M{"program_id": id})
	return errors.Wrap(err, "deleting program students")
}

func (repo *programRepository) incStudentCount(ctx context.Context, pid string, delta int) error {
	filter := bson.M{"_id": pid}
	if delta < 0 {
		filter["student_count"] = bson.M{"$gt": 0}
	}
	_, err := repo.programs.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"student_count": delta}})
	return errors.Wrap(err, "updating student count")
}

func (repo *programRepository) CreateStudent(ctx context.Context, st program.Student) (program.Student, error) {
	n, err := repo.programs.CountDocuments(ctx, bson.M{"_id": st.ProgramID})
	if err != nil {
		return program.Student{}, errors.Wrap(err, "finding program by ID")
	}
	if n == 0 {
		return program.Student{}, program.ErrNotFound
	}
	if _, err = repo.students.InsertOne(ctx, toStudentDoc(st)); err != nil {
		return program.Student{}, errors.Wrap(err, "inserting student")
	}
	if err = repo.incStudentCount(ctx, st.ProgramID, 1); err != nil {
		return program.Student{}, err
	}
	return st, nil
}

func (repo *programRepository) GetStudent(ctx context.Context, pid, sid string) (program.Student, error) {
	var doc studentDoc
	if err := repo.students.FindOne(ctx, bson.M{"_id": sid, "program_id": pid}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return program.Student{}, program.ErrStudentNotFound
		}
		return program.Student{}, errors.Wrap(err, "finding student by ID")
	}
	return doc.student(), nil
}

func (repo *programRepository) QueryStudents(ctx context.Context, pid string) ([]program.Student, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := repo.students.Find(ctx, bson.M{"program_id": pid}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	defer cursor.Close(ctx)

	var docs []studentDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding students")
	}
	students := make([]program.Student, 0, len(docs))
	for _, d := range docs {
		students = append(students, d.student())
	}
	return students, nil
}

func (repo *programRepository) DeleteStudent(ctx context.Context, pid, sid string) error {
	res, err := repo.students.DeleteOne(ctx, bson.M{"_id": sid, "program_id": pid})
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if res.DeletedCount == 0 {
		return program.ErrStudentNotFound
	}
	return repo.incStudentCount(ctx, pid, -1)
}

func (repo *programRepository) IncrementCounter(ctx context.Context, pid string, t survey.FormType, counter program.Counter) error {
	if !t.IsValid() {
		return errors.Errorf("invalid form type %q", t)
	}
	res, err := repo.programs.UpdateOne(ctx,
		bson.M{"_id": pid},
		bson.M{"$inc": bson.M{string(t) + "." + string(counter): 1}})
	if err != nil {
		return errors.Wrap(err, "incrementing counter")
	}
	if res.MatchedCount == 0 {
		return program.ErrNotFound
	}
	return nil
}

// conflictErr tells why a guarded update on the email of key matched nothing.
func (repo *programRepository) conflictErr(ctx context.Context, key program.EmailKey) error {
	st, err := repo.GetStudent(ctx, key.ProgramID, key.StudentID)
	if err != nil {
		return err
	}
	if key.Sent(st) {
		return program.ErrAlreadySent
	}
	return program.ErrDispatchInProgress
}

func (repo *programRepository) ClaimEmail(ctx context.Context, key program.EmailKey, now time.Time, lease time.Duration) error {
	flag, _, claim, err := emailFields(key)
	if err != nil {
		return err
	}
	filter := bson.M{
		"_id":        key.StudentID,
		"program_id": key.ProgramID,
		flag:         false,
		"$or": bson.A{
			bson.M{claim: nil},
			bson.M{claim: bson.M{"$lte": now.Add(-lease).UTC()}},
		},
	}
	err = repo.students.FindOneAndUpdate(ctx, filter, bson.M{"$set": bson.M{claim: now.UTC()}}).Err()
	if err == mongo.ErrNoDocuments {
		return repo.conflictErr(ctx, key)
	}
	return errors.Wrap(err, "claiming email")
}

func (repo *programRepository) ReleaseEmail(ctx context.Context, key program.EmailKey) error {
	_, _, claim, err := emailFields(key)
	if err != nil {
		return err
	}
	res, err := repo.students.UpdateOne(ctx,
		bson.M{"_id": key.StudentID, "program_id": key.ProgramID},
		bson.M{"$unset": bson.M{claim: ""}})
	if err != nil {
		return errors.Wrap(err, "releasing email")
	}
	if res.MatchedCount == 0 {
		return program.ErrStudentNotFound
	}
	return nil
}

func (repo *programRepository) MarkEmailSent(ctx context.Context, key program.EmailKey, at time.Time) error {
	flag, date, claim, err := emailFields(key)
	if err != nil {
		return err
	}
	res, err := repo.students.UpdateOne(ctx,
		bson.M{"_id": key.StudentID, "program_id": key.ProgramID, flag: false},
		bson.M{
			"$set":   bson.M{flag: true, date: at.UTC()},
			"$unset": bson.M{claim: ""},
		})
	if err != nil {
		return errors.Wrap(err, "marking email sent")
	}
	if res.MatchedCount == 0 {
		if err := repo.conflictErr(ctx, key); err != program.ErrDispatchInProgress {
			return err
		}
		return program.ErrAlreadySent
	}
	return repo.IncrementCounter(ctx, key.ProgramID, key.FormType, key.Counter())
}
