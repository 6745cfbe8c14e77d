package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
)

const (
	programColumns = `id, user_id, name, start_date, end_date, student_count,
		hot_sent, hot_pending, hot_reminded, cold_sent, cold_pending, cold_reminded, created_at, updated_at`
	studentColumns = `id, program_id, user_id, first_name, last_name, email,
		hot_email_sent, hot_email_sent_date, hot_reminder_sent, hot_reminder_sent_date, hot_claimed_at,
		cold_email_sent, cold_email_sent_date, cold_reminder_sent, cold_reminder_sent_date, cold_claimed_at,
		created_at`
)

type programRow struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	Name         string    `db:"name"`
	StartDate    time.Time `db:"start_date"`
	EndDate      time.Time `db:"end_date"`
	StudentCount int       `db:"student_count"`
	HotSent      int       `db:"hot_sent"`
	HotPending   int       `db:"hot_pending"`
	HotReminded  int       `db:"hot_reminded"`
	ColdSent     int       `db:"cold_sent"`
	ColdPending  int       `db:"cold_pending"`
	ColdReminded int       `db:"cold_reminded"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func toProgramRow(p program.Program) programRow {
	return programRow{
		ID:           p.ID,
		UserID:       p.UserID,
		Name:         p.Name,
		StartDate:    p.StartDate.UTC(),
		EndDate:      p.EndDate.UTC(),
		StudentCount: p.StudentCount,
		HotSent:      p.HotResponses.Sent,
		HotPending:   p.HotResponses.Pending,
		HotReminded:  p.HotResponses.Reminded,
		ColdSent:     p.ColdResponses.Sent,
		ColdPending:  p.ColdResponses.Pending,
		ColdReminded: p.ColdResponses.Reminded,
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func (r programRow) program() program.Program {
	return program.Program{
		ID:            r.ID,
		UserID:        r.UserID,
		Name:          r.Name,
		StartDate:     r.StartDate.UTC(),
		EndDate:       r.EndDate.UTC(),
		StudentCount:  r.StudentCount,
		HotResponses:  program.SurveyCounters{Sent: r.HotSent, Pending: r.HotPending, Reminded: r.HotReminded},
		ColdResponses: program.SurveyCounters{Sent: r.ColdSent, Pending: r.ColdPending, Reminded: r.ColdReminded},
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type studentRow struct {
	ID                   string    `db:"id"`
	ProgramID            string    `db:"program_id"`
	UserID               string    `db:"user_id"`
	FirstName            string    `db:"first_name"`
	LastName             string    `db:"last_name"`
	Email                string    `db:"email"`
	HotEmailSent         bool      `db:"hot_email_sent"`
	HotEmailSentDate     null.Time `db:"hot_email_sent_date"`
	HotReminderSent      bool      `db:"hot_reminder_sent"`
	HotReminderSentDate  null.Time `db:"hot_reminder_sent_date"`
	HotClaimedAt         null.Time `db:"hot_claimed_at"`
	ColdEmailSent        bool      `db:"cold_email_sent"`
	ColdEmailSentDate    null.Time `db:"cold_email_sent_date"`
	ColdReminderSent     bool      `db:"cold_reminder_sent"`
	ColdReminderSentDate null.Time `db:"cold_reminder_sent_date"`
	ColdClaimedAt        null.Time `db:"cold_claimed_at"`
	CreatedAt            time.Time `db:"created_at"`
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func toStudentRow(st program.Student) studentRow {
	return studentRow{
		ID:                   st.ID,
		ProgramID:            st.ProgramID,
		UserID:               st.UserID,
		FirstName:            st.FirstName,
		LastName:             st.LastName,
		Email:                st.Email,
		HotEmailSent:         st.Hot.EmailSent,
		HotEmailSentDate:     nullTime(st.Hot.EmailSentDate),
		HotReminderSent:      st.Hot.ReminderSent,
		HotReminderSentDate:  nullTime(st.Hot.ReminderSentDate),
		HotClaimedAt:         nullTime(st.Hot.ClaimedAt),
		ColdEmailSent:        st.Cold.EmailSent,
		ColdEmailSentDate:    nullTime(st.Cold.EmailSentDate),
		ColdReminderSent:     st.Cold.ReminderSent,
		ColdReminderSentDate: nullTime(st.Cold.ReminderSentDate),
		ColdClaimedAt:        nullTime(st.Cold.ClaimedAt),
		CreatedAt:            st.CreatedAt.UTC(),
	}
}

func (r studentRow) student() program.Student {
	return program.Student{
		ID:        r.ID,
		ProgramID: r.ProgramID,
		UserID:    r.UserID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Hot: program.EmailState{
			EmailSent:        r.HotEmailSent,
			EmailSentDate:    utc(r.HotEmailSentDate),
			ReminderSent:     r.HotReminderSent,
			ReminderSentDate: utc(r.HotReminderSentDate),
			ClaimedAt:        utc(r.HotClaimedAt),
		},
		Cold: program.EmailState{
			EmailSent:        r.ColdEmailSent,
			EmailSentDate:    utc(r.ColdEmailSentDate),
			ReminderSent:     r.ColdReminderSent,
			ReminderSentDate: utc(r.ColdReminderSentDate),
			ClaimedAt:        utc(r.ColdClaimedAt),
		},
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// emailColumns are the student columns holding the state of one survey email.
type emailColumns struct {
	flag, date, claim string
}

func columnsFor(key program.EmailKey) (emailColumns, error) {
	if !key.FormType.IsValid() {
		return emailColumns{}, errors.Errorf("invalid form type %q", key.FormType)
	}
	prefix := string(key.FormType)
	if key.Reminder {
		return emailColumns{prefix + "_reminder_sent", prefix + "_reminder_sent_date", prefix + "_claimed_at"}, nil
	}
	return emailColumns{prefix + "_email_sent", prefix + "_email_sent_date", prefix + "_claimed_at"}, nil
}

func counterColumn(t survey.FormType, counter program.Counter) (string, error) {
	if !t.IsValid() {
		return "", errors.Errorf("invalid form type %q", t)
	}
	switch counter {
	case program.CounterSent, program.CounterPending, program.CounterReminded:
		return string(t) + "_" + string(counter), nil
	}
	return "", errors.Errorf("invalid counter %q", counter)
}

type programRepository struct {
	db *sqlx.DB
}

var _ program.Repository = (*programRepository)(nil) // interface compliance check

func NewProgramRepository(db *sqlx.DB) program.Repository {
	return &programRepository{db: db}
}

func (repo *programRepository) CreateProgram(ctx context.Context, p program.Program) (program.Program, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO programs (`+programColumns+`)
		VALUES (:id, :user_id, :name, :start_date, :end_date, :student_count,
		:hot_sent, :hot_pending, :hot_reminded, :cold_sent, :cold_pending, :cold_reminded, :created_at, :updated_at)`,
		toProgramRow(p))
	if err != nil {
		return program.Program{}, errors.Wrap(err, "inserting program")
	}
	return p, nil
}

func (repo *programRepository) GetProgram(ctx context.Context, id string) (program.Program, error) {
	var row programRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+programColumns+` FROM programs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return program.Program{}, program.ErrNotFound
	}
	if err != nil {
		return program.Program{}, errors.Wrap(err, "finding program by ID")
	}
	return row.program(), nil
}

func (repo *programRepository) QueryPrograms(ctx context.Context, uid string) ([]program.Program, error) {
	var (
		rows []programRow
		err  error
	)
	if uid == "" {
		err = repo.db.SelectContext(ctx, &rows, `SELECT `+programColumns+` FROM programs ORDER BY created_at, id`)
	} else {
		err = repo.db.SelectContext(ctx, &rows,
			`SELECT `+programColumns+` FROM programs WHERE user_id = $1 ORDER BY created_at, id`, uid)
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	progs := make([]program.Program, 0, len(rows))
	for _, r := range rows {
		progs = append(progs, r.program())
	}
	return progs, nil
}

func (repo *programRepository) DeleteProgram(ctx context.Context, id string) error {
	n, err := affected(repo.db.ExecContext(ctx, `DELETE FROM programs WHERE id = $1`, id))
	if err != nil {
		return errors.Wrap(err, "deleting program")
	}
	if n == 0 {
		return program.ErrNotFound
	}
	return nil
}

func (repo *programRepository) CreateStudent(ctx context.Context, st program.Student) (program.Student, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		n, err := affected(tx.ExecContext(ctx,
			`UPDATE programs SET student_count = student_count + 1 WHERE id = $1`, st.ProgramID))
		if err != nil {
			return errors.Wrap(err, "incrementing student count")
		}
		if n == 0 {
			return program.ErrNotFound
		}
		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO students (`+studentColumns+`)
			VALUES (:id, :program_id, :user_id, :first_name, :last_name, :email,
			:hot_email_sent, :hot_email_sent_date, :hot_reminder_sent, :hot_reminder_sent_date, :hot_claimed_at,
			:cold_email_sent, :cold_email_sent_date, :cold_reminder_sent, :cold_reminder_sent_date, :cold_claimed_at,
			:created_at)`,
			toStudentRow(st))
		return errors.Wrap(err, "inserting student")
	})
	if err != nil {
		return program.Student{}, err
	}
	return st, nil
}

func getStudent(ctx context.Context, q sqlx.QueryerContext, pid, sid string) (program.Student, error) {
	var row studentRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT `+studentColumns+` FROM students WHERE id = $1 AND program_id = $2`, sid, pid)
	if err == sql.ErrNoRows {
		return program.Student{}, program.ErrStudentNotFound
	}
	if err != nil {
		return program.Student{}, errors.Wrap(err, "finding student by ID")
	}
	return row.student(), nil
}

func (repo *programRepository) GetStudent(ctx context.Context, pid, sid string) (program.Student, error) {
	return getStudent(ctx, repo.db, pid, sid)
}

func (repo *programRepository) QueryStudents(ctx context.Context, pid string) ([]program.Student, error) {
	var rows []studentRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+studentColumns+` FROM students WHERE program_id = $1 ORDER BY created_at, id`, pid)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]program.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.student())
	}
	return students, nil
}

func (repo *programRepository) DeleteStudent(ctx context.Context, pid, sid string) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		n, err := affected(tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1 AND program_id = $2`, sid, pid))
		if err != nil {
			return errors.Wrap(err, "deleting student")
		}
		if n == 0 {
			return program.ErrStudentNotFound
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE programs SET student_count = student_count - 1 WHERE id = $1 AND student_count > 0`, pid)
		return errors.Wrap(err, "decrementing student count")
	})
}

func incrementCounter(ctx context.Context, exec sqlx.ExecerContext, pid string, t survey.FormType, counter program.Counter) error {
	col, err := counterColumn(t, counter)
	if err != nil {
		return err
	}
	n, err := affected(exec.ExecContext(ctx, fmt.Sprintf(`UPDATE programs SET %[1]s = %[1]s + 1 WHERE id = $1`, col), pid))
	if err != nil {
		return errors.Wrap(err, "incrementing counter")
	}
	if n == 0 {
		return program.ErrNotFound
	}
	return nil
}

func (repo *programRepository) IncrementCounter(ctx context.Context, pid string, t survey.FormType, counter program.Counter) error {
	return incrementCounter(ctx, repo.db, pid, t, counter)
}

// conflictErr tells why a conditional update on the email of key changed nothing.
func conflictErr(ctx context.Context, q sqlx.QueryerContext, key program.EmailKey) error {
	st, err := getStudent(ctx, q, key.ProgramID, key.StudentID)
	if err != nil {
		return err
	}
	if key.Sent(st) {
		return program.ErrAlreadySent
	}
	return program.ErrDispatchInProgress
}

func (repo *programRepository) ClaimEmail(ctx context.Context, key program.EmailKey, now time.Time, lease time.Duration) error {
	cols, err := columnsFor(key)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(
		`UPDATE students SET %[1]s = $1
		WHERE id = $2 AND program_id = $3 AND %[2]s = FALSE AND (%[1]s IS NULL OR %[1]s <= $4)`,
		cols.claim, cols.flag)
	n, err := affected(repo.db.ExecContext(ctx, q, now.UTC(), key.StudentID, key.ProgramID, now.Add(-lease).UTC()))
	if err != nil {
		return errors.Wrap(err, "claiming email")
	}
	if n == 0 {
		return conflictErr(ctx, repo.db, key)
	}
	return nil
}

func (repo *programRepository) ReleaseEmail(ctx context.Context, key program.EmailKey) error {
	cols, err := columnsFor(key)
	if err != nil {
		return err
	}
	n, err := affected(repo.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE students SET %s = NULL WHERE id = $1 AND program_id = $2`, cols.claim),
		key.StudentID, key.ProgramID))
	if err != nil {
		return errors.Wrap(err, "releasing email")
	}
	if n == 0 {
		return program.ErrStudentNotFound
	}
	return nil
}

func (repo *programRepository) MarkEmailSent(ctx context.Context, key program.EmailKey, at time.Time) error {
	cols, err := columnsFor(key)
	if err != nil {
		return err
	}
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := fmt.Sprintf(
			`UPDATE students SET %[1]s = TRUE, %[2]s = $1, %[3]s = NULL
			WHERE id = $2 AND program_id = $3 AND %[1]s = FALSE`,
			cols.flag, cols.date, cols.claim)
		n, err := affected(tx.ExecContext(ctx, q, at.UTC(), key.StudentID, key.ProgramID))
		if err != nil {
			return errors.Wrap(err, "marking email sent")
		}
		if n == 0 {
			if err := conflictErr(ctx, tx, key); err != program.ErrDispatchInProgress {
				return err
			}
			return program.ErrAlreadySent
		}
		return incrementCounter(ctx, tx, key.ProgramID, key.FormType, key.Counter())
	})
}
