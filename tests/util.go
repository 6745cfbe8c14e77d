package testutil

import (
	"bytes"
	"context"
	"log"
	"net/mail"
	"testing"
	"time"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
	"github.com/trezcool/feeded/core/user"
	inmemdb "github.com/trezcool/feeded/storage/database/inmem"
)

// Store bundles in-memory repositories sharing one database.
type Store struct {
	Users    user.Repository
	Programs program.Repository
	Forms    survey.Repository
}

func NewStore() Store {
	db := inmemdb.Open()
	return Store{
		Users:    inmemdb.NewUserRepository(db),
		Programs: inmemdb.NewProgramRepository(db),
		Forms:    inmemdb.NewFormRepository(db),
	}
}

// NewConfig returns the configuration used by tests, without reading the environment.
func NewConfig() *core.Config {
	conf := &core.Config{
		AppName:                   "FeedEd",
		Build:                     "test",
		Env:                       "TEST",
		TestMode:                  true,
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "https://app.feeded.test",
		DefaultFromEmail:          mail.Address{Name: "FeedEd", Address: "noreply@feeded.test"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 4 * time.Hour
	conf.Scheduler.Interval = 2 * time.Minute
	conf.Scheduler.MaxBackoff = 30 * time.Minute
	conf.Scheduler.MaxFailures = 10
	conf.Scheduler.Cooldown = time.Hour
	conf.Scheduler.ClaimLease = 10 * time.Minute
	conf.Survey.HotDelay = 24 * time.Hour
	conf.Survey.ColdMinProgramLength = 60 * 24 * time.Hour
	conf.Survey.ColdDelay = 90 * 24 * time.Hour
	return conf
}

// Logger is a core.Logger writing to a buffer.
type Logger struct {
	Buf bytes.Buffer
	std *log.Logger
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger {
	l := new(Logger)
	l.std = log.New(&l.Buf, "", 0)
	return l
}

func (l *Logger) print(level, msg string, args []interface{}) {
	l.std.Println(level, msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.print("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.print("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.print("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.print("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.print("FATAL", msg, args) }

func CreateUser(t *testing.T, repo user.Repository, name, email, pwd string, isActive bool, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        core.NewID(),
		Name:      name,
		Email:     email,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateProgram(t *testing.T, repo program.Repository, uid, name string, start, end time.Time) program.Program {
	t.Helper()
	now := time.Now().UTC()
	p, err := repo.CreateProgram(context.Background(), program.Program{
		ID:        core.NewID(),
		UserID:    uid,
		Name:      name,
		StartDate: start.UTC(),
		EndDate:   end.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createProgram() failed: %v", err)
	}
	return p
}

func CreateStudent(t *testing.T, repo program.Repository, p program.Program, first, last, email string) program.Student {
	t.Helper()
	st, err := repo.CreateStudent(context.Background(), program.Student{
		ID:        core.NewID(),
		ProgramID: p.ID,
		UserID:    p.UserID,
		FirstName: first,
		LastName:  last,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return st
}

func CreateFormAnswer(t *testing.T, repo survey.Repository, ft survey.FormType, pid, sid string, answers survey.Answers) survey.FormAnswer {
	t.Helper()
	fa, err := repo.CreateFormAnswer(context.Background(), survey.FormAnswer{
		ID:          core.NewID(),
		FormType:    ft,
		ProgramID:   pid,
		StudentID:   sid,
		SubmittedAt: time.Now().UTC(),
		Answers:     answers,
	})
	if err != nil {
		t.Fatalf("createFormAnswer() failed: %v", err)
	}
	return fa
}

// CompleteAnswers answers every question of a form type.
func CompleteAnswers(ft survey.FormType) survey.Answers {
	answers := make(survey.Answers)
	for _, q := range survey.Questions(ft) {
		switch q.Kind {
		case survey.KindScale:
			answers[q.ID] = float64(5)
		case survey.KindSingleChoice:
			answers[q.ID] = q.Options[0]
		default:
			answers[q.ID] = "Très bien"
		}
	}
	return answers
}
