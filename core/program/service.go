package program

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/survey"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("program")
	ErrStudentNotFound    = core.NewNotFoundError("student")
	ErrAlreadySent        = errors.New("survey email already sent")
	ErrDispatchInProgress = core.NewConflictError("survey email dispatch already in progress")

	orderingFields  = map[string]bool{"name": true, "start_date": true, "end_date": true, "created_at": true}
	defaultOrdering = core.DBOrdering{Field: "start_date", Ascending: false}
)

type (
	Repository interface {
		CreateProgram(ctx context.Context, p Program) (Program, error)
		GetProgram(ctx context.Context, id string) (Program, error)
		QueryPrograms(ctx context.Context, uid string) ([]Program, error)
		DeleteProgram(ctx context.Context, id string) error

		// CreateStudent increments the program's StudentCount.
		CreateStudent(ctx context.Context, s Student) (Student, error)
		GetStudent(ctx context.Context, pid, sid string) (Student, error)
		QueryStudents(ctx context.Context, pid string) ([]Student, error)
		// DeleteStudent decrements the program's StudentCount.
		DeleteStudent(ctx context.Context, pid, sid string) error

		IncrementCounter(ctx context.Context, pid string, t survey.FormType, counter Counter) error
		// ClaimEmail atomically marks the email of key as being dispatched.
		// It fails with ErrAlreadySent when the email flag is set and with ErrDispatchInProgress
		// while another unexpired claim is held.
		ClaimEmail(ctx context.Context, key EmailKey, now time.Time, lease time.Duration) error
		ReleaseEmail(ctx context.Context, key EmailKey) error
		// MarkEmailSent atomically sets the email flag and date, frees the claim and increments
		// the matching counter. Only one caller ever succeeds; others get ErrAlreadySent.
		MarkEmailSent(ctx context.Context, key EmailKey, at time.Time) error
	}

	Service struct {
		repo  Repository
		forms survey.Repository
		now   func() time.Time
	}
)

func NewService(repo Repository, forms survey.Repository) *Service {
	return &Service{
		repo:  repo,
		forms: forms,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ParseOrdering parses "field" or "-field" into an ordering on one of the sortable fields.
func ParseOrdering(s string) (core.DBOrdering, error) {
	if s == "" {
		return defaultOrdering, nil
	}
	ord := core.DBOrdering{Field: strings.TrimPrefix(s, "-"), Ascending: !strings.HasPrefix(s, "-")}
	if !orderingFields[ord.Field] {
		return core.DBOrdering{}, core.NewValidationError(
			errors.Errorf("invalid ordering %q", s),
			core.FieldError{Field: "ordering", Error: "must be one of name, start_date, end_date, created_at"},
		)
	}
	return ord, nil
}

// FetchPrograms returns the programs of uid with their students, derived statuses and responded counts.
func (svc *Service) FetchPrograms(ctx context.Context, uid string, filter QueryFilter, page core.Pagination) (List, error) {
	filter.Clean()
	if filter.Status != "" && !filter.Status.IsValid() {
		return List{}, core.NewValidationError(
			errors.Errorf("invalid status %q", filter.Status),
			core.FieldError{Field: "status", Error: "must be one of upcoming, in-progress, completed"},
		)
	}
	ord, err := ParseOrdering(filter.Ordering)
	if err != nil {
		return List{}, err
	}

	progs, err := svc.repo.QueryPrograms(ctx, uid)
	if err != nil {
		return List{}, errors.Wrap(err, "querying programs")
	}

	now := svc.now()
	matched := progs[:0]
	for _, p := range progs {
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), filter.Search) {
			continue
		}
		if filter.Status != "" && p.Status(now) != filter.Status {
			continue
		}
		matched = append(matched, p)
	}
	sortPrograms(matched, ord)

	start, end := page.Bounds(len(matched))
	res := List{Count: len(matched), Results: make([]Details, 0, end-start)}
	for _, p := range matched[start:end] {
		details, err := svc.details(ctx, p, now)
		if err != nil {
			return List{}, err
		}
		res.Results = append(res.Results, details)
	}
	return res, nil
}

func sortPrograms(progs []Program, ord core.DBOrdering) {
	less := func(a, b Program) bool {
		switch ord.Field {
		case "name":
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		case "end_date":
			if !a.EndDate.Equal(b.EndDate) {
				return a.EndDate.Before(b.EndDate)
			}
		case "created_at":
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		default:
			if !a.StartDate.Equal(b.StartDate) {
				return a.StartDate.Before(b.StartDate)
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(progs, func(i, j int) bool {
		if ord.Ascending {
			return less(progs[i], progs[j])
		}
		return less(progs[j], progs[i])
	})
}

func (svc *Service) details(ctx context.Context, p Program, now time.Time) (Details, error) {
	students, err := svc.repo.QueryStudents(ctx, p.ID)
	if err != nil {
		return Details{}, errors.Wrap(err, "querying students")
	}
	forms, err := svc.forms.QueryFormAnswers(ctx, survey.FormFilter{ProgramID: p.ID})
	if err != nil {
		return Details{}, errors.Wrap(err, "querying form answers")
	}

	details := Details{
		Program:  p,
		Status:   p.Status(now),
		Duration: p.Duration(),
		Students: make([]StudentDetails, 0, len(students)),
	}
	for _, st := range students {
		sd := StudentDetails{
			Student:        st,
			FormStatusHot:  DeriveStatus(st, survey.Hot, forms),
			FormStatusCold: DeriveStatus(st, survey.Cold, forms),
		}
		if sd.FormStatusHot == survey.StatusResponded {
			details.HotResponded++
		}
		if sd.FormStatusCold == survey.StatusResponded {
			details.ColdResponded++
		}
		details.Students = append(details.Students, sd)
	}
	return details, nil
}

// get returns the program pid when owned by uid. An empty uid skips the ownership check.
func (svc *Service) get(ctx context.Context, uid, pid string) (Program, error) {
	p, err := svc.repo.GetProgram(ctx, pid)
	if err != nil {
		return Program{}, err
	}
	if uid != "" && p.UserID != uid {
		return Program{}, ErrNotFound
	}
	return p, nil
}

func (svc *Service) Get(ctx context.Context, uid, pid string) (Details, error) {
	p, err := svc.get(ctx, uid, pid)
	if err != nil {
		return Details{}, err
	}
	return svc.details(ctx, p, svc.now())
}

// CheckProgram fails with ErrNotFound unless pid exists and belongs to uid.
func (svc *Service) CheckProgram(ctx context.Context, uid, pid string) error {
	_, err := svc.get(ctx, uid, pid)
	return err
}

func (svc *Service) Create(ctx context.Context, uid string, np NewProgram) (Program, error) {
	if err := np.Validate(); err != nil {
		return Program{}, err
	}
	now := svc.now()
	return svc.repo.CreateProgram(ctx, Program{
		ID:        core.NewID(),
		UserID:    uid,
		Name:      np.Name,
		StartDate: np.StartDate,
		EndDate:   np.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Delete(ctx context.Context, uid, pid string) error {
	if _, err := svc.get(ctx, uid, pid); err != nil {
		return err
	}
	return svc.repo.DeleteProgram(ctx, pid)
}

func (svc *Service) AddStudent(ctx context.Context, uid, pid string, ns NewStudent) (Student, error) {
	p, err := svc.get(ctx, uid, pid)
	if err != nil {
		return Student{}, err
	}
	if err := ns.Validate(); err != nil {
		return Student{}, err
	}
	return svc.repo.CreateStudent(ctx, Student{
		ID:        core.NewID(),
		ProgramID: p.ID,
		UserID:    p.UserID,
		FirstName: ns.FirstName,
		LastName:  ns.LastName,
		Email:     ns.Email,
		CreatedAt: svc.now(),
	})
}

func (svc *Service) DeleteStudent(ctx context.Context, uid, pid, sid string) error {
	if _, err := svc.get(ctx, uid, pid); err != nil {
		return err
	}
	return svc.repo.DeleteStudent(ctx, pid, sid)
}
