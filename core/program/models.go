package program

import (
	"strings"
	"time"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/survey"
)

// Status is the schedule state of a program at a given instant.
type Status string

const (
	StatusUpcoming   Status = "upcoming"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

func (s Status) IsValid() bool {
	return s == StatusUpcoming || s == StatusInProgress || s == StatusCompleted
}

type Duration string

const (
	ShortTerm Duration = "short-term"
	LongTerm  Duration = "long-term"
)

// Counter names one of the per-survey counters of a program.
type Counter string

const (
	CounterSent     Counter = "sent"
	CounterPending  Counter = "pending"
	CounterReminded Counter = "reminded"
)

// SurveyCounters only ever increase.
type SurveyCounters struct {
	Sent     int `json:"sent"`
	Pending  int `json:"pending"`
	Reminded int `json:"reminded"`
}

func (c *SurveyCounters) Inc(counter Counter) {
	switch counter {
	case CounterSent:
		c.Sent++
	case CounterPending:
		c.Pending++
	case CounterReminded:
		c.Reminded++
	}
}

type Program struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Name          string         `json:"name"`
	StartDate     time.Time      `json:"start_date"` // UTC
	EndDate       time.Time      `json:"end_date"`   // UTC
	StudentCount  int            `json:"student_count"`
	HotResponses  SurveyCounters `json:"hot_responses"`
	ColdResponses SurveyCounters `json:"cold_responses"`
	CreatedAt     time.Time      `json:"created_at"` // UTC
	UpdatedAt     time.Time      `json:"updated_at"` // UTC
}

// Status derives the program status: upcoming before the start, completed after the end,
// in progress in between (both bounds included).
func (p Program) Status(now time.Time) Status {
	switch {
	case now.Before(p.StartDate):
		return StatusUpcoming
	case now.After(p.EndDate):
		return StatusCompleted
	}
	return StatusInProgress
}

// Duration is long-term when the program lasts at least 3 calendar months.
func (p Program) Duration() Duration {
	if !p.EndDate.Before(p.StartDate.AddDate(0, 3, 0)) {
		return LongTerm
	}
	return ShortTerm
}

func (p Program) Counters(t survey.FormType) SurveyCounters {
	if t == survey.Cold {
		return p.ColdResponses
	}
	return p.HotResponses
}

func (p *Program) IncCounter(t survey.FormType, counter Counter) {
	if t == survey.Cold {
		p.ColdResponses.Inc(counter)
	} else {
		p.HotResponses.Inc(counter)
	}
}

// EmailState is the survey email bookkeeping of a student for one form type.
type EmailState struct {
	EmailSent        bool      `json:"email_sent"`
	EmailSentDate    time.Time `json:"email_sent_date"` // UTC
	ReminderSent     bool      `json:"reminder_sent"`
	ReminderSentDate time.Time `json:"reminder_sent_date"` // UTC
	ClaimedAt        time.Time `json:"-"`                  // dispatch claim; zero when free
}

// Claimable reports whether a new dispatch claim may be taken at now.
func (es EmailState) Claimable(now time.Time, lease time.Duration) bool {
	return es.ClaimedAt.IsZero() || !now.Before(es.ClaimedAt.Add(lease))
}

type Student struct {
	ID        string     `json:"id"`
	ProgramID string     `json:"program_id"`
	UserID    string     `json:"user_id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Hot       EmailState `json:"hot"`
	Cold      EmailState `json:"cold"`
	CreatedAt time.Time  `json:"created_at"` // UTC
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

func (s Student) Survey(t survey.FormType) EmailState {
	if t == survey.Cold {
		return s.Cold
	}
	return s.Hot
}

func (s *Student) SurveyPtr(t survey.FormType) *EmailState {
	if t == survey.Cold {
		return &s.Cold
	}
	return &s.Hot
}

// DeriveStatus computes the survey status of a student from its flags and the submitted forms.
// A matching form always wins so the status never regresses once answered.
func DeriveStatus(st Student, t survey.FormType, forms []survey.FormAnswer) survey.Status {
	for _, fa := range forms {
		if fa.Matches(t, st.ProgramID, st.ID) {
			return survey.StatusResponded
		}
	}
	es := st.Survey(t)
	switch {
	case es.ReminderSent:
		return survey.StatusReminded
	case es.EmailSent:
		return survey.StatusSent
	}
	return survey.StatusNone
}

// EmailKey identifies one survey email of one student.
type EmailKey struct {
	UserID    string
	ProgramID string
	StudentID string
	FormType  survey.FormType
	Reminder  bool
}

// Counter is the program counter incremented once the email is sent.
func (k EmailKey) Counter() Counter {
	if k.Reminder {
		return CounterReminded
	}
	return CounterSent
}

// Sent reports whether the email of key is already flagged as sent on the student.
func (k EmailKey) Sent(st Student) bool {
	es := st.Survey(k.FormType)
	if k.Reminder {
		return es.ReminderSent
	}
	return es.EmailSent
}

// MarkSent flags the email of key as sent at `at` and frees the claim.
func (k EmailKey) MarkSent(st *Student, at time.Time) {
	es := st.SurveyPtr(k.FormType)
	if k.Reminder {
		es.ReminderSent = true
		es.ReminderSentDate = at
	} else {
		es.EmailSent = true
		es.EmailSentDate = at
	}
	es.ClaimedAt = time.Time{}
}

// NewProgram contains information needed to create a new Program.
type NewProgram struct {
	Name      string    `json:"name" validate:"required,notblank,max=255"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtefield=StartDate"`
}

func (np *NewProgram) Validate() error {
	np.Name = core.CleanString(np.Name)
	np.StartDate = np.StartDate.UTC()
	np.EndDate = np.EndDate.UTC()
	return core.ValidateStruct(np)
}

// NewStudent contains information needed to add a Student to a Program.
type NewStudent struct {
	FirstName string `json:"first_name" validate:"required,notblank,max=255"`
	LastName  string `json:"last_name" validate:"required,notblank,max=255"`
	Email     string `json:"email" validate:"required,email"`
}

func (ns *NewStudent) Validate() error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	return core.ValidateStruct(ns)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Status   Status `query:"status"`
	Ordering string `query:"ordering"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search, true /* lower */)
	qf.Ordering = core.CleanString(qf.Ordering, true /* lower */)
}

// StudentDetails is a Student with its derived survey statuses.
type StudentDetails struct {
	Student
	FormStatusHot  survey.Status `json:"form_status_hot"`
	FormStatusCold survey.Status `json:"form_status_cold"`
}

// Details is a Program with its students and derived data.
type Details struct {
	Program
	Status        Status           `json:"status"`
	Duration      Duration         `json:"duration"`
	Students      []StudentDetails `json:"students"`
	HotResponded  int              `json:"hot_responded"`
	ColdResponded int              `json:"cold_responded"`
}

type List struct {
	Count   int       `json:"count"`
	Results []Details `json:"results"`
}
