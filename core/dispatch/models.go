package dispatch

import (
	"time"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
)

// Outcome of a single dispatch.
type Outcome string

const (
	OutcomeSent        Outcome = "email sent"
	OutcomeAlreadySent Outcome = "already sent"
)

// SendRequest asks to email a survey to one student of a program owned by UserID.
type SendRequest struct {
	UserID      string          `json:"userId" validate:"required"`
	ProgramID   string          `json:"programId" validate:"required"`
	StudentID   string          `json:"studentId" validate:"required"`
	Subject     string          `json:"subject" validate:"required,notblank"`
	TextContent string          `json:"textContent" validate:"required_without=HTMLContent"`
	HTMLContent string          `json:"htmlContent" validate:"required_without=TextContent"`
	Type        survey.FormType `json:"type" validate:"required,formtype"`
}

func (req *SendRequest) Validate() error {
	req.Subject = core.CleanString(req.Subject)
	req.Type = survey.FormType(core.CleanString(string(req.Type), true /* lower */))
	return core.ValidateStruct(req)
}

// BatchResult counts the outcomes of a batch of sends.
type BatchResult struct {
	Sent    int      `json:"sent"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

func (r *BatchResult) Attempted() int { return r.Sent + r.Failed }

func (r *BatchResult) add(other BatchResult) {
	r.Sent += other.Sent
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// ScanResult counts the outcomes of a full scan per form type.
type ScanResult struct {
	Hot  BatchResult `json:"hot"`
	Cold BatchResult `json:"cold"`
}

func (r *ScanResult) For(t survey.FormType) *BatchResult {
	if t == survey.Cold {
		return &r.Cold
	}
	return &r.Hot
}

// Rules decides when a student becomes eligible for an automatic survey email.
type Rules struct {
	HotDelay             time.Duration // after the program end
	ColdMinProgramLength time.Duration // strictly longer programs only
	ColdDelay            time.Duration // after the program end
}

func RulesFromConfig(conf *core.Config) Rules {
	return Rules{
		HotDelay:             conf.Survey.HotDelay,
		ColdMinProgramLength: conf.Survey.ColdMinProgramLength,
		ColdDelay:            conf.Survey.ColdDelay,
	}
}

// Eligible reports whether st should receive the t survey of p at now.
func (r Rules) Eligible(t survey.FormType, p program.Program, st program.Student, now time.Time) bool {
	if st.Survey(t).EmailSent {
		return false
	}
	sinceEnd := now.Sub(p.EndDate)
	switch t {
	case survey.Hot:
		return p.Status(now) == program.StatusCompleted && sinceEnd >= r.HotDelay
	case survey.Cold:
		return p.EndDate.Sub(p.StartDate) > r.ColdMinProgramLength && sinceEnd >= r.ColdDelay
	}
	return false
}

// invitationData feeds the survey email templates.
type invitationData struct {
	OrganizationName string
	StudentName      string
	ProgramName      string
	SurveyURL        string
	FormType         string
}
