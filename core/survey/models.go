package survey

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
)

// FormType is the kind of survey: hot (right after the program) or cold (months later).
type FormType string

const (
	Hot  FormType = "hot"
	Cold FormType = "cold"
)

var FormTypes = []FormType{Hot, Cold}

func (t FormType) IsValid() bool { return t == Hot || t == Cold }

// Slug is the public URL segment of the form type.
func (t FormType) Slug() string {
	if t == Cold {
		return "froid"
	}
	return "chaud"
}

func (t FormType) String() string { return string(t) }

// ParseKind parses a form type from its public slug or its internal name.
func ParseKind(kind string) (FormType, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "chaud", "hot":
		return Hot, nil
	case "froid", "cold":
		return Cold, nil
	}
	return "", core.NewValidationError(
		errors.Errorf("invalid survey kind %q", kind),
		core.FieldError{Field: "kind", Error: "must be one of chaud, froid"},
	)
}

// ParseLink splits a public survey link "{programId}-{studentId}".
func ParseLink(link string) (programID, studentID string, err error) {
	parts := strings.Split(link, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", core.NewValidationError(
			errors.Errorf("invalid survey link %q", link),
			core.FieldError{Field: "link", Error: "invalid survey link"},
		)
	}
	return parts[0], parts[1], nil
}

// Link builds the public survey link of a student.
func Link(programID, studentID string) string {
	return programID + "-" + studentID
}

// URL builds the absolute public survey URL of a student.
func URL(baseURL string, t FormType, programID, studentID string) string {
	return strings.TrimRight(baseURL, "/") + "/" + t.Slug() + "/" + Link(programID, studentID)
}

// Status is the survey state of a student, derived and never stored.
type Status string

const (
	StatusNone      Status = "none"
	StatusSent      Status = "sent"
	StatusReminded  Status = "reminded"
	StatusResponded Status = "responded"
)

// Answers maps question ids to their answer, a string or a number.
type Answers map[string]interface{}

type FormAnswer struct {
	ID          string    `json:"id"`
	FormType    FormType  `json:"form_type"`
	StudentID   string    `json:"student_id"`
	ProgramID   string    `json:"program_id"`
	SubmittedAt time.Time `json:"submitted_at"` // UTC
	Answers     Answers   `json:"answers"`
}

// Matches reports whether fa answers the given survey of the given student.
func (fa FormAnswer) Matches(t FormType, programID, studentID string) bool {
	return fa.FormType == t && fa.ProgramID == programID && fa.StudentID == studentID
}

// FormFilter applies AND on its non-empty fields.
type FormFilter struct {
	ProgramID string
	StudentID string
	FormType  FormType
}

func (f FormFilter) Match(fa FormAnswer) bool {
	return (f.ProgramID == "" || f.ProgramID == fa.ProgramID) &&
		(f.StudentID == "" || f.StudentID == fa.StudentID) &&
		(f.FormType == "" || f.FormType == fa.FormType)
}

// ProgramAnswers holds the answers of a program partitioned by form type.
type ProgramAnswers struct {
	Hot  []FormAnswer `json:"hot"`
	Cold []FormAnswer `json:"cold"`
}

// Questionnaire is what the public form renders.
type Questionnaire struct {
	FormType  FormType   `json:"form_type"`
	ProgramID string     `json:"program_id"`
	StudentID string     `json:"student_id"`
	Questions []Question `json:"questions"`
}

// ExportResult is a downloadable file.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}
