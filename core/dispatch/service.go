package dispatch

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
	"github.com/trezcool/feeded/core/user"
)

var ErrAllFailed = errors.New("every survey email failed")

type Service struct {
	users    user.Repository
	programs program.Repository
	forms    survey.Repository
	mailSvc  core.EmailService
	log      core.Logger
	rules    Rules
	baseURL  string
	lease    time.Duration
	now      func() time.Time
}

func NewService(
	users user.Repository,
	programs program.Repository,
	forms survey.Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		users:    users,
		programs: programs,
		forms:    forms,
		mailSvc:  mailSvc,
		log:      logger,
		rules:    RulesFromConfig(conf),
		baseURL:  conf.FrontendBaseURL,
		lease:    conf.Scheduler.ClaimLease,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send emails one survey to one student, at most once.
// It returns OutcomeAlreadySent without emailing when the student flag is already set.
func (svc *Service) Send(ctx context.Context, req SendRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	usr, err := svc.users.GetUser(ctx, req.UserID)
	if err != nil {
		return "", err
	}
	st, err := svc.programs.GetStudent(ctx, req.ProgramID, req.StudentID)
	if err != nil {
		return "", err
	}
	if st.UserID != usr.ID {
		return "", program.ErrStudentNotFound
	}
	key := program.EmailKey{UserID: usr.ID, ProgramID: st.ProgramID, StudentID: st.ID, FormType: req.Type}
	return svc.send(ctx, key, usr, st, req.Subject, req.TextContent, req.HTMLContent)
}

// send runs the claim, deliver, mark sequence for key.
func (svc *Service) send(
	ctx context.Context,
	key program.EmailKey,
	usr user.User,
	st program.Student,
	subject, text, html string,
) (Outcome, error) {
	if key.Sent(st) {
		return OutcomeAlreadySent, nil
	}

	switch err := svc.programs.ClaimEmail(ctx, key, svc.now(), svc.lease); {
	case err == nil:
	case errors.Cause(err) == program.ErrAlreadySent:
		return OutcomeAlreadySent, nil
	default:
		return "", err
	}

	msg := &core.EmailMessage{
		From:        mail.Address{Name: usr.DisplayName(), Address: usr.Email},
		To:          []mail.Address{{Name: st.FullName(), Address: st.Email}},
		Subject:     subject,
		TextContent: text,
		HTMLContent: html,
	}
	if err := svc.mailSvc.Send(ctx, msg); err != nil {
		if rerr := svc.programs.ReleaseEmail(ctx, key); rerr != nil {
			svc.log.Error("releasing survey email claim", rerr, map[string]interface{}{"key": key})
		}
		return "", errors.Wrap(err, "sending survey email")
	}

	if err := svc.programs.MarkEmailSent(ctx, key, svc.now()); err != nil {
		// the email is out: the unexpired claim keeps blocking resends meanwhile
		svc.log.Error("recording sent survey email", err, map[string]interface{}{"key": key})
	}
	return OutcomeSent, nil
}

// message renders the templated invitation or reminder of a student.
func (svc *Service) message(usr user.User, p program.Program, st program.Student, t survey.FormType, reminder bool) (*core.EmailMessage, error) {
	subject := fmt.Sprintf("Votre avis sur la formation %s", p.Name)
	if t == survey.Cold {
		subject = fmt.Sprintf("Quelques mois après : votre retour sur la formation %s", p.Name)
	}
	tmpl := "survey_invitation"
	if reminder {
		subject = "Rappel : " + subject
		tmpl = "survey_reminder"
	}

	msg := &core.EmailMessage{
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: invitationData{
			OrganizationName: usr.DisplayName(),
			StudentName:      st.FullName(),
			ProgramName:      p.Name,
			SurveyURL:        survey.URL(svc.baseURL, t, p.ID, st.ID),
			FormType:         string(t),
		},
	}
	if err := msg.Render(); err != nil {
		return nil, errors.Wrap(err, "rendering survey email")
	}
	return msg, nil
}

// SendProgram emails the t survey to every student of a program owned by uid, one at a time.
// Students already emailed are skipped; failures are counted as pending and never stop the batch.
func (svc *Service) SendProgram(ctx context.Context, uid, pid string, t survey.FormType) (BatchResult, error) {
	return svc.batch(ctx, uid, pid, t, false)
}

// Remind emails a reminder to students of a program owned by uid that were sent the t survey
// but neither answered nor got reminded yet.
func (svc *Service) Remind(ctx context.Context, uid, pid string, t survey.FormType) (BatchResult, error) {
	return svc.batch(ctx, uid, pid, t, true)
}

func (svc *Service) batch(ctx context.Context, uid, pid string, t survey.FormType, reminder bool) (BatchResult, error) {
	if !t.IsValid() {
		return BatchResult{}, core.NewValidationError(
			errors.Errorf("invalid form type %q", t),
			core.FieldError{Field: "type", Error: "must be one of hot, cold"},
		)
	}
	usr, err := svc.users.GetUser(ctx, uid)
	if err != nil {
		return BatchResult{}, err
	}
	p, err := svc.programs.GetProgram(ctx, pid)
	if err != nil {
		return BatchResult{}, err
	}
	if p.UserID != usr.ID {
		return BatchResult{}, program.ErrNotFound
	}
	students, err := svc.programs.QueryStudents(ctx, p.ID)
	if err != nil {
		return BatchResult{}, errors.Wrap(err, "querying students")
	}

	var forms []survey.FormAnswer
	if reminder {
		forms, err = svc.forms.QueryFormAnswers(ctx, survey.FormFilter{ProgramID: p.ID, FormType: t})
		if err != nil {
			return BatchResult{}, errors.Wrap(err, "querying form answers")
		}
	}

	var res BatchResult
	for _, st := range students {
		if reminder && program.DeriveStatus(st, t, forms) != survey.StatusSent {
			res.Skipped++
			continue
		}
		svc.sendOne(ctx, &res, usr, p, st, t, reminder)
	}
	svc.log.Info(fmt.Sprintf("program %s %s survey batch: %d sent, %d skipped, %d failed", p.ID, t, res.Sent, res.Skipped, res.Failed))
	return res, nil
}

// sendOne sends the templated survey email of a student and records the outcome in res.
func (svc *Service) sendOne(
	ctx context.Context,
	res *BatchResult,
	usr user.User,
	p program.Program,
	st program.Student,
	t survey.FormType,
	reminder bool,
) {
	key := program.EmailKey{UserID: usr.ID, ProgramID: p.ID, StudentID: st.ID, FormType: t, Reminder: reminder}
	if key.Sent(st) {
		res.Skipped++
		return
	}

	outcome, err := func() (Outcome, error) {
		msg, err := svc.message(usr, p, st, t, reminder)
		if err != nil {
			return "", err
		}
		return svc.send(ctx, key, usr, st, msg.Subject, msg.TextContent, msg.HTMLContent)
	}()
	switch {
	case err != nil:
		res.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("student %s: %v", st.ID, err))
		svc.log.Warn(fmt.Sprintf("survey email to student %s failed", st.ID), err)
		if !reminder && !core.IsConflict(err) {
			if cerr := svc.programs.IncrementCounter(ctx, p.ID, t, program.CounterPending); cerr != nil {
				svc.log.Error("incrementing pending counter", cerr)
			}
		}
	case outcome == OutcomeAlreadySent:
		res.Skipped++
	default:
		res.Sent++
	}
}

// Scan walks every user, program and student and emails each eligible student its survey.
// It fails when listing fails or when every attempted email failed.
func (svc *Service) Scan(ctx context.Context, now time.Time) (ScanResult, error) {
	var res ScanResult
	users, err := svc.users.QueryUsers(ctx)
	if err != nil {
		return res, errors.Wrap(err, "querying users")
	}

	for _, usr := range users {
		if !usr.IsActive {
			continue
		}
		progs, err := svc.programs.QueryPrograms(ctx, usr.ID)
		if err != nil {
			return res, errors.Wrapf(err, "querying programs of user %s", usr.ID)
		}
		for _, p := range progs {
			students, err := svc.programs.QueryStudents(ctx, p.ID)
			if err != nil {
				return res, errors.Wrapf(err, "querying students of program %s", p.ID)
			}
			for _, t := range survey.FormTypes {
				var batch BatchResult
				for _, st := range students {
					if svc.rules.Eligible(t, p, st, now) {
						svc.sendOne(ctx, &batch, usr, p, st, t, false)
					}
				}
				res.For(t).add(batch)
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}

	attempted := res.Hot.Attempted() + res.Cold.Attempted()
	svc.log.Info(fmt.Sprintf(
		"survey scan: hot %d sent, %d failed; cold %d sent, %d failed",
		res.Hot.Sent, res.Hot.Failed, res.Cold.Sent, res.Cold.Failed,
	))
	if attempted > 0 && res.Hot.Sent+res.Cold.Sent == 0 {
		return res, errors.Wrapf(ErrAllFailed, "%d attempts", attempted)
	}
	return res, nil
}
