package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feeded/core"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("user")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrAuthenticationFailed = core.NewValidationError(errors.New("invalid credentials"))
	ErrAccountDeactivated   = core.NewValidationError(errors.New("account deactivated"))
	ErrInvalidResetLink     = core.NewValidationError(errors.New("invalid or expired password reset link"))
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		QueryUsers(ctx context.Context) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		tokens  tokenGenerator
		now     func() time.Time
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		tokens:  newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, email string) error {
	_, err := svc.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	case core.IsNotFound(err):
		return nil
	}
	return errors.Wrap(err, "checking email uniqueness")
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := nu.Validate(ctx, svc); err != nil {
		return User{}, err
	}
	now := svc.now()
	usr := User{
		ID:        core.NewID(),
		Name:      nu.Name,
		Email:     nu.Email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

// Authenticate checks the credentials of an active user and records the login.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err := usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	usr.LastLogin = svc.now()
	usr.UpdatedAt = usr.LastLogin
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting last login")
}

func (svc *Service) SetPassword(ctx context.Context, id string, sp SetUserPassword) (User, error) {
	usr, err := svc.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := sp.Validate(usr); err != nil {
		return User{}, err
	}
	if err := usr.SetPassword(sp.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

// RequestPasswordReset emails a password reset link to an active user.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	token, err := svc.tokens.makeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making password reset token")
	}

	msg := &core.EmailMessage{
		From:         svc.conf.DefaultFromEmail,
		To:           []mail.Address{{Name: usr.DisplayName(), Address: usr.Email}},
		Subject:      "Réinitialisation de votre mot de passe FeedEd",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"OrganizationName": usr.DisplayName(),
			"ResetURL":         svc.conf.FrontendBaseURL + "/password-reset/" + EncodeUID(usr) + "/" + token,
		},
	}
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering password reset email")
	}
	return errors.Wrap(svc.mailSvc.Send(ctx, msg), "sending password reset email")
}

// ResetPassword sets a new password from a password reset link.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	if err := rp.Validate(); err != nil {
		return err
	}
	id, err := decodeUID(rp.UID)
	if err != nil {
		return ErrInvalidResetLink
	}
	usr, err := svc.repo.GetUser(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return ErrInvalidResetLink
		}
		return errors.Wrap(err, "finding user by id")
	}
	if err := svc.tokens.verifyToken(usr, rp.Token); err != nil {
		return ErrInvalidResetLink
	}
	_, err = svc.SetPassword(ctx, usr.ID, SetUserPassword{Password: rp.Password, PasswordConfirm: rp.PasswordConfirm})
	return err
}
