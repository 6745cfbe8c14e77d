package user_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/user"
	emailsvc "github.com/trezcool/feeded/services/email"
	testutil "github.com/trezcool/feeded/tests"
)

func newService() (*user.Service, user.Repository, *emailsvc.ConsoleServiceMock) {
	conf := testutil.NewConfig()
	store := testutil.NewStore()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	return user.NewService(store.Users, mailSvc, conf), store.Users, mailSvc
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	verr, ok := err.(*core.ValidationError)
	require.True(t, ok, "expected a validation error, got %v", err)
	fields := make(map[string]string)
	for _, f := range verr.Fields {
		fields[f.Field] = f.Error
	}
	return fields
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService()
	testutil.CreateUser(t, repo, "Acme", "taken@example.com", "", true)

	tests := []struct {
		name    string
		nu      user.NewUser
		wantErr map[string]string
	}{
		{
			name: "valid",
			nu:   user.NewUser{Name: " Formations Durand ", Email: " Contact@Durand.fr", Password: "Tr0ub4dor&3", PasswordConfirm: "Tr0ub4dor&3"},
		},
		{
			name:    "required",
			nu:      user.NewUser{},
			wantErr: map[string]string{"name": "this field is required", "email": "this field is required", "password": "this field is required", "password_confirm": "this field is required"},
		},
		{
			name:    "mismatch",
			nu:      user.NewUser{Name: "Acme", Email: "acme@example.com", Password: "Tr0ub4dor&3", PasswordConfirm: "Tr0ub4dor&4"},
			wantErr: map[string]string{"password_confirm": "password_confirm must be equal to Password"},
		},
		{
			name:    "too short",
			nu:      user.NewUser{Name: "Acme", Email: "acme@example.com", Password: "a1b2", PasswordConfirm: "a1b2"},
			wantErr: map[string]string{"password": "password must contain at least 8 characters"},
		},
		{
			name:    "whitespace",
			nu:      user.NewUser{Name: "Acme", Email: "acme@example.com", Password: "Tr0ub 4dor", PasswordConfirm: "Tr0ub 4dor"},
			wantErr: map[string]string{"password": "password must not contain whitespace"},
		},
		{
			name:    "numeric",
			nu:      user.NewUser{Name: "Acme", Email: "acme@example.com", Password: "1234567890", PasswordConfirm: "1234567890"},
			wantErr: map[string]string{"password": "password cannot be entirely numeric"},
		},
		{
			name:    "similar to email",
			nu:      user.NewUser{Name: "Acme", Email: "formations.durand@example.com", Password: "formationsdurand", PasswordConfirm: "formationsdurand"},
			wantErr: map[string]string{"password": "password cannot be similar to user attributes"},
		},
		{
			name:    "email taken",
			nu:      user.NewUser{Name: "Acme", Email: "TAKEN@example.com", Password: "Tr0ub4dor&3", PasswordConfirm: "Tr0ub4dor&3"},
			wantErr: map[string]string{"email": user.ErrEmailExists.Error()},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			usr, err := svc.Create(ctx, tc.nu)
			if tc.wantErr != nil {
				fields := fieldErrors(t, err)
				for fld, msg := range tc.wantErr {
					assert.Equal(t, msg, fields[fld], fld)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Formations Durand", usr.Name)
			assert.Equal(t, "contact@durand.fr", usr.Email)
			assert.True(t, usr.IsActive)
			assert.NoError(t, usr.CheckPassword(tc.nu.Password))
		})
	}
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService()
	active := testutil.CreateUser(t, repo, "Acme", "acme@example.com", "Tr0ub4dor&3", true)
	testutil.CreateUser(t, repo, "Old", "old@example.com", "Tr0ub4dor&3", false)

	usr, err := svc.Authenticate(ctx, " ACME@example.com ", "Tr0ub4dor&3")
	require.NoError(t, err)
	assert.Equal(t, active.ID, usr.ID)
	assert.False(t, usr.LastLogin.IsZero())

	_, err = svc.Authenticate(ctx, "acme@example.com", "wrong-password")
	assert.Equal(t, user.ErrAuthenticationFailed, err)
	_, err = svc.Authenticate(ctx, "nobody@example.com", "Tr0ub4dor&3")
	assert.Equal(t, user.ErrAuthenticationFailed, err)
	_, err = svc.Authenticate(ctx, "old@example.com", "Tr0ub4dor&3")
	assert.Equal(t, user.ErrAccountDeactivated, err)
}

func TestService_SetPassword(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService()
	usr := testutil.CreateUser(t, repo, "Formations Durand", "contact@durand.fr", "Tr0ub4dor&3", true)

	_, err := svc.SetPassword(ctx, usr.ID, user.SetUserPassword{Password: "durandformations", PasswordConfirm: "durandformations"})
	assert.Equal(t, "password cannot be similar to user attributes", fieldErrors(t, err)["password"])

	_, err = svc.SetPassword(ctx, "unknown", user.SetUserPassword{Password: "correct-horse", PasswordConfirm: "correct-horse"})
	assert.Equal(t, user.ErrNotFound, err)

	usr, err = svc.SetPassword(ctx, usr.ID, user.SetUserPassword{Password: "correct-horse", PasswordConfirm: "correct-horse"})
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("correct-horse"))
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, repo, mailSvc := newService()
	usr := testutil.CreateUser(t, repo, "Acme", "acme@example.com", "Tr0ub4dor&3", true, time.Now().Add(-time.Hour))
	testutil.CreateUser(t, repo, "Old", "old@example.com", "Tr0ub4dor&3", false)

	assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "nobody@example.com"))
	assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "old@example.com"))
	assert.Empty(t, mailSvc.Sent())

	require.NoError(t, svc.RequestPasswordReset(ctx, "acme@example.com"))
	sent := mailSvc.Sent()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "acme@example.com", msg.To[0].Address)
	assert.Equal(t, "password_reset", msg.TemplateName)

	resetURL := msg.TemplateData.(map[string]interface{})["ResetURL"].(string)
	assert.Contains(t, msg.TextContent, resetURL)
	parts := strings.Split(strings.TrimPrefix(resetURL, "https://app.feeded.test/password-reset/"), "/")
	require.Len(t, parts, 2)
	uid, token := parts[0], parts[1]
	assert.Equal(t, user.EncodeUID(usr), uid)

	err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: "bad-token", Password: "correct-horse", PasswordConfirm: "correct-horse"})
	assert.Equal(t, user.ErrInvalidResetLink, err)
	err = svc.ResetPassword(ctx, user.ResetUserPassword{UID: "!!", Token: token, Password: "correct-horse", PasswordConfirm: "correct-horse"})
	assert.Equal(t, user.ErrInvalidResetLink, err)

	rp := user.ResetUserPassword{UID: uid, Token: token, Password: "correct-horse", PasswordConfirm: "correct-horse"}
	require.NoError(t, svc.ResetPassword(ctx, rp))
	_, err = svc.Authenticate(ctx, "acme@example.com", "correct-horse")
	require.NoError(t, err)

	// the password hash changed: the link is single use
	assert.Equal(t, user.ErrInvalidResetLink, svc.ResetPassword(ctx, rp))
}
