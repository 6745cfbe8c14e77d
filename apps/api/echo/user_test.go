package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/feeded/apps/api/echo"
	testutil "github.com/trezcool/feeded/tests"
)

func Test_home(t *testing.T) {
	a := setup(t)
	rec := a.do(httpTest{path: "/"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to FeedEd API!", rec.Body.String())
}

func Test_userAPI_login(t *testing.T) {
	a := setup(t)
	pwd := "Tr4ining-Feedback!"
	testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", pwd, true)
	testutil.CreateUser(t, a.store.Users, "Formations Closed", "closed@dupont.fr", pwd, false)

	creds := func(email, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Email: email, Password: pwd})
	}
	invalid := marchallObj(t, httpErr{Error: "invalid credentials"})

	runTests(t, a, []httpTest{
		{name: "unknown email", method: http.MethodPost, path: "/v1/users/login", body: creds("nobody@dupont.fr", pwd), wantCode: http.StatusBadRequest, wantData: invalid},
		{name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: creds("contact@dupont.fr", "nope"), wantCode: http.StatusBadRequest, wantData: invalid},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: creds("closed@dupont.fr", pwd),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "missing password", method: http.MethodPost, path: "/v1/users/login", body: creds("contact@dupont.fr", ""), wantCode: http.StatusBadRequest},
	})

	t.Run("success", func(t *testing.T) {
		rec := a.do(httpTest{method: http.MethodPost, path: "/v1/users/login", body: creds("contact@dupont.fr", pwd)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)

		me := a.do(httpTest{path: "/v1/users/me", token: resp.Token})
		assert.Equal(t, http.StatusOK, me.Code)
	})
}

func Test_userAPI_retrieveMe(t *testing.T) {
	a := setup(t)
	usr := testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", "", true)
	closed := testutil.CreateUser(t, a.store.Users, "Formations Closed", "closed@dupont.fr", "", false)
	ghost := usr
	ghost.ID = "ghost"

	runTests(t, a, []httpTest{
		{name: "auth required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "bad token", path: "/v1/users/me", token: "abc.def.ghi", wantCode: http.StatusUnauthorized},
		{
			name: "unknown user", path: "/v1/users/me", token: getToken(t, a.conf, ghost),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
		},
		{
			name: "deactivated", path: "/v1/users/me", token: getToken(t, a.conf, closed),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "me", path: "/v1/users/me", token: getToken(t, a.conf, usr), wantCode: http.StatusOK, wantData: marchallObj(t, usr)},
	})
}

func Test_userAPI_refreshToken(t *testing.T) {
	a := setup(t)
	usr := testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", "", true)

	sign := func(origIat time.Time) string {
		claims := echoapi.Claims{
			StandardClaims: jwt.StandardClaims{
				Subject:   usr.ID,
				ExpiresAt: time.Now().Add(time.Hour).Unix(),
				IssuedAt:  time.Now().Unix(),
			},
			OrigIssuedAt: origIat.Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.conf.SecretKey))
		require.NoError(t, err)
		return token
	}

	rec := a.do(httpTest{method: http.MethodPost, path: "/v1/users/token-refresh", token: sign(time.Now())})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	unmarshal(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)

	runTests(t, a, []httpTest{
		{
			name: "refresh expired", method: http.MethodPost, path: "/v1/users/token-refresh",
			token:    sign(time.Now().Add(-a.conf.Server.JWTRefreshExpirationDelta - time.Minute)),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "auth required", method: http.MethodPost, path: "/v1/users/token-refresh", wantCode: http.StatusUnauthorized},
	})
}

func Test_userAPI_passwordReset(t *testing.T) {
	a := setup(t)
	usr := testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", "", true)

	success := marchallObj(t, echoapi.SuccessResponse{
		Success: "We've emailed you instructions for setting your password, if an account exists with the email you entered.",
	})
	body := func(email string) []byte { return marchallObj(t, echoapi.PasswordResetRequest{Email: email}) }

	runTests(t, a, []httpTest{
		{name: "invalid email", method: http.MethodPost, path: "/v1/users/password-reset", body: body("nope"), wantCode: http.StatusBadRequest},
		{name: "unknown email", method: http.MethodPost, path: "/v1/users/password-reset", body: body("nobody@dupont.fr"), wantCode: http.StatusOK, wantData: success},
	})
	assert.Empty(t, a.mailSvc.Sent())

	rec := a.do(httpTest{method: http.MethodPost, path: "/v1/users/password-reset", body: body(usr.Email)})
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: success}, rec)
	require.Len(t, a.mailSvc.Sent(), 1)
	assert.Equal(t, usr.Email, a.mailSvc.Sent()[0].To[0].Address)

	runTests(t, a, []httpTest{
		{
			name: "bad reset link", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body:     []byte(`{"uid": "abc", "token": "def", "password": "N3w-Passw0rd!", "password_confirm": "N3w-Passw0rd!"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid or expired password reset link"}),
		},
	})
}

func Test_userAPI_setMyPassword(t *testing.T) {
	a := setup(t)
	usr := testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", "", true)
	token := getToken(t, a.conf, usr)

	runTests(t, a, []httpTest{
		{
			name: "mismatch", method: http.MethodPut, path: "/v1/users/me/password", token: token,
			body: []byte(`{"password": "N3w-Passw0rd!", "password_confirm": "other"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "ok", method: http.MethodPut, path: "/v1/users/me/password", token: token,
			body: []byte(`{"password": "N3w-Passw0rd!", "password_confirm": "N3w-Passw0rd!"}`), wantCode: http.StatusOK,
		},
	})

	got, err := a.store.Users.GetUser(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("N3w-Passw0rd!"))
}
