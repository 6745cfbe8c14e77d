package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/feeded/apps/api/echo"
	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/dispatch"
	"github.com/trezcool/feeded/core/survey"
	testutil "github.com/trezcool/feeded/tests"
)

func Test_dispatchAPI_sendEmail(t *testing.T) {
	a := setup(t)
	usr := testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", "", true)
	other := testutil.CreateUser(t, a.store.Users, "Formations Durand", "contact@durand.fr", "", true)
	token := getToken(t, a.conf, usr)
	p := testutil.CreateProgram(t, a.store.Programs, usr.ID, "Management", date(2024, 1, 1), date(2024, 1, 10))
	st := testutil.CreateStudent(t, a.store.Programs, p, "Marie", "Curie", "marie@example.com")

	req := func(uid, sid, subject string) []byte {
		return marchallObj(t, dispatch.SendRequest{
			UserID:      uid,
			ProgramID:   p.ID,
			StudentID:   sid,
			Subject:     subject,
			TextContent: "Merci de répondre",
			Type:        survey.Hot,
		})
	}
	sent := marchallObj(t, echoapi.MessageResponse{Message: string(dispatch.OutcomeSent)})
	alreadySent := marchallObj(t, echoapi.MessageResponse{Message: string(dispatch.OutcomeAlreadySent)})

	for _, path := range []string{"/api/email", "/api/emailSurvey"} {
		runTests(t, a, []httpTest{
			{name: path + " auth required", method: http.MethodPost, path: path, body: req(usr.ID, st.ID, "Votre avis"), wantCode: http.StatusUnauthorized},
			{
				name: path + " foreign user", method: http.MethodPost, path: path, token: token, body: req(other.ID, st.ID, "Votre avis"),
				wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
			},
			{name: path + " missing user", method: http.MethodPost, path: path, token: token, body: req("", st.ID, "Votre avis"), wantCode: http.StatusBadRequest},
			{name: path + " missing subject", method: http.MethodPost, path: path, token: token, body: req(usr.ID, st.ID, ""), wantCode: http.StatusBadRequest},
			{
				name: path + " unknown student", method: http.MethodPost, path: path, token: token, body: req(usr.ID, "nope", "Votre avis"),
				wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "student not found"}),
			},
		})
	}
	assert.Empty(t, a.mailSvc.Sent())

	runTests(t, a, []httpTest{
		{name: "send", method: http.MethodPost, path: "/api/email", token: token, body: req(usr.ID, st.ID, "Votre avis"), wantCode: http.StatusOK, wantData: sent},
		{name: "send again", method: http.MethodPost, path: "/api/emailSurvey", token: token, body: req(usr.ID, st.ID, "Votre avis"), wantCode: http.StatusOK, wantData: alreadySent},
	})
	require.Len(t, a.mailSvc.Sent(), 1)
	assert.Equal(t, "Votre avis", a.mailSvc.Sent()[0].Subject)
}

func Test_dispatchAPI_sendEmail_gatewayError(t *testing.T) {
	a := setup(t)
	usr := testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", "", true)
	p := testutil.CreateProgram(t, a.store.Programs, usr.ID, "Management", date(2024, 1, 1), date(2024, 1, 10))
	st := testutil.CreateStudent(t, a.store.Programs, p, "Marie", "Curie", "marie@example.com")
	a.mailSvc.FailFor(st.Email)

	rec := a.do(httpTest{
		method: http.MethodPost, path: "/api/email", token: getToken(t, a.conf, usr),
		body: marchallObj(t, dispatch.SendRequest{
			UserID: usr.ID, ProgramID: p.ID, StudentID: st.ID, Subject: "Votre avis", HTMLContent: "<p>Merci</p>", Type: survey.Hot,
		}),
	})
	checkCodeAndData(t, httpTest{wantCode: http.StatusInternalServerError, wantData: marchallObj(t, httpErr{Error: "Internal Server Error"})}, rec)
	assert.Contains(t, a.log.Buf.String(), "sending survey email")
}

func Test_dispatchAPI_scheduleEmails(t *testing.T) {
	a := setup(t, func(conf *core.Config) { conf.Server.ScheduleAPIKey = "s3cr3t" })
	usr := testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", "", true)
	p := testutil.CreateProgram(t, a.store.Programs, usr.ID, "Management", date(2024, 1, 1), date(2024, 1, 10))
	testutil.CreateStudent(t, a.store.Programs, p, "Marie", "Curie", "marie@example.com")

	rec := a.do(httpTest{path: "/api/schedule-emails"})
	checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid API key"})}, rec)

	req, rec := newAuthRequest(http.MethodGet, "/api/schedule-emails", "")
	req.Header.Set("X-API-Key", "wrong")
	a.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, a.mailSvc.Sent())

	for _, want := range []dispatch.ScanResult{{Hot: dispatch.BatchResult{Sent: 1}}, {}} {
		req, rec = newAuthRequest(http.MethodGet, "/api/schedule-emails", "")
		req.Header.Set("X-API-Key", "s3cr3t")
		a.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, echoapi.ScheduleResponse{Message: "survey emails scheduled", Result: want}),
		}, rec)
	}
	assert.Len(t, a.mailSvc.Sent(), 1)
}

func Test_dispatchAPI_scheduleEmails_allFailed(t *testing.T) {
	a := setup(t)
	usr := testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", "", true)
	p := testutil.CreateProgram(t, a.store.Programs, usr.ID, "Management", date(2024, 1, 1), date(2024, 1, 10))
	st := testutil.CreateStudent(t, a.store.Programs, p, "Marie", "Curie", "marie@example.com")
	a.mailSvc.FailFor(st.Email)

	rec := a.do(httpTest{path: "/api/schedule-emails"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body struct {
		Error  string              `json:"error"`
		Result dispatch.ScanResult `json:"result"`
	}
	unmarshal(t, rec, &body)
	assert.Contains(t, body.Error, dispatch.ErrAllFailed.Error())
	assert.Equal(t, 1, body.Result.Hot.Failed)
}
