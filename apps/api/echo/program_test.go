package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeded/core/dispatch"
	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
	testutil "github.com/trezcool/feeded/tests"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Test_programAPI_crud(t *testing.T) {
	a := setup(t)
	usr := testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", "", true)
	other := testutil.CreateUser(t, a.store.Users, "Formations Durand", "contact@durand.fr", "", true)
	token := getToken(t, a.conf, usr)
	notFound := marchallObj(t, httpErr{Error: "program not found"})

	foreign := testutil.CreateProgram(t, a.store.Programs, other.ID, "Excel", date(2024, 1, 1), date(2024, 1, 10))

	runTests(t, a, []httpTest{
		{name: "auth required", path: "/v1/programs", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "end before start", method: http.MethodPost, path: "/v1/programs", token: token,
			body: []byte(`{"name": "Management", "start_date": "2024-02-01T00:00:00Z", "end_date": "2024-01-01T00:00:00Z"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "blank name", method: http.MethodPost, path: "/v1/programs", token: token,
			body: []byte(`{"name": "  ", "start_date": "2024-01-01T00:00:00Z", "end_date": "2024-01-10T00:00:00Z"}`), wantCode: http.StatusBadRequest,
		},
		{name: "unknown program", path: "/v1/programs/nope", token: token, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "foreign program", path: "/v1/programs/" + foreign.ID, token: token, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "delete foreign program", method: http.MethodDelete, path: "/v1/programs/" + foreign.ID, token: token, wantCode: http.StatusNotFound},
		{name: "bad status filter", path: "/v1/programs?status=lol", token: token, wantCode: http.StatusBadRequest},
		{name: "bad page", path: "/v1/programs?page=x", token: token, wantCode: http.StatusBadRequest},
		{
			name: "bad page and page size", path: "/v1/programs?page=x&page_size=-1", token: token, wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error": "page: must be a positive integer", "fields": {"page": "must be a positive integer"}}`),
		},
		{
			name: "page far past the end", path: "/v1/programs?page=9223372036854775807&page_size=2", token: token,
			wantCode: http.StatusOK, wantData: []byte(`{"count": 0, "results": []}`),
		},
	})

	// create
	rec := a.do(httpTest{
		method: http.MethodPost, path: "/v1/programs", token: token,
		body: []byte(`{"name": " Management ", "start_date": "2024-01-01T00:00:00Z", "end_date": "2024-01-10T00:00:00Z"}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p program.Program
	unmarshal(t, rec, &p)
	assert.Equal(t, "Management", p.Name)
	assert.Equal(t, usr.ID, p.UserID)

	// add student
	rec = a.do(httpTest{
		method: http.MethodPost, path: "/v1/programs/" + p.ID + "/students", token: token,
		body: []byte(`{"first_name": "Marie", "last_name": "Curie", "email": "Marie@Example.com"}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var st program.Student
	unmarshal(t, rec, &st)
	assert.Equal(t, "marie@example.com", st.Email)

	rec = a.do(httpTest{
		method: http.MethodPost, path: "/v1/programs/" + p.ID + "/students", token: token,
		body: []byte(`{"first_name": "Pierre", "last_name": "Curie", "email": "not-an-email"}`),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// details
	rec = a.do(httpTest{path: "/v1/programs/" + p.ID, token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var details program.Details
	unmarshal(t, rec, &details)
	assert.Equal(t, program.StatusCompleted, details.Status)
	assert.Equal(t, 1, details.StudentCount)
	require.Len(t, details.Students, 1)
	assert.Equal(t, survey.StatusNone, details.Students[0].FormStatusHot)

	// list
	rec = a.do(httpTest{path: "/v1/programs?search=manag&ordering=-start_date", token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list program.List
	unmarshal(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	// delete student, then program
	rec = a.do(httpTest{method: http.MethodDelete, path: "/v1/programs/" + p.ID + "/students/" + st.ID, token: token})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(httpTest{method: http.MethodDelete, path: "/v1/programs/" + p.ID + "/students/" + st.ID, token: token})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(httpTest{method: http.MethodDelete, path: "/v1/programs/" + p.ID, token: token})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(httpTest{path: "/v1/programs/" + p.ID, token: token})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_programAPI_sendSurveys(t *testing.T) {
	ctx := context.Background()
	a := setup(t)
	usr := testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", "", true)
	token := getToken(t, a.conf, usr)
	p := testutil.CreateProgram(t, a.store.Programs, usr.ID, "Management", date(2024, 1, 1), date(2024, 1, 10))
	testutil.CreateStudent(t, a.store.Programs, p, "Marie", "Curie", "marie@example.com")
	testutil.CreateStudent(t, a.store.Programs, p, "Pierre", "Curie", "pierre@example.com")

	runTests(t, a, []httpTest{
		{name: "bad type", method: http.MethodPost, path: "/v1/programs/" + p.ID + "/surveys/tiede/send", token: token, wantCode: http.StatusBadRequest},
		{name: "unknown program", method: http.MethodPost, path: "/v1/programs/nope/surveys/hot/send", token: token, wantCode: http.StatusNotFound},
		{
			name: "send", method: http.MethodPost, path: "/v1/programs/" + p.ID + "/surveys/hot/send", token: token,
			wantCode: http.StatusOK, wantData: marchallObj(t, dispatch.BatchResult{Sent: 2}),
		},
		{
			name: "send again", method: http.MethodPost, path: "/v1/programs/" + p.ID + "/surveys/chaud/send", token: token,
			wantCode: http.StatusOK, wantData: marchallObj(t, dispatch.BatchResult{Skipped: 2}),
		},
		{
			name: "remind", method: http.MethodPost, path: "/v1/programs/" + p.ID + "/surveys/hot/remind", token: token,
			wantCode: http.StatusOK, wantData: marchallObj(t, dispatch.BatchResult{Sent: 2}),
		},
	})
	assert.Len(t, a.mailSvc.Sent(), 4)

	got, err := a.store.Programs.GetProgram(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.HotResponses.Sent)
	assert.Equal(t, 2, got.HotResponses.Reminded)
}

func Test_programAPI_answers(t *testing.T) {
	a := setup(t)
	usr := testutil.CreateUser(t, a.store.Users, "Formations Dupont", "contact@dupont.fr", "", true)
	token := getToken(t, a.conf, usr)
	p := testutil.CreateProgram(t, a.store.Programs, usr.ID, "Management", date(2024, 1, 1), date(2024, 1, 10))
	st := testutil.CreateStudent(t, a.store.Programs, p, "Marie", "Curie", "marie@example.com")
	fa := testutil.CreateFormAnswer(t, a.store.Forms, survey.Hot, p.ID, st.ID, testutil.CompleteAnswers(survey.Hot))

	runTests(t, a, []httpTest{
		{
			name: "answers", path: "/v1/programs/" + p.ID + "/answers", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, survey.ProgramAnswers{Hot: []survey.FormAnswer{fa}, Cold: []survey.FormAnswer{}}),
		},
		{name: "answers of unknown program", path: "/v1/programs/nope/answers", token: token, wantCode: http.StatusNotFound},
		{name: "csv of bad type", path: "/v1/programs/" + p.ID + "/answers/tiede/csv", token: token, wantCode: http.StatusBadRequest},
	})

	rec := a.do(httpTest{path: "/v1/programs/" + p.ID + "/answers/hot/csv", token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, survey.CSVContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="`+survey.CSVFilename(survey.Hot)+`"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, string(survey.GenerateCSV(survey.Hot, []survey.FormAnswer{fa})), rec.Body.String())
}
