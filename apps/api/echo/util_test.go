package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	echoapi "github.com/trezcool/feeded/apps/api/echo"
	"github.com/trezcool/feeded/core"
	"github.com/trezcool/feeded/core/dispatch"
	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
	"github.com/trezcool/feeded/core/user"
	emailsvc "github.com/trezcool/feeded/services/email"
	testutil "github.com/trezcool/feeded/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type app struct {
	*echoapi.Server
	conf    *core.Config
	store   testutil.Store
	mailSvc *emailsvc.ConsoleServiceMock
	log     *testutil.Logger
}

func setup(t *testing.T, configure ...func(conf *core.Config)) app {
	t.Helper()
	conf := testutil.NewConfig()
	for _, fn := range configure {
		fn(conf)
	}
	a := app{
		conf:    conf,
		store:   testutil.NewStore(),
		mailSvc: emailsvc.NewConsoleServiceMock(conf),
		log:     testutil.NewLogger(),
	}

	usrSvc := user.NewService(a.store.Users, a.mailSvc, conf)
	progSvc := program.NewService(a.store.Programs, a.store.Forms)
	a.Server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         a.log,
		UserSvc:        usrSvc,
		ProgramSvc:     progSvc,
		SurveySvc:      survey.NewService(a.store.Forms, progSvc),
		DispatchSvc:    dispatch.NewService(a.store.Users, a.store.Programs, a.store.Forms, a.mailSvc, a.log, conf),
		DisableReqLogs: true,
	})
	return a
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (a app) do(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	a.ServeHTTP(rec, req)
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := echoapi.GenerateToken(conf, usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, a app, tests []httpTest) {
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(tt))
		})
	}
}
