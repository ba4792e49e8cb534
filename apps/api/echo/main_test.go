package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/user"
	emailsvc "github.com/databayt/hogwarts-sub013/services/email"
	"github.com/databayt/hogwarts-sub013/testutil"
)

const testPassword = "Sup3rS3cret!"

// apiEnv bundles a server with the services behind it and a ready school.
type apiEnv struct {
	*testutil.Env
	srv    Server
	school school.School
}

func setup(t *testing.T) *apiEnv {
	t.Helper()
	env := testutil.NewEnv(t)
	srv := NewServer(&Options{
		DisableReqLogs: true,
		Logger:         env.Logger,
		SchoolSvc:      env.Schools,
		UserSvc:        env.Users,
		StudentSvc:     env.Students,
		AttendanceSvc:  env.Attendance,
		FinanceSvc:     env.Finance,
		ExamSvc:        env.Exams,
		MessagingSvc:   env.Messaging,
		DashboardSvc:   env.Dashboard,
	})
	return &apiEnv{
		Env:    env,
		srv:    srv,
		school: testutil.CreateSchool(t, env, "Hogwarts", "HOG"),
	}
}

// createUser creates an active user of the env school with testPassword.
func (e *apiEnv) createUser(t *testing.T, uname string, roles ...string) user.User {
	t.Helper()
	return testutil.CreateUser(t, e.UserRepo, e.school.ID, uname, uname, uname+"@hogwarts.test", testPassword, roles, true)
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields"`
}

func (env envelope) decode(t *testing.T, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst), "decoding data: %s", string(env.Data))
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

// do sends a JSON request and decodes the response envelope, if any.
func (e *apiEnv) do(t *testing.T, method, path, token string, payload interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var data [][]byte
	if payload != nil {
		data = append(data, marshalObj(t, payload))
	}
	req, rec := newAuthRequest(method, path, token, data...)
	e.srv.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && bytes.HasPrefix(bytes.TrimSpace(rec.Body.Bytes()), []byte("{")) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "decoding body: %s", rec.Body.String())
	}
	return rec, env
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantErr  string
}

func runHTTPTests(t *testing.T, e *apiEnv, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec, env := e.do(t, method, tt.path, tt.token, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				require.Equal(t, tt.wantErr, env.Error)
			}
		})
	}
}

// emailSentTo returns the console messages sent to `addr`.
func emailSentTo(addr string) []core.EmailMessage {
	var msgs []core.EmailMessage
	for _, msg := range emailsvc.SentMessages() {
		for _, to := range msg.To {
			if to.Address == addr {
				msgs = append(msgs, msg)
				break
			}
		}
	}
	return msgs
}
