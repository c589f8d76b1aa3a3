package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arnavshah/timetable-wizard-go/internal/config"
	"github.com/arnavshah/timetable-wizard-go/pkg/auth"
	"github.com/arnavshah/timetable-wizard-go/pkg/database"
	"github.com/arnavshah/timetable-wizard-go/pkg/extraction"
	"github.com/arnavshah/timetable-wizard-go/pkg/importer"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/arnavshah/timetable-wizard-go/pkg/scheduler"
	"github.com/arnavshah/timetable-wizard-go/pkg/session"
	"github.com/arnavshah/timetable-wizard-go/pkg/webhook"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeHook is a collaborator whose reply can be changed per test.
type fakeHook struct {
	srv    *httptest.Server
	calls  atomic.Int32
	status int
	body   string
	last   []byte
}

func newFakeHook(t *testing.T, body string) *fakeHook {
	t.Helper()
	f := &fakeHook{status: http.StatusOK, body: body}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.last, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		io.WriteString(w, f.body)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeHook) client() *webhook.Client {
	return webhook.New(f.srv.URL, 5*time.Second, nil)
}

type testEnv struct {
	router  *gin.Engine
	handler *Handler
	svc     *auth.Service
	key     string
	solve   *fakeHook
	extract *fakeHook
	parse   *fakeHook
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.InitDB(config.DatabaseConfig{Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())})
	require.NoError(t, err)

	svc := auth.NewService(config.AuthConfig{JWTSecret: "jwt", MasterSecret: "master", TokenTTL: time.Hour})
	env := &testEnv{
		svc:     svc,
		key:     svc.GenerateHMACKey("school-a"),
		solve:   newFakeHook(t, `{"timetable":{"10A1":["Toán"]}}`),
		extract: newFakeHook(t, `{"text":"found","data":[{"teacher":"Bình","subject":"Lý","class":"10B2","periods":3},{"teacher":"An","subject":"Toán","class":"10A1","periods":"5"}]}`),
		parse:   newFakeHook(t, `[{"teacher":"Chi","subject":"Hóa","class":"11C1","sessions":2}]`),
	}
	env.handler = &Handler{
		DB:   db,
		Auth: svc,
		Sessions: session.NewStore(session.Options{
			TTL:       time.Hour,
			Extractor: extraction.NewClient(env.extract.client()),
			Solver:    scheduler.NewClient(env.solve.client()),
		}),
		Importer: importer.NewClient(env.parse.client()),
		Log:      zap.NewNop(),
	}
	env.router = NewRouter(env.handler, config.ServerConfig{})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, key string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type stateBody struct {
	SessionID string          `json:"session_id"`
	State     models.Snapshot `json:"state"`
	Error     string          `json:"error"`
	Kind      string          `json:"kind"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) stateBody {
	t.Helper()
	var b stateBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b), w.Body.String())
	return b
}

func (e *testEnv) newSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/sessions", nil, e.key)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w).SessionID
}

func TestRoot(t *testing.T) {
	env := setup(t)
	w := env.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), Version)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestAPIKeyMiddleware(t *testing.T) {
	env := setup(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/sessions", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/sessions", nil, "school-a.forged").Code)

	foreign := auth.NewService(config.AuthConfig{MasterSecret: "other"}).GenerateHMACKey("school-a")
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/sessions", nil, foreign).Code)

	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/sessions", nil, env.key).Code)
}

func TestSessionsAreScopedToKey(t *testing.T) {
	env := setup(t)
	id := env.newSession(t)
	other := env.svc.GenerateHMACKey("school-b")

	w := env.do(t, http.MethodGet, "/api/sessions/"+id, nil, other)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w).Kind)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/sessions/"+id, nil, env.key).Code)
}

func TestWizardFlow_SolveAndUsage(t *testing.T) {
	env := setup(t)
	id := env.newSession(t)
	base := "/api/sessions/" + id

	w := env.do(t, http.MethodPost, base+"/assignments", gin.H{"teacher": "An", "subject": "Toán", "class": "10A1", "periods": 5}, env.key)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, base+"/timeframe/0", gin.H{"field": "afternoon", "value": 2}, env.key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decode(t, w).State.TimeFrame[0].Afternoon)

	w = env.do(t, http.MethodPost, base+"/constraints", gin.H{"text": "An off Monday", "priority": "soft"}, env.key)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base+"/result", nil, env.key).Code)

	for step := 2; step <= 4; step++ {
		w = env.do(t, http.MethodPost, base+"/next", nil, env.key)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, step, decode(t, w).State.CurrentStep)
	}
	assert.Equal(t, int32(1), env.solve.calls.Load())

	var sent map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.solve.last, &sent))
	assert.Contains(t, string(sent["constraints"]), `"SOFT"`)
	assert.Contains(t, sent, "timeFrame")

	w = env.do(t, http.MethodGet, base+"/result", nil, env.key)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"timetable":{"10A1":["Toán"]}}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/usage", nil, env.key)
	require.Equal(t, http.StatusOK, w.Code)
	var usage struct {
		Totals map[string]int `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &usage))
	assert.Equal(t, 1, usage.Totals["requests"])
	assert.Equal(t, 1, usage.Totals["assignments"])
	assert.Equal(t, 1, usage.Totals["constraints"])

	// Adjust keeps the data, New clears it.
	w = env.do(t, http.MethodPost, base+"/step", gin.H{"step": 1}, env.key)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w).State.Assignments, 1)

	w = env.do(t, http.MethodPost, base+"/reset", nil, env.key)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode(t, w).State
	assert.Empty(t, snap.Assignments)
	assert.Nil(t, snap.ScheduleResult)
}

func TestNext_EmptyAssignmentsIsValidationWithoutCall(t *testing.T) {
	env := setup(t)
	base := "/api/sessions/" + env.newSession(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/step", gin.H{"step": 3}, env.key).Code)

	w := env.do(t, http.MethodPost, base+"/next", nil, env.key)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w).Kind)
	assert.Zero(t, env.solve.calls.Load())
	assert.Equal(t, 3, decode(t, env.do(t, http.MethodGet, base, nil, env.key)).State.CurrentStep)
}

func TestNext_SolverFailureStaysOnStep(t *testing.T) {
	env := setup(t)
	env.solve.status = http.StatusInternalServerError
	env.solve.body = `{"message":"no feasible timetable"}`
	base := "/api/sessions/" + env.newSession(t)
	env.do(t, http.MethodPost, base+"/assignments", gin.H{"teacher": "An", "subject": "Toán", "class": "10A1", "periods": 5}, env.key)
	env.do(t, http.MethodPost, base+"/step", gin.H{"step": 3}, env.key)

	w := env.do(t, http.MethodPost, base+"/next", nil, env.key)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	b := decode(t, w)
	assert.Equal(t, "HTTP 500: no feasible timetable", b.Error)
	assert.Equal(t, 3, decode(t, env.do(t, http.MethodGet, base, nil, env.key)).State.CurrentStep)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base+"/result", nil, env.key).Code)
}

func TestGoToStep_OutOfRange(t *testing.T) {
	env := setup(t)
	base := "/api/sessions/" + env.newSession(t)
	w := env.do(t, http.MethodPost, base+"/step", gin.H{"step": 9}, env.key)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat_ExtractThenOK(t *testing.T) {
	env := setup(t)
	base := "/api/sessions/" + env.newSession(t)

	w := env.do(t, http.MethodPost, base+"/chat", gin.H{"text": "An dạy Toán 10A1 5 tiết"}, env.key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reply struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	require.Len(t, reply.Messages, 2)
	assert.Len(t, reply.Messages[1].Data, 2)

	var sent map[string]string
	require.NoError(t, json.Unmarshal(env.extract.last, &sent))
	assert.Contains(t, sent["text"], "Người dùng: An dạy Toán 10A1 5 tiết")
	assert.Contains(t, sent["text"], "AI: ")

	w = env.do(t, http.MethodPost, base+"/chat", gin.H{"text": " ok "}, env.key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int32(1), env.extract.calls.Load(), "OK is handled locally")
	snap := decode(t, w).State
	require.Len(t, snap.Assignments, 2)
	assert.Equal(t, "An", snap.Assignments[0].Teacher)
	assert.Equal(t, 5, snap.Assignments[0].Periods)

	w = env.do(t, http.MethodGet, base+"/chat", nil, env.key)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Len(t, reply.Messages, 5)
	assert.Equal(t, models.RoleSystem, reply.Messages[4].Role)
}

func TestChat_ExtractionFailureIsATurn(t *testing.T) {
	env := setup(t)
	env.extract.status = http.StatusBadGateway
	env.extract.body = `{"error":"workflow offline"}`
	base := "/api/sessions/" + env.newSession(t)

	w := env.do(t, http.MethodPost, base+"/chat", gin.H{"text": "hello"}, env.key)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Lỗi kết nối webhook: HTTP 502: workflow offline")
}

func TestChat_MultipartImage(t *testing.T) {
	env := setup(t)
	base := "/api/sessions/" + env.newSession(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("text", "see sheet"))
	part, err := mw.CreateFormFile("image", "sheet.png")
	require.NoError(t, err)
	part.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, base+"/chat", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.key)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sent map[string]string
	require.NoError(t, json.Unmarshal(env.extract.last, &sent))
	assert.Equal(t, "image/png", sent["mimeType"])
	assert.NotEmpty(t, sent["image"])
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	env := setup(t)
	base := "/api/sessions/" + env.newSession(t)
	w := env.do(t, http.MethodPost, base+"/chat", gin.H{"text": ""}, env.key)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, env.extract.calls.Load())
}

func TestAssignments_ImportUploadEditRemove(t *testing.T) {
	env := setup(t)
	base := "/api/sessions/" + env.newSession(t)

	w := env.do(t, http.MethodPost, base+"/assignments/import", []gin.H{
		{"teacher": "Bình", "subject": "Lý", "class": "10B2", "periods": 3},
		{"teacher": "bình", "subject": "LÝ", "class": "10b2", "periods": "4"},
	}, env.key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decode(t, w).State
	require.Len(t, snap.Assignments, 1)
	assert.Equal(t, 4, snap.Assignments[0].Periods)
	id := snap.Assignments[0].ID

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "phan-cong.csv")
	require.NoError(t, err)
	io.WriteString(part, "teacher,subject,class,periods\nChi,Hóa,11C1,2\n")
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, base+"/assignments/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.key)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode(t, w).State.Assignments, 2)

	w = env.do(t, http.MethodPut, base+"/assignments/"+id, gin.H{"teacher": "Bình", "subject": "Lý", "class": "10B2", "periods": 6}, env.key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, base+"/assignments/"+id, gin.H{"teacher": "chi", "subject": "hóa", "class": "11c1", "periods": 1}, env.key)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, base+"/assignments/"+id, nil, env.key).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, base+"/assignments/"+id, nil, env.key).Code)
}

func TestUpload_NonArrayReplyIsBadGateway(t *testing.T) {
	env := setup(t)
	env.parse.body = `{"rows":[]}`
	base := "/api/sessions/" + env.newSession(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "rows.json")
	io.WriteString(part, `[]`)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, base+"/assignments/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.key)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "schema", decode(t, w).Kind)
}

func TestValidateAndExport(t *testing.T) {
	env := setup(t)
	base := "/api/sessions/" + env.newSession(t)

	w := env.do(t, http.MethodGet, base+"/validate", nil, env.key)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)

	env.do(t, http.MethodPost, base+"/assignments", gin.H{"teacher": "An", "subject": "Toán", "class": "10A1", "periods": 5}, env.key)
	w = env.do(t, http.MethodGet, base+"/validate", nil, env.key)
	assert.Contains(t, w.Body.String(), `"valid":true`)

	w = env.do(t, http.MethodGet, base+"/export", nil, env.key)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "assignments.csv")
	assert.Contains(t, w.Body.String(), "An,Toán,10A1,5")

	w = env.do(t, http.MethodGet, base+"/export?format=xlsx", nil, env.key)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PK", w.Body.String()[:2])

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, base+"/export?format=pdf", nil, env.key).Code)
}

func TestAdmin_KeysLifecycle(t *testing.T) {
	env := setup(t)
	_, err := auth.EnsureAdminExists(env.handler.DB, "admin", "pw")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/admin/login", gin.H{"username": "admin", "password": "nope"}, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/admin/keys", nil, "").Code)

	w := env.do(t, http.MethodPost, "/admin/login", gin.H{"username": "admin", "password": "pw"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	w = env.do(t, http.MethodPost, "/admin/keys", gin.H{"name": "school-c", "rate_limit": 1}, login.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created struct {
		ID  uint   `json:"id"`
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/admin/keys", gin.H{"name": "school-c"}, login.Token).Code)

	w = env.do(t, http.MethodGet, "/admin/keys", nil, login.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), created.Key, "full keys are never listed")

	// rate_limit 1: the first solve-or-extract counts, the next request is refused.
	base := "/api/sessions/" + decode(t, env.do(t, http.MethodPost, "/api/sessions", nil, created.Key)).SessionID
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/chat", gin.H{"text": "hi"}, created.Key).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, base, nil, created.Key).Code)

	path := fmt.Sprintf("/admin/keys/%d", created.ID)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, path, gin.H{"rate_limit": 100}, login.Token).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, base, nil, created.Key).Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/admin/usage/%d", created.ID), nil, login.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_extractions":1`)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/admin/usage/abc", nil, login.Token).Code)
	w = env.do(t, http.MethodGet, "/admin/usage/9999", nil, login.Token)
	require.Equal(t, http.StatusOK, w.Code)
	var none struct {
		Usage []database.APIUsage `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &none))
	assert.Empty(t, none.Usage)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, path, nil, login.Token).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, base, nil, created.Key).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/admin/keys/9999", nil, login.Token).Code)
}
