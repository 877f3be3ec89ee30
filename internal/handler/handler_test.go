package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rollcall/internal/apperr"
	"rollcall/internal/attendance"
	"rollcall/internal/handler"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/store"
	"rollcall/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChecker bool

func (f fakeChecker) Healthy(context.Context) bool { return bool(f) }

type env struct {
	router *gin.Engine
	repo   *testutil.MemoryRepo
	blobs  *testutil.MemoryBlobs
}

func newEnv(t *testing.T, withBlobs bool, opts ...func(*handler.RouterOptions)) *env {
	t.Helper()
	repo := testutil.NewMemoryRepo()
	blobs := testutil.NewMemoryBlobs()
	svc := attendance.NewService(repo, nil, nil, zap.NewNop())
	if withBlobs {
		svc = attendance.NewService(repo, blobs, queue.NewInMemory(8), zap.NewNop())
	}
	reg := prometheus.NewRegistry()
	ro := handler.RouterOptions{
		Handler:     handler.New(svc, zap.NewNop(), 1<<20),
		Logger:      zap.NewNop(),
		Metrics:     metrics.New(reg),
		Gatherer:    reg,
		DB:          fakeChecker(true),
		FrontendDir: t.TempDir(),
	}
	for _, o := range opts {
		o(&ro)
	}
	return &env{router: handler.NewRouter(ro), repo: repo, blobs: blobs}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) form(t *testing.T, path string, fields map[string]string, image []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="capture.jpg"`)
		h.Set("Content-Type", "image/jpeg")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// userFields is a complete register-user form with overrides applied; an
// override of "-" drops the field.
func userFields(overrides map[string]string) map[string]string {
	fields := map[string]string{
		"name": "Ann", "enrollment_id": "E1", "roll_no": "7", "class_id": "c1", "org_id": "org-1",
	}
	for k, v := range overrides {
		if v == "-" {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}
	return fields
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestSignupLoginFlow(t *testing.T) {
	e := newEnv(t, true)

	w := e.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"name": "Acme", "email": "a@acme.test", "password": "pw", "type": "school",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	signup := decode[map[string]string](t, w)
	require.Equal(t, "success", signup["status"])
	require.NotEmpty(t, signup["org_id"])

	w = e.do(t, http.MethodPost, "/auth/signup", map[string]string{
		"name": "Again", "email": "a@acme.test", "password": "x", "type": "school",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "error", decode[map[string]string](t, w)["status"])

	w = e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@acme.test", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]string{
		"status": "success", "org_id": signup["org_id"], "name": "Acme", "type": "school",
	}, decode[map[string]string](t, w))

	w = e.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@acme.test", "password": "PW"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "invalid credentials", decode[map[string]string](t, w)["detail"])
}

func TestSignupValidation(t *testing.T) {
	e := newEnv(t, true)
	w := e.do(t, http.MethodPost, "/auth/signup", map[string]string{"email": "a@acme.test"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]string](t, w)
	require.Equal(t, "error", body["status"])
	require.True(t, strings.HasPrefix(body["detail"], "invalid request"), body["detail"])
}

func TestClassesEndpoints(t *testing.T) {
	e := newEnv(t, true)

	w := e.do(t, http.MethodGet, "/classes/org-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())

	w = e.do(t, http.MethodPost, "/classes", map[string]string{"org_id": "org-1", "name": "Math"})
	require.Equal(t, http.StatusOK, w.Code)
	classID := decode[map[string]string](t, w)["class_id"]
	require.NotEmpty(t, classID)

	w = e.do(t, http.MethodGet, "/classes/org-1", nil)
	require.JSONEq(t, fmt.Sprintf(`[{"id":%q,"name":"Math"}]`, classID), w.Body.String())

	w = e.do(t, http.MethodDelete, "/classes/"+classID, nil)
	require.JSONEq(t, `{"status":"success"}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/classes/org-1", nil)
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestRegisterListUpdateDeleteUser(t *testing.T) {
	e := newEnv(t, true)
	w := e.do(t, http.MethodPost, "/classes", map[string]string{"org_id": "org-1", "name": "Math"})
	classID := decode[map[string]string](t, w)["class_id"]

	w = e.form(t, "/register-user", map[string]string{
		"name": "Ann", "enrollment_id": "E1", "roll_no": "7", "class_id": classID, "org_id": "org-1",
	}, []byte{0xff, 0xd8})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{"status":"success"}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/users/org-1?class_id=all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	users := decode[[]attendance.UserView](t, w)
	require.Len(t, users, 1)
	u := users[0]
	require.Equal(t, "Math", u.ClassName)
	require.Equal(t, e.blobs.PublicURL(u.ID+".jpg"), u.Image)

	w = e.do(t, http.MethodGet, "/users/org-1?class_id=other", nil)
	require.JSONEq(t, `[]`, w.Body.String())

	w = e.form(t, "/update-user", map[string]string{
		"user_id": u.ID, "name": "Anna", "enrollment_id": "E1", "roll_no": "8", "class_id": classID,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodGet, "/users/org-1", nil)
	require.Equal(t, "Anna", decode[[]attendance.UserView](t, w)[0].Name)

	w = e.do(t, http.MethodPost, "/mark-attendance", map[string]string{
		"user_id": u.ID, "org_id": "org-1", "name": "Anna", "date": "2024-01-01", "time": "09:00", "status": "Present",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodDelete, "/users/"+u.ID, nil)
	require.JSONEq(t, `{"status":"success"}`, w.Body.String())
	require.Zero(t, e.repo.AttendanceCount(u.ID))
	require.Zero(t, e.blobs.Len())

	w = e.do(t, http.MethodGet, "/users/org-1", nil)
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestRegisterUserWithoutStorage(t *testing.T) {
	e := newEnv(t, false)
	w := e.form(t, "/register-user", userFields(nil), []byte{1})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "not configured: storage not configured", decode[map[string]string](t, w)["detail"])
}

func TestRegisterUserRequiresImage(t *testing.T) {
	e := newEnv(t, true)
	w := e.form(t, "/register-user", userFields(nil), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Zero(t, e.blobs.Len())
}

func TestRegisterUserUploadFailure(t *testing.T) {
	e := newEnv(t, true)
	e.blobs.FailUpload = true
	w := e.form(t, "/register-user", userFields(nil), []byte{1})
	require.Equal(t, http.StatusBadGateway, w.Code)

	w = e.do(t, http.MethodGet, "/users/org-1", nil)
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestRegisterUserTooLarge(t *testing.T) {
	e := newEnv(t, true)
	w := e.form(t, "/register-user", userFields(nil), bytes.Repeat([]byte{1}, 2<<20))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	require.Equal(t, "http: request body too large", decode[map[string]string](t, w)["detail"])
	require.Zero(t, e.blobs.Len())
}

func TestRegisterUserFieldsMustBePresent(t *testing.T) {
	e := newEnv(t, true)
	for _, field := range []string{"enrollment_id", "roll_no", "class_id"} {
		w := e.form(t, "/register-user", userFields(map[string]string{field: "-"}), []byte{1})
		require.Equal(t, http.StatusBadRequest, w.Code, field)
	}
	require.Zero(t, e.blobs.Len())

	w := e.form(t, "/register-user", userFields(map[string]string{"enrollment_id": "", "roll_no": "", "class_id": ""}), []byte{1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodGet, "/users/org-1", nil)
	users := decode[[]attendance.UserView](t, w)
	require.Len(t, users, 1)
	require.Empty(t, users[0].RollNo)
	require.Equal(t, attendance.UnassignedClass, users[0].ClassName)
}

func TestUpdateUserFieldsMustBePresent(t *testing.T) {
	e := newEnv(t, true)
	w := e.form(t, "/update-user", map[string]string{"user_id": "u1", "name": "Ann", "enrollment_id": "", "class_id": ""}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.form(t, "/update-user", map[string]string{"user_id": "u1", "name": "Ann", "enrollment_id": "", "roll_no": "", "class_id": ""}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestMarkAttendanceFieldsMustBePresent(t *testing.T) {
	e := newEnv(t, true)
	w := e.do(t, http.MethodPost, "/mark-attendance", map[string]string{"user_id": "u1", "org_id": "org-1", "name": "Ann"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Zero(t, e.repo.AttendanceCount("u1"))

	w = e.do(t, http.MethodPost, "/mark-attendance", map[string]string{
		"user_id": "u1", "org_id": "org-1", "name": "", "date": "", "time": "", "status": "",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 1, e.repo.AttendanceCount("u1"))
}

func TestReports(t *testing.T) {
	e := newEnv(t, true)
	for _, d := range []string{"2024-01-01", "2024-01-02"} {
		w := e.do(t, http.MethodPost, "/mark-attendance", map[string]string{
			"user_id": "u1", "org_id": "org-1", "name": "Ann", "date": d, "time": "09:00", "status": "Present",
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := e.do(t, http.MethodGet, "/reports/daily/org-1?date=2024-01-02", nil)
	require.JSONEq(t, `[{"name":"Ann","id":"u1","time":"09:00","status":"Present"}]`, w.Body.String())

	w = e.do(t, http.MethodGet, "/reports/daily/org-1?date=1999-01-01", nil)
	require.JSONEq(t, `[]`, w.Body.String())

	w = e.do(t, http.MethodGet, "/reports/daily/org-1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/reports/individual/u1", nil)
	require.JSONEq(t, `[
		{"date":"2024-01-02","time":"09:00","status":"Present"},
		{"date":"2024-01-01","time":"09:00","status":"Present"}
	]`, w.Body.String())
}

func TestDatabaseErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: pool down", apperr.ErrConnection), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w: DATABASE_URL missing", apperr.ErrDatabase, apperr.ErrConfig), http.StatusInternalServerError},
		{fmt.Errorf("%w: boom", apperr.ErrDatabase), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e := newEnv(t, true)
		e.repo.Err = tc.err
		w := e.do(t, http.MethodGet, "/classes/org-1", nil)
		require.Equal(t, tc.code, w.Code, tc.err.Error())
		require.Equal(t, tc.err.Error(), decode[map[string]string](t, w)["detail"])
	}
}

func TestUnconfiguredDatabaseIsServerError(t *testing.T) {
	db := store.Connect(context.Background(), store.Options{}, zap.NewNop())
	svc := attendance.NewService(attendance.NewRepository(db), testutil.NewMemoryBlobs(), nil, zap.NewNop())
	r := handler.NewRouter(handler.RouterOptions{Handler: handler.New(svc, zap.NewNop(), 0), DB: db})

	for _, path := range []string{"/classes/org-1", "/reports/individual/u1"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusInternalServerError, w.Code, path)
		body := decode[map[string]string](t, w)
		require.Equal(t, "error", body["status"])
		require.Contains(t, body["detail"], "DATABASE_URL")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, true)
	w := e.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok","db":true,"redis":"disabled","object_store":true}`, w.Body.String())

	e = newEnv(t, false, func(o *handler.RouterOptions) {
		o.DB = fakeChecker(false)
		o.Redis = fakeChecker(true)
	})
	w = e.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.JSONEq(t, `{"status":"degraded","db":false,"redis":true,"object_store":false}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, true)
	e.do(t, http.MethodGet, "/classes/org-1", nil)

	w := e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `rollcall_http_requests_total{code="200",method="GET",route="/classes/:org_id"} 1`)
}

func TestFrontend(t *testing.T) {
	e := newEnv(t, true)
	w := e.do(t, http.MethodGet, "/", nil)
	require.JSONEq(t, `{"error":"Frontend not found"}`, w.Body.String())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>rollcall</h1>"), 0o644))
	e = newEnv(t, true, func(o *handler.RouterOptions) { o.FrontendDir = dir })

	w = e.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "rollcall")

	w = e.do(t, http.MethodGet, "/frontend/index.html", nil)
	require.NotEqual(t, http.StatusNotFound, w.Code)
}

func TestCORSEchoesOrigin(t *testing.T) {
	e := newEnv(t, true, func(o *handler.RouterOptions) {
		o.CORSAllowedOrigins = []string{"*"}
		o.CORSAllowCredentials = true
	})
	req := httptest.NewRequest(http.MethodOptions, "/classes", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
