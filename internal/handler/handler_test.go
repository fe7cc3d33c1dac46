package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schooladmin/internal/apiclient"
	"schooladmin/internal/auth"
	"schooladmin/internal/cache"
	"schooladmin/internal/httpmiddleware"
	"schooladmin/web"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAPI stands in for the school REST API and its token endpoint.
type stubAPI struct {
	*httptest.Server

	mu           sync.Mutex
	count        int
	students     []map[string]any
	studentQuery []string
	deleted      []string
	failDelete   map[string]bool
	unauthorized bool
}

func newStubAPI(t *testing.T) *stubAPI {
	s := &stubAPI{
		students: []map[string]any{
			{"id": 1, "first_name": "Amina", "last_name": "Rahimi", "father_name": "Karim", "dob": "2012-03-04T00:00:00Z", "status": "active", "gender": "female", "class_id": 3},
			{"id": 2, "first_name": "Bilal", "last_name": "Noori", "father_name": "Yusuf", "dob": "2011-09-10", "status": "inactive", "gender": "male", "class_id": 3},
		},
		failDelete: map[string]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/", s.token)
	mux.HandleFunc("/api/v1/student/", s.studentRoutes)
	mux.HandleFunc("/api/v1/student/class/", func(w http.ResponseWriter, r *http.Request) {
		if s.denied(w) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": 1, "results": []map[string]any{
			{"id": 3, "name": "Grade 5", "level": "5", "status": "active"},
		}})
	})
	mux.HandleFunc("/api/v1/employee/", func(w http.ResponseWriter, r *http.Request) {
		if s.denied(w) {
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 9, "first_name": "Sara", "last_name": "Haidari"}})
	})
	mux.HandleFunc("/api/v1/student/api/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		if s.denied(w) {
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "username": "admin", "roles": []string{"admin"}}})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// set mutates the stub between requests.
func (s *stubAPI) set(f func(s *stubAPI)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s)
}

func (s *stubAPI) queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.studentQuery...)
}

func (s *stubAPI) deletedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *stubAPI) denied(w http.ResponseWriter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unauthorized {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return true
	}
	return false
}

func (s *stubAPI) token(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Username != "admin" || body.Password != "secret" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	access, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       1,
		"username": "admin",
		"name":     "Ada Admin",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("upstream-key"))
	writeJSON(w, http.StatusOK, map[string]string{"access": access, "refresh": "refresh-1"})
}

func (s *stubAPI) studentRoutes(w http.ResponseWriter, r *http.Request) {
	if s.denied(w) {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/student/"), "/")
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case id == "" && r.Method == http.MethodGet:
		s.studentQuery = append(s.studentQuery, r.URL.RawQuery)
		count := s.count
		if count == 0 {
			count = len(s.students)
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": count, "next": nil, "previous": nil, "results": s.students})
	case r.Method == http.MethodDelete:
		if s.failDelete[id] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "cannot delete"})
			return
		}
		s.deleted = append(s.deleted, id)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet:
		for _, st := range s.students {
			if fmt.Sprint(st["id"]) == id {
				writeJSON(w, http.StatusOK, st)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"detail": "Method not allowed."})
	}
}

type testApp struct {
	t      *testing.T
	api    *stubAPI
	srv    *httptest.Server
	client *http.Client
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	stub := newStubAPI(t)

	query := cache.NewQuery(cache.NewMemory(), time.Minute, nil)
	api := apiclient.New(stub.URL+"/api/v1", 5*time.Second, nil)
	api.Invalidator = query
	tokens := auth.NewTokenClient(apiclient.New(stub.URL+"/api", 5*time.Second, nil))
	views, err := ParseViews(web.Templates())
	require.NoError(t, err)

	h := New(Deps{API: api, Query: query, Tokens: tokens, Views: views, DefaultPageSize: 10})
	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))
	r.Use(httpmiddleware.CSRF([]byte("0123456789abcdef0123456789abcdef"), false))
	r.GET("/test/csrf", func(c *gin.Context) { c.String(http.StatusOK, httpmiddleware.CSRFToken(c)) })
	h.Register(r, (&auth.Guard{Tokens: tokens, Log: zap.NewNop()}).RequireSession())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testApp{
		t:   t,
		api: stub,
		srv: srv,
		client: &http.Client{
			Jar:           jar,
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (a *testApp) get(path string) (*http.Response, string) {
	a.t.Helper()
	resp, err := a.client.Get(a.srv.URL + path)
	require.NoError(a.t, err)
	return resp, readBody(a.t, resp)
}

// post submits form the way a rendered page would, CSRF token included.
func (a *testApp) post(path string, form url.Values) (*http.Response, string) {
	a.t.Helper()
	_, token := a.get("/test/csrf")
	require.NotEmpty(a.t, token)
	signed := url.Values{httpmiddleware.CSRFField: {token}}
	for k, v := range form {
		signed[k] = v
	}
	return a.postRaw(path, signed)
}

func (a *testApp) postRaw(path string, form url.Values) (*http.Response, string) {
	a.t.Helper()
	resp, err := a.client.PostForm(a.srv.URL+path, form)
	require.NoError(a.t, err)
	return resp, readBody(a.t, resp)
}

func (a *testApp) signIn() {
	a.t.Helper()
	resp, _ := a.post("/auth/signin", url.Values{"username": {"admin"}, "password": {"secret"}})
	require.Equal(a.t, http.StatusSeeOther, resp.StatusCode)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestSignInFlow(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.get("/students")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/signin?next=%2Fstudents", resp.Header.Get("Location"))

	resp, body := app.post("/auth/signin", url.Values{"username": {"admin"}, "password": {"wrong"}, "next": {"/students"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid username or password.")

	resp, _ = app.post("/auth/signin", url.Values{"username": {"admin"}, "password": {"secret"}, "next": {"/students"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/students", resp.Header.Get("Location"))

	resp, body = app.get("/students")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Amina Rahimi")
	assert.Contains(t, body, "Welcome back, Ada Admin!")

	resp, _ = app.get("/auth/signout")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, _ = app.get("/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestSignInRejectsForeignNext(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.post("/auth/signin", url.Values{"username": {"admin"}, "password": {"secret"}, "next": {"//evil.example"}})

	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestStudentListSendsTableState(t *testing.T) {
	app := newTestApp(t)
	app.api.set(func(s *stubAPI) { s.count = 12 })
	app.signIn()

	resp, body := app.get("/students?students_page=2&students_page_size=5&students_q=am&students_sort=-first_name&status=active")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	queries := app.api.queries()
	require.Len(t, queries, 1)
	sent, err := url.ParseQuery(queries[0])
	require.NoError(t, err)
	assert.Equal(t, "2", sent.Get("page"))
	assert.Equal(t, "5", sent.Get("page_size"))
	assert.Equal(t, "am", sent.Get("search"))
	assert.Equal(t, "-first_name", sent.Get("ordering"))
	assert.Equal(t, "active", sent.Get("status"))

	assert.Contains(t, body, "Showing 6 to 10 of 12 items")
	assert.Contains(t, body, "2012-03-04")
	assert.Contains(t, body, `data-live="/live/students"`)
}

func TestStudentListIsCached(t *testing.T) {
	app := newTestApp(t)
	app.signIn()

	app.get("/students")
	app.get("/students")

	assert.Len(t, app.api.queries(), 1)
}

func TestBulkDelete(t *testing.T) {
	app := newTestApp(t)
	app.api.set(func(s *stubAPI) { s.failDelete["2"] = true })
	app.signIn()

	resp, _ := app.post("/students/bulk-delete", url.Values{"ids": {"1", "2"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/students", resp.Header.Get("Location"))
	assert.Equal(t, []string{"1"}, app.api.deletedIDs())

	_, body := app.get("/students")
	assert.Contains(t, body, "Failed to delete some students. Please try again.")

	app.api.set(func(s *stubAPI) { s.failDelete = map[string]bool{} })
	app.post("/students/bulk-delete", url.Values{"ids": {"1", "2"}})
	_, body = app.get("/students")
	assert.Contains(t, body, "2 students deleted successfully!")
}

func TestUnauthorizedAPISignsOut(t *testing.T) {
	app := newTestApp(t)
	app.signIn()
	app.api.set(func(s *stubAPI) { s.unauthorized = true })

	resp, _ := app.get("/students")

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, auth.SignOutPath, resp.Header.Get("Location"))
}

func TestHomeCounts(t *testing.T) {
	app := newTestApp(t)
	app.signIn()

	resp, body := app.get("/")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<span class="count">2</span><span>Students</span>`)
	assert.Contains(t, body, `<span class="count">1</span><span>Employees</span>`)
}

func TestStudentNotFound(t *testing.T) {
	app := newTestApp(t)
	app.signIn()

	resp, body := app.get("/students/99")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Not found.")
}

func TestCreateStudentValidation(t *testing.T) {
	app := newTestApp(t)
	app.signIn()

	resp, body := app.post("/students", url.Values{"first_name": {"Amina"}})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Last name is required")
	assert.Contains(t, body, `value="Amina"`)
	assert.Contains(t, body, "Grade 5 (5)")
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get("/healthz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestHumanize(t *testing.T) {
	tests := map[string]string{
		"FirstName": "First name",
		"ClassID":   "Class id",
		"Dob":       "Dob",
	}
	for in, want := range tests {
		assert.Equal(t, want, humanize(in), in)
	}
}

func TestUnsafeRequestsNeedCSRFToken(t *testing.T) {
	app := newTestApp(t)
	app.signIn()

	tests := []struct {
		name string
		path string
		form url.Values
	}{
		{name: "delete", path: "/students/1/delete"},
		{name: "bulk delete", path: "/students/bulk-delete", form: url.Values{"ids": {"1", "2"}}},
		{name: "assign role", path: "/users/4/roles", form: url.Values{"role": {"admin"}}},
		{name: "forged token", path: "/students/1/delete", form: url.Values{httpmiddleware.CSRFField: {"forged"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := app.postRaw(tt.path, tt.form)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
	assert.Empty(t, app.api.deletedIDs())

	resp, _ := app.post("/students/1/delete", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, []string{"1"}, app.api.deletedIDs())
}

func TestPagesCarryCSRFToken(t *testing.T) {
	app := newTestApp(t)

	_, body := app.get("/auth/signin")
	assert.Regexp(t, `name="csrf_token" value="[^"]+"`, body)

	app.signIn()
	_, body = app.get("/students")
	assert.NotContains(t, body, csrfSlot)
	assert.Regexp(t, `id="students-bulk" data-bulk>\s*<input type="hidden" name="csrf_token" value="[^"]+"`, body)

	_, body = app.get("/classes")
	assert.NotContains(t, body, csrfSlot)
	assert.Regexp(t, `action="/classes/3/delete" class="inline" data-confirm="Delete this record\?"><input type="hidden" name="csrf_token" value="[^"]+">`, body)
}
