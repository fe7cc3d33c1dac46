package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	prefixes []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, prefix string) error {
	r.prefixes = append(r.prefixes, prefix)
	return nil
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL, 5*time.Second, nil)
	c.Credentials = CredentialsFunc(func(context.Context) (string, error) { return "tok", nil })
	return c, srv
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if body != "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestDoStatusMapping(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantSuccess  bool
		wantError    string
		wantData     string
		unauthorized bool
	}{
		{name: "no content", status: 204, wantSuccess: true},
		{name: "ok json", status: 200, body: `{"id":1}`, wantSuccess: true, wantData: `{"id":1}`},
		{name: "created", status: 201, body: `[1,2]`, wantSuccess: true, wantData: `[1,2]`},
		{name: "ok empty body", status: 200, wantSuccess: true},
		{name: "ok invalid json", status: 200, body: "hello", wantSuccess: true},
		{name: "unauthorized", status: 401, body: `{"detail":"expired"}`, wantError: "Unauthorized", unauthorized: true},
		{name: "bad request message", status: 400, body: `{"message":"bad name","detail":"ignored"}`, wantError: "bad name"},
		{name: "unprocessable detail", status: 422, body: `{"detail":"invalid field"}`, wantError: "invalid field"},
		{name: "forbidden no body", status: 403, wantError: "Forbidden"},
		{name: "not found", status: 404, body: `{"detail":"Not found."}`, wantError: "Not found."},
		{name: "conflict", status: 409, body: `{}`, wantError: "Conflict"},
		{name: "server error unparsable", status: 500, body: "<html>boom</html>", wantError: "Internal Server Error"},
		{name: "unlisted status", status: 502, body: "", wantError: "Bad Gateway"},
		{name: "detail list", status: 400, body: `{"detail":["a","b"]}`, wantError: `["a","b"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, respond(tt.status, tt.body))
			res := c.Do(context.Background(), Request{Path: "/student/"})

			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.unauthorized, res.Unauthorized)
			if tt.wantSuccess {
				assert.Empty(t, res.Error)
			} else {
				assert.Equal(t, tt.wantError, res.Error)
				assert.Nil(t, res.Data)
			}
			if tt.wantData == "" {
				assert.Nil(t, res.Data)
			} else {
				require.NotNil(t, res.Data)
				assert.JSONEq(t, tt.wantData, string(*res.Data))
			}
		})
	}
}

func TestDoConnectionError(t *testing.T) {
	srv := httptest.NewServer(respond(200, "{}"))
	srv.Close()

	c := New(srv.URL, time.Second, nil)
	res := c.Do(context.Background(), Request{Path: "/student/", Token: "tok"})

	assert.False(t, res.Success)
	assert.Equal(t, "Connection error", res.Error)
	assert.Zero(t, res.Status)
}

func TestDoAuthorization(t *testing.T) {
	var gotAuth atomic.Value
	var hits atomic.Int32
	h := func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}

	t.Run("provider token", func(t *testing.T) {
		c, _ := newTestClient(t, h)
		res := c.Do(context.Background(), Request{Path: "/x/"})
		require.True(t, res.Success)
		assert.Equal(t, "Bearer tok", gotAuth.Load())
	})

	t.Run("explicit token wins", func(t *testing.T) {
		c, _ := newTestClient(t, h)
		res := c.Do(context.Background(), Request{Path: "/x/", Token: "other"})
		require.True(t, res.Success)
		assert.Equal(t, "Bearer other", gotAuth.Load())
	})

	t.Run("skip auth", func(t *testing.T) {
		c, _ := newTestClient(t, h)
		res := c.Do(context.Background(), Request{Path: "/x/", SkipAuth: true})
		require.True(t, res.Success)
		assert.Equal(t, "", gotAuth.Load())
	})

	t.Run("missing credential is not sent", func(t *testing.T) {
		c, _ := newTestClient(t, h)
		c = c.WithCredentials(CredentialsFunc(func(context.Context) (string, error) {
			return "", errors.New("no session")
		}))
		before := hits.Load()
		res := c.Do(context.Background(), Request{Path: "/x/"})
		assert.False(t, res.Success)
		assert.True(t, res.Unauthorized)
		assert.Equal(t, "Unauthorized", res.Error)
		assert.Equal(t, before, hits.Load())
	})
}

func TestDoJSONBody(t *testing.T) {
	var gotType, gotMethod string
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":7}`)
	})

	res := Fetch[struct {
		ID int `json:"id"`
	}](context.Background(), c, Request{
		Method: http.MethodPost,
		Path:   "/student/class/",
		Body:   map[string]any{"name": "Grade 1", "level": 1},
	})

	require.True(t, res.Success)
	require.NotNil(t, res.Data)
	assert.Equal(t, 7, res.Data.ID)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "Grade 1", got["name"])
}

func TestDoMultipart(t *testing.T) {
	var fields map[string][]string
	var fileName, fileBody, fileType string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields = r.MultipartForm.Value
		fh := r.MultipartForm.File["image"][0]
		fileName = fh.Filename
		fileType = fh.Header.Get("Content-Type")
		f, err := fh.Open()
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		fileBody = string(b)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{}`)
	})

	body := map[string]any{
		"first_name": "Amina",
		"class_id":   3,
		"active":     true,
		"image":      "old.png",
		"notes":      nil,
		"roles":      []string{"teacher"},
	}
	res := c.Do(context.Background(), Request{
		Method:    http.MethodPut,
		Path:      "/student/1/",
		Body:      body,
		Multipart: true,
		Files: map[string]File{
			"image": {Name: "photo.png", ContentType: "image/png", Content: []byte("PNG")},
		},
	})

	require.True(t, res.Success)
	assert.Equal(t, []string{"Amina"}, fields["first_name"])
	assert.Equal(t, []string{"3"}, fields["class_id"])
	assert.Equal(t, []string{"true"}, fields["active"])
	assert.Equal(t, []string{`["teacher"]`}, fields["roles"])
	assert.NotContains(t, fields, "notes")
	assert.NotContains(t, fields, "image")
	assert.Equal(t, "photo.png", fileName)
	assert.Equal(t, "image/png", fileType)
	assert.Equal(t, "PNG", fileBody)
}

func TestDoMultipartRejectsNonObject(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { hits.Add(1) })

	res := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x/", Body: []int{1}, Multipart: true})

	assert.False(t, res.Success)
	assert.Equal(t, "Connection error", res.Error)
	assert.Zero(t, hits.Load())
}

func TestDoRevalidate(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   []string
	}{
		{name: "success invalidates", status: 200, want: []string{"students"}},
		{name: "no content invalidates", status: 204, want: []string{"students"}},
		{name: "failure keeps cache", status: 400, want: nil},
		{name: "unauthorized keeps cache", status: 401, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, respond(tt.status, ""))
			inv := &recordingInvalidator{}
			c.Invalidator = inv
			c.Do(context.Background(), Request{Method: http.MethodDelete, Path: "/student/1/", Revalidate: "students"})
			assert.Equal(t, tt.want, inv.prefixes)
		})
	}
}

func TestDoQueryEncoding(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	})

	c.Do(context.Background(), Request{
		Path:  "/student/attendance/?student_id=4",
		Query: map[string][]string{"from": {"2024-01-01"}},
	})

	assert.True(t, strings.HasPrefix(gotQuery, "student_id=4&"))
	assert.Contains(t, gotQuery, "from=2024-01-01")
}

func TestFetchUndecodableLeavesDataEmpty(t *testing.T) {
	c, _ := newTestClient(t, respond(200, `"text"`))

	res := Fetch[struct{ ID int }](context.Background(), c, Request{Path: "/x/"})

	assert.True(t, res.Success)
	assert.Nil(t, res.Data)
}
