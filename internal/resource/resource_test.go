package resource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schooladmin/internal/apiclient"
	"schooladmin/internal/cache"
)

type countingInvalidator struct {
	mu       sync.Mutex
	prefixes []string
	next     apiclient.Invalidator
}

func (c *countingInvalidator) Invalidate(ctx context.Context, prefix string) error {
	c.mu.Lock()
	c.prefixes = append(c.prefixes, prefix)
	c.mu.Unlock()
	if c.next != nil {
		return c.next.Invalidate(ctx, prefix)
	}
	return nil
}

func setup(t *testing.T, h http.HandlerFunc) (*Services, *countingInvalidator) {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	q := cache.NewQuery(cache.NewMemory(), time.Minute, nil)
	inv := &countingInvalidator{next: q}
	client := apiclient.New(srv.URL, 5*time.Second, nil)
	client.Invalidator = inv
	client = client.WithCredentials(apiclient.CredentialsFunc(func(context.Context) (string, error) {
		return "tok", nil
	}))
	return NewServices(client, q, "1"), inv
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "2010-05-04", want: "2010-05-04"},
		{in: "2010-05-04T10:20:30Z", want: "2010-05-04"},
		{in: "2010-05-04T01:00:00+03:00", want: "2010-05-03"},
		{in: "2010-05-04T10:20:30.123456", want: "2010-05-04"},
		{in: "2010-05-04 10:20:30", want: "2010-05-04"},
		{in: "garbageTtail", want: "garbage"},
		{in: "04/05/2010", want: "04/05/2010"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDate(tt.in))
		})
	}
}

func TestPageDecoding(t *testing.T) {
	var env Page[Student]
	require.NoError(t, json.Unmarshal([]byte(`{"count":12,"next":"http://x/?page=2","previous":null,"results":[{"id":1},{"id":"2"}]}`), &env))
	assert.Equal(t, 12, env.Count)
	require.NotNil(t, env.Next)
	assert.Nil(t, env.Previous)
	require.Len(t, env.Results, 2)
	assert.Equal(t, ID("1"), env.Results[0].ID)
	assert.Equal(t, ID("2"), env.Results[1].ID)

	var bare Page[Employee]
	require.NoError(t, json.Unmarshal([]byte(`[{"id":3},{"id":4},{"id":5}]`), &bare))
	assert.Equal(t, 3, bare.Count)
	assert.Len(t, bare.Results, 3)
}

func TestListSanitizesAndCaches(t *testing.T) {
	var hits atomic.Int32
	var gotQuery string
	svc, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/student/":
			hits.Add(1)
			gotQuery = r.URL.RawQuery
			_, _ = io.WriteString(w, `{"count":1,"next":null,"previous":null,"results":[
				{"id":1,"first_name":"Amina","dob":"2012-09-01T00:00:00Z","age":11,"class_id":3}]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/student/":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":2,"first_name":"Bilal","dob":"2013-01-02T00:00:00Z"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()
	params := ListParams{Page: 2, PageSize: 5, Search: "am"}

	page, err := svc.Students.List(ctx, params)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	s := page.Results[0]
	assert.Equal(t, "2012-09-01", s.Dob)
	assert.Equal(t, "Amina", s.FirstName)
	assert.Equal(t, Numeric("11"), s.Age)
	assert.Equal(t, ID("3"), s.ClassID)
	assert.Equal(t, "page=2&page_size=5&search=am", gotQuery)

	_, err = svc.Students.List(ctx, params)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())

	created, err := svc.Students.Create(ctx, StudentInput{FirstName: "Bilal"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2013-01-02", created.Dob)

	_, err = svc.Students.List(ctx, params)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestErrors(t *testing.T) {
	svc, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/student/class/9/":
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"Not found."}`)
		case "/employee/":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	ctx := context.Background()

	_, err := svc.Classes.Get(ctx, "9")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Not found.", apiErr.Message)
	assert.False(t, errors.Is(err, ErrUnauthorized))

	_, err = svc.Employees.List(ctx, ListParams{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = svc.Students.Delete(ctx, "1")
	require.Error(t, err)
	assert.Equal(t, "Internal Server Error", err.Error())
}

func TestDeleteManyPartialFailure(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	svc, inv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/student/"), "/")
		if id == "2" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"detail":"cannot delete"}`)
			return
		}
		mu.Lock()
		deleted = append(deleted, id)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	res := svc.Students.DeleteMany(context.Background(), []string{"1", "2", "3"})

	assert.False(t, res.OK())
	assert.Equal(t, 2, res.Succeeded())
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "2", failed[0].ID)
	assert.Equal(t, "cannot delete", failed[0].Err.Error())
	assert.False(t, res.Unauthorized())
	assert.ElementsMatch(t, []string{"1", "3"}, deleted)
	assert.Equal(t, []string{"students"}, inv.prefixes)
}

func TestDeleteManyEmpty(t *testing.T) {
	svc, inv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})

	res := svc.Users.DeleteMany(context.Background(), nil)

	assert.True(t, res.OK())
	assert.Empty(t, inv.prefixes)
}

func TestFilteredLists(t *testing.T) {
	queries := make(chan string, 4)
	svc, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Path + "?" + r.URL.RawQuery
		_, _ = io.WriteString(w, `{"count":1,"results":[{"id":5,"attendance_date":"2024-02-01T08:00:00Z","attendance_status":"late"}]}`)
	})
	ctx := context.Background()

	page, err := svc.Attendance.ByStudentAndDate(ctx, "7", "2024-01-01", "", ListParams{})
	require.NoError(t, err)
	assert.Equal(t, "/student/attendance/?from=2024-01-01&student_id=7", <-queries)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "2024-02-01", page.Results[0].AttendanceDate)

	_, err = svc.Classes.Students(ctx, "3", ListParams{PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, "/student/?class_id=3&page_size=20", <-queries)
}

func TestRoleActions(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	svc, inv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	ctx := context.Background()

	require.NoError(t, svc.Users.AssignRole(ctx, "4", "teacher"))
	assert.Equal(t, "/student/api/v1/users/4/assign-role/", gotPath)
	assert.Equal(t, map[string]string{"role": "teacher"}, gotBody)

	require.NoError(t, svc.Users.RemoveRole(ctx, "4", "teacher"))
	assert.Equal(t, "/student/api/v1/users/4/remove-role/", gotPath)
	assert.Equal(t, []string{"users", "users"}, inv.prefixes)
}

func TestCounts(t *testing.T) {
	svc, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/student/":
			_, _ = io.WriteString(w, `{"count":120,"results":[{"id":1}]}`)
		case "/employee/":
			_, _ = io.WriteString(w, `[{"id":1},{"id":2}]`)
		case "/student/class/":
			_, _ = io.WriteString(w, `{"count":8,"results":[]}`)
		default:
			_, _ = io.WriteString(w, `{"count":3,"results":[]}`)
		}
	})

	counts, err := svc.Counts(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Counts{Students: 120, Employees: 2, Classes: 8, Users: 3}, counts)
}

func TestUserRoleNames(t *testing.T) {
	assert.Equal(t, []string{"admin"}, User{Role: "admin"}.RoleNames())
	assert.Equal(t, []string{"a", "b"}, User{Roles: []string{"a", "b"}, Role: "x"}.RoleNames())
	assert.True(t, User{Roles: []string{"Teacher"}}.HasRole("teacher"))
	assert.False(t, User{}.HasRole("teacher"))
}
