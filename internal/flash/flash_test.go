package flash

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestPopIsOneShot(t *testing.T) {
	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("flash-secret"))))
	r.POST("/students/1/delete", func(c *gin.Context) {
		Add(c, Success, "Student deleted successfully!")
		Add(c, Error, "Failed to refresh | retry later")
		c.Redirect(http.StatusSeeOther, "/students")
	})
	r.GET("/students", func(c *gin.Context) {
		c.JSON(http.StatusOK, Pop(c))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar:           jar,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	pop := func() []Message {
		t.Helper()
		resp, err := client.Get(srv.URL + "/students")
		require.NoError(t, err)
		defer resp.Body.Close()
		var out []Message
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	assert.Empty(t, pop())

	resp, err := client.Post(srv.URL+"/students/1/delete", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	first := pop()
	assert.Equal(t, []Message{
		{Level: Success, Text: "Student deleted successfully!"},
		{Level: Error, Text: "Failed to refresh | retry later"},
	}, first)
	assert.Empty(t, pop())
}
