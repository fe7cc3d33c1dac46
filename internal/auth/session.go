package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"schooladmin/internal/apiclient"
)

const (
	sessionKey = "auth"
	contextKey = "session"
)

// ErrNoSession is returned by the credential provider when nobody is signed in.
var ErrNoSession = errors.New("auth: no session")

// Session is what the cookie keeps for a signed-in user.
type Session struct {
	Access  string    `json:"access"`
	Refresh string    `json:"refresh"`
	Expires time.Time `json:"exp"`
	User    Profile   `json:"user"`
}

// Expired reports whether the access token is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.Expires.IsZero() && !now.Before(s.Expires)
}

// NewSession builds a session from a token pair.
func NewSession(pair TokenPair, verifyKey string) (Session, error) {
	profile, exp, err := ParseAccess(pair.Access, verifyKey)
	if err != nil {
		return Session{}, err
	}
	return Session{Access: pair.Access, Refresh: pair.Refresh, Expires: exp, User: profile}, nil
}

// Load reads the session stored in the request cookie.
func Load(c *gin.Context) (Session, bool) {
	raw, ok := sessions.Default(c).Get(sessionKey).(string)
	if !ok || raw == "" {
		return Session{}, false
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.Access == "" {
		return Session{}, false
	}
	return s, true
}

// Save writes s to the cookie and makes it current for this request.
func Save(c *gin.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	store := sessions.Default(c)
	store.Set(sessionKey, string(raw))
	c.Set(contextKey, s)
	return store.Save()
}

// Clear signs the user out.
func Clear(c *gin.Context) error {
	store := sessions.Default(c)
	store.Delete(sessionKey)
	c.Set(contextKey, Session{})
	return store.Save()
}

// Current returns the session resolved by RequireSession for this request.
func Current(c *gin.Context) (Session, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return Load(c)
	}
	s, ok := v.(Session)
	return s, ok && s.Access != ""
}

// FromSession is the credential provider for API calls made on behalf of
// the request's user.
func FromSession(c *gin.Context) apiclient.Credentials {
	return apiclient.CredentialsFunc(func(context.Context) (string, error) {
		s, ok := Current(c)
		if !ok {
			return "", ErrNoSession
		}
		return s.Access, nil
	})
}
