package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schooladmin/internal/flash"
)

const (
	SignInPath  = "/auth/signin"
	SignOutPath = "/auth/signout"
)

// ExpiredFlash is shown after a session could not be renewed.
const ExpiredFlash = "Your session has expired. Please sign in again."

// Guard keeps screens behind a valid session and renews expired access tokens.
type Guard struct {
	Tokens    *TokenClient
	VerifyKey string
	Log       *zap.Logger
	Now       func() time.Time
}

// RequireSession redirects anonymous visitors to the sign-in page. An expired
// access token is refreshed once; if that fails the session is cleared.
func (g *Guard) RequireSession() gin.HandlerFunc {
	now := g.Now
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		s, ok := Load(c)
		if !ok {
			deny(c, "")
			return
		}
		if s.Expired(now()) {
			renewed, err := g.refresh(c, s)
			if err != nil {
				g.Log.Info("session refresh failed", zap.String("user", s.User.Username), zap.Error(err))
				_ = Clear(c)
				deny(c, ExpiredFlash)
				return
			}
			s = renewed
		}
		c.Set(contextKey, s)
		c.Next()
	}
}

func (g *Guard) refresh(c *gin.Context, s Session) (Session, error) {
	pair, err := g.Tokens.Refresh(c.Request.Context(), s.Refresh)
	if err != nil {
		return Session{}, err
	}
	renewed, err := NewSession(pair, g.VerifyKey)
	if err != nil {
		return Session{}, err
	}
	if err := Save(c, renewed); err != nil {
		return Session{}, err
	}
	return renewed, nil
}

func deny(c *gin.Context, msg string) {
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if msg != "" {
		flash.Add(c, flash.Error, msg)
	}
	target := SignInPath
	if c.Request.Method == http.MethodGet {
		target += "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
	}
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

// SafeNext returns next when it is a local path, else "/".
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	if strings.HasPrefix(next, SignInPath) || strings.HasPrefix(next, SignOutPath) {
		return "/"
	}
	return next
}
