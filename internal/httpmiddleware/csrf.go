package httpmiddleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
)

const (
	// CSRFField is the form field carrying the token.
	CSRFField = "csrf_token"
	// CSRFHeader carries the token on script-issued requests.
	CSRFHeader = "X-CSRF-Token"
	csrfCookie = "schooladmin_csrf"
)

// CSRF rejects unsafe requests without a valid token. Handlers read the
// token for their forms with CSRFToken. Without secure, requests are served
// over plain HTTP and the Origin/Referer check for TLS is skipped.
func CSRF(key []byte, secure bool, opts ...csrf.Option) gin.HandlerFunc {
	opts = append([]csrf.Option{
		csrf.Secure(secure),
		csrf.HttpOnly(true),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.CookieName(csrfCookie),
		csrf.FieldName(CSRFField),
		csrf.RequestHeader(CSRFHeader),
		csrf.ErrorHandler(http.HandlerFunc(csrfRejected)),
	}, opts...)
	protect := csrf.Protect(key, opts...)

	return func(c *gin.Context) {
		passed := false
		next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})
		r := c.Request
		if !secure {
			r = csrf.PlaintextHTTPRequest(r)
		}
		protect(next).ServeHTTP(c.Writer, r)
		if !passed {
			c.Abort()
		}
	}
}

// CSRFToken returns the masked token for the current request, or "" when
// the middleware is not installed.
func CSRFToken(c *gin.Context) string {
	return csrf.Token(c.Request)
}

func csrfRejected(w http.ResponseWriter, r *http.Request) {
	msg := "Forbidden - invalid CSRF token"
	if err := csrf.FailureReason(r); err != nil {
		msg = "Forbidden - " + err.Error()
	}
	http.Error(w, msg, http.StatusForbidden)
}
