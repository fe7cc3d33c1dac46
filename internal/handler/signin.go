package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schooladmin/internal/auth"
	"schooladmin/internal/flash"
	"schooladmin/internal/resource"
)

// ---------- Sign in / out ----------

func (h *Handler) SignInForm(c *gin.Context) {
	if _, ok := auth.Load(c); ok {
		c.Redirect(http.StatusFound, auth.SafeNext(c.Query("next")))
		return
	}
	h.render(c, http.StatusOK, "signin.html", h.page(c, "Sign in", "", signinBody{Next: c.Query("next")}))
}

type signinRequest struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
	Next     string `form:"next"`
}

func (h *Handler) SignIn(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBind(&req); err != nil {
		h.signInFailed(c, http.StatusBadRequest, req, "Username and password are required.")
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	pair, err := h.tokens.Obtain(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.signInFailed(c, http.StatusUnauthorized, req, "Invalid username or password.")
			return
		}
		h.log.Error("sign in failed", zap.String("username", req.Username), zap.Error(err))
		h.signInFailed(c, http.StatusBadGateway, req, "Unable to sign in right now. Please try again.")
		return
	}

	s, err := auth.NewSession(pair, h.verifyKey)
	if err != nil {
		h.log.Error("access token rejected", zap.String("username", req.Username), zap.Error(err))
		h.signInFailed(c, http.StatusBadGateway, req, "Unable to sign in right now. Please try again.")
		return
	}
	if err := auth.Save(c, s); err != nil {
		h.log.Error("session save failed", zap.Error(err))
		h.signInFailed(c, http.StatusInternalServerError, req, "Unable to sign in right now. Please try again.")
		return
	}
	h.log.Info("signed in", zap.String("user", s.User.ID), zap.String("username", s.User.Username))
	flash.Add(c, flash.Success, "Welcome back, "+s.User.DisplayName()+"!")
	c.Redirect(http.StatusSeeOther, auth.SafeNext(req.Next))
}

func (h *Handler) signInFailed(c *gin.Context, status int, req signinRequest, msg string) {
	h.render(c, status, "signin.html", h.page(c, "Sign in", "", signinBody{
		Username: req.Username,
		Next:     req.Next,
		Error:    msg,
	}))
}

func (h *Handler) SignOut(c *gin.Context) {
	if err := auth.Clear(c); err != nil {
		h.log.Warn("session clear failed", zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, auth.SignInPath)
}

// ---------- Home ----------

func (h *Handler) Home(c *gin.Context) {
	counts, err := h.services(c).Counts(c.Request.Context())
	body := struct {
		Counts resource.Counts
		Error  string
	}{Counts: counts}
	if err != nil {
		if errors.Is(err, resource.ErrUnauthorized) {
			h.signOutRedirect(c)
			return
		}
		body.Error = err.Error()
	}
	h.render(c, http.StatusOK, "home.html", h.page(c, "Home", "home", body))
}
