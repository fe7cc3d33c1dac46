// Package handler serves the dashboard screens: sign-in, the home counts and
// one list, form and detail screen per entity, plus the live table socket.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"schooladmin/internal/apiclient"
	"schooladmin/internal/auth"
	"schooladmin/internal/cache"
	"schooladmin/internal/flash"
	"schooladmin/internal/httpmiddleware"
	"schooladmin/internal/resource"
)

// Deps are the collaborators a Handler needs. All are built once in main.
type Deps struct {
	Log             *zap.Logger
	API             *apiclient.Client
	Query           *cache.Query
	Tokens          *auth.TokenClient
	VerifyKey       string
	Views           *Views
	DefaultPageSize int
	// Health probes the cache backend for /healthz. Nil means always healthy.
	Health func(ctx context.Context) error
}

type Handler struct {
	log       *zap.Logger
	api       *apiclient.Client
	query     *cache.Query
	tokens    *auth.TokenClient
	verifyKey string
	views     *Views
	pageSize  int
	health    func(ctx context.Context) error
	upgrader  websocket.Upgrader

	students   *listScreen[resource.Student]
	attendance *listScreen[resource.Attendance]
	classes    *listScreen[resource.ClassItem]
	employees  *listScreen[resource.Employee]
	users      *listScreen[resource.User]
	screens    map[string]screen
}

func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.DefaultPageSize <= 0 {
		d.DefaultPageSize = 10
	}
	h := &Handler{
		log:       d.Log,
		api:       d.API,
		query:     d.Query,
		tokens:    d.Tokens,
		verifyKey: d.VerifyKey,
		views:     d.Views,
		pageSize:  d.DefaultPageSize,
		health:    d.Health,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	h.students = h.studentList()
	h.attendance = h.attendanceList()
	h.classes = h.classList()
	h.employees = h.employeeList()
	h.users = h.userList()
	h.screens = map[string]screen{
		studentScreen:    h.students,
		attendanceScreen: h.attendance,
		classScreen:      h.classes,
		employeeScreen:   h.employees,
		userScreen:       h.users,
	}
	return h
}

// Register mounts every route. Everything except sign-in and health sits
// behind requireSession.
func (h *Handler) Register(r gin.IRouter, requireSession gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)
	r.GET(auth.SignInPath, h.SignInForm)
	r.POST(auth.SignInPath, h.SignIn)
	r.GET(auth.SignOutPath, h.SignOut)

	g := r.Group("/", requireSession)
	g.GET("/", h.Home)
	g.GET("/live/:table", h.Live)

	g.GET("/students", h.ListStudents)
	g.GET("/students/add", h.NewStudent)
	g.POST("/students", h.CreateStudent)
	g.POST("/students/bulk-delete", h.bulkDelete(studentScreen, "/students"))
	g.GET("/students/:id", h.ShowStudent)
	g.GET("/students/:id/edit", h.EditStudent)
	g.POST("/students/:id", h.UpdateStudent)
	g.POST("/students/:id/delete", h.DeleteStudent)
	g.GET("/students/:id/attendance", h.StudentAttendance)

	g.GET("/attendance", h.ListAttendance)
	g.POST("/attendance", h.CreateAttendance)
	g.POST("/attendance/bulk-delete", h.bulkDelete(attendanceScreen, "/attendance"))
	g.POST("/attendance/:id", h.PatchAttendance)
	g.POST("/attendance/:id/delete", h.DeleteAttendance)

	g.GET("/classes", h.ListClasses)
	g.POST("/classes", h.CreateClass)
	g.POST("/classes/bulk-delete", h.bulkDelete(classScreen, "/classes"))
	g.GET("/classes/:id/edit", h.EditClass)
	g.POST("/classes/:id", h.UpdateClass)
	g.POST("/classes/:id/delete", h.DeleteClass)
	g.GET("/classes/:id/students", h.ClassStudents)

	g.GET("/employees", h.ListEmployees)
	g.GET("/employees/add", h.NewEmployee)
	g.POST("/employees", h.CreateEmployee)
	g.POST("/employees/bulk-delete", h.bulkDelete(employeeScreen, "/employees"))
	g.GET("/employees/:id", h.ShowEmployee)
	g.GET("/employees/:id/edit", h.EditEmployee)
	g.POST("/employees/:id", h.UpdateEmployee)
	g.POST("/employees/:id/delete", h.DeleteEmployee)

	g.GET("/users", h.ListUsers)
	g.GET("/users/add", h.NewUser)
	g.POST("/users", h.CreateUser)
	g.POST("/users/bulk-delete", h.bulkDelete(userScreen, "/users"))
	g.GET("/users/:id/edit", h.EditUser)
	g.POST("/users/:id", h.UpdateUser)
	g.POST("/users/:id/delete", h.DeleteUser)
	g.POST("/users/:id/roles", h.AssignRole)
	g.POST("/users/:id/roles/remove", h.RemoveRole)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "cache": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ---------- Shared helpers ----------

// services binds the resource collections to the request's session.
func (h *Handler) services(c *gin.Context) *resource.Services {
	s, _ := auth.Current(c)
	return resource.NewServices(h.api.WithCredentials(auth.FromSession(c)), h.query, s.User.ID)
}

func (h *Handler) page(c *gin.Context, title, nav string, body any) page {
	s, ok := auth.Current(c)
	return page{
		Title:    title,
		Nav:      nav,
		User:     s.User,
		SignedIn: ok,
		Flashes:  flash.Pop(c),
		Body:     body,
	}
}

func (h *Handler) render(c *gin.Context, status int, name string, data page) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := h.views.Page(c.Writer, name, data, httpmiddleware.CSRFToken(c)); err != nil {
		h.log.Error("render failed", zap.String("page", name), zap.Error(err))
	}
}

// renderError shows the error page, or ends the session when the API
// rejected the credential.
func (h *Handler) renderError(c *gin.Context, err error, back string) {
	if errors.Is(err, resource.ErrUnauthorized) {
		h.signOutRedirect(c)
		return
	}
	status := http.StatusBadGateway
	var apiErr *resource.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		status = http.StatusNotFound
	}
	h.render(c, status, "error.html", h.page(c, "Error", "", errorBody{Status: status, Message: err.Error(), Back: back}))
}

// fail flashes err and redirects to back, or signs out on an unauthorized error.
func (h *Handler) fail(c *gin.Context, err error, back string) {
	if errors.Is(err, resource.ErrUnauthorized) {
		h.signOutRedirect(c)
		return
	}
	flash.Add(c, flash.Error, err.Error())
	c.Redirect(http.StatusSeeOther, back)
}

func (h *Handler) done(c *gin.Context, msg, target string) {
	flash.Add(c, flash.Success, msg)
	c.Redirect(http.StatusSeeOther, target)
}

func (h *Handler) signOutRedirect(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, auth.SignOutPath)
	c.Abort()
}

// bindMessage turns a form binding error into something a person can act on.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Please check the form and try again."
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", humanize(fe.Field())))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email", humanize(fe.Field())))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", humanize(fe.Field()), fe.Param()))
		default:
			msgs = append(msgs, humanize(fe.Field())+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// humanize turns a Go field name like FatherName or ClassID into
// "Father name" or "Class id".
func humanize(s string) string {
	var b strings.Builder
	prevLower := false
	for i, r := range s {
		upper := r >= 'A' && r <= 'Z'
		if i > 0 && upper {
			if prevLower {
				b.WriteByte(' ')
			}
			r += 'a' - 'A'
		}
		prevLower = !upper
		b.WriteRune(r)
	}
	return b.String()
}
