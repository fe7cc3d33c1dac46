package handler

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schooladmin/internal/auth"
	"schooladmin/internal/flash"
	"schooladmin/internal/resource"
	"schooladmin/internal/table"
)

// Screen names. Each is also the path segment of the screen and of its
// live socket.
const (
	studentScreen    = "students"
	attendanceScreen = "attendance"
	classScreen      = "classes"
	employeeScreen   = "employees"
	userScreen       = "users"
)

// clientFetchSize is the page size requested when a client-driven table
// loads its whole collection.
const clientFetchSize = 1000

type deleter interface {
	DeleteMany(ctx context.Context, ids []string) resource.BatchResult
}

// screen is a list screen whatever its record type.
type screen interface {
	mount(ctx context.Context, svc *resource.Services, q url.Values, csrfToken string) table.Live
	removeIDs(ctx context.Context, svc *resource.Services, ids []string) (table.Notice, error)
}

type listScreen[T any] struct {
	h      *Handler
	table  *table.Table[T]
	names  resource.Names
	load   func(ctx context.Context, svc *resource.Services, st table.State) ([]T, int, error)
	delete func(svc *resource.Services) deleter
}

func (s *listScreen[T]) state(q url.Values) table.State {
	return s.table.Options.ParseState(q)
}

// view loads and builds the table for a plain page render.
func (s *listScreen[T]) view(ctx context.Context, svc *resource.Services, q url.Values) (table.View, error) {
	st := s.state(q)
	data, total, err := s.load(ctx, svc, st)
	if err != nil {
		return table.View{}, err
	}
	return s.table.Build(data, total, st, false), nil
}

func (s *listScreen[T]) mount(ctx context.Context, svc *resource.Services, q url.Values, csrfToken string) table.Live {
	return table.NewInstance(ctx, s.table, s.state(q), table.Config[T]{
		Load: func(ctx context.Context, st table.State) ([]T, int, error) {
			return s.load(ctx, svc, st)
		},
		Remove: func(ctx context.Context, rows []T) (table.Notice, error) {
			ids := make([]string, 0, len(rows))
			for _, r := range rows {
				ids = append(ids, s.table.RowID(r))
			}
			return s.removeIDs(ctx, svc, ids)
		},
		Render: func(v table.View) (template.HTML, error) {
			return s.h.views.Table(v, csrfToken)
		},
		Unauthorized: func(err error) bool { return errors.Is(err, resource.ErrUnauthorized) },
		SignOut:      auth.SignOutPath,
		Log:          s.h.log,
	})
}

func (s *listScreen[T]) removeIDs(ctx context.Context, svc *resource.Services, ids []string) (table.Notice, error) {
	res := s.delete(svc).DeleteMany(ctx, ids)
	for _, o := range res.Failed() {
		s.h.log.Warn("bulk delete item failed",
			zap.String("table", s.table.Options.Name), zap.String("id", o.ID), zap.Error(o.Err))
	}
	if res.Unauthorized() {
		return table.Notice{}, resource.ErrUnauthorized
	}
	return bulkNotice(s.names, res), nil
}

// bulkNotice folds a batch into the one notification the user sees.
func bulkNotice(names resource.Names, res resource.BatchResult) table.Notice {
	if !res.OK() {
		return table.Notice{Level: flash.Error, Message: fmt.Sprintf("Failed to delete some %s. Please try again.", names.Many)}
	}
	n := res.Succeeded()
	noun := names.Many
	if n == 1 {
		noun = names.One
	}
	return table.Notice{Level: flash.Success, Message: fmt.Sprintf("%d %s deleted successfully!", n, noun)}
}

// bulkDelete is the no-script fallback for the table's delete button.
func (h *Handler) bulkDelete(name, back string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids := c.PostFormArray("ids")
		if len(ids) == 0 {
			flash.Add(c, flash.Info, "Select at least one row to delete.")
			c.Redirect(http.StatusSeeOther, back)
			return
		}
		notice, err := h.screens[name].removeIDs(c.Request.Context(), h.services(c), ids)
		if err != nil {
			h.fail(c, err, back)
			return
		}
		flash.Add(c, notice.Level, notice.Message)
		c.Redirect(http.StatusSeeOther, back)
	}
}

func pageParams(st table.State, filters url.Values) resource.ListParams {
	return resource.ListParams{
		Page:     st.PageIndex + 1,
		PageSize: st.PageSize,
		Search:   st.Search,
		Ordering: st.Ordering(),
		Filters:  filters,
	}
}

// pick copies the allowed keys of q that carry a value.
func pick(q url.Values, keys ...string) url.Values {
	out := url.Values{}
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			out.Set(k, v)
		}
	}
	return out
}

// ---------- Cells ----------

func esc(s string) string { return template.HTMLEscapeString(s) }

func linkCell(href, label string) template.HTML {
	return template.HTML(fmt.Sprintf(`<a href="%s">%s</a>`, esc(href), esc(label)))
}

func badgeCell(value string) template.HTML {
	if value == "" {
		return ""
	}
	return template.HTML(fmt.Sprintf(`<span class="badge badge-%s">%s</span>`, esc(strings.ToLower(value)), esc(value)))
}

func badgesCell(values []string) template.HTML {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(string(badgeCell(v)))
	}
	return template.HTML(b.String())
}

func imageCell(src, alt string) template.HTML {
	if src == "" {
		return ""
	}
	return template.HTML(fmt.Sprintf(`<img class="thumb" src="%s" alt="%s" width="32" height="32">`, esc(src), esc(alt)))
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// actionsCell renders an optional edit link and a confirmed delete button.
func actionsCell(links []link, deleteAction string) template.HTML {
	var b strings.Builder
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">%s</a> `, esc(l.Href), esc(l.Label))
	}
	if deleteAction != "" {
		fmt.Fprintf(&b, `<form method="post" action="%s" class="inline" data-confirm="Delete this record?">`+csrfSlot+`<button type="submit" class="link danger">Delete</button></form>`, esc(deleteAction))
	}
	return template.HTML(b.String())
}
