package handler

import (
	"context"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"schooladmin/internal/resource"
	"schooladmin/internal/table"
)

var classNames = resource.Names{One: "class", Many: "classes"}

func (h *Handler) classList() *listScreen[resource.ClassItem] {
	t := table.New([]table.Column[resource.ClassItem]{
		{ID: "name", Header: "Name", Sortable: true,
			Value: func(cl resource.ClassItem) string { return cl.Name }},
		{ID: "level", Header: "Level", Sortable: true,
			Value: func(cl resource.ClassItem) string { return cl.Level }},
		{ID: "status", Header: "Status", Sortable: true,
			Value: func(cl resource.ClassItem) string { return cl.Status },
			Cell:  func(cl resource.ClassItem) template.HTML { return badgeCell(cl.Status) }},
		{ID: "created_at", Header: "Created", Sortable: true, Hideable: true,
			Value: func(cl resource.ClassItem) string { return resource.NormalizeDate(cl.CreatedAt) }},
		{ID: "actions", Header: "", Cell: func(cl resource.ClassItem) template.HTML {
			id := cl.ID.String()
			return actionsCell([]link{
				{Label: "Students", Href: "/classes/" + id + "/students"},
				{Label: "Edit", Href: "/classes/" + id + "/edit"},
			}, "/classes/"+id+"/delete")
		}},
	}, func(cl resource.ClassItem) string { return cl.ID.String() }, table.ScreenKeys(classScreen, table.Options{
		SearchColumn:      "name",
		SearchPlaceholder: "Filter classes…",
		Selectable:        true,
		DefaultPageSize:   h.pageSize,
	}))
	t.RowHref = func(cl resource.ClassItem) string { return "/classes/" + cl.ID.String() + "/students" }

	return &listScreen[resource.ClassItem]{
		h:     h,
		table: t,
		names: classNames,
		load: func(ctx context.Context, svc *resource.Services, _ table.State) ([]resource.ClassItem, int, error) {
			page, err := svc.Classes.List(ctx, resource.ListParams{PageSize: clientFetchSize})
			return page.Results, page.Count, err
		},
		delete: func(svc *resource.Services) deleter { return svc.Classes },
	}
}

// ---------- Classes ----------

func (h *Handler) ListClasses(c *gin.Context) {
	h.classPage(c, http.StatusOK, "", resource.ClassInput{Status: "active"}, "")
}

func (h *Handler) EditClass(c *gin.Context) {
	id := c.Param("id")
	cl, err := h.services(c).Classes.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, "/classes")
		return
	}
	h.classPage(c, http.StatusOK, id, cl.Input(), "")
}

func (h *Handler) CreateClass(c *gin.Context) {
	var in resource.ClassInput
	if err := c.ShouldBind(&in); err != nil {
		h.classPage(c, http.StatusBadRequest, "", in, bindMessage(err))
		return
	}
	if _, err := h.services(c).Classes.Create(c.Request.Context(), in, nil); err != nil {
		h.writeFailed(c, err, func(msg string) { h.classPage(c, http.StatusBadGateway, "", in, msg) })
		return
	}
	h.done(c, "Class created successfully!", "/classes")
}

func (h *Handler) UpdateClass(c *gin.Context) {
	id := c.Param("id")
	var in resource.ClassInput
	if err := c.ShouldBind(&in); err != nil {
		h.classPage(c, http.StatusBadRequest, id, in, bindMessage(err))
		return
	}
	if _, err := h.services(c).Classes.Update(c.Request.Context(), id, in, nil); err != nil {
		h.writeFailed(c, err, func(msg string) { h.classPage(c, http.StatusBadGateway, id, in, msg) })
		return
	}
	h.done(c, "Class updated successfully!", "/classes")
}

func (h *Handler) DeleteClass(c *gin.Context) {
	if err := h.services(c).Classes.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err, "/classes")
		return
	}
	h.done(c, "Class deleted successfully!", "/classes")
}

// classPage is the class table with its inline form; id selects edit mode.
func (h *Handler) classPage(c *gin.Context, status int, id string, in resource.ClassInput, errMsg string) {
	view, err := h.classes.view(c.Request.Context(), h.services(c), c.Request.URL.Query())
	if err != nil {
		h.renderError(c, err, "/")
		return
	}
	form := &formBody{
		Heading: "Add class",
		Action:  "/classes",
		Error:   errMsg,
		Submit:  "Create",
		Fields: []field{
			text("name", "Name", in.Name, true),
			text("level", "Level", in.Level, true),
			choice("status", "Status", in.Status, resource.ClassStatuses, true),
		},
	}
	if id != "" {
		form.Heading, form.Action, form.Submit, form.Cancel = "Edit class", "/classes/"+id, "Save", "/classes"
	}
	h.render(c, status, "list.html", h.page(c, "Classes", "classes", listBody{
		Heading: "Classes",
		Live:    "/live/" + classScreen,
		Form:    form,
		Table:   view,
	}))
}

// ClassStudents lists the students enrolled in a class.
func (h *Handler) ClassStudents(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	svc := h.services(c)
	cl, err := svc.Classes.Get(ctx, id)
	if err != nil {
		h.renderError(c, err, "/classes")
		return
	}

	t := studentTable(table.ScreenKeys("class_students", table.Options{
		SearchColumn:      "first_name",
		SearchPlaceholder: "Search students…",
		ServerPagination:  true,
		ServerSearch:      true,
		DefaultPageSize:   h.pageSize,
		EmptyHint:         "No students are enrolled in this class",
	}))
	st := t.Options.ParseState(c.Request.URL.Query())
	page, err := svc.Classes.Students(ctx, id, pageParams(st, nil))
	if err != nil {
		h.renderError(c, err, "/classes")
		return
	}
	h.render(c, http.StatusOK, "list.html", h.page(c, cl.Name, "classes", listBody{
		Heading:  fmt.Sprintf("Students of %s", cl.Name),
		Back:     "/classes",
		AddHref:  "/students/add",
		AddLabel: "Add student",
		Table:    t.Build(page.Results, page.Count, st, false),
	}))
}
