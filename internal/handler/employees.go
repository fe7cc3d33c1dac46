package handler

import (
	"context"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"schooladmin/internal/resource"
	"schooladmin/internal/table"
)

var employeeNames = resource.Names{One: "employee", Many: "employees"}

func (h *Handler) employeeList() *listScreen[resource.Employee] {
	t := table.New([]table.Column[resource.Employee]{
		{ID: "image", Header: "Photo", Hideable: true,
			Cell: func(e resource.Employee) template.HTML { return imageCell(e.Image, e.FullName()) }},
		{ID: "name", Header: "Name", Sortable: true,
			Value: resource.Employee.FullName,
			Cell:  func(e resource.Employee) template.HTML { return linkCell("/employees/"+e.ID.String(), e.FullName()) }},
		{ID: "father_name", Header: "Father name", Sortable: true, Hideable: true,
			Value: func(e resource.Employee) string { return e.FatherName }},
		{ID: "gender", Header: "Gender", Hideable: true,
			Value: func(e resource.Employee) string { return e.Gender }},
		{ID: "primary_mobile", Header: "Mobile", Hideable: true,
			Value: func(e resource.Employee) string { return e.PrimaryMobile }},
		{ID: "email", Header: "Email", Sortable: true, Hideable: true,
			Value: func(e resource.Employee) string { return e.Email }},
		{ID: "status", Header: "Status", Sortable: true,
			Value: func(e resource.Employee) string { return e.Status },
			Cell:  func(e resource.Employee) template.HTML { return badgeCell(e.Status) }},
	}, func(e resource.Employee) string { return e.ID.String() }, table.ScreenKeys(employeeScreen, table.Options{
		SearchColumn:      "name",
		SearchPlaceholder: "Filter employees…",
		Selectable:        true,
		DefaultPageSize:   h.pageSize,
	}))
	t.RowHref = func(e resource.Employee) string { return "/employees/" + e.ID.String() }

	return &listScreen[resource.Employee]{
		h:     h,
		table: t,
		names: employeeNames,
		load: func(ctx context.Context, svc *resource.Services, _ table.State) ([]resource.Employee, int, error) {
			page, err := svc.Employees.List(ctx, resource.ListParams{PageSize: clientFetchSize})
			return page.Results, page.Count, err
		},
		delete: func(svc *resource.Services) deleter { return svc.Employees },
	}
}

// ---------- Employees ----------

func (h *Handler) ListEmployees(c *gin.Context) {
	view, err := h.employees.view(c.Request.Context(), h.services(c), c.Request.URL.Query())
	if err != nil {
		h.renderError(c, err, "/")
		return
	}
	h.render(c, http.StatusOK, "list.html", h.page(c, "Employees", "employees", listBody{
		Heading:  "Employees",
		AddHref:  "/employees/add",
		AddLabel: "Add employee",
		Live:     "/live/" + employeeScreen,
		Table:    view,
	}))
}

func (h *Handler) ShowEmployee(c *gin.Context) {
	id := c.Param("id")
	e, err := h.services(c).Employees.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, "/employees")
		return
	}
	h.render(c, http.StatusOK, "detail.html", h.page(c, e.FullName(), "employees", detailBody{
		Heading: e.FullName(),
		Image:   e.Image,
		Items: []detailItem{
			{"First name", e.FirstName},
			{"Last name", e.LastName},
			{"Father name", e.FatherName},
			{"Grandfather name", e.GrandFatherName},
			{"Date of birth", e.Dob},
			{"Gender", e.Gender},
			{"Status", e.Status},
			{"Primary mobile", e.PrimaryMobile},
			{"Secondary mobile", e.SecondaryMobile},
			{"Email", e.Email},
			{"Address", e.Address},
			{"Country", e.Country},
			{"Current province", e.CurrentProvince},
			{"Main province", e.MainProvince},
		},
		EditHref:     "/employees/" + id + "/edit",
		DeleteAction: "/employees/" + id + "/delete",
		Back:         "/employees",
	}))
}

func (h *Handler) NewEmployee(c *gin.Context) {
	h.employeeForm(c, http.StatusOK, "", resource.EmployeeInput{Status: "active"}, "")
}

func (h *Handler) CreateEmployee(c *gin.Context) {
	var in resource.EmployeeInput
	if err := c.ShouldBind(&in); err != nil {
		h.employeeForm(c, http.StatusBadRequest, "", in, bindMessage(err))
		return
	}
	files, err := formUploads(c, "image")
	if err != nil {
		h.employeeForm(c, http.StatusBadRequest, "", in, err.Error())
		return
	}
	if _, err := h.services(c).Employees.Create(c.Request.Context(), in, files); err != nil {
		h.writeFailed(c, err, func(msg string) { h.employeeForm(c, http.StatusBadGateway, "", in, msg) })
		return
	}
	h.done(c, "Employee created successfully!", "/employees")
}

func (h *Handler) EditEmployee(c *gin.Context) {
	id := c.Param("id")
	e, err := h.services(c).Employees.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, "/employees")
		return
	}
	h.employeeForm(c, http.StatusOK, id, e.Input(), "")
}

func (h *Handler) UpdateEmployee(c *gin.Context) {
	id := c.Param("id")
	var in resource.EmployeeInput
	if err := c.ShouldBind(&in); err != nil {
		h.employeeForm(c, http.StatusBadRequest, id, in, bindMessage(err))
		return
	}
	files, err := formUploads(c, "image")
	if err != nil {
		h.employeeForm(c, http.StatusBadRequest, id, in, err.Error())
		return
	}
	if _, err := h.services(c).Employees.Update(c.Request.Context(), id, in, files); err != nil {
		h.writeFailed(c, err, func(msg string) { h.employeeForm(c, http.StatusBadGateway, id, in, msg) })
		return
	}
	h.done(c, "Employee updated successfully!", "/employees/"+id)
}

func (h *Handler) DeleteEmployee(c *gin.Context) {
	id := c.Param("id")
	if err := h.services(c).Employees.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "/employees/"+id)
		return
	}
	h.done(c, "Employee deleted successfully!", "/employees")
}

func (h *Handler) employeeForm(c *gin.Context, status int, id string, in resource.EmployeeInput, errMsg string) {
	form := formBody{
		Heading:   "Add employee",
		Action:    "/employees",
		Multipart: true,
		Error:     errMsg,
		Submit:    "Create",
		Cancel:    "/employees",
		Fields: []field{
			text("first_name", "First name", in.FirstName, true),
			text("last_name", "Last name", in.LastName, true),
			text("father_name", "Father name", in.FatherName, true),
			text("grand_father_name", "Grandfather name", in.GrandFatherName, false),
			typed("date", "dob", "Date of birth", in.Dob, true),
			choice("gender", "Gender", in.Gender, resource.Genders, true),
			choice("status", "Status", in.Status, resource.EmployeeStatuses, true),
			typed("tel", "primary_mobile", "Primary mobile", in.PrimaryMobile, true),
			typed("tel", "secondary_mobile", "Secondary mobile", in.SecondaryMobile, false),
			typed("email", "email", "Email", in.Email, false),
			text("country", "Country", in.Country, false),
			text("current_province", "Current province", in.CurrentProvince, false),
			text("main_province", "Main province", in.MainProvince, false),
			typed("textarea", "address", "Address", in.Address, false),
			{Name: "image", Label: "Photo", Type: "file"},
		},
	}
	title := "Add employee"
	if id != "" {
		title = "Edit employee"
		form.Heading, form.Action, form.Submit, form.Cancel = title, "/employees/"+id, "Save", "/employees/"+id
	}
	h.render(c, status, "edit.html", h.page(c, title, "employees", form))
}
