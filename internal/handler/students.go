package handler

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"schooladmin/internal/apiclient"
	"schooladmin/internal/resource"
	"schooladmin/internal/table"
)

// maxUpload caps one uploaded photo.
const maxUpload = 5 << 20

var studentNames = resource.Names{One: "student", Many: "students"}

func studentTable(opts table.Options) *table.Table[resource.Student] {
	t := table.New([]table.Column[resource.Student]{
		{ID: "image", Header: "Photo", Hideable: true,
			Cell: func(s resource.Student) template.HTML { return imageCell(s.Image, s.FullName()) }},
		{ID: "first_name", Header: "Name", Sortable: true,
			Value: resource.Student.FullName,
			Cell:  func(s resource.Student) template.HTML { return linkCell("/students/"+s.ID.String(), s.FullName()) }},
		{ID: "father_name", Header: "Father name", Sortable: true, Hideable: true,
			Value: func(s resource.Student) string { return s.FatherName }},
		{ID: "gender", Header: "Gender", Hideable: true,
			Value: func(s resource.Student) string { return s.Gender }},
		{ID: "dob", Header: "Date of birth", Sortable: true, Hideable: true,
			Value: func(s resource.Student) string { return s.Dob }},
		{ID: "primary_mobile", Header: "Mobile", Hideable: true,
			Value: func(s resource.Student) string { return s.PrimaryMobile }},
		{ID: "email", Header: "Email", Hideable: true,
			Value: func(s resource.Student) string { return s.Email }},
		{ID: "status", Header: "Status", Sortable: true,
			Value: func(s resource.Student) string { return s.Status },
			Cell:  func(s resource.Student) template.HTML { return badgeCell(s.Status) }},
	}, func(s resource.Student) string { return s.ID.String() }, opts)
	t.RowHref = func(s resource.Student) string { return "/students/" + s.ID.String() }
	return t
}

func (h *Handler) studentList() *listScreen[resource.Student] {
	opts := table.ScreenKeys(studentScreen, table.Options{
		SearchColumn:      "first_name",
		SearchPlaceholder: "Search students…",
		ServerPagination:  true,
		ServerSearch:      true,
		Selectable:        true,
		DefaultPageSize:   h.pageSize,
	})
	return &listScreen[resource.Student]{
		h:     h,
		table: studentTable(opts),
		names: studentNames,
		load: func(ctx context.Context, svc *resource.Services, st table.State) ([]resource.Student, int, error) {
			page, err := svc.Students.List(ctx, pageParams(st, pick(st.Extra, "class_id", "status", "gender")))
			return page.Results, page.Count, err
		},
		delete: func(svc *resource.Services) deleter { return svc.Students },
	}
}

// ---------- Students ----------

func (h *Handler) ListStudents(c *gin.Context) {
	view, err := h.students.view(c.Request.Context(), h.services(c), c.Request.URL.Query())
	if err != nil {
		h.renderError(c, err, "/")
		return
	}
	h.render(c, http.StatusOK, "list.html", h.page(c, "Students", "students", listBody{
		Heading:  "Students",
		AddHref:  "/students/add",
		AddLabel: "Add student",
		Live:     "/live/" + studentScreen,
		Table:    view,
	}))
}

func (h *Handler) ShowStudent(c *gin.Context) {
	id := c.Param("id")
	s, err := h.services(c).Students.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, "/students")
		return
	}
	h.render(c, http.StatusOK, "detail.html", h.page(c, s.FullName(), "students", detailBody{
		Heading: s.FullName(),
		Image:   s.Image,
		Items: []detailItem{
			{"First name", s.FirstName},
			{"Last name", s.LastName},
			{"Father name", s.FatherName},
			{"Grandfather name", s.GrandFatherName},
			{"Date of birth", s.Dob},
			{"Age", string(s.Age)},
			{"Gender", s.Gender},
			{"Status", s.Status},
			{"Class", s.ClassID.String()},
			{"Primary mobile", s.PrimaryMobile},
			{"Secondary mobile", s.SecondaryMobile},
			{"Email", s.Email},
			{"Address", s.Address},
			{"Country", s.Country},
			{"Current province", s.CurrentProvince},
			{"Main province", s.MainProvince},
		},
		Links:        []link{{Label: "Attendance", Href: "/students/" + id + "/attendance"}},
		EditHref:     "/students/" + id + "/edit",
		DeleteAction: "/students/" + id + "/delete",
		Back:         "/students",
	}))
}

func (h *Handler) NewStudent(c *gin.Context) {
	h.studentForm(c, http.StatusOK, "", resource.StudentInput{Status: "active"}, "")
}

func (h *Handler) CreateStudent(c *gin.Context) {
	var in resource.StudentInput
	if err := c.ShouldBind(&in); err != nil {
		h.studentForm(c, http.StatusBadRequest, "", in, bindMessage(err))
		return
	}
	files, err := formUploads(c, "image")
	if err != nil {
		h.studentForm(c, http.StatusBadRequest, "", in, err.Error())
		return
	}
	if _, err := h.services(c).Students.Create(c.Request.Context(), in, files); err != nil {
		h.writeFailed(c, err, func(msg string) { h.studentForm(c, http.StatusBadGateway, "", in, msg) })
		return
	}
	h.done(c, "Student created successfully!", "/students")
}

func (h *Handler) EditStudent(c *gin.Context) {
	id := c.Param("id")
	s, err := h.services(c).Students.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, "/students")
		return
	}
	h.studentForm(c, http.StatusOK, id, s.Input(), "")
}

func (h *Handler) UpdateStudent(c *gin.Context) {
	id := c.Param("id")
	var in resource.StudentInput
	if err := c.ShouldBind(&in); err != nil {
		h.studentForm(c, http.StatusBadRequest, id, in, bindMessage(err))
		return
	}
	files, err := formUploads(c, "image")
	if err != nil {
		h.studentForm(c, http.StatusBadRequest, id, in, err.Error())
		return
	}
	if _, err := h.services(c).Students.Patch(c.Request.Context(), id, in, files); err != nil {
		h.writeFailed(c, err, func(msg string) { h.studentForm(c, http.StatusBadGateway, id, in, msg) })
		return
	}
	h.done(c, "Student updated successfully!", "/students/"+id)
}

func (h *Handler) DeleteStudent(c *gin.Context) {
	id := c.Param("id")
	if err := h.services(c).Students.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "/students/"+id)
		return
	}
	h.done(c, "Student deleted successfully!", "/students")
}

// studentForm renders the add form, or the edit form when id is set.
func (h *Handler) studentForm(c *gin.Context, status int, id string, in resource.StudentInput, errMsg string) {
	classes, err := h.services(c).Classes.List(c.Request.Context(), resource.ListParams{PageSize: clientFetchSize})
	if err != nil {
		h.renderError(c, err, "/students")
		return
	}
	form := formBody{
		Heading:   "Add student",
		Action:    "/students",
		Multipart: true,
		Error:     errMsg,
		Submit:    "Create",
		Cancel:    "/students",
		Fields: []field{
			text("first_name", "First name", in.FirstName, true),
			text("last_name", "Last name", in.LastName, true),
			text("father_name", "Father name", in.FatherName, true),
			text("grand_father_name", "Grandfather name", in.GrandFatherName, false),
			typed("date", "dob", "Date of birth", in.Dob, true),
			choice("gender", "Gender", in.Gender, resource.Genders, true),
			choiceOf("class_id", "Class", in.ClassID, classOptions(classes.Results), true),
			choice("status", "Status", in.Status, resource.StudentStatuses, true),
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
	title := "Add student"
	if id != "" {
		title = "Edit student"
		form.Heading, form.Action, form.Submit, form.Cancel = title, "/students/"+id, "Save", "/students/"+id
	}
	h.render(c, status, "edit.html", h.page(c, title, "students", form))
}

// StudentAttendance lists one student's attendance, optionally between two dates.
func (h *Handler) StudentAttendance(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	svc := h.services(c)
	s, err := svc.Students.Get(ctx, id)
	if err != nil {
		h.renderError(c, err, "/students")
		return
	}

	q := c.Request.URL.Query()
	from := resource.NormalizeDate(q.Get("from"))
	to := resource.NormalizeDate(q.Get("to"))
	t := attendanceTable(table.ScreenKeys("history", table.Options{
		ServerPagination: true,
		DefaultPageSize:  h.pageSize,
		EmptyHint:        "No attendance recorded for this period",
	}), false)
	st := t.Options.ParseState(q)
	page, err := svc.Attendance.ByStudentAndDate(ctx, id, from, to, pageParams(st, nil))
	if err != nil {
		h.renderError(c, err, "/students/"+id)
		return
	}
	h.render(c, http.StatusOK, "list.html", h.page(c, "Attendance", "students", listBody{
		Heading: fmt.Sprintf("Attendance of %s", s.FullName()),
		Back:    "/students/" + id,
		Filter:  &dateFilter{From: from, To: to},
		Table:   t.Build(page.Results, page.Count, st, false),
	}))
}

func classOptions(classes []resource.ClassItem) []option {
	opts := make([]option, 0, len(classes))
	for _, cl := range classes {
		label := cl.Name
		if cl.Level != "" {
			label += " (" + cl.Level + ")"
		}
		opts = append(opts, option{Value: cl.ID.String(), Label: label})
	}
	return opts
}

// formUploads reads the named file fields. Missing files are skipped.
func formUploads(c *gin.Context, names ...string) (resource.Uploads, error) {
	files := resource.Uploads{}
	for _, name := range names {
		fh, err := c.FormFile(name)
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if fh.Size > maxUpload {
			return nil, fmt.Errorf("%s must be smaller than %d MB", name, maxUpload>>20)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		files[name] = apiclient.File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Content: content}
	}
	return files, nil
}

// writeFailed re-renders the form with the API message, or signs out.
func (h *Handler) writeFailed(c *gin.Context, err error, rerender func(msg string)) {
	if errors.Is(err, resource.ErrUnauthorized) {
		h.signOutRedirect(c)
		return
	}
	rerender(err.Error())
}
