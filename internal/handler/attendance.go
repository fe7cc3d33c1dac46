package handler

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"schooladmin/internal/flash"
	"schooladmin/internal/resource"
	"schooladmin/internal/table"
)

var attendanceNames = resource.Names{One: "attendance record", Many: "attendance records"}

// attendanceTable lists attendance marks. Editable tables get an inline
// status form and a delete action per row.
func attendanceTable(opts table.Options, editable bool) *table.Table[resource.Attendance] {
	cols := []table.Column[resource.Attendance]{
		{ID: "attendance_date", Header: "Date", Sortable: true,
			Value: func(a resource.Attendance) string { return a.AttendanceDate }},
		{ID: "student", Header: "Student",
			Value: studentLabel,
			Cell: func(a resource.Attendance) template.HTML {
				return linkCell("/students/"+a.StudentID.String()+"/attendance", studentLabel(a))
			}},
		{ID: "class", Header: "Class", Hideable: true,
			Value: func(a resource.Attendance) string { return a.ClassInfo.Name }},
		{ID: "attendance_status", Header: "Status", Sortable: true,
			Value: func(a resource.Attendance) string { return a.AttendanceStatus },
			Cell:  func(a resource.Attendance) template.HTML { return badgeCell(a.AttendanceStatus) }},
		{ID: "notes", Header: "Notes", Hideable: true,
			Value: func(a resource.Attendance) string { return a.Notes }},
	}
	if editable {
		cols = append(cols,
			table.Column[resource.Attendance]{ID: "update", Header: "Update", Cell: attendanceStatusForm},
			table.Column[resource.Attendance]{ID: "actions", Header: "", Cell: func(a resource.Attendance) template.HTML {
				return actionsCell(nil, "/attendance/"+a.ID.String()+"/delete")
			}},
		)
	}
	return table.New(cols, func(a resource.Attendance) string { return a.ID.String() }, opts)
}

func studentLabel(a resource.Attendance) string {
	name := strings.TrimSpace(a.StudentInfo.FirstName)
	if a.StudentInfo.FatherName != "" {
		name += " s/o " + a.StudentInfo.FatherName
	}
	if name == "" {
		return "#" + a.StudentID.String()
	}
	return name
}

func attendanceStatusForm(a resource.Attendance) template.HTML {
	var b strings.Builder
	fmt.Fprintf(&b, `<form method="post" action="/attendance/%s" class="inline">`+csrfSlot+`<select name="attendance_status">`, esc(a.ID.String()))
	for _, s := range resource.AttendanceStatuses {
		selected := ""
		if s == a.AttendanceStatus {
			selected = " selected"
		}
		fmt.Fprintf(&b, `<option value="%s"%s>%s</option>`, esc(s), selected, esc(s))
	}
	fmt.Fprintf(&b, `</select> <input name="notes" value="%s" placeholder="Notes"> <button type="submit" class="link">Save</button></form>`, esc(a.Notes))
	return template.HTML(b.String())
}

func (h *Handler) attendanceList() *listScreen[resource.Attendance] {
	opts := table.ScreenKeys(attendanceScreen, table.Options{
		SearchColumn:      "student",
		SearchPlaceholder: "Search by student…",
		ServerPagination:  true,
		ServerSearch:      true,
		Selectable:        true,
		DefaultPageSize:   h.pageSize,
		EmptyHint:         "No attendance has been recorded yet",
	})
	return &listScreen[resource.Attendance]{
		h:     h,
		table: attendanceTable(opts, true),
		names: attendanceNames,
		load: func(ctx context.Context, svc *resource.Services, st table.State) ([]resource.Attendance, int, error) {
			filters := pick(st.Extra, "student_id", "class_id", "attendance_status", "attendance_date")
			page, err := svc.Attendance.List(ctx, pageParams(st, filters))
			return page.Results, page.Count, err
		},
		delete: func(svc *resource.Services) deleter { return svc.Attendance },
	}
}

// ---------- Attendance ----------

func (h *Handler) ListAttendance(c *gin.Context) {
	ctx := c.Request.Context()
	svc := h.services(c)

	var (
		view     table.View
		students resource.Page[resource.Student]
		classes  resource.Page[resource.ClassItem]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		view, err = h.attendance.view(gctx, svc, c.Request.URL.Query())
		return err
	})
	g.Go(func() (err error) {
		students, err = svc.Students.List(gctx, resource.ListParams{PageSize: clientFetchSize, Ordering: "first_name"})
		return err
	})
	g.Go(func() (err error) {
		classes, err = svc.Classes.List(gctx, resource.ListParams{PageSize: clientFetchSize})
		return err
	})
	if err := g.Wait(); err != nil {
		h.renderError(c, err, "/")
		return
	}

	in := resource.AttendanceInput{
		AttendanceDate:   time.Now().Format("2006-01-02"),
		AttendanceStatus: "present",
	}
	h.render(c, http.StatusOK, "list.html", h.page(c, "Attendance", "attendance", listBody{
		Heading: "Attendance",
		Live:    "/live/" + attendanceScreen,
		Form:    attendanceForm(in, students.Results, classes.Results),
		Table:   view,
	}))
}

func attendanceForm(in resource.AttendanceInput, students []resource.Student, classes []resource.ClassItem) *formBody {
	studentOpts := make([]option, 0, len(students))
	for _, s := range students {
		studentOpts = append(studentOpts, option{Value: s.ID.String(), Label: s.FullName()})
	}
	return &formBody{
		Heading: "Record attendance",
		Action:  "/attendance",
		Submit:  "Record",
		Fields: []field{
			choiceOf("student_id", "Student", in.StudentID, studentOpts, true),
			choiceOf("class_id", "Class", in.ClassID, classOptions(classes), true),
			typed("date", "attendance_date", "Date", in.AttendanceDate, true),
			choice("attendance_status", "Status", in.AttendanceStatus, resource.AttendanceStatuses, true),
			text("notes", "Notes", in.Notes, false),
		},
	}
}

func (h *Handler) CreateAttendance(c *gin.Context) {
	var in resource.AttendanceInput
	if err := c.ShouldBind(&in); err != nil {
		flash.Add(c, flash.Error, bindMessage(err))
		c.Redirect(http.StatusSeeOther, "/attendance")
		return
	}
	in.AttendanceDate = resource.NormalizeDate(in.AttendanceDate)
	if _, err := h.services(c).Attendance.Create(c.Request.Context(), in, nil); err != nil {
		h.fail(c, err, "/attendance")
		return
	}
	h.done(c, "Attendance recorded successfully!", "/attendance")
}

func (h *Handler) PatchAttendance(c *gin.Context) {
	id := c.Param("id")
	var in resource.AttendancePatch
	if err := c.ShouldBind(&in); err != nil {
		flash.Add(c, flash.Error, bindMessage(err))
		c.Redirect(http.StatusSeeOther, "/attendance")
		return
	}
	if _, err := h.services(c).Attendance.Patch(c.Request.Context(), id, in, nil); err != nil {
		h.fail(c, err, "/attendance")
		return
	}
	h.done(c, "Attendance updated successfully!", "/attendance")
}

func (h *Handler) DeleteAttendance(c *gin.Context) {
	if err := h.services(c).Attendance.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err, "/attendance")
		return
	}
	h.done(c, "Attendance record deleted successfully!", "/attendance")
}
