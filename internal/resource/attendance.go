package resource

import "context"

var AttendanceStatuses = []string{"present", "absent", "late", "excused"}

type Attendance struct {
	ID               ID     `json:"id"`
	AttendanceDate   string `json:"attendance_date"`
	AttendanceStatus string `json:"attendance_status"`
	Notes            string `json:"notes,omitempty"`
	StudentID        ID     `json:"student_id"`
	ClassID          ID     `json:"class_id"`
	RecordedBy       *int   `json:"recorded_by"`
	StudentInfo      struct {
		FirstName  string `json:"first_name"`
		FatherName string `json:"father_name"`
	} `json:"student_info"`
	ClassInfo struct {
		ID     ID     `json:"id"`
		Name   string `json:"name"`
		Level  string `json:"level"`
		Status string `json:"status"`
	} `json:"class_info"`
}

func sanitizeAttendance(a Attendance) Attendance {
	a.AttendanceDate = NormalizeDate(a.AttendanceDate)
	return a
}

// AttendanceInput records one attendance mark.
type AttendanceInput struct {
	AttendanceDate   string `json:"attendance_date" form:"attendance_date" binding:"required"`
	AttendanceStatus string `json:"attendance_status" form:"attendance_status" binding:"required,oneof=present absent late excused"`
	Notes            string `json:"notes" form:"notes"`
	StudentID        string `json:"student_id" form:"student_id" binding:"required"`
	ClassID          string `json:"class_id" form:"class_id" binding:"required"`
}

// AttendancePatch changes the status or notes of an existing mark.
type AttendancePatch struct {
	AttendanceStatus string  `json:"attendance_status,omitempty" form:"attendance_status" binding:"omitempty,oneof=present absent late excused"`
	Notes            *string `json:"notes,omitempty" form:"notes"`
}

type AttendanceService struct {
	*Collection[Attendance]
}

func (s *AttendanceService) ByStudent(ctx context.Context, studentID string, p ListParams) (Page[Attendance], error) {
	q := p.Values()
	q.Set("student_id", studentID)
	return s.list(ctx, q, "Failed to fetch attendance for student")
}

// ByStudentAndDate lists a student's attendance within [from, to]. Empty
// bounds are left out of the query.
func (s *AttendanceService) ByStudentAndDate(ctx context.Context, studentID, from, to string, p ListParams) (Page[Attendance], error) {
	q := p.Values()
	q.Set("student_id", studentID)
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	return s.list(ctx, q, "Failed to fetch attendance for student")
}
