package resource

import (
	"context"
	"strings"
)

// Student statuses accepted by the API.
var StudentStatuses = []string{"active", "inactive", "pending", "blocked", "deleted"}

var Genders = []string{"male", "female"}

type Student struct {
	ID              ID      `json:"id"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	FatherName      string  `json:"father_name"`
	GrandFatherName string  `json:"grand_father_name"`
	Image           string  `json:"image,omitempty"`
	Dob             string  `json:"dob"`
	Age             Numeric `json:"age,omitempty"`
	Gender          string  `json:"gender"`
	Address         string  `json:"address"`
	PrimaryMobile   string  `json:"primary_mobile"`
	SecondaryMobile string  `json:"secondary_mobile,omitempty"`
	Email           string  `json:"email"`
	Status          string  `json:"status"`
	Country         string  `json:"country"`
	CurrentProvince string  `json:"current_province"`
	MainProvince    string  `json:"main_province"`
	ClassID         ID      `json:"class_id"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

func sanitizeStudent(s Student) Student {
	s.Dob = NormalizeDate(s.Dob)
	return s
}

// StudentInput is the writable part of a student, bound from the add and
// edit forms. The photo travels separately as an upload.
type StudentInput struct {
	FirstName       string `json:"first_name" form:"first_name" binding:"required"`
	LastName        string `json:"last_name" form:"last_name" binding:"required"`
	FatherName      string `json:"father_name" form:"father_name" binding:"required"`
	GrandFatherName string `json:"grand_father_name" form:"grand_father_name"`
	Dob             string `json:"dob" form:"dob" binding:"required"`
	Gender          string `json:"gender" form:"gender" binding:"required,oneof=male female"`
	Address         string `json:"address" form:"address"`
	PrimaryMobile   string `json:"primary_mobile" form:"primary_mobile" binding:"required"`
	SecondaryMobile string `json:"secondary_mobile,omitempty" form:"secondary_mobile"`
	Email           string `json:"email" form:"email" binding:"omitempty,email"`
	Status          string `json:"status" form:"status" binding:"required,oneof=active inactive pending blocked deleted"`
	Country         string `json:"country" form:"country"`
	CurrentProvince string `json:"current_province" form:"current_province"`
	MainProvince    string `json:"main_province" form:"main_province"`
	ClassID         string `json:"class_id" form:"class_id" binding:"required"`
}

// Input prefills an edit form from a stored student.
func (s Student) Input() StudentInput {
	return StudentInput{
		FirstName:       s.FirstName,
		LastName:        s.LastName,
		FatherName:      s.FatherName,
		GrandFatherName: s.GrandFatherName,
		Dob:             s.Dob,
		Gender:          s.Gender,
		Address:         s.Address,
		PrimaryMobile:   s.PrimaryMobile,
		SecondaryMobile: s.SecondaryMobile,
		Email:           s.Email,
		Status:          s.Status,
		Country:         s.Country,
		CurrentProvince: s.CurrentProvince,
		MainProvince:    s.MainProvince,
		ClassID:         string(s.ClassID),
	}
}

type StudentService struct {
	*Collection[Student]
}

// ByClass lists the students enrolled in one class.
func (s *StudentService) ByClass(ctx context.Context, classID string, p ListParams) (Page[Student], error) {
	q := p.Values()
	q.Set("class_id", classID)
	return s.list(ctx, q, "Failed to fetch students for class")
}
