package resource

import "strings"

var EmployeeStatuses = []string{"active", "inactive"}

type Employee struct {
	ID              ID     `json:"id,omitempty"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	FatherName      string `json:"father_name"`
	GrandFatherName string `json:"grand_father_name"`
	Image           string `json:"image,omitempty"`
	Dob             string `json:"dob"`
	Gender          string `json:"gender"`
	Address         string `json:"address"`
	PrimaryMobile   string `json:"primary_mobile"`
	SecondaryMobile string `json:"secondary_mobile,omitempty"`
	Email           string `json:"email"`
	Status          string `json:"status"`
	Country         string `json:"country"`
	CurrentProvince string `json:"current_province"`
	MainProvince    string `json:"main_province"`
}

func (e Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

func sanitizeEmployee(e Employee) Employee {
	e.Dob = NormalizeDate(e.Dob)
	return e
}

type EmployeeInput struct {
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
	Status          string `json:"status" form:"status" binding:"required,oneof=active inactive"`
	Country         string `json:"country" form:"country"`
	CurrentProvince string `json:"current_province" form:"current_province"`
	MainProvince    string `json:"main_province" form:"main_province"`
}

func (e Employee) Input() EmployeeInput {
	return EmployeeInput{
		FirstName:       e.FirstName,
		LastName:        e.LastName,
		FatherName:      e.FatherName,
		GrandFatherName: e.GrandFatherName,
		Dob:             e.Dob,
		Gender:          e.Gender,
		Address:         e.Address,
		PrimaryMobile:   e.PrimaryMobile,
		SecondaryMobile: e.SecondaryMobile,
		Email:           e.Email,
		Status:          e.Status,
		Country:         e.Country,
		CurrentProvince: e.CurrentProvince,
		MainProvince:    e.MainProvince,
	}
}
