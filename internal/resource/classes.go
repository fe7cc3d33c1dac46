package resource

import "context"

var ClassStatuses = []string{"active", "inactive"}

type ClassItem struct {
	ID        ID     `json:"id,omitempty"`
	Name      string `json:"name"`
	Level     string `json:"level"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type ClassInput struct {
	Name   string `json:"name" form:"name" binding:"required"`
	Level  string `json:"level" form:"level" binding:"required"`
	Status string `json:"status" form:"status" binding:"required,oneof=active inactive"`
}

func (c ClassItem) Input() ClassInput {
	return ClassInput{Name: c.Name, Level: c.Level, Status: c.Status}
}

type ClassService struct {
	*Collection[ClassItem]
	students *StudentService
}

// Students lists the students of a class.
func (s *ClassService) Students(ctx context.Context, classID string, p ListParams) (Page[Student], error) {
	return s.students.ByClass(ctx, classID, p)
}
