package resource

import (
	"context"
	"net/http"
	"strings"

	"schooladmin/internal/apiclient"
)

// Roles offered by the role assignment form.
var Roles = []string{"admin", "teacher", "student", "parent", "staff"}

type User struct {
	ID        ID       `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	IsActive  bool     `json:"is_active"`
	IsStaff   bool     `json:"is_staff"`
	Roles     []string `json:"roles,omitempty"`
	Role      string   `json:"role,omitempty"`
}

// RoleNames returns the assigned roles, falling back to the single role field.
func (u User) RoleNames() []string {
	if len(u.Roles) > 0 {
		return u.Roles
	}
	if u.Role != "" {
		return []string{u.Role}
	}
	return nil
}

func (u User) HasRole(role string) bool {
	for _, r := range u.RoleNames() {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type UserInput struct {
	Username  string `json:"username" form:"username" binding:"required"`
	Email     string `json:"email" form:"email" binding:"required,email"`
	FirstName string `json:"first_name,omitempty" form:"first_name"`
	LastName  string `json:"last_name,omitempty" form:"last_name"`
	Password  string `json:"password,omitempty" form:"password"`
	Role      string `json:"role,omitempty" form:"role"`
	IsActive  bool   `json:"is_active" form:"is_active"`
}

func (u User) Input() UserInput {
	return UserInput{
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		IsActive:  u.IsActive,
	}
}

type UserService struct {
	*Collection[User]
}

func (s *UserService) AssignRole(ctx context.Context, id, role string) error {
	return s.roleAction(ctx, id, "assign-role/", role, "Failed to assign role")
}

func (s *UserService) RemoveRole(ctx context.Context, id, role string) error {
	return s.roleAction(ctx, id, "remove-role/", role, "Failed to remove role")
}

func (s *UserService) roleAction(ctx context.Context, id, action, role, fallback string) error {
	res := s.client.Do(ctx, apiclient.Request{
		Method:     http.MethodPost,
		Path:       s.item(id) + action,
		Body:       map[string]string{"role": role},
		Revalidate: s.prefix,
	})
	if !res.Success {
		return toError(res.Status, res.Unauthorized, res.Error, fallback)
	}
	return nil
}
