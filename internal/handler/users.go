package handler

import (
	"context"
	"html/template"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"schooladmin/internal/flash"
	"schooladmin/internal/resource"
	"schooladmin/internal/table"
)

var userNames = resource.Names{One: "user", Many: "users"}

func (h *Handler) userList() *listScreen[resource.User] {
	t := table.New([]table.Column[resource.User]{
		{ID: "username", Header: "Username", Sortable: true,
			Value: func(u resource.User) string { return u.Username },
			Cell:  func(u resource.User) template.HTML { return linkCell("/users/"+u.ID.String()+"/edit", u.Username) }},
		{ID: "name", Header: "Name", Sortable: true, Hideable: true,
			Value: func(u resource.User) string { return strings.TrimSpace(u.FirstName + " " + u.LastName) }},
		{ID: "email", Header: "Email", Sortable: true,
			Value: func(u resource.User) string { return u.Email }},
		{ID: "roles", Header: "Roles",
			Value: func(u resource.User) string { return strings.Join(u.RoleNames(), ", ") },
			Cell:  func(u resource.User) template.HTML { return badgesCell(u.RoleNames()) }},
		{ID: "is_active", Header: "Active", Sortable: true, Hideable: true,
			Value: func(u resource.User) string { return yesNo(u.IsActive) }},
		{ID: "is_staff", Header: "Staff", Hideable: true,
			Value: func(u resource.User) string { return yesNo(u.IsStaff) }},
	}, func(u resource.User) string { return u.ID.String() }, table.ScreenKeys(userScreen, table.Options{
		SearchColumn:      "username",
		SearchPlaceholder: "Filter users…",
		Selectable:        true,
		DefaultPageSize:   h.pageSize,
	}))
	t.RowHref = func(u resource.User) string { return "/users/" + u.ID.String() + "/edit" }

	return &listScreen[resource.User]{
		h:     h,
		table: t,
		names: userNames,
		load: func(ctx context.Context, svc *resource.Services, _ table.State) ([]resource.User, int, error) {
			page, err := svc.Users.List(ctx, resource.ListParams{PageSize: clientFetchSize})
			return page.Results, page.Count, err
		},
		delete: func(svc *resource.Services) deleter { return svc.Users },
	}
}

// ---------- Users & roles ----------

func (h *Handler) ListUsers(c *gin.Context) {
	view, err := h.users.view(c.Request.Context(), h.services(c), c.Request.URL.Query())
	if err != nil {
		h.renderError(c, err, "/")
		return
	}
	h.render(c, http.StatusOK, "list.html", h.page(c, "Users", "users", listBody{
		Heading:  "Users & roles",
		AddHref:  "/users/add",
		AddLabel: "Add user",
		Live:     "/live/" + userScreen,
		Table:    view,
	}))
}

func (h *Handler) NewUser(c *gin.Context) {
	h.userForm(c, http.StatusOK, "", nil, resource.UserInput{IsActive: true}, "")
}

func (h *Handler) CreateUser(c *gin.Context) {
	var in resource.UserInput
	if err := c.ShouldBind(&in); err != nil {
		h.userForm(c, http.StatusBadRequest, "", nil, in, bindMessage(err))
		return
	}
	if in.Password == "" {
		h.userForm(c, http.StatusBadRequest, "", nil, in, "Password is required")
		return
	}
	if _, err := h.services(c).Users.Create(c.Request.Context(), in, nil); err != nil {
		h.writeFailed(c, err, func(msg string) { h.userForm(c, http.StatusBadGateway, "", nil, in, msg) })
		return
	}
	h.done(c, "User created successfully!", "/users")
}

func (h *Handler) EditUser(c *gin.Context) {
	id := c.Param("id")
	u, err := h.services(c).Users.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, "/users")
		return
	}
	h.userForm(c, http.StatusOK, id, &u, u.Input(), "")
}

// UpdateUser patches the account; an empty password leaves it unchanged.
func (h *Handler) UpdateUser(c *gin.Context) {
	id := c.Param("id")
	var in resource.UserInput
	if err := c.ShouldBind(&in); err != nil {
		h.userForm(c, http.StatusBadRequest, id, nil, in, bindMessage(err))
		return
	}
	if _, err := h.services(c).Users.Patch(c.Request.Context(), id, in, nil); err != nil {
		h.writeFailed(c, err, func(msg string) { h.userForm(c, http.StatusBadGateway, id, nil, in, msg) })
		return
	}
	h.done(c, "User updated successfully!", "/users")
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if err := h.services(c).Users.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "/users/"+id+"/edit")
		return
	}
	h.done(c, "User deleted successfully!", "/users")
}

func (h *Handler) AssignRole(c *gin.Context) {
	h.roleAction(c, true)
}

func (h *Handler) RemoveRole(c *gin.Context) {
	h.roleAction(c, false)
}

func (h *Handler) roleAction(c *gin.Context, assign bool) {
	id := c.Param("id")
	back := "/users/" + id + "/edit"
	role := strings.TrimSpace(c.PostForm("role"))
	if !slices.Contains(resource.Roles, role) {
		flash.Add(c, flash.Error, "Unknown role.")
		c.Redirect(http.StatusSeeOther, back)
		return
	}
	users := h.services(c).Users
	var err error
	msg := "Role " + role + " assigned successfully!"
	if assign {
		err = users.AssignRole(c.Request.Context(), id, role)
	} else {
		err = users.RemoveRole(c.Request.Context(), id, role)
		msg = "Role " + role + " removed successfully!"
	}
	if err != nil {
		h.fail(c, err, back)
		return
	}
	h.done(c, msg, back)
}

// userForm renders the add form, or the edit form with the role panel when
// the stored user is known.
func (h *Handler) userForm(c *gin.Context, status int, id string, u *resource.User, in resource.UserInput, errMsg string) {
	form := formBody{
		Heading: "Add user",
		Action:  "/users",
		Error:   errMsg,
		Submit:  "Create",
		Cancel:  "/users",
		Fields: []field{
			text("username", "Username", in.Username, true),
			typed("email", "email", "Email", in.Email, true),
			text("first_name", "First name", in.FirstName, false),
			text("last_name", "Last name", in.LastName, false),
			typed("password", "password", "Password", "", id == ""),
			{Name: "is_active", Label: "Active", Type: "checkbox", Checked: in.IsActive},
		},
	}
	title := "Add user"
	if id == "" {
		form.Fields = append(form.Fields, choice("role", "Role", in.Role, resource.Roles, false))
	} else {
		title = "Edit user"
		form.Heading, form.Action, form.Submit = title, "/users/"+id, "Save"
	}
	if u != nil {
		roles := &rolesBody{
			AssignAction: "/users/" + id + "/roles",
			RemoveAction: "/users/" + id + "/roles/remove",
			Assigned:     u.RoleNames(),
		}
		for _, r := range resource.Roles {
			if !u.HasRole(r) {
				roles.Available = append(roles.Available, r)
			}
		}
		form.Roles = roles
	}
	h.render(c, status, "edit.html", h.page(c, title, "users", form))
}
