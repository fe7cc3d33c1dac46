package resource

import (
	"context"

	"golang.org/x/sync/errgroup"

	"schooladmin/internal/apiclient"
	"schooladmin/internal/cache"
)

// Endpoints and cache prefixes of every entity.
const (
	StudentsEndpoint   = "/student/"
	ClassesEndpoint    = "/student/class/"
	EmployeesEndpoint  = "/employee/"
	AttendanceEndpoint = "/student/attendance/"
	UsersEndpoint      = "/student/api/v1/users/"

	StudentsPrefix   = "students"
	ClassesPrefix    = "classes"
	EmployeesPrefix  = "employees"
	AttendancePrefix = "attendance"
	UsersPrefix      = "users"
)

// Services groups the collections of one signed-in user.
type Services struct {
	Students   *StudentService
	Classes    *ClassService
	Employees  *Collection[Employee]
	Attendance *AttendanceService
	Users      *UserService
}

// NewServices binds every collection to client. scope separates cache
// entries of different users; it is usually the user id.
func NewServices(client *apiclient.Client, query *cache.Query, scope string) *Services {
	students := &StudentService{newCollection(client, query, scope, StudentsEndpoint, StudentsPrefix,
		Names{One: "student", Many: "students"}, sanitizeStudent)}
	return &Services{
		Students: students,
		Classes: &ClassService{
			Collection: newCollection[ClassItem](client, query, scope, ClassesEndpoint, ClassesPrefix,
				Names{One: "class", Many: "classes"}, nil),
			students: students,
		},
		Employees: newCollection(client, query, scope, EmployeesEndpoint, EmployeesPrefix,
			Names{One: "employee", Many: "employees"}, sanitizeEmployee),
		Attendance: &AttendanceService{newCollection(client, query, scope, AttendanceEndpoint, AttendancePrefix,
			Names{One: "attendance record", Many: "attendance records"}, sanitizeAttendance)},
		Users: &UserService{newCollection[User](client, query, scope, UsersEndpoint, UsersPrefix,
			Names{One: "user", Many: "users"}, nil)},
	}
}

// Counts are the totals shown on the home screen.
type Counts struct {
	Students  int
	Employees int
	Classes   int
	Users     int
}

// Count returns the collection total using a one-item page.
func (c *Collection[T]) Count(ctx context.Context) (int, error) {
	page, err := c.List(ctx, ListParams{PageSize: 1})
	if err != nil {
		return 0, err
	}
	return page.Count, nil
}

// Counts loads every total concurrently and fails on the first error.
func (s *Services) Counts(ctx context.Context) (Counts, error) {
	var out Counts
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { out.Students, err = s.Students.Count(ctx); return })
	g.Go(func() (err error) { out.Employees, err = s.Employees.Count(ctx); return })
	g.Go(func() (err error) { out.Classes, err = s.Classes.Count(ctx); return })
	g.Go(func() (err error) { out.Users, err = s.Users.Count(ctx); return })
	if err := g.Wait(); err != nil {
		return Counts{}, err
	}
	return out, nil
}
