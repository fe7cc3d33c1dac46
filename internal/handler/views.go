package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"

	"schooladmin/internal/auth"
	"schooladmin/internal/flash"
	"schooladmin/internal/httpmiddleware"
	"schooladmin/internal/table"
)

var pageFiles = []string{"signin.html", "home.html", "list.html", "edit.html", "detail.html", "error.html"}

var funcs = template.FuncMap{
	"inc":       func(i int) int { return i + 1 },
	"dec":       func(i int) int { return i - 1 },
	"csrfToken": func() string { return "" },
}

// csrfSlot marks where a form built in Go code takes its token field. Cell
// content is escaped, so the marker only comes from our own helpers.
const csrfSlot = "<!--csrf-->"

// Views holds one parsed template set per page plus the shared partials
// used by live table renders.
type Views struct {
	pages    map[string]*template.Template
	partials *template.Template
}

// ParseViews parses the layout, the partials and every page from fsys.
func ParseViews(fsys fs.FS) (*Views, error) {
	partials, err := template.New("partials").Funcs(funcs).ParseFS(fsys, "partials.html")
	if err != nil {
		return nil, fmt.Errorf("parse partials: %w", err)
	}
	v := &Views{pages: make(map[string]*template.Template, len(pageFiles)), partials: partials}
	for _, name := range pageFiles {
		t, err := template.New(name).Funcs(funcs).ParseFS(fsys, "layout.html", "partials.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// Page renders name inside the layout. token fills every form's CSRF field.
func (v *Views) Page(w io.Writer, name string, data page, token string) error {
	t, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := execute(&buf, t, "layout", data, token); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Table renders the table partial alone, for live updates.
func (v *Views) Table(view table.View, token string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := execute(&buf, v.partials, "table", view, token); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// execute runs name on a clone bound to this request's token, then fills the
// token slots of forms built by cell helpers.
func execute(buf *bytes.Buffer, t *template.Template, name string, data any, token string) error {
	bound, err := t.Clone()
	if err != nil {
		return err
	}
	bound.Funcs(template.FuncMap{"csrfToken": func() string { return token }})
	if err := bound.ExecuteTemplate(buf, name, data); err != nil {
		return err
	}
	field := fmt.Sprintf(`<input type="hidden" name="%s" value="%s">`, httpmiddleware.CSRFField, template.HTMLEscapeString(token))
	out := bytes.ReplaceAll(buf.Bytes(), []byte(csrfSlot), []byte(field))
	buf.Reset()
	buf.Write(out)
	return nil
}

// page is the data every template receives.
type page struct {
	Title    string
	Nav      string
	User     auth.Profile
	SignedIn bool
	Flashes  []flash.Message
	Body     any
}

type signinBody struct {
	Username string
	Next     string
	Error    string
}

type listBody struct {
	Heading  string
	AddHref  string
	AddLabel string
	Back     string
	Live     string
	Filter   *dateFilter
	Form     *formBody
	Table    table.View
}

type dateFilter struct {
	From string
	To   string
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

type field struct {
	Name     string
	Label    string
	Type     string
	Value    string
	Options  []option
	Required bool
	Checked  bool
}

type formBody struct {
	Heading   string
	Action    string
	Multipart bool
	Error     string
	Fields    []field
	Submit    string
	Cancel    string
	Roles     *rolesBody
}

type rolesBody struct {
	AssignAction string
	RemoveAction string
	Assigned     []string
	Available    []string
}

type detailItem struct {
	Label string
	Value string
}

type link struct {
	Label string
	Href  string
}

type detailBody struct {
	Heading      string
	Image        string
	Items        []detailItem
	Links        []link
	EditHref     string
	DeleteAction string
	Back         string
}

type errorBody struct {
	Status  int
	Message string
	Back    string
}

func text(name, label, value string, required bool) field {
	return field{Name: name, Label: label, Type: "text", Value: value, Required: required}
}

func typed(kind, name, label, value string, required bool) field {
	return field{Name: name, Label: label, Type: kind, Value: value, Required: required}
}

func choice(name, label, value string, values []string, required bool) field {
	f := field{Name: name, Label: label, Type: "select", Value: value, Required: required}
	for _, v := range values {
		f.Options = append(f.Options, option{Value: v, Label: v, Selected: v == value})
	}
	return f
}

func choiceOf(name, label, value string, opts []option, required bool) field {
	for i := range opts {
		opts[i].Selected = opts[i].Value == value
	}
	return field{Name: name, Label: label, Type: "select", Value: value, Options: opts, Required: required}
}
