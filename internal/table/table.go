// Package table renders entity lists with sorting, search, selection,
// column visibility and pagination, either over a full data set held in
// memory or over one page already fetched by the caller.
package table

import (
	"html/template"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SearchDelay is how long search input must pause before it applies.
const SearchDelay = 500 * time.Millisecond

// PageSizes are the page sizes offered by the size selector.
var PageSizes = []int{5, 7, 10, 20, 50, 100}

// Column describes one table column.
type Column[T any] struct {
	ID     string
	Header string
	// Value is the accessor used for sorting, searching and the default cell.
	Value func(T) string
	// Cell renders a custom cell. When nil the escaped Value is shown.
	Cell     func(T) template.HTML
	Sortable bool
	Hideable bool
}

// Options configure one table. Zero values get defaults.
type Options struct {
	// Name identifies the table in element ids and the live socket path.
	Name              string
	SearchColumn      string
	SearchPlaceholder string
	ServerPagination  bool
	ServerSearch      bool
	PageKey           string
	PageSizeKey       string
	SearchKey         string
	SortKey           string
	DefaultPageSize   int
	PageSizes         []int
	EmptyTitle        string
	EmptyHint         string
	Selectable        bool
	// LoadingRows is the number of skeleton rows shown while loading.
	LoadingRows int
}

func (o Options) withDefaults() Options {
	if o.PageKey == "" {
		o.PageKey = "page"
	}
	if o.PageSizeKey == "" {
		o.PageSizeKey = "page_size"
	}
	if o.SearchKey == "" {
		o.SearchKey = "q"
	}
	if o.SortKey == "" {
		o.SortKey = "sort"
	}
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = 10
	}
	if len(o.PageSizes) == 0 {
		o.PageSizes = PageSizes
	}
	if o.EmptyTitle == "" {
		o.EmptyTitle = "No results found"
	}
	if o.EmptyHint == "" {
		o.EmptyHint = "Try adjusting your search or filter criteria"
	}
	if o.LoadingRows <= 0 {
		o.LoadingRows = 5
	}
	return o
}

// AllowsPageSize reports whether n is one of the offered page sizes or the
// default. Anything else from a URL or a socket message is ignored.
func (o Options) AllowsPageSize(n int) bool {
	o = o.withDefaults()
	return n == o.DefaultPageSize || slices.Contains(o.PageSizes, n)
}

// Server reports whether the caller pages and searches the data.
func (o Options) Server() bool {
	return o.ServerPagination || o.ServerSearch
}

// ScreenKeys returns options keyed by screen name, e.g. students_page.
func ScreenKeys(name string, o Options) Options {
	o.Name = name
	o.PageKey = name + "_page"
	o.PageSizeKey = name + "_page_size"
	o.SearchKey = name + "_q"
	o.SortKey = name + "_sort"
	return o
}

// Table binds columns to a record type.
type Table[T any] struct {
	Columns []Column[T]
	Options Options
	RowID   func(T) string
	// RowHref makes rows clickable when set.
	RowHref func(T) string
}

// New builds a table with defaulted options.
func New[T any](cols []Column[T], rowID func(T) string, opts Options) *Table[T] {
	return &Table[T]{Columns: cols, Options: opts.withDefaults(), RowID: rowID}
}

type HeaderCell struct {
	ID       string
	Label    string
	Sortable bool
	Sort     string
	SortHref string
}

type Row struct {
	ID       string
	Href     string
	Selected bool
	Cells    []template.HTML
}

type ColumnToggle struct {
	ID      string
	Label   string
	Visible bool
}

type PageSizeOption struct {
	Size     int
	Selected bool
}

// View is everything a template needs to draw the table.
type View struct {
	Name              string
	Headers           []HeaderCell
	Rows              []Row
	// Columns lists the hideable columns for the visibility menu.
	Columns           []ColumnToggle
	Loading           bool
	SkeletonRows      []int
	Empty             bool
	EmptyTitle        string
	EmptyHint         string
	Search            string
	SearchKey         string
	SearchPlaceholder string
	Selectable        bool
	SelectedCount     int
	PageSelected      bool
	ShowingFrom       int
	ShowingTo         int
	Total             int
	ItemLabel         string
	PageSize          int
	PageSizeKey       string
	PageSizes         []PageSizeOption
	Pager             Pager
	// Query is the encoded state, used to keep the address bar in sync.
	Query string
	// Hidden are the parameters a plain GET form must resend.
	Hidden map[string]string
}

// Build computes the view of data under st. In client mode data is the full
// set and is filtered, sorted and sliced here; in server mode data is the
// current page and total is the server's count.
func (t *Table[T]) Build(data []T, total int, st State, loading bool) View {
	o := t.Options
	if st.PageSize <= 0 {
		st.PageSize = o.DefaultPageSize
	}

	rows := data
	count := total
	if !o.Server() {
		rows = t.sorted(t.filtered(data, st.Search), st.Sorting)
		count = len(rows)
	}

	totalPages := TotalPages(count, st.PageSize)
	if st.PageIndex >= totalPages {
		st.PageIndex = totalPages - 1
	}
	if !o.Server() {
		start := st.PageIndex * st.PageSize
		end := min(start+st.PageSize, len(rows))
		rows = rows[start:end]
	}

	v := View{
		Name:              o.Name,
		Loading:           loading,
		EmptyTitle:        o.EmptyTitle,
		EmptyHint:         o.EmptyHint,
		Search:            st.Search,
		SearchKey:         o.SearchKey,
		SearchPlaceholder: o.SearchPlaceholder,
		Selectable:        o.Selectable,
		Total:             count,
		ItemLabel:         "items",
		PageSize:          st.PageSize,
		PageSizeKey:       o.PageSizeKey,
		Query:             o.Encode(st).Encode(),
		Hidden:            map[string]string{},
	}
	if count == 1 {
		v.ItemLabel = "item"
	}
	if count > 0 {
		v.ShowingFrom = st.PageIndex*st.PageSize + 1
		v.ShowingTo = min(count, (st.PageIndex+1)*st.PageSize)
	}
	if loading {
		v.SkeletonRows = make([]int, o.LoadingRows)
	}

	for _, size := range o.PageSizes {
		v.PageSizes = append(v.PageSizes, PageSizeOption{Size: size, Selected: size == st.PageSize})
	}
	for k, vals := range st.Extra {
		if len(vals) > 0 {
			v.Hidden[k] = vals[0]
		}
	}
	if st.Search != "" {
		v.Hidden[o.SearchKey] = st.Search
	}
	if s := st.Ordering(); s != "" {
		v.Hidden[o.SortKey] = s
	}

	visible := make([]Column[T], 0, len(t.Columns))
	for _, c := range t.Columns {
		shown := !(c.Hideable && st.Hidden[c.ID])
		if c.Hideable {
			v.Columns = append(v.Columns, ColumnToggle{ID: c.ID, Label: c.Header, Visible: shown})
		}
		if !shown {
			continue
		}
		visible = append(visible, c)
		h := HeaderCell{ID: c.ID, Label: c.Header, Sortable: c.Sortable, Sort: st.sortOf(c.ID)}
		if c.Sortable {
			next := st.Clone()
			next.ToggleSort(c.ID, false)
			h.SortHref = "?" + o.Encode(next).Encode()
		}
		v.Headers = append(v.Headers, h)
	}

	pageSelected := len(rows) > 0
	for _, rec := range rows {
		id := t.RowID(rec)
		r := Row{ID: id, Selected: st.Selected[id]}
		if t.RowHref != nil {
			r.Href = t.RowHref(rec)
		}
		if !r.Selected {
			pageSelected = false
		}
		for _, c := range visible {
			r.Cells = append(r.Cells, cell(c, rec))
		}
		v.Rows = append(v.Rows, r)
	}
	v.PageSelected = pageSelected
	v.Empty = !loading && len(v.Rows) == 0

	for _, on := range st.Selected {
		if on {
			v.SelectedCount++
		}
	}

	v.Pager = NewPager(totalPages, st.PageIndex+1, func(page int) string {
		next := st.Clone()
		next.GoTo(page)
		return "?" + o.Encode(next).Encode()
	})
	return v
}

// Selected resolves the selection against the filtered view of data.
func (t *Table[T]) Selected(data []T, st State) []T {
	rows := data
	if !t.Options.Server() {
		rows = t.filtered(data, st.Search)
	}
	var out []T
	for _, rec := range rows {
		if st.Selected[t.RowID(rec)] {
			out = append(out, rec)
		}
	}
	return out
}

// PageIDs returns the row ids of the current page.
func (t *Table[T]) PageIDs(data []T, st State) []string {
	rows := data
	if !t.Options.Server() {
		rows = t.sorted(t.filtered(data, st.Search), st.Sorting)
		if st.PageSize <= 0 {
			st.PageSize = t.Options.DefaultPageSize
		}
		totalPages := TotalPages(len(rows), st.PageSize)
		idx := min(st.PageIndex, totalPages-1)
		start := idx * st.PageSize
		rows = rows[start:min(start+st.PageSize, len(rows))]
	}
	ids := make([]string, 0, len(rows))
	for _, rec := range rows {
		ids = append(ids, t.RowID(rec))
	}
	return ids
}

// TotalPages is ceil(count/size) but never less than one.
func TotalPages(count, size int) int {
	if size <= 0 {
		return 1
	}
	return max((count+size-1)/size, 1)
}

func (t *Table[T]) filtered(data []T, search string) []T {
	search = strings.ToLower(strings.TrimSpace(search))
	col := t.column(t.Options.SearchColumn)
	if search == "" || col == nil || col.Value == nil {
		return data
	}
	out := make([]T, 0, len(data))
	for _, rec := range data {
		if strings.Contains(strings.ToLower(col.Value(rec)), search) {
			out = append(out, rec)
		}
	}
	return out
}

func (t *Table[T]) sorted(data []T, sorting []Sort) []T {
	if len(sorting) == 0 {
		return data
	}
	out := append([]T(nil), data...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, s := range sorting {
			col := t.column(s.Column)
			if col == nil || col.Value == nil {
				continue
			}
			c := compare(col.Value(out[i]), col.Value(out[j]))
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out
}

func (t *Table[T]) column(id string) *Column[T] {
	for i := range t.Columns {
		if t.Columns[i].ID == id {
			return &t.Columns[i]
		}
	}
	return nil
}

// compare orders numerically when both values are numbers, otherwise
// case-insensitively.
func compare(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func cell[T any](c Column[T], rec T) template.HTML {
	if c.Cell != nil {
		return c.Cell(rec)
	}
	if c.Value == nil {
		return ""
	}
	return template.HTML(template.HTMLEscapeString(c.Value(rec)))
}
