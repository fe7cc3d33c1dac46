package table

import (
	"net/url"
	"strconv"
	"strings"
)

// Sort orders rows by one column.
type Sort struct {
	Column string
	Desc   bool
}

// State is the view state of one mounted table. It is the only thing
// serialized to the URL, and only through Options.ParseState and Options.Encode.
type State struct {
	PageIndex int
	PageSize  int
	Sorting   []Sort
	Search    string
	Hidden    map[string]bool
	Selected  map[string]bool
	// Extra carries query parameters the table does not own.
	Extra url.Values
}

// ParseState reads the table state from a query string.
func (o Options) ParseState(q url.Values) State {
	o = o.withDefaults()
	st := State{
		PageSize: o.DefaultPageSize,
		Search:   strings.TrimSpace(q.Get(o.SearchKey)),
		Hidden:   map[string]bool{},
		Selected: map[string]bool{},
		Extra:    url.Values{},
	}
	if n, err := strconv.Atoi(q.Get(o.PageSizeKey)); err == nil && o.AllowsPageSize(n) {
		st.PageSize = n
	}
	if n, err := strconv.Atoi(q.Get(o.PageKey)); err == nil && n > 1 {
		st.PageIndex = n - 1
	}
	for _, part := range strings.Split(q.Get(o.SortKey), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "-") {
			st.Sorting = append(st.Sorting, Sort{Column: part[1:], Desc: true})
		} else {
			st.Sorting = append(st.Sorting, Sort{Column: part})
		}
	}
	for k, v := range q {
		switch k {
		case o.PageKey, o.PageSizeKey, o.SearchKey, o.SortKey:
		default:
			st.Extra[k] = append([]string(nil), v...)
		}
	}
	return st
}

// Encode writes st into a query string, keeping the unrelated parameters.
func (o Options) Encode(st State) url.Values {
	o = o.withDefaults()
	q := url.Values{}
	for k, v := range st.Extra {
		q[k] = append([]string(nil), v...)
	}
	q.Set(o.PageKey, strconv.Itoa(st.PageIndex+1))
	q.Set(o.PageSizeKey, strconv.Itoa(st.PageSize))
	if st.Search != "" {
		q.Set(o.SearchKey, st.Search)
	}
	if s := st.Ordering(); s != "" {
		q.Set(o.SortKey, s)
	}
	return q
}

// Ordering renders the sorting as "col,-col", the form the API accepts.
func (st State) Ordering() string {
	parts := make([]string, 0, len(st.Sorting))
	for _, s := range st.Sorting {
		if s.Desc {
			parts = append(parts, "-"+s.Column)
		} else {
			parts = append(parts, s.Column)
		}
	}
	return strings.Join(parts, ",")
}

// Clone returns a deep copy so callers can derive link targets without
// touching the live state.
func (st State) Clone() State {
	out := st
	out.Sorting = append([]Sort(nil), st.Sorting...)
	out.Hidden = cloneSet(st.Hidden)
	out.Selected = cloneSet(st.Selected)
	out.Extra = url.Values{}
	for k, v := range st.Extra {
		out.Extra[k] = append([]string(nil), v...)
	}
	return out
}

func cloneSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		if v {
			out[k] = true
		}
	}
	return out
}

// SetPageSize changes the page size and returns to the first page.
func (st *State) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	st.PageSize = n
	st.PageIndex = 0
}

// SetSearch applies a new search term and returns to the first page.
func (st *State) SetSearch(s string) {
	st.Search = strings.TrimSpace(s)
	st.PageIndex = 0
}

// GoTo moves to a 1-based page.
func (st *State) GoTo(page int) {
	if page < 1 {
		page = 1
	}
	st.PageIndex = page - 1
}

// ToggleSort cycles a column through ascending, descending and unsorted.
// Without multi the column replaces any other sort.
func (st *State) ToggleSort(col string, multi bool) {
	idx := -1
	for i, s := range st.Sorting {
		if s.Column == col {
			idx = i
			break
		}
	}
	var next []Sort
	if multi {
		next = append(next, st.Sorting...)
	}
	switch {
	case idx < 0:
		next = append(next, Sort{Column: col})
	case !st.Sorting[idx].Desc:
		if multi {
			next[idx].Desc = true
		} else {
			next = []Sort{{Column: col, Desc: true}}
		}
	default:
		if multi {
			next = append(next[:idx], next[idx+1:]...)
		} else {
			next = nil
		}
	}
	st.Sorting = next
	st.PageIndex = 0
}

func (st *State) sortOf(col string) string {
	for _, s := range st.Sorting {
		if s.Column == col {
			if s.Desc {
				return "desc"
			}
			return "asc"
		}
	}
	return ""
}

func (st *State) ToggleRow(id string) {
	if st.Selected == nil {
		st.Selected = map[string]bool{}
	}
	if st.Selected[id] {
		delete(st.Selected, id)
	} else {
		st.Selected[id] = true
	}
}

// TogglePage selects every id, or clears them all when all are selected.
func (st *State) TogglePage(ids []string) {
	if st.Selected == nil {
		st.Selected = map[string]bool{}
	}
	all := len(ids) > 0
	for _, id := range ids {
		if !st.Selected[id] {
			all = false
			break
		}
	}
	for _, id := range ids {
		if all {
			delete(st.Selected, id)
		} else {
			st.Selected[id] = true
		}
	}
}

func (st *State) ClearSelection() {
	st.Selected = map[string]bool{}
}

func (st *State) ToggleColumn(id string) {
	if st.Hidden == nil {
		st.Hidden = map[string]bool{}
	}
	if st.Hidden[id] {
		delete(st.Hidden, id)
	} else {
		st.Hidden[id] = true
	}
}
