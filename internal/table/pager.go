package table

import (
	"net/url"
	"strconv"
)

// maxPlainPages is the largest page count rendered without ellipses.
const maxPlainPages = 7

// PageLink is one entry of the page strip; Ellipsis entries carry no page.
type PageLink struct {
	Page     int
	Ellipsis bool
}

// PageLinks lists the pages to show for totalPages with current selected.
// Up to seven pages are all shown. Beyond that the first and last page are
// always shown around the current page and its neighbours, with an ellipsis
// on each side that has a gap.
func PageLinks(totalPages, current int) []PageLink {
	var links []PageLink
	if totalPages <= maxPlainPages {
		for p := 1; p <= totalPages; p++ {
			links = append(links, PageLink{Page: p})
		}
		return links
	}

	links = append(links, PageLink{Page: 1})
	if current > 4 {
		links = append(links, PageLink{Ellipsis: true})
	}
	start := max(2, current-1)
	end := min(totalPages-1, current+1)
	for p := start; p <= end; p++ {
		links = append(links, PageLink{Page: p})
	}
	if current < totalPages-3 {
		links = append(links, PageLink{Ellipsis: true})
	}
	return append(links, PageLink{Page: totalPages})
}

type PagerItem struct {
	Page     int
	Ellipsis bool
	Active   bool
	Href     string
}

// Pager is a rendered page strip. Links come from the caller's href func so
// the pager never builds URLs on its own.
type Pager struct {
	Current      int
	Total        int
	Items        []PagerItem
	PrevHref     string
	NextHref     string
	PrevDisabled bool
	NextDisabled bool
}

func NewPager(totalPages, current int, href func(page int) string) Pager {
	totalPages = max(totalPages, 1)
	current = min(max(current, 1), totalPages)
	p := Pager{
		Current:      current,
		Total:        totalPages,
		PrevDisabled: current <= 1,
		NextDisabled: current >= totalPages,
	}
	for _, l := range PageLinks(totalPages, current) {
		item := PagerItem{Page: l.Page, Ellipsis: l.Ellipsis, Active: !l.Ellipsis && l.Page == current}
		if !l.Ellipsis {
			item.Href = href(l.Page)
		}
		p.Items = append(p.Items, item)
	}
	if !p.PrevDisabled {
		p.PrevHref = href(current - 1)
	}
	if !p.NextDisabled {
		p.NextHref = href(current + 1)
	}
	return p
}

// CurrentPage reads a 1-based page from q, clamped to [1, totalPages].
// An empty key means "page".
func CurrentPage(q url.Values, key string, totalPages int) int {
	if key == "" {
		key = "page"
	}
	page, err := strconv.Atoi(q.Get(key))
	if err != nil || page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	return page
}
