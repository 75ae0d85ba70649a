package pagination

// DefaultPerPage matches the dashboard listing size.
const DefaultPerPage = 6

// MaxPerPage caps what a caller may ask for in one page.
const MaxPerPage = 100

// Page describes one window over a listing of Total items.
type Page struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Paginate clamps page into [1, TotalPages] (page 1 for an empty listing)
// and fills in defaults for a non-positive perPage.
func Paginate(total, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if total < 0 {
		total = 0
	}
	totalPages := (total + perPage - 1) / perPage
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return Page{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.PerPage
}

func (p Page) Limit() int {
	return p.PerPage
}

// Bounds returns the slice indexes of the page within the full listing.
func (p Page) Bounds() (start, end int) {
	start = p.Offset()
	if start > p.Total {
		start = p.Total
	}
	end = start + p.PerPage
	if end > p.Total {
		end = p.Total
	}
	return start, end
}

func (p Page) HasNext() bool {
	return p.Page < p.TotalPages
}

func (p Page) HasPrev() bool {
	return p.Page > 1
}
