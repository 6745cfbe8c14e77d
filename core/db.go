package core

// DBOrdering is one "field direction" ordering clause, eg. parsed from `?ordering=-start_date`.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Pagination selects a page of a result set. Page is 1-based; a zero PageSize means "everything".
type Pagination struct {
	Page     int `query:"page"`
	PageSize int `query:"page_size"`
}

// Bounds returns the [start, end) slice bounds of the page within a result set of length n.
func (p Pagination) Bounds(n int) (start, end int) {
	if p.PageSize <= 0 {
		return 0, n
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	pages := n / p.PageSize
	if n%p.PageSize != 0 {
		pages++
	}
	if page-1 >= pages {
		return n, n
	}
	start = (page - 1) * p.PageSize
	end = n
	if n-start > p.PageSize {
		end = start + p.PageSize
	}
	return start, end
}
