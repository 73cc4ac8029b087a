package models

// DefaultPageSize is the fixed number of rows the dashboard requests per page.
const DefaultPageSize = 10

type PageWindow struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"total_items"`
}

func NewPageWindow() PageWindow {
	return PageWindow{Page: 1, Limit: DefaultPageSize}
}

// TotalPages is ceil(TotalItems / Limit).
func (w PageWindow) TotalPages() int {
	if w.Limit <= 0 || w.TotalItems <= 0 {
		return 0
	}
	return (w.TotalItems + w.Limit - 1) / w.Limit
}

// LastPage is the highest page that may be navigated to. An empty list still has page 1.
func (w PageWindow) LastPage() int {
	if n := w.TotalPages(); n > 0 {
		return n
	}
	return 1
}

func (w PageWindow) Contains(page int) bool {
	return page >= 1 && page <= w.LastPage()
}

func (w PageWindow) Offset() int {
	if w.Page < 1 {
		return 0
	}
	return (w.Page - 1) * w.Limit
}

// ItemsOnPage is the number of rows the current page holds given TotalItems.
func (w PageWindow) ItemsOnPage() int {
	remaining := w.TotalItems - w.Offset()
	switch {
	case remaining <= 0:
		return 0
	case remaining < w.Limit:
		return remaining
	default:
		return w.Limit
	}
}

// Range returns the 1-based positions of the first and last row on the page,
// or 0, 0 when the page is empty.
func (w PageWindow) Range() (first, last int) {
	n := w.ItemsOnPage()
	if n == 0 {
		return 0, 0
	}
	first = w.Offset() + 1
	return first, first + n - 1
}
