package paginate

// Pager tracks the current page of a collection whose length can change.
// The zero value is not usable; create one with NewPager.
type Pager struct {
	size    int
	total   int
	current int
}

// NewPager creates a Pager on page 1 of an empty collection.
func NewPager(size int) *Pager {
	return &Pager{size: normalizeSize(size), current: 1}
}

// Reset records a new collection length and returns to page 1.
func (p *Pager) Reset(total int) {
	p.total = max(total, 0)
	p.current = 1
}

// Current returns the current page.
func (p *Pager) Current() int { return p.current }

// Size returns the page size.
func (p *Pager) Size() int { return p.size }

// Total returns the collection length.
func (p *Pager) Total() int { return p.total }

// TotalPages returns the page count for the current collection.
func (p *Pager) TotalPages() int {
	return TotalPages(p.total, p.size)
}

// Goto moves to page if it is in range. It reports whether the page changed.
func (p *Pager) Goto(page int) bool {
	if page < 1 || page > p.TotalPages() {
		return false
	}
	p.current = page
	return true
}

// Next advances one page; at the last page it does nothing.
func (p *Pager) Next() bool {
	return p.Goto(p.current + 1)
}

// Prev goes back one page; at the first page it does nothing.
func (p *Pager) Prev() bool {
	return p.Goto(p.current - 1)
}

// HasPrev reports whether Prev would move.
func (p *Pager) HasPrev() bool { return p.current > 1 }

// HasNext reports whether Next would move.
func (p *Pager) HasNext() bool { return p.current < p.TotalPages() }

// ShowControl reports whether page navigation should be rendered at all.
func (p *Pager) ShowControl() bool {
	return p.TotalPages() > 1
}

// Bounds returns the [start, end) window of the current page.
func (p *Pager) Bounds() (int, int) {
	start, end, ok := bounds(p.total, p.current, p.size)
	if !ok {
		return 0, 0
	}
	return start, end
}

// Apply slices items to the current page.
func Apply[T any](p *Pager, items []T) Page[T] {
	return Slice(items, p.current, p.size)
}
