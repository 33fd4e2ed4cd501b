// Package paginate slices in-memory collections into fixed-size pages.
package paginate

// DefaultPageSize is the number of articles shown per page.
const DefaultPageSize = 6

// Page is the visible window of a collection.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Size       int `json:"size"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// HasMore reports whether a later page exists.
func (p Page[T]) HasMore() bool {
	return p.Page < p.TotalPages
}

// TotalPages returns max(1, ceil(n/size)).
func TotalPages(n, size int) int {
	size = normalizeSize(size)
	if n <= 0 {
		return 1
	}
	return (n-1)/size + 1
}

// Slice returns page (1-based) of items. Pages outside the collection
// yield an empty, non-nil Items.
func Slice[T any](items []T, page, size int) Page[T] {
	size = normalizeSize(size)
	p := Page[T]{
		Items:      []T{},
		Page:       page,
		Size:       size,
		Total:      len(items),
		TotalPages: TotalPages(len(items), size),
	}

	start, end, ok := bounds(len(items), page, size)
	if ok {
		p.Items = items[start:end]
	}
	return p
}

func bounds(n, page, size int) (int, int, bool) {
	// Range-check before multiplying so huge pages cannot wrap into range.
	if page < 1 || n == 0 || page-1 > (n-1)/size {
		return 0, 0, false
	}
	start := (page - 1) * size
	if size >= n-start {
		return start, n, true
	}
	return start, start + size, true
}

func normalizeSize(size int) int {
	if size < 1 {
		return DefaultPageSize
	}
	return size
}
