package social

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is one slice of a paginated collection. Next and Previous are page
// numbers, zero when there is none.
type Page[T any] struct {
	Count    int `json:"count"`
	Next     int `json:"-"`
	Previous int `json:"-"`
	Results  []T `json:"results"`
}

// PageRequest is the 1-based page number and requested size; zero values
// fall back to the defaults.
type PageRequest struct {
	Page     int
	PageSize int
}

func (r PageRequest) normalize() (page, size int) {
	page, size = r.Page, r.PageSize
	if page <= 0 {
		page = 1
	}
	switch {
	case size > MaxPageSize:
		size = MaxPageSize
	case size <= 0:
		size = DefaultPageSize
	}
	return page, size
}

// paginate cuts items into the requested page. A page past the end is an
// error, except the first page of an empty collection.
func paginate[T any](items []T, r PageRequest) (Page[T], error) {
	page, size := r.normalize()
	total := len(items)
	// Compare page indexes rather than offsets so a huge page number cannot
	// overflow the multiplication.
	last := 0
	if total > 0 {
		last = (total - 1) / size
	}
	if page-1 > last {
		return Page[T]{}, notFound("Invalid page.")
	}
	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}
	p := Page[T]{Count: total, Results: items[start:end]}
	if end < total {
		p.Next = page + 1
	}
	if page > 1 {
		p.Previous = page - 1
	}
	if p.Results == nil {
		p.Results = []T{}
	}
	return p, nil
}

// mapPage converts the results of a page while keeping its position.
func mapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := Page[U]{Count: p.Count, Next: p.Next, Previous: p.Previous, Results: make([]U, 0, len(p.Results))}
	for _, item := range p.Results {
		out.Results = append(out.Results, fn(item))
	}
	return out
}
