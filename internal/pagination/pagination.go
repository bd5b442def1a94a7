// Package pagination provides the generic page envelope returned by list endpoints.
package pagination

// Page wraps a single page of results together with derived paging metadata.
type Page[T any] struct {
	Items       []T   `json:"items"`
	Total       int64 `json:"total"`
	Page        int   `json:"page"`
	PageSize    int   `json:"pageSize"`
	Pages       int   `json:"pages"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
}

// NewPage computes paging metadata from the total count and page parameters.
// Pages is ceil(total/pageSize), zero when pageSize is not positive.
func NewPage[T any](items []T, total int64, page, pageSize int) Page[T] {
	if items == nil {
		items = []T{}
	}

	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return Page[T]{
		Items:       items,
		Total:       total,
		Page:        page,
		PageSize:    pageSize,
		Pages:       pages,
		HasNext:     page < pages,
		HasPrevious: page > 1,
	}
}
