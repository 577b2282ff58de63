package model

// Page is the paginated envelope returned by list endpoints on the recipe backend.
type Page[T any] struct {
	Content       []T  `json:"content"`
	TotalPages    int  `json:"totalPages"`
	TotalElements int  `json:"totalElements"`
	Size          int  `json:"size"`
	Number        int  `json:"number"`
	Last          bool `json:"last"`
}

// PageOptions configures paginated queries.
type PageOptions struct {
	Page int
	Size int
	Sort string // e.g. "createdAt,desc"
}

// DefaultPageOptions returns sensible defaults.
func DefaultPageOptions() PageOptions {
	return PageOptions{Page: 0, Size: 10, Sort: "createdAt,desc"}
}

// Clamp enforces limits (size max 100, min 1).
func (o *PageOptions) Clamp() {
	if o.Size <= 0 {
		o.Size = 10
	}
	if o.Size > 100 {
		o.Size = 100
	}
	if o.Page < 0 {
		o.Page = 0
	}
}
