package v1

// Envelope is the wrapper every successful backend response uses.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Page is the paginated list shape returned inside an Envelope.
type Page[T any] struct {
	Count       int     `json:"count"`
	CurrentPage int     `json:"current_page"`
	Next        *string `json:"next"`
	Previous    *string `json:"previous"`
	TotalPages  int     `json:"total_pages"`
	Results     []T     `json:"results"`
}

func (p Page[T]) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}

func (p Page[T]) HasPrevious() bool {
	return p.Previous != nil && *p.Previous != ""
}
