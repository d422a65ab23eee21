package model

import "time"

// Response is the JSON envelope returned by /api/v1 endpoints.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list pages.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions configures list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// NewPagination builds pagination metadata for a page of a list of total items.
func NewPagination(opts ListOptions, total int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	}
}

// HasPrev reports whether there is a page before this one.
func (p *Pagination) HasPrev() bool {
	return p.Offset > 0
}

// NextOffset is the offset of the following page.
func (p *Pagination) NextOffset() int {
	return p.Offset + p.Limit
}

// PrevOffset is the offset of the preceding page.
func (p *Pagination) PrevOffset() int {
	return max(0, p.Offset-p.Limit)
}
