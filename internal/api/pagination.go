package api

import (
	"net/http"
	"strconv"
)

// PageRequest is the page window asked for by a list endpoint.
type PageRequest struct {
	Page   int
	Limit  int
	Offset int
}

// PageMeta describes where a page sits in the full result set.
type PageMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// Page is one page of list results.
type Page[T any] struct {
	Data       []T      `json:"data"`
	Pagination PageMeta `json:"pagination"`
}

// ParsePagination reads ?page= and ?limit= (or ?per_page=). Missing or
// non-positive values fall back to page 1 and defLimit.
func ParsePagination(r *http.Request, defLimit, maxLimit int) PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit == 0 {
		limit, _ = strconv.Atoi(q.Get("per_page"))
	}

	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = defLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	return PageRequest{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// NewPage wraps items with metadata. A nil slice encodes as [].
func NewPage[T any](items []T, req PageRequest, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 1
	if req.Limit > 0 && total > 0 {
		pages = (total + req.Limit - 1) / req.Limit
	}
	return Page[T]{
		Data: items,
		Pagination: PageMeta{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: pages,
			HasMore:    req.Page < pages,
		},
	}
}
