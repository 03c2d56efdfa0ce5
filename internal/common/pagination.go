package common

import (
	"net/http"
	"strconv"
)

// maxPerPage bounds the page size regardless of what the client asks for.
const maxPerPage = 100

// Pagination is the meta block attached to list responses.
type Pagination struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

// ParsePagination reads the page and limit query parameters. Page starts at
// one; limit falls back to defaultPerPage and is capped at maxPerPage.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	page = 1
	perPage = defaultPerPage
	q := r.URL.Query()
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		perPage = l
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}
