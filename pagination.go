package main

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	// maxPage keeps (page-1)*limit from overflowing.
	maxPage = math.MaxInt32 / maxPageLimit
)

// pageParams is the parsed ?page=&limit= pair. Page is 1-based.
type pageParams struct {
	Page  int
	Limit int
}

func (p pageParams) offset() int {
	return (p.Page - 1) * p.Limit
}

// parsePageParams reads page and limit, applying defaults. Non-numeric,
// non-positive or over-limit values are rejected with 400.
func parsePageParams(c *gin.Context) (pageParams, bool) {
	p := pageParams{Page: 1, Limit: defaultPageLimit}
	if s := c.Query("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			apiError(c, http.StatusBadRequest, "page must be a positive integer")
			return p, false
		}
		if n > maxPage {
			apiError(c, http.StatusBadRequest, fmt.Sprintf("page must not exceed %d", maxPage))
			return p, false
		}
		p.Page = n
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxPageLimit {
			apiError(c, http.StatusBadRequest, "limit must be between 1 and 100")
			return p, false
		}
		p.Limit = n
	}
	return p, true
}

type paginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func newPaginationMeta(p pageParams, total int) paginationMeta {
	pages := 0
	if total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return paginationMeta{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

// paginatedResponse is the envelope for every paginated list endpoint.
type paginatedResponse[T any] struct {
	Items      []T            `json:"items"`
	Pagination paginationMeta `json:"pagination"`
}

func newPaginatedResponse[T any](items []T, p pageParams, total int) paginatedResponse[T] {
	if items == nil {
		items = []T{}
	}
	return paginatedResponse[T]{Items: items, Pagination: newPaginationMeta(p, total)}
}
