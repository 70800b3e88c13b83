// Package paging normalizes list query parameters shared by the search
// endpoints.
package paging

import (
	"strings"

	"github.com/iancoleman/strcase"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 50
)

// Params are the raw list parameters as received from a request.
type Params struct {
	Page      int
	PerPage   int
	SortBy    string
	SortOrder string
}

// Query is a validated, ready to use version of Params.
type Query struct {
	Page      int
	PerPage   int
	SortBy    string
	SortOrder string
}

// Offset returns the row offset of the first item of the page.
func (q Query) Offset() int { return (q.Page - 1) * q.PerPage }

// Meta describes the page returned to a client.
type Meta struct {
	Page     int `json:"page"`
	PerPage  int `json:"perPage"`
	Total    int `json:"total"`
	LastPage int `json:"lastPage"`
}

// Normalize fills defaults and clamps values. sortBy is converted to
// snake_case and must be one of allowed, otherwise def is used.
func Normalize(p Params, allowed []string, def string) Query {
	q := Query{Page: p.Page, PerPage: p.PerPage, SortBy: def, SortOrder: "asc"}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	if p.SortBy != "" {
		col := strcase.ToSnake(p.SortBy)
		for _, a := range allowed {
			if a == col {
				q.SortBy = col
				break
			}
		}
	}
	if strings.EqualFold(p.SortOrder, "desc") {
		q.SortOrder = "desc"
	}
	return q
}

// NewMeta builds page metadata for a total row count.
func NewMeta(q Query, total int) Meta {
	last := 1
	if total > 0 {
		last = (total + q.PerPage - 1) / q.PerPage
	}
	return Meta{Page: q.Page, PerPage: q.PerPage, Total: total, LastPage: last}
}
