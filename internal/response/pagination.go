// File: internal/response/pagination.go
package response

import (
	"fmt"
	"net/url"
	"strconv"

	"badgehub/internal/services"
)

// ===============================
// PAGINATION CONFIGURATION
// ===============================

// PaginationConfig holds pagination configuration
type PaginationConfig struct {
	DefaultLimit int    `json:"default_limit"`
	MaxLimit     int    `json:"max_limit"`
	OffsetParam  string `json:"offset_param"`
	LimitParam   string `json:"limit_param"`
}

// DefaultPaginationConfig returns default pagination configuration
func DefaultPaginationConfig() *PaginationConfig {
	return &PaginationConfig{
		DefaultLimit: 50,
		MaxLimit:     500,
		OffsetParam:  "offset",
		LimitParam:   "limit",
	}
}

// ===============================
// PAGINATION TYPES
// ===============================

// PaginationParams represents pagination parameters
type PaginationParams struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// PaginationMeta describes the page returned out of an already resolved
// result set.
type PaginationMeta struct {
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// ===============================
// PARSING AND SLICING
// ===============================

// ParsePagination reads offset and limit from the query. Limits above the
// maximum are clamped; malformed or negative values are validation errors.
func (c *PaginationConfig) ParsePagination(query url.Values) (PaginationParams, error) {
	params := PaginationParams{Limit: c.DefaultLimit}

	parse := func(name string) (int, bool, error) {
		raw := query.Get(name)
		if raw == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, false, services.NewValidationError(fmt.Sprintf("Invalid %s parameter", name), err).
				WithDetail(name, raw)
		}
		return n, true, nil
	}

	offset, ok, err := parse(c.OffsetParam)
	if err != nil {
		return params, err
	}
	if ok {
		params.Offset = offset
	}

	limit, ok, err := parse(c.LimitParam)
	if err != nil {
		return params, err
	}
	if ok && limit > 0 {
		params.Limit = limit
	}
	if params.Limit > c.MaxLimit {
		params.Limit = c.MaxLimit
	}
	return params, nil
}

// Paginate returns the requested window of items together with its meta.
func Paginate[T any](items []T, params PaginationParams) ([]T, *PaginationMeta) {
	total := len(items)
	start := params.Offset
	if start > total {
		start = total
	}
	end := total
	if params.Limit > 0 && start+params.Limit < total {
		end = start + params.Limit
	}
	return items[start:end], &PaginationMeta{
		Offset:  params.Offset,
		Limit:   params.Limit,
		Total:   total,
		HasMore: end < total,
	}
}
