// Package pagination parses page/limit query parameters and shapes
// paginated list responses for the history endpoints.
package pagination

import (
	"fmt"
	"strconv"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds sanitized pagination values. Offset is derived from
// Page and Limit and ready to hand to the repository layer.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Response wraps a page of results with its position in the full set.
type Response struct {
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	Total      int64       `json:"total"`
	TotalPages int         `json:"total_pages"`
	Data       interface{} `json:"data"`
}

// ParseParams parses page and limit query values. Non-numeric input is
// an error; out-of-range values are clamped rather than rejected.
func ParseParams(pageStr, limitStr string) (*Params, error) {
	page := DefaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil {
			return nil, fmt.Errorf("invalid page parameter: %w", err)
		}
		if p >= 1 {
			page = p
		}
	}

	limit := DefaultLimit
	if limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid limit parameter: %w", err)
		}
		switch {
		case l < 1:
			limit = 1
		case l > MaxLimit:
			limit = MaxLimit
		default:
			limit = l
		}
	}

	return &Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}, nil
}

// BuildResponse wraps one page of data with totals.
func BuildResponse(params *Params, total int64, data interface{}) *Response {
	totalPages := 0
	if params.Limit > 0 {
		totalPages = int((total + int64(params.Limit) - 1) / int64(params.Limit))
	}
	return &Response{
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      total,
		TotalPages: totalPages,
		Data:       data,
	}
}
