package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPage = 1
	DefaultSize = 20
	MaxSize     = 100
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// DefaultParams returns the default pagination parameters.
func DefaultParams() Params {
	return Params{Page: DefaultPage, Size: DefaultSize}
}

// FromRequest extracts pagination parameters from an HTTP request, clamping
// size to MaxSize. Invalid or missing values fall back to defaults.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()

	if page := r.URL.Query().Get("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 0 {
			p.Page = v
		}
	}

	if size := r.URL.Query().Get("size"); size != "" {
		if v, err := strconv.Atoi(size); err == nil && v > 0 && v <= MaxSize {
			p.Size = v
		}
	}

	return p
}

// Offset returns the zero-based offset for the current page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Size
}
