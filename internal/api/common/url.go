// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/search-mirror/pkg/query"
)

// URLParam extracts and decodes a path parameter. The decoded value must be
// non-empty and free of whitespace and control characters.
func URLParam(r *http.Request, name string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", name)
	}
	if strings.TrimSpace(decoded) == "" {
		return "", fmt.Errorf("%s cannot be empty", name)
	}
	if strings.ContainsFunc(decoded, func(c rune) bool { return c <= ' ' || c == 0x7f }) {
		return "", fmt.Errorf("%s cannot contain whitespace or control characters", name)
	}
	return decoded, nil
}

// SearchQuery builds a search query from the request parameters. Repeated
// parameters keep their last value.
func SearchQuery(r *http.Request) (*query.Query, error) {
	q, err := query.Parse(r.URL.RawQuery)
	if err != nil {
		return nil, err
	}
	return q, nil
}
