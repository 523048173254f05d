// Package query provides the search parameter builder shared by the remote
// client, the local mirror and the sync pipeline.
package query

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Well known parameter names.
const (
	KeyQuery                        = "query"
	KeyPage                         = "page"
	KeyHitsPerPage                  = "hitsPerPage"
	KeyAttributesToRetrieve         = "attributesToRetrieve"
	KeyAttributesToHighlight        = "attributesToHighlight"
	KeyRestrictSearchableAttributes = "restrictSearchableAttributes"
	KeyFilters                      = "filters"
	KeyFacets                       = "facets"
	KeyDistinct                     = "distinct"
	KeyGetRankingInfo               = "getRankingInfo"
	KeyAroundLatLng                 = "aroundLatLng"
	KeyCursor                       = "cursor"
)

// Query is an ordered set of search parameters. The zero value is an empty
// query ready to use.
type Query struct {
	params map[string]string
}

// New creates a query for the given full-text search string. An empty string
// leaves the query parameter unset.
func New(text string) *Query {
	q := &Query{}
	if text != "" {
		q.SetQuery(text)
	}
	return q
}

// Parse decodes a URL-encoded parameter string produced by Build.
func Parse(raw string) (*Query, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid query parameters: %w", err)
	}
	q := &Query{}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		q.Set(key, vals[len(vals)-1])
	}
	return q, nil
}

// Set stores a raw parameter. An empty value removes the parameter.
func (q *Query) Set(key, value string) *Query {
	if value == "" {
		delete(q.params, key)
		return q
	}
	if q.params == nil {
		q.params = make(map[string]string)
	}
	q.params[key] = value
	return q
}

// Get returns a raw parameter.
func (q *Query) Get(key string) (string, bool) {
	if q == nil {
		return "", false
	}
	v, ok := q.params[key]
	return v, ok
}

// Keys returns the parameter names in sorted order.
func (q *Query) Keys() []string {
	if q == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(q.params))
}

// Build encodes the query as a URL query string with sorted keys.
func (q *Query) Build() string {
	if q == nil || len(q.params) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, key := range q.Keys() {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(q.params[key]))
	}
	return sb.String()
}

// String implements fmt.Stringer.
func (q *Query) String() string {
	return q.Build()
}

// MarshalText encodes the query in its built form, so persisted settings and
// config files carry queries as plain strings.
func (q *Query) MarshalText() ([]byte, error) {
	return []byte(q.Build()), nil
}

// UnmarshalText decodes a built query string.
func (q *Query) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	q.params = parsed.params
	return nil
}

// Clone returns a deep copy.
func (q *Query) Clone() *Query {
	if q == nil {
		return &Query{}
	}
	return &Query{params: maps.Clone(q.params)}
}

// Equal reports whether both queries build to the same string.
func (q *Query) Equal(other *Query) bool {
	return q.Build() == other.Build()
}

// SetQuery sets the full-text search string.
func (q *Query) SetQuery(text string) *Query { return q.Set(KeyQuery, text) }

// QueryText returns the full-text search string.
func (q *Query) QueryText() string {
	v, _ := q.Get(KeyQuery)
	return v
}

// SetPage sets the zero-based page to retrieve.
func (q *Query) SetPage(page int) *Query { return q.setInt(KeyPage, page) }

// Page returns the page parameter.
func (q *Query) Page() (int, bool) { return q.getInt(KeyPage) }

// SetHitsPerPage sets the number of hits per page.
func (q *Query) SetHitsPerPage(n int) *Query { return q.setInt(KeyHitsPerPage, n) }

// HitsPerPage returns the hitsPerPage parameter.
func (q *Query) HitsPerPage() (int, bool) { return q.getInt(KeyHitsPerPage) }

// SetAttributesToRetrieve restricts the attributes returned with each hit.
func (q *Query) SetAttributesToRetrieve(attrs ...string) *Query {
	return q.setList(KeyAttributesToRetrieve, attrs)
}

// AttributesToRetrieve returns the attributesToRetrieve parameter.
func (q *Query) AttributesToRetrieve() []string { return q.getList(KeyAttributesToRetrieve) }

// SetAttributesToHighlight sets the attributes to highlight.
func (q *Query) SetAttributesToHighlight(attrs ...string) *Query {
	return q.setList(KeyAttributesToHighlight, attrs)
}

// AttributesToHighlight returns the attributesToHighlight parameter.
func (q *Query) AttributesToHighlight() []string { return q.getList(KeyAttributesToHighlight) }

// SetRestrictSearchableAttributes limits full-text matching to attrs.
func (q *Query) SetRestrictSearchableAttributes(attrs ...string) *Query {
	return q.setList(KeyRestrictSearchableAttributes, attrs)
}

// RestrictSearchableAttributes returns the restrictSearchableAttributes parameter.
func (q *Query) RestrictSearchableAttributes() []string {
	return q.getList(KeyRestrictSearchableAttributes)
}

// SetFilters sets the filter expression.
func (q *Query) SetFilters(filters string) *Query { return q.Set(KeyFilters, filters) }

// Filters returns the filter expression.
func (q *Query) Filters() string {
	v, _ := q.Get(KeyFilters)
	return v
}

// SetFacets sets the facets to compute.
func (q *Query) SetFacets(facets ...string) *Query { return q.setList(KeyFacets, facets) }

// Facets returns the facets parameter.
func (q *Query) Facets() []string { return q.getList(KeyFacets) }

// SetDistinct enables de-duplication.
func (q *Query) SetDistinct(distinct int) *Query { return q.setInt(KeyDistinct, distinct) }

// Distinct returns the distinct parameter.
func (q *Query) Distinct() (int, bool) { return q.getInt(KeyDistinct) }

// SetGetRankingInfo asks for ranking details with each hit.
func (q *Query) SetGetRankingInfo(enabled bool) *Query {
	return q.Set(KeyGetRankingInfo, strconv.FormatBool(enabled))
}

// GetRankingInfo returns the getRankingInfo parameter.
func (q *Query) GetRankingInfo() (bool, bool) {
	v, ok := q.Get(KeyGetRankingInfo)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

// SetAroundLatLng biases results around a location.
func (q *Query) SetAroundLatLng(lat, lng float64) *Query {
	return q.Set(KeyAroundLatLng, strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lng, 'f', -1, 64))
}

// AroundLatLng returns the aroundLatLng parameter.
func (q *Query) AroundLatLng() (lat, lng float64, ok bool) {
	v, found := q.Get(KeyAroundLatLng)
	if !found {
		return 0, 0, false
	}
	latStr, lngStr, found := strings.Cut(v, ",")
	if !found {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

// SetCursor sets a browse cursor.
func (q *Query) SetCursor(cursor string) *Query { return q.Set(KeyCursor, cursor) }

// Cursor returns the browse cursor.
func (q *Query) Cursor() string {
	v, _ := q.Get(KeyCursor)
	return v
}

func (q *Query) setInt(key string, v int) *Query {
	return q.Set(key, strconv.Itoa(v))
}

func (q *Query) getInt(key string) (int, bool) {
	v, ok := q.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Lists are serialized as JSON arrays, which is what the service expects.
func (q *Query) setList(key string, values []string) *Query {
	if values == nil {
		return q.Set(key, "")
	}
	data, err := json.Marshal(values)
	if err != nil {
		return q
	}
	return q.Set(key, string(data))
}

// getList accepts both JSON arrays and comma separated values.
func (q *Query) getList(key string) []string {
	v, ok := q.Get(key)
	if !ok {
		return nil
	}
	var list []string
	if strings.HasPrefix(v, "[") {
		if err := json.Unmarshal([]byte(v), &list); err == nil {
			return list
		}
	}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
