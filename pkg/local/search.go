package local

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stacklok/search-mirror/pkg/query"
)

const (
	// DefaultHitsPerPage is the page size of a search without hitsPerPage.
	DefaultHitsPerPage = 20
	// DefaultBrowseHitsPerPage is the page size of a browse without hitsPerPage.
	DefaultBrowseHitsPerPage = 1000

	maxHitsPerPage = 1000
)

var (
	andSeparator = regexp.MustCompile(`(?i)\s+AND\s+`)
	filterTerm   = regexp.MustCompile(`^([A-Za-z0-9_.\-]+)\s*[:=]\s*(.+)$`)
)

type searchResponse struct {
	Hits             []json.RawMessage `json:"hits"`
	NbHits           int               `json:"nbHits"`
	Page             int               `json:"page"`
	NbPages          int               `json:"nbPages"`
	HitsPerPage      int               `json:"hitsPerPage"`
	ProcessingTimeMS int64             `json:"processingTimeMS"`
	ExhaustiveNbHits bool              `json:"exhaustiveNbHits"`
	Query            string            `json:"query"`
	Params           string            `json:"params"`
}

type browseResponse struct {
	Hits             []json.RawMessage `json:"hits"`
	Cursor           string            `json:"cursor,omitempty"`
	NbHits           int               `json:"nbHits"`
	HitsPerPage      int               `json:"hitsPerPage"`
	ProcessingTimeMS int64             `json:"processingTimeMS"`
	Query            string            `json:"query"`
	Params           string            `json:"params"`
}

type browseCursor struct {
	Params string `json:"p"`
	Offset int    `json:"o"`
}

// selection is the WHERE clause matching a query.
type selection struct {
	where string
	args  []any
}

// Search runs the URL-encoded query params against the local data.
func (e *Engine) Search(ctx context.Context, params string) Response {
	start := time.Now()
	q, err := query.Parse(params)
	if err != nil {
		return errorResponse(http.StatusBadRequest, err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hasData {
		return noData()
	}

	sel, err := newSelection(q)
	if err != nil {
		return errorResponse(http.StatusBadRequest, err)
	}

	hitsPerPage := e.pageSize(q, DefaultHitsPerPage)
	page, _ := q.Page()
	page = max(page, 0)
	if page > math.MaxInt/hitsPerPage {
		return errorResponse(http.StatusBadRequest, fmt.Errorf("page %d is out of range", page))
	}

	total, err := e.count(ctx, sel)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}
	hits, err := e.fetch(ctx, sel, hitsPerPage, page*hitsPerPage, e.retrieve(q))
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}

	return jsonResponse(searchResponse{
		Hits:             hits,
		NbHits:           total,
		Page:             page,
		NbPages:          (total + hitsPerPage - 1) / hitsPerPage,
		HitsPerPage:      hitsPerPage,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		ExhaustiveNbHits: true,
		Query:            q.QueryText(),
		Params:           params,
	})
}

// Browse returns every object matching params, page after page. The response
// carries a cursor when more objects are available. params may instead hold
// a cursor returned by a previous page.
func (e *Engine) Browse(ctx context.Context, params string) Response {
	start := time.Now()
	q, err := query.Parse(params)
	if err != nil {
		return errorResponse(http.StatusBadRequest, err)
	}

	offset := 0
	if raw := q.Cursor(); raw != "" {
		cursor, err := decodeCursor(raw)
		if err != nil {
			return errorResponse(http.StatusBadRequest, err)
		}
		if q, err = query.Parse(cursor.Params); err != nil {
			return errorResponse(http.StatusBadRequest, err)
		}
		if cursor.Offset < 0 {
			return errorResponse(http.StatusBadRequest, fmt.Errorf("invalid cursor offset %d", cursor.Offset))
		}
		offset = cursor.Offset
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hasData {
		return noData()
	}

	sel, err := newSelection(q)
	if err != nil {
		return errorResponse(http.StatusBadRequest, err)
	}

	hitsPerPage := e.pageSize(q, DefaultBrowseHitsPerPage)
	total, err := e.count(ctx, sel)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}
	hits, err := e.fetch(ctx, sel, hitsPerPage, offset, e.retrieve(q))
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}

	resp := browseResponse{
		Hits:        hits,
		NbHits:      total,
		HitsPerPage: hitsPerPage,
		Query:       q.QueryText(),
		Params:      q.Build(),
	}
	if next := offset + hitsPerPage; next < total {
		resp.Cursor = encodeCursor(browseCursor{Params: q.Build(), Offset: next})
	}
	resp.ProcessingTimeMS = time.Since(start).Milliseconds()
	return jsonResponse(resp)
}

// GetObjects returns the objects with the given IDs, in order, as
// {"results":[...]}. Missing objects are null.
func (e *Engine) GetObjects(ctx context.Context, objectIDs []string, attributesToRetrieve []string) Response {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hasData {
		return noData()
	}

	found := make(map[string]json.RawMessage, len(objectIDs))
	if len(objectIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(objectIDs)), ",")
		args := make([]any, 0, len(objectIDs))
		for _, id := range objectIDs {
			args = append(args, id)
		}
		//nolint:gosec // only placeholders are interpolated
		rows, err := e.db.QueryContext(ctx,
			`SELECT object_id, body FROM objects WHERE object_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return errorResponse(http.StatusInternalServerError, err)
		}
		defer func() {
			_ = rows.Close()
		}()
		for rows.Next() {
			var id, body string
			if err := rows.Scan(&id, &body); err != nil {
				return errorResponse(http.StatusInternalServerError, err)
			}
			found[id] = project([]byte(body), attributesToRetrieve)
		}
		if err := rows.Err(); err != nil {
			return errorResponse(http.StatusInternalServerError, err)
		}
	}

	results := make([]json.RawMessage, 0, len(objectIDs))
	for _, id := range objectIDs {
		obj, ok := found[id]
		if !ok {
			obj = json.RawMessage("null")
		}
		results = append(results, obj)
	}
	return jsonResponse(map[string]any{"results": results})
}

func (e *Engine) pageSize(q *query.Query, fallback int) int {
	n, ok := q.HitsPerPage()
	if !ok || n <= 0 {
		n = fallback
		if e.settings != nil && e.settings.hitsPerPage > 0 && fallback == DefaultHitsPerPage {
			n = e.settings.hitsPerPage
		}
	}
	return min(n, maxHitsPerPage)
}

func (e *Engine) retrieve(q *query.Query) []string {
	if attrs := q.AttributesToRetrieve(); len(attrs) > 0 {
		return attrs
	}
	if e.settings != nil {
		return e.settings.attributesToRetrieve
	}
	return nil
}

func (e *Engine) count(ctx context.Context, sel selection) (int, error) {
	var n int
	//nolint:gosec // the clause only holds placeholders
	err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects WHERE `+sel.where, sel.args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return n, nil
}

func (e *Engine) fetch(ctx context.Context, sel selection, limit, offset int, attrs []string) ([]json.RawMessage, error) {
	args := append(slices.Clone(sel.args), limit, offset)
	//nolint:gosec // the clause only holds placeholders
	rows, err := e.db.QueryContext(ctx,
		`SELECT body FROM objects WHERE `+sel.where+` ORDER BY seq LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	hits := make([]json.RawMessage, 0, limit)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to read object: %w", err)
		}
		hits = append(hits, project([]byte(body), attrs))
	}
	return hits, rows.Err()
}

// newSelection matches every query word as a word prefix of the searchable
// text, and every filter term against the object attributes.
func newSelection(q *query.Query) (selection, error) {
	clauses := []string{"1 = 1"}
	var args []any

	for _, token := range tokenize(q.QueryText()) {
		clauses = append(clauses, `(' ' || search_text) LIKE ? ESCAPE '\'`)
		args = append(args, "% "+escapeLike(token)+"%")
	}

	if expr := strings.TrimSpace(q.Filters()); expr != "" {
		for _, term := range andSeparator.Split(expr, -1) {
			path, value, err := parseFilterTerm(term)
			if err != nil {
				return selection{}, err
			}
			clauses = append(clauses,
				`EXISTS (SELECT 1 FROM json_each(objects.body, ?) AS f WHERE f.value = ?)`)
			args = append(args, path, value)
		}
	}

	return selection{where: strings.Join(clauses, " AND "), args: args}, nil
}

// parseFilterTerm parses "attribute:value" into a JSON path and the value to
// compare with.
func parseFilterTerm(term string) (string, any, error) {
	term = strings.TrimSpace(term)
	m := filterTerm.FindStringSubmatch(term)
	if m == nil {
		return "", nil, fmt.Errorf("unsupported filter %q", term)
	}

	segments := strings.Split(m[1], ".")
	var path strings.Builder
	path.WriteString("$")
	for _, s := range segments {
		if s == "" {
			return "", nil, fmt.Errorf("unsupported filter attribute %q", m[1])
		}
		path.WriteString(`."` + s + `"`)
	}

	raw := strings.TrimSpace(m[2])
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return path.String(), raw[1 : len(raw)-1], nil
	}
	switch raw {
	case "true":
		return path.String(), 1, nil
	case "false":
		return path.String(), 0, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return path.String(), f, nil
	}
	return path.String(), raw, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// project keeps attrs and the objectID of body. An empty list or "*" keeps
// every attribute.
func project(body []byte, attrs []string) json.RawMessage {
	if len(attrs) == 0 || slices.Contains(attrs, "*") {
		return body
	}

	out := map[string]json.RawMessage{}
	if id := gjson.GetBytes(body, "objectID"); id.Exists() {
		out["objectID"] = json.RawMessage(id.Raw)
	}
	for _, attr := range attrs {
		top, _, _ := strings.Cut(attr, ".")
		if v := gjson.GetBytes(body, gjson.Escape(top)); v.Exists() {
			out[top] = json.RawMessage(v.Raw)
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return body
	}
	return data
}

func encodeCursor(c browseCursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(raw string) (browseCursor, error) {
	var c browseCursor
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return c, errors.New("invalid cursor")
	}
	if err := json.Unmarshal(data, &c); err != nil || c.Offset < 0 {
		return c, errors.New("invalid cursor")
	}
	return c, nil
}

func jsonResponse(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, err)
	}
	return Response{StatusCode: http.StatusOK, Data: data}
}

func errorResponse(status int, err error) Response {
	return Response{StatusCode: status, ErrorMessage: err.Error()}
}

func noData() Response {
	return Response{StatusCode: http.StatusNotFound, ErrorMessage: "no offline data"}
}
