package mirror

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Origin tells which gateway produced a result.
type Origin string

const (
	// OriginNone tags results of indices that are not mirrored, and of the
	// online only strategy.
	OriginNone Origin = ""

	// OriginLocal tags results served by the mirror.
	OriginLocal Origin = "local"

	// OriginRemote tags results served by the remote index.
	OriginRemote Origin = "remote"
)

// Result is the JSON content of a read operation with its origin.
type Result struct {
	Content json.RawMessage
	Origin  Origin
}

// Decode unmarshals the content into v.
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Content, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// Get returns the value at a gjson path of the content.
func (r *Result) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Content, path)
}

// Cursor returns the browse cursor of the content, tagged with the result
// origin. The cursor is zero when the browse is exhausted.
func (r *Result) Cursor() Cursor {
	value := gjson.GetBytes(r.Content, "cursor").String()
	if value == "" {
		return Cursor{}
	}
	return Cursor{Value: value, Origin: r.Origin}
}

// MarshalJSON emits the content with an "origin" key when the origin is set.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Origin == OriginNone || !gjson.ParseBytes(r.Content).IsObject() {
		if len(r.Content) == 0 {
			return []byte("null"), nil
		}
		return r.Content, nil
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(r.Content, &fields); err != nil {
		return nil, err
	}
	origin, err := json.Marshal(r.Origin)
	if err != nil {
		return nil, err
	}
	fields["origin"] = origin
	return json.Marshal(fields)
}

// Cursor continues a browse. It remembers the gateway that issued it, so a
// cursor of the remote index is never handed to the mirror.
type Cursor struct {
	Value  string
	Origin Origin
}

// IsZero reports whether the cursor is empty.
func (c Cursor) IsZero() bool {
	return c.Value == ""
}
