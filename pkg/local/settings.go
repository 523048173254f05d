package local

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// indexSettings is the subset of the index settings the local engine honours.
type indexSettings struct {
	searchable           []string
	attributesToRetrieve []string
	hitsPerPage          int
}

func parseSettings(data []byte) (*indexSettings, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return nil, errors.New("settings must be a JSON object")
	}
	var raw struct {
		SearchableAttributes []string `json:"searchableAttributes"`
		AttributesToIndex    []string `json:"attributesToIndex"`
		AttributesToRetrieve []string `json:"attributesToRetrieve"`
		HitsPerPage          int      `json:"hitsPerPage"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	searchable := raw.SearchableAttributes
	if len(searchable) == 0 {
		searchable = raw.AttributesToIndex
	}
	s := &indexSettings{
		attributesToRetrieve: raw.AttributesToRetrieve,
		hitsPerPage:          raw.HitsPerPage,
	}
	for _, entry := range searchable {
		entry = strings.TrimSpace(entry)
		if inner, ok := strings.CutPrefix(entry, "unordered("); ok {
			entry = strings.TrimSuffix(inner, ")")
		}
		for _, attr := range strings.Split(entry, ",") {
			if attr = strings.TrimSpace(attr); attr != "" {
				s.searchable = append(s.searchable, attr)
			}
		}
	}
	return s, nil
}

// searchText returns the normalized text a query is matched against. Every
// string of the searchable attributes is included, or every string of the
// object when no searchable attribute is configured.
func (s *indexSettings) searchText(body []byte) string {
	var words []string
	collect := func(r gjson.Result) {
		words = appendStrings(words, r)
	}
	if len(s.searchable) == 0 {
		collect(gjson.ParseBytes(body))
	} else {
		for _, attr := range s.searchable {
			collect(gjson.GetBytes(body, attributePath(attr)))
		}
	}
	return strings.Join(words, " ")
}

func appendStrings(words []string, r gjson.Result) []string {
	switch {
	case r.Type == gjson.String:
		return append(words, tokenize(r.Str)...)
	case r.IsArray() || r.IsObject():
		r.ForEach(func(_, value gjson.Result) bool {
			words = appendStrings(words, value)
			return true
		})
	}
	return words
}

// tokenize lowercases s and splits it on anything that is not a letter or a
// digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// attributePath turns a dotted attribute name into a gjson path.
func attributePath(attr string) string {
	parts := strings.Split(attr, ".")
	for i, p := range parts {
		parts[i] = gjson.Escape(p)
	}
	return strings.Join(parts, ".")
}

type object struct {
	id string
}

func decodeObject(raw json.RawMessage) (object, error) {
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() || !gjson.ValidBytes(raw) {
		return object{}, errors.New("object is not a JSON object")
	}
	id := parsed.Get("objectID")
	switch id.Type {
	case gjson.String:
		if id.Str != "" {
			return object{id: id.Str}, nil
		}
	case gjson.Number:
		return object{id: id.Raw}, nil
	default:
	}
	return object{}, errors.New("object has no objectID")
}
