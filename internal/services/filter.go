package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ListFilter is the typed, validated form of a caller-supplied listing
// filter. Only these three fields may narrow a listing; anything else in
// the raw payload is dropped before validation.
type ListFilter struct {
	ID     string
	Name   string
	Active *bool
}

var allowedFilterKeys = map[string]bool{
	"id":     true,
	"name":   true,
	"active": true,
}

// ParseListFilter decodes and validates a raw filter payload.
//
// An empty payload yields no filter. A payload that is not valid JSON is a
// fatal request error (ErrBadFilter). A payload that parses but fails the
// schema after allow-list pruning yields no filter rather than an error:
// invalid-but-parseable filters degrade to an unfiltered listing.
func ParseListFilter(raw []byte) (*ListFilter, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFilter, err)
	}

	// Drop every key outside the allow-list before validating, so
	// arbitrary fields can never reach the downstream query.
	for k := range obj {
		if !allowedFilterKeys[k] {
			delete(obj, k)
		}
	}

	f := &ListFilter{}
	seen := false
	for k, v := range obj {
		switch k {
		case "id":
			id, ok := filterID(v)
			if !ok {
				return nil, nil
			}
			f.ID = id
		case "name":
			s, ok := v.(string)
			if !ok {
				return nil, nil
			}
			f.Name = s
		case "active":
			b, ok := v.(bool)
			if !ok {
				return nil, nil
			}
			f.Active = &b
		}
		seen = true
	}
	if !seen {
		return nil, nil
	}
	return f, nil
}

// filterID accepts an id as a string or an integral JSON number,
// normalized to the store's string representation.
func filterID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, true
	case float64:
		if id != math.Trunc(id) {
			return "", false
		}
		return strconv.FormatInt(int64(id), 10), true
	default:
		return "", false
	}
}
