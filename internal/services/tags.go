package services

import (
	"github.com/jinsol/flowline/internal/flowline"
)

// ReorderForDisplay returns the persisted tag set reordered to match the
// order the caller supplied in their mutation request. Requested ids come
// first, in request order; tags outside the request keep their storage
// order after them. This is purely a presentation transform: association
// rows are a set and no ordering is ever written back.
func ReorderForDisplay(tags []flowline.Tag, requested []string) []flowline.Tag {
	if len(tags) == 0 || len(requested) == 0 {
		return tags
	}

	byID := make(map[string]flowline.Tag, len(tags))
	for _, t := range tags {
		byID[t.ID] = t
	}

	out := make([]flowline.Tag, 0, len(tags))
	taken := make(map[string]bool, len(requested))
	for _, id := range requested {
		if t, ok := byID[id]; ok && !taken[id] {
			out = append(out, t)
			taken[id] = true
		}
	}
	for _, t := range tags {
		if !taken[t.ID] {
			out = append(out, t)
		}
	}
	return out
}
