package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jinsol/flowline/internal/flowline"
)

func TestReorderForDisplay_MatchesRequestedOrder(t *testing.T) {
	persisted := []flowline.Tag{{ID: "b", Name: "B"}, {ID: "a", Name: "A"}}
	got := ReorderForDisplay(persisted, []string{"a", "b"})
	assert.Equal(t, []flowline.Tag{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}, got)
}

func TestReorderForDisplay_StragglersKeepStorageOrder(t *testing.T) {
	persisted := []flowline.Tag{{ID: "c"}, {ID: "b"}, {ID: "a"}}
	got := ReorderForDisplay(persisted, []string{"a"})
	assert.Equal(t, []flowline.Tag{{ID: "a"}, {ID: "c"}, {ID: "b"}}, got)
}

func TestReorderForDisplay_IgnoresUnknownAndDuplicateIDs(t *testing.T) {
	persisted := []flowline.Tag{{ID: "a"}, {ID: "b"}}
	got := ReorderForDisplay(persisted, []string{"zz", "b", "b"})
	assert.Equal(t, []flowline.Tag{{ID: "b"}, {ID: "a"}}, got)
}

func TestReorderForDisplay_EmptyInputsPassThrough(t *testing.T) {
	persisted := []flowline.Tag{{ID: "a"}}
	assert.Equal(t, persisted, ReorderForDisplay(persisted, nil))
	assert.Nil(t, ReorderForDisplay(nil, []string{"a"}))
}
