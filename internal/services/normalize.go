package services

import (
	"time"
	"unicode/utf8"

	"github.com/jinsol/flowline/internal/flowline"
)

// maxNameLength bounds workflow names, matching the storage column intent.
const maxNameLength = 128

// sentinelKeys are the settings whose value may be the "inherit default"
// sentinel string.
var sentinelKeys = []string{
	flowline.SettingTimezone,
	flowline.SettingSaveDataError,
	flowline.SettingSaveDataSuccess,
	flowline.SettingSaveManualExecs,
}

// Normalize prepares a proposed workflow for persistence.
//
// Settings equal to their global default are removed entirely rather than
// stored, so the persisted override stays minimal and later changes to the
// global default apply to workflows that never opted out. When the entity
// carries a name the update timestamp is stamped (the store's partial
// update would not bump it otherwise) and structural validation runs;
// a violation is fatal.
func Normalize(wf *flowline.Workflow, defaultTimeout int) error {
	for _, key := range sentinelKeys {
		if s, ok := wf.Settings[key].(string); ok && s == flowline.SettingDefault {
			delete(wf.Settings, key)
		}
	}
	if v, ok := wf.Settings[flowline.SettingExecutionTimeout]; ok {
		if n, ok := asNumber(v); ok && n == float64(defaultTimeout) {
			delete(wf.Settings, flowline.SettingExecutionTimeout)
		}
	}

	if wf.Name == "" {
		return nil
	}
	wf.UpdatedAt = time.Now()
	return validate(wf)
}

func validate(wf *flowline.Workflow) error {
	if utf8.RuneCountInString(wf.Name) > maxNameLength {
		return &ValidationError{Field: "name", Reason: "exceeds 128 characters"}
	}
	seen := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if n.ID == "" {
			return &ValidationError{Field: "nodes", Reason: "contains a node without an id"}
		}
		if seen[n.ID] {
			return &ValidationError{Field: "nodes", Reason: "contains duplicate node id " + n.ID}
		}
		seen[n.ID] = true
		if n.Type == "" {
			return &ValidationError{Field: "nodes", Reason: "node " + n.ID + " has no type"}
		}
	}
	return nil
}

// asNumber coerces the numeric representations a settings value can take
// after a JSON round-trip.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
