package services

import (
	"errors"
	"fmt"
)

// ErrWorkflowNotFound is returned when a workflow does not exist or is not
// shared with the caller. The two cases are deliberately indistinguishable
// so listings cannot be probed for workflows the caller may not see.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrBadFilter is returned when a raw listing filter is not parseable
// JSON. A filter that parses but fails schema validation is not an error;
// it degrades to an unfiltered listing.
var ErrBadFilter = errors.New("filter is not valid JSON")

// ErrIntegrity is returned when the canonical record is missing
// immediately after a successful write.
var ErrIntegrity = errors.New("workflow record missing after update")

// ValidationError reports a structural problem with a mutated workflow.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid workflow: %s %s", e.Field, e.Reason)
}
