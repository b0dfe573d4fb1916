// Package flowline defines the core domain entities shared across the
// service, storage, and runtime layers.
package flowline

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// NodeType identifies what a node contributes to a workflow graph.
type NodeType string

const (
	NodeTypeSchedule NodeType = "schedule"
	NodeTypeWebhook  NodeType = "webhook"
	NodeTypeAction   NodeType = "action"
)

// Node is a single vertex in a workflow's graph payload. Trigger nodes
// (schedule, webhook) are what the activation runtime registers.
type Node struct {
	ID     string         `json:"id"`
	Type   NodeType       `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// IsTrigger reports whether the node can start an execution.
func (n Node) IsTrigger() bool {
	return n.Type == NodeTypeSchedule || n.Type == NodeTypeWebhook
}

// Tag labels workflows; many-to-many via an association table.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Workflow is the stored definition of an automation.
//
// Active must mirror the activation runtime at all times: true means the
// runtime currently holds this workflow's triggers registered. Settings is a
// sparse override map; keys equal to their global default are stripped before
// persistence so future default changes apply automatically.
type Workflow struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Active    bool           `json:"active"`
	Nodes     []Node         `json:"nodes"`
	Settings  map[string]any `json:"settings,omitempty"`
	Tags      []Tag          `json:"tags,omitempty"`
	VersionID string         `json:"versionId,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`

	// Role is the caller's share role, attached on listing when sharing
	// is enabled. Never persisted.
	Role string `json:"role,omitempty"`
}

// TriggerNodes returns the subset of nodes the runtime must register.
func (w *Workflow) TriggerNodes() []Node {
	var out []Node
	for _, n := range w.Nodes {
		if n.IsTrigger() {
			out = append(out, n)
		}
	}
	return out
}

// RoleGlobalOwner bypasses per-workflow share checks entirely.
const RoleGlobalOwner = "owner"

// User is the authenticated caller.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// IsGlobalOwner reports whether the user holds the global-owner role.
func (u *User) IsGlobalOwner() bool {
	return u != nil && u.Role == RoleGlobalOwner
}

// ShareRecord grants a user access to one workflow with a role.
type ShareRecord struct {
	WorkflowID string    `json:"workflowId"`
	UserID     string    `json:"userId"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`

	// Workflow is eagerly attached when the lookup requests the relation.
	Workflow *Workflow `json:"workflow,omitempty"`
}

// GenerateID returns a short random identifier with a type prefix,
// e.g. "wf-a1b2c3d4e5f60718".
func GenerateID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
