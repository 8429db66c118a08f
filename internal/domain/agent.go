package domain

import "context"

// AgentHandle is anything the coordinator can route a message to.
type AgentHandle interface {
	Chat(ctx context.Context, message string, msgCtx *Context) (string, error)
}

// Describer is implemented by handles that can report their own metadata.
type Describer interface {
	Info() AgentInfo
}

// ReviewVerdict is the structured outcome of a safety review.
type ReviewVerdict struct {
	Violation bool   `json:"violation"`
	Reason    string `json:"reason,omitempty"`
}

// Reviewer is implemented by guardian handles that return a structured verdict
// instead of free text. The coordinator prefers it over text inspection.
type Reviewer interface {
	Review(ctx context.Context, content string, msgCtx *Context) (ReviewVerdict, error)
}

// AgentStatusActive is reported for every agent reachable by the coordinator.
const AgentStatusActive = "active"

// AgentInfo describes a routable agent for introspection.
type AgentInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Status       string   `json:"status"`
}

// AgentIdentity is the static configuration of one agent in the roster.
type AgentIdentity struct {
	Name         string            `json:"name"                   yaml:"name"`
	Description  string            `json:"description"            yaml:"description"`
	Capabilities []string          `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Provider     string            `json:"provider"               yaml:"provider"`
	Model        string            `json:"model"                  yaml:"model"`
	Room         string            `json:"room,omitempty"         yaml:"room,omitempty"`
	Modulations  []string          `json:"modulations,omitempty"  yaml:"modulations,omitempty"`
	Constraints  []string          `json:"constraints,omitempty"  yaml:"constraints,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"     yaml:"metadata,omitempty"`
}

// AgentState is a read-only snapshot of an agent instance.
type AgentState struct {
	Name        string            `json:"name"`
	EssenceTag  string            `json:"essence_tag"`
	Status      string            `json:"status"`
	BreathCount int               `json:"breath_count"`
	Provider    string            `json:"provider,omitempty"`
	Model       string            `json:"model,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
}
