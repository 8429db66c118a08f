package domain

// MessageType is the closed set of intent labels the classifier can assign.
type MessageType string

const (
	MessageConversational MessageType = "conversational"
	MessageAnalytical     MessageType = "analytical"
	MessageSecurity       MessageType = "security"
	MessageReasoning      MessageType = "reasoning"
	MessageSystem         MessageType = "system"
)

// MessageTypes lists every MessageType in declaration order.
var MessageTypes = []MessageType{
	MessageConversational,
	MessageAnalytical,
	MessageSecurity,
	MessageReasoning,
	MessageSystem,
}

// Valid reports whether t belongs to the closed set.
func (t MessageType) Valid() bool {
	for _, mt := range MessageTypes {
		if t == mt {
			return true
		}
	}
	return false
}

// Well-known agent names used by the routing table.
const (
	AgentAssistant   = "assistant"
	AgentResearcher  = "researcher"
	AgentGuardian    = "guardian"
	AgentReasoner    = "reasoner"
	AgentCoordinator = "coordinator"
)

// Constraint names understood by the constraint engine.
const (
	ConstraintBasicSafety       = "basic_safety"
	ConstraintSecurityReview    = "security_review"
	ConstraintPrivacyProtection = "privacy_protection"
	ConstraintCodeSafety        = "code_safety"
	ConstraintHumanGroundedLock = "human_grounded_lock"

	// ConstraintSecurityOverride is recorded when a guardian review replaces the response.
	ConstraintSecurityOverride = "security_override"
)

// IntentResult is the classifier's verdict for one message.
type IntentResult struct {
	PrimaryType            MessageType   `json:"primary_type"`
	Confidence             float64       `json:"confidence"`
	SecondaryTypes         []MessageType `json:"secondary_types,omitempty"`
	RequiresSecurityReview bool          `json:"requires_security_review"`
	InvolvesPersonalData   bool          `json:"involves_personal_data"`
	Categories             []string      `json:"categories,omitempty"`
}

// HasCategory reports whether the result carries the given category tag.
func (r IntentResult) HasCategory(category string) bool {
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// RoutingDecision is the per-request plan produced by the coordinator.
// Treat it as immutable once returned.
type RoutingDecision struct {
	PrimaryAgent    string      `json:"primary_agent"`
	SecondaryAgents []string    `json:"secondary_agents,omitempty"`
	MessageType     MessageType `json:"message_type"`
	Confidence      float64     `json:"confidence"`
	Constraints     []string    `json:"constraints"`
}

// AgentResponse accumulates the response text as it moves through the pipeline.
type AgentResponse struct {
	Content            string            `json:"content"`
	AgentName          string            `json:"agent_name"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	AppliedConstraints []string          `json:"applied_constraints,omitempty"`
}

// ConstraintResult is returned by the constraint engine.
type ConstraintResult struct {
	Content  string   `json:"content"`
	Modified bool     `json:"modified"`
	Applied  []string `json:"applied_constraints"`
}

// RoutingStats is a point-in-time copy of the coordinator's counters.
type RoutingStats struct {
	TotalRequests        int            `json:"total_requests"`
	RoutingDecisions     map[string]int `json:"routing_decisions"`
	ConstraintViolations int            `json:"constraint_violations"`
}
