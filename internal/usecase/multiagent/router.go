package multiagent

import (
	"log/slog"
	"strings"

	"conductor/internal/infra/logger"
)

// PrefixRouter recognises an "@agent-name" prefix that addresses one agent
// directly, bypassing intent routing.
type PrefixRouter struct {
	known  map[string]bool
	logger *slog.Logger
}

// NewPrefixRouter creates a router for the given agent names. Names match
// case-insensitively.
func NewPrefixRouter(names []string, log *slog.Logger) *PrefixRouter {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[strings.ToLower(n)] = true
	}
	return &PrefixRouter{known: known, logger: logger.OrDiscard(log)}
}

// Route returns the addressed agent and the message with the prefix removed.
// ok is false when there is no prefix or it names an unknown agent; the
// message is then returned unchanged.
func (r *PrefixRouter) Route(message string) (agentName, rest string, ok bool) {
	content := strings.TrimSpace(message)
	if !strings.HasPrefix(content, "@") {
		return "", message, false
	}

	// Extract the name after @, up to the first space.
	name, body, _ := strings.Cut(content[1:], " ")
	name = strings.ToLower(name)

	if r.known[name] {
		r.logger.Debug("prefix matched agent", "agent", name)
		return name, strings.TrimSpace(body), true
	}
	r.logger.Debug("unknown prefix, using intent routing", "prefix", name)
	return "", message, false
}
