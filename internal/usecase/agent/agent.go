// Package agent implements the single configurable agent type routed to by
// the coordinator. Personas differ by Essence and process strategy only.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
	"conductor/internal/infra/tracer"
	"conductor/internal/usecase/constraint"
)

// DefaultBreath is the pause taken before every generation when none is configured.
const DefaultBreath = 500 * time.Millisecond

// Status values reported by State.
const (
	StatusIdle       = "idle"
	StatusProcessing = "processing"
)

// EssenceSource resolves an agent's essence by name.
type EssenceSource interface {
	Essence(ctx context.Context, name string) (*domain.Essence, error)
}

// ProcessFunc generates a reply for one message. It runs after the breath.
type ProcessFunc func(ctx context.Context, a *Agent, message string, msgCtx *domain.Context) (string, error)

// Deps holds injected dependencies for an Agent.
type Deps struct {
	Identity domain.AgentIdentity
	Essence  *domain.Essence    // optional, takes precedence over Essences
	Essences EssenceSource      // optional, nil = default essence
	Engine   *constraint.Engine // optional, nil = constraints are a no-op
	Process  ProcessFunc
	Breath   time.Duration // zero selects DefaultBreath, negative disables the pause
	Logger   *slog.Logger
}

// Agent is one persona in the roster.
type Agent struct {
	deps    Deps
	essence *domain.Essence
	logger  *slog.Logger

	mu      sync.Mutex
	breaths int
	status  string
	msgCtx  *domain.Context
}

// New creates an agent. Essence resolution never fails: a missing or
// malformed essence is replaced by DefaultEssence.
func New(ctx context.Context, deps Deps) *Agent {
	if deps.Breath == 0 {
		deps.Breath = DefaultBreath
	}
	log := logger.OrDiscard(deps.Logger).With("agent", deps.Identity.Name)
	a := &Agent{
		deps:   deps,
		logger: log,
		status: StatusIdle,
		msgCtx: domain.NewContext(),
	}
	a.essence = a.resolveEssence(ctx)
	return a
}

func (a *Agent) resolveEssence(ctx context.Context) *domain.Essence {
	if a.deps.Essence != nil {
		return a.deps.Essence
	}
	if a.deps.Essences == nil {
		a.logger.Warn("essence load failed, using default", "error", "no essence source")
		return DefaultEssence(a.deps.Identity.Name)
	}
	e, err := a.deps.Essences.Essence(ctx, a.deps.Identity.Name)
	if err != nil {
		a.logger.Warn("essence load failed, using default", "error", err)
		return DefaultEssence(a.deps.Identity.Name)
	}
	return e
}

// Name returns the agent's roster name.
func (a *Agent) Name() string { return a.deps.Identity.Name }

// Identity returns the agent's static configuration.
func (a *Agent) Identity() domain.AgentIdentity { return a.deps.Identity }

// Essence returns the resolved essence.
func (a *Agent) Essence() *domain.Essence { return a.essence }

// Breathe counts a breath and pauses for the configured duration. The pause
// always runs to completion; ctx is only checked once it is over.
func (a *Agent) Breathe(ctx context.Context) error {
	a.mu.Lock()
	a.breaths++
	n := a.breaths
	a.mu.Unlock()

	if a.deps.Breath > 0 {
		time.Sleep(a.deps.Breath)
	}
	a.logger.Debug("breath taken", "breath", n)
	return ctx.Err()
}

// Process breathes, then runs the agent's strategy.
func (a *Agent) Process(ctx context.Context, message string, msgCtx *domain.Context) (reply string, err error) {
	ctx, span := tracer.StartSpan(ctx, "agent.process",
		trace.WithAttributes(
			tracer.StringAttr("agent.name", a.Name()),
			tracer.IntAttr("agent.message_chars", len(message)),
		),
	)
	defer func() { tracer.Finish(span, err) }()

	if a.deps.Process == nil {
		return "", domain.NewSubSystemError("agent", "agent.Process", domain.ErrInvalidInput, "no process strategy for "+a.Name())
	}

	a.setStatus(StatusProcessing)
	defer a.setStatus(StatusIdle)

	if err := a.Breathe(ctx); err != nil {
		return "", domain.WrapOp("agent.Process", err)
	}
	return a.deps.Process(ctx, a, message, msgCtx)
}

// Chat makes Agent a domain.AgentHandle.
func (a *Agent) Chat(ctx context.Context, message string, msgCtx *domain.Context) (string, error) {
	return a.Process(ctx, message, msgCtx)
}

// ApplyConstraints runs the essence drift boundaries followed by the
// configured constraints over text.
func (a *Agent) ApplyConstraints(text string) string {
	if a.deps.Engine == nil {
		return text
	}
	names := make([]string, 0, len(a.essence.DriftBoundaries)+len(a.deps.Identity.Constraints))
	names = append(names, a.essence.DriftBoundaries...)
	names = append(names, a.deps.Identity.Constraints...)
	return a.deps.Engine.ApplyText(text, names)
}

// UpdateContext merges values into the agent's standing context.
func (a *Agent) UpdateContext(values *domain.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgCtx.Merge(values)
}

// Context returns a copy of the standing context.
func (a *Agent) Context() *domain.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.msgCtx.Clone()
}

func (a *Agent) setStatus(s string) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// State returns a snapshot of the agent.
func (a *Agent) State() domain.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.AgentState{
		Name:        a.Name(),
		EssenceTag:  a.essence.Tag,
		Status:      a.status,
		BreathCount: a.breaths,
		Provider:    a.deps.Identity.Provider,
		Model:       a.deps.Identity.Model,
		Context:     a.msgCtx.Map(),
	}
}

// Info implements domain.Describer.
func (a *Agent) Info() domain.AgentInfo {
	return domain.AgentInfo{
		Name:         a.Name(),
		Description:  a.deps.Identity.Description,
		Capabilities: append([]string(nil), a.deps.Identity.Capabilities...),
		Status:       domain.AgentStatusActive,
	}
}

var (
	_ domain.AgentHandle = (*Agent)(nil)
	_ domain.Describer   = (*Agent)(nil)
)
