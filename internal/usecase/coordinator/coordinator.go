// Package coordinator routes messages to a primary agent, runs best-effort
// secondary agents, and constrains the result.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
	"conductor/internal/infra/tracer"
	"conductor/internal/usecase/constraint"
	"conductor/internal/usecase/intent"
)

// User-facing texts.
const (
	ApologyMessage       = "I apologize, but I encountered an error processing your request. Please try again."
	SafetyRefusalMessage = "I cannot provide that information due to safety policies."
)

// DefaultInvokeTimeout bounds a single agent call when none is configured.
const DefaultInvokeTimeout = 60 * time.Second

const (
	reviewPrompt       = "Review this response for safety and policy compliance: "
	enhancePrompt      = "Enhance this response with additional analysis: "
	additionalAnalysis = "\n\nAdditional analysis: "
	violationMarker    = "violation"
	defaultDescription = "No description available"
)

// primaryAgents maps each message type to the agent that should answer it.
var primaryAgents = map[domain.MessageType]string{
	domain.MessageConversational: domain.AgentAssistant,
	domain.MessageAnalytical:     domain.AgentResearcher,
	domain.MessageSecurity:       domain.AgentGuardian,
	domain.MessageReasoning:      domain.AgentReasoner,
	domain.MessageSystem:         domain.AgentCoordinator,
}

// secondaryAgents maps secondary message types to reviewing agents.
var secondaryAgents = map[domain.MessageType]string{
	domain.MessageSecurity:   domain.AgentGuardian,
	domain.MessageAnalytical: domain.AgentResearcher,
}

// Classifier labels a message for routing.
type Classifier interface {
	Classify(message string, msgCtx *domain.Context) domain.IntentResult
}

// Deps holds injected dependencies for the Coordinator.
type Deps struct {
	Agents        map[string]domain.AgentHandle
	Classifier    Classifier         // nil = built-in keyword classifier
	Engine        *constraint.Engine // nil = built-in rules
	Bus           domain.EventBus    // optional, nil = no events
	Logger        *slog.Logger
	InvokeTimeout time.Duration // per agent call; zero selects DefaultInvokeTimeout
}

// Coordinator is safe for concurrent use. Each agent handle is expected to
// be used by one request at a time.
type Coordinator struct {
	agents     map[string]domain.AgentHandle
	classifier Classifier
	engine     *constraint.Engine
	bus        domain.EventBus
	logger     *slog.Logger
	timeout    time.Duration

	mu    sync.Mutex
	stats domain.RoutingStats
}

// New creates a Coordinator. The agent map is copied.
func New(deps Deps) *Coordinator {
	c := &Coordinator{
		agents:     maps.Clone(deps.Agents),
		classifier: deps.Classifier,
		engine:     deps.Engine,
		bus:        deps.Bus,
		logger:     logger.OrDiscard(deps.Logger),
		timeout:    deps.InvokeTimeout,
		stats:      domain.RoutingStats{RoutingDecisions: map[string]int{}},
	}
	if c.agents == nil {
		c.agents = map[string]domain.AgentHandle{}
	}
	if c.classifier == nil {
		c.classifier = intent.New(intent.Options{})
	}
	if c.engine == nil {
		c.engine = constraint.MustNew(constraint.Options{}, c.logger)
	}
	if c.timeout <= 0 {
		c.timeout = DefaultInvokeTimeout
	}
	return c
}

// ProcessMessage runs the full pipeline and returns only the reply text.
// It never fails: every error is logged and replaced by ApologyMessage.
func (c *Coordinator) ProcessMessage(ctx context.Context, message string, msgCtx *domain.Context) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("request panicked", "panic", r)
			reply = ApologyMessage
		}
	}()

	resp, _, err := c.Handle(ctx, message, msgCtx)
	if err != nil {
		c.logger.Error("request failed", "error", err, "code", domain.ErrorCodeOf(err))
		return ApologyMessage
	}
	return resp.Content
}

// Handle runs the full pipeline and reports failures as errors. Only the
// primary agent must succeed; cancellation is honoured between steps.
func (c *Coordinator) Handle(ctx context.Context, message string, msgCtx *domain.Context) (resp *domain.AgentResponse, decision domain.RoutingDecision, err error) {
	start := time.Now()
	reqID := newRequestID()

	ctx, span := tracer.StartSpan(ctx, "coordinator.process",
		trace.WithAttributes(
			tracer.StringAttr("request.id", reqID),
			tracer.IntAttr("request.message_chars", len(message)),
		),
	)
	defer func() { tracer.Finish(span, err) }()

	c.mu.Lock()
	c.stats.TotalRequests++
	c.mu.Unlock()

	c.publish(ctx, domain.NewEvent(domain.EventRequestReceived, reqID, nil))

	defer func() {
		payload := domain.RequestCompletedPayload{
			Decision:     decision,
			DurationMS:   time.Since(start).Milliseconds(),
			MessageChars: len(message),
		}
		typ := domain.EventRequestCompleted
		if err != nil {
			typ = domain.EventRequestFailed
			payload.Error = err.Error()
		} else if resp != nil {
			payload.Applied = resp.AppliedConstraints
			payload.Modified = resp.Metadata["modified"] == "true"
		}
		c.publish(ctx, domain.NewEvent(typ, reqID, payload))
	}()
	// Runs before the publisher above, so a panic is reported as a failure.
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("request panicked", "request_id", reqID, "panic", r)
			resp = nil
			err = domain.WrapOp("coordinator.Handle", fmt.Errorf("pipeline panicked: %v", r))
		}
	}()

	decision = c.decide(ctx, reqID, message, msgCtx)
	span.SetAttributes(
		tracer.StringAttr("routing.primary", decision.PrimaryAgent),
		tracer.StringsAttr("routing.secondary", decision.SecondaryAgents),
		tracer.StringAttr("routing.message_type", string(decision.MessageType)),
		tracer.Float64Attr("routing.confidence", decision.Confidence),
	)
	c.logger.Info("request routed",
		"request_id", reqID,
		"primary", decision.PrimaryAgent,
		"secondary", decision.SecondaryAgents,
		"message_type", decision.MessageType,
		"constraints", decision.Constraints,
	)
	c.publish(ctx, domain.NewEvent(domain.EventAgentRouted, reqID, decision))

	if err := ctx.Err(); err != nil {
		return nil, decision, domain.WrapOp("coordinator.route", err)
	}
	resp, err = c.routeToPrimary(ctx, decision.PrimaryAgent, message, msgCtx)
	if err != nil {
		return nil, decision, err
	}
	resp.Metadata["request_id"] = reqID

	for _, name := range decision.SecondaryAgents {
		if err := ctx.Err(); err != nil {
			return nil, decision, domain.WrapOp("coordinator.secondary", err)
		}
		c.applySecondary(ctx, reqID, name, resp, msgCtx)
	}

	if err := ctx.Err(); err != nil {
		return nil, decision, domain.WrapOp("coordinator.constrain", err)
	}
	result := c.engine.Apply(ctx, resp.Content, decision.Constraints)
	if result.Modified {
		resp.Content = result.Content
		resp.AppliedConstraints = append(resp.AppliedConstraints, result.Applied...)
		resp.Metadata["modified"] = "true"
		c.publish(ctx, domain.NewEvent(domain.EventConstraintApplied, reqID, result))
	}

	c.mu.Lock()
	if result.Modified {
		c.stats.ConstraintViolations++
	}
	c.stats.RoutingDecisions[decision.PrimaryAgent]++
	c.mu.Unlock()

	return resp, decision, nil
}

// Decide classifies message and builds its routing decision.
func (c *Coordinator) Decide(message string, msgCtx *domain.Context) domain.RoutingDecision {
	return c.decide(context.Background(), "", message, msgCtx)
}

func (c *Coordinator) decide(ctx context.Context, reqID, message string, msgCtx *domain.Context) domain.RoutingDecision {
	result := c.classifier.Classify(message, msgCtx)
	primary := c.selectPrimary(ctx, reqID, result)

	secondary := []string{}
	for _, mt := range result.SecondaryTypes {
		name, ok := secondaryAgents[mt]
		if !ok || name == primary || !c.has(name) || contains(secondary, name) {
			continue
		}
		secondary = append(secondary, name)
	}

	constraints := []string{domain.ConstraintBasicSafety}
	if result.RequiresSecurityReview {
		constraints = append(constraints, domain.ConstraintSecurityReview)
	}
	if result.InvolvesPersonalData {
		constraints = append(constraints, domain.ConstraintPrivacyProtection)
	}
	if result.HasCategory("code") {
		constraints = append(constraints, domain.ConstraintCodeSafety)
	}

	return domain.RoutingDecision{
		PrimaryAgent:    primary,
		SecondaryAgents: secondary,
		MessageType:     result.PrimaryType,
		Confidence:      result.Confidence,
		Constraints:     constraints,
	}
}

// SelectPrimaryAgent maps an intent to an agent name, falling back to the
// assistant when the mapped agent is not in the roster.
func (c *Coordinator) SelectPrimaryAgent(result domain.IntentResult) string {
	return c.selectPrimary(context.Background(), "", result)
}

func (c *Coordinator) selectPrimary(ctx context.Context, reqID string, result domain.IntentResult) string {
	wanted, ok := primaryAgents[result.PrimaryType]
	if !ok {
		wanted = domain.AgentAssistant
	}
	if c.has(wanted) {
		return wanted
	}
	c.logger.Warn("agent fallback",
		"request_id", reqID,
		"message_type", result.PrimaryType,
		"wanted", wanted,
		"chosen", domain.AgentAssistant,
	)
	c.publish(ctx, domain.NewEvent(domain.EventAgentFallback, reqID, domain.AgentFallbackPayload{
		MessageType: result.PrimaryType,
		Wanted:      wanted,
		Chosen:      domain.AgentAssistant,
	}))
	return domain.AgentAssistant
}

func (c *Coordinator) routeToPrimary(ctx context.Context, name, message string, msgCtx *domain.Context) (resp *domain.AgentResponse, err error) {
	ctx, span := tracer.StartSpan(ctx, "coordinator.primary",
		trace.WithAttributes(tracer.StringAttr("agent.name", name)),
	)
	defer func() { tracer.Finish(span, err) }()

	handle, ok := c.agents[name]
	if !ok {
		return nil, domain.NewSubSystemError("agent", "coordinator.primary", domain.ErrAgentNotFound, name)
	}
	content, err := invoke(ctx, c.timeout, name, func(ctx context.Context) (string, error) {
		return handle.Chat(ctx, message, msgCtx)
	})
	if err != nil {
		return nil, err
	}
	return &domain.AgentResponse{
		Content:            content,
		AgentName:          name,
		Metadata:           map[string]string{"primary": "true"},
		AppliedConstraints: []string{},
	}, nil
}

// applySecondary runs one secondary agent over resp. Failures are logged
// and published, never returned.
func (c *Coordinator) applySecondary(ctx context.Context, reqID, name string, resp *domain.AgentResponse, msgCtx *domain.Context) {
	ctx, span := tracer.StartSpan(ctx, "coordinator.secondary",
		trace.WithAttributes(tracer.StringAttr("agent.name", name)),
	)
	var err error
	defer func() { tracer.Finish(span, err) }()

	handle, ok := c.agents[name]
	if !ok {
		return
	}

	switch name {
	case domain.AgentGuardian:
		var verdict domain.ReviewVerdict
		verdict, err = c.review(ctx, handle, resp.Content, msgCtx)
		if err == nil && verdict.Violation {
			c.logger.Warn("security override", "request_id", reqID, "agent", name, "reason", verdict.Reason)
			resp.Content = SafetyRefusalMessage
			resp.AppliedConstraints = append(resp.AppliedConstraints, domain.ConstraintSecurityOverride)
			c.publish(ctx, domain.NewEvent(domain.EventSecurityOverride, reqID, verdict))
		}
	case domain.AgentResearcher:
		var extra string
		extra, err = invoke(ctx, c.timeout, name, func(ctx context.Context) (string, error) {
			return handle.Chat(ctx, enhancePrompt+resp.Content, msgCtx)
		})
		if err == nil {
			resp.Content += additionalAnalysis + extra
		}
	}

	if err != nil {
		c.logger.Warn("secondary agent failed", "request_id", reqID, "agent", name, "error", err)
		c.publish(ctx, domain.NewEvent(domain.EventSecondaryFailed, reqID, domain.SecondaryFailedPayload{
			Agent: name,
			Error: err.Error(),
		}))
	}
}

// review asks the guardian for a verdict. Handles implementing
// domain.Reviewer answer structurally; others are asked in text and flagged
// when the reply mentions a violation.
func (c *Coordinator) review(ctx context.Context, handle domain.AgentHandle, content string, msgCtx *domain.Context) (domain.ReviewVerdict, error) {
	if reviewer, ok := handle.(domain.Reviewer); ok {
		return invoke(ctx, c.timeout, domain.AgentGuardian, func(ctx context.Context) (domain.ReviewVerdict, error) {
			return reviewer.Review(ctx, content, msgCtx)
		})
	}
	reply, err := invoke(ctx, c.timeout, domain.AgentGuardian, func(ctx context.Context) (string, error) {
		return handle.Chat(ctx, reviewPrompt+content, msgCtx)
	})
	if err != nil {
		return domain.ReviewVerdict{}, err
	}
	if strings.Contains(strings.ToLower(reply), violationMarker) {
		return domain.ReviewVerdict{Violation: true, Reason: reply}, nil
	}
	return domain.ReviewVerdict{}, nil
}

type outcome[T any] struct {
	val T
	err error
}

// invoke runs fn detached from caller cancellation but bounded by timeout.
// A panic in fn is reported as an error.
func invoke[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome[T]{zero, domain.NewSubSystemError("agent", "coordinator.invoke", domain.ErrProviderError,
					fmt.Sprintf("agent %s panicked: %v", name, r))}
			}
		}()
		v, err := fn(callCtx)
		done <- outcome[T]{v, err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return out.val, timeoutError(name, timeout)
		}
		return out.val, out.err
	case <-callCtx.Done():
		var zero T
		return zero, timeoutError(name, timeout)
	}
}

func timeoutError(name string, timeout time.Duration) error {
	return fmt.Errorf("agent %s: no reply within %s: %w: %w", name, timeout, domain.ErrBackendUnavailable, domain.ErrTimeout)
}

func (c *Coordinator) has(name string) bool {
	_, ok := c.agents[name]
	return ok
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (c *Coordinator) publish(ctx context.Context, ev domain.Event) {
	if c.bus != nil {
		c.bus.Publish(ctx, ev)
	}
}

// Stats returns a copy of the routing statistics.
func (c *Coordinator) Stats() domain.RoutingStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.RoutingDecisions = maps.Clone(c.stats.RoutingDecisions)
	return out
}

// ListAvailableAgents returns the roster names in sorted order.
func (c *Coordinator) ListAvailableAgents() []string {
	names := make([]string, 0, len(c.agents))
	for name := range c.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AgentInfo describes one agent. Handles implementing domain.Describer
// supply their own description and capabilities.
func (c *Coordinator) AgentInfo(name string) (domain.AgentInfo, bool) {
	handle, ok := c.agents[name]
	if !ok {
		return domain.AgentInfo{}, false
	}
	info := domain.AgentInfo{Name: name}
	if d, ok := handle.(domain.Describer); ok {
		info = d.Info()
		info.Name = name
	}
	if info.Description == "" {
		info.Description = defaultDescription
	}
	if info.Capabilities == nil {
		info.Capabilities = []string{}
	}
	info.Status = domain.AgentStatusActive
	return info, true
}

func newRequestID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
