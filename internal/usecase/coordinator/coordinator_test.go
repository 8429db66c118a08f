package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/domain"
)

type handleFunc func(ctx context.Context, message string, msgCtx *domain.Context) (string, error)

func (f handleFunc) Chat(ctx context.Context, message string, msgCtx *domain.Context) (string, error) {
	return f(ctx, message, msgCtx)
}

func reply(text string) handleFunc {
	return func(context.Context, string, *domain.Context) (string, error) { return text, nil }
}

type describedHandle struct {
	handleFunc
	info domain.AgentInfo
}

func (d describedHandle) Info() domain.AgentInfo { return d.info }

type reviewerHandle struct {
	handleFunc
	verdict domain.ReviewVerdict
	seen    string
}

func (r *reviewerHandle) Review(_ context.Context, content string, _ *domain.Context) (domain.ReviewVerdict, error) {
	r.seen = content
	return r.verdict, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) ofType(typ domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, ev := range b.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func newTestCoordinator(agents map[string]domain.AgentHandle) (*Coordinator, *recordingBus) {
	bus := &recordingBus{}
	return New(Deps{Agents: agents, Bus: bus, InvokeTimeout: time.Second}), bus
}

func fullRoster() map[string]domain.AgentHandle {
	return map[string]domain.AgentHandle{
		domain.AgentAssistant:  reply("Happy to help."),
		domain.AgentResearcher: reply("Here is the analysis."),
		domain.AgentGuardian:   reply("Looks fine."),
		domain.AgentReasoner:   reply("Because it follows."),
	}
}

func TestProcessMessageRoutesToPrimary(t *testing.T) {
	c, bus := newTestCoordinator(fullRoster())

	got := c.ProcessMessage(context.Background(), "hello there", nil)
	assert.Equal(t, "Happy to help.", got)

	completed := bus.ofType(domain.EventRequestCompleted)
	require.Len(t, completed, 1)
	assert.NotEmpty(t, completed[0].RequestID)
	assert.Len(t, bus.ofType(domain.EventAgentRouted), 1)
}

func TestStatsAfterRepeatedCalls(t *testing.T) {
	c, _ := newTestCoordinator(fullRoster())

	const n = 5
	for i := 0; i < n; i++ {
		c.ProcessMessage(context.Background(), "hello there", nil)
	}

	stats := c.Stats()
	assert.Equal(t, n, stats.TotalRequests)
	assert.Equal(t, n, stats.RoutingDecisions[domain.AgentAssistant])
	assert.Equal(t, 0, stats.ConstraintViolations)
}

func TestStatsReturnsCopy(t *testing.T) {
	c, _ := newTestCoordinator(fullRoster())
	c.ProcessMessage(context.Background(), "hello there", nil)

	stats := c.Stats()
	stats.RoutingDecisions[domain.AgentAssistant] = 99
	assert.Equal(t, 1, c.Stats().RoutingDecisions[domain.AgentAssistant])
}

func TestConcurrentRequestsKeepCountsConsistent(t *testing.T) {
	c, _ := newTestCoordinator(fullRoster())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ProcessMessage(context.Background(), "hello there", nil)
		}()
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, 20, stats.TotalRequests)
	assert.Equal(t, 20, stats.RoutingDecisions[domain.AgentAssistant])
}

func TestSelectPrimaryAgentFallsBackToAssistant(t *testing.T) {
	c, bus := newTestCoordinator(map[string]domain.AgentHandle{domain.AgentAssistant: reply("ok")})

	for _, mt := range domain.MessageTypes {
		got := c.SelectPrimaryAgent(domain.IntentResult{PrimaryType: mt})
		if got != domain.AgentAssistant {
			t.Errorf("SelectPrimaryAgent(%s) = %q, want assistant", mt, got)
		}
	}
	// Every type but conversational needed a substitute.
	assert.Len(t, bus.ofType(domain.EventAgentFallback), len(domain.MessageTypes)-1)
}

func TestSelectPrimaryAgentTable(t *testing.T) {
	c, _ := newTestCoordinator(fullRoster())

	tests := map[domain.MessageType]string{
		domain.MessageConversational: domain.AgentAssistant,
		domain.MessageAnalytical:     domain.AgentResearcher,
		domain.MessageSecurity:       domain.AgentGuardian,
		domain.MessageReasoning:      domain.AgentReasoner,
		domain.MessageSystem:         domain.AgentAssistant,
	}
	for mt, want := range tests {
		assert.Equal(t, want, c.SelectPrimaryAgent(domain.IntentResult{PrimaryType: mt}), mt)
	}
}

func TestDecideAlwaysIncludesBasicSafety(t *testing.T) {
	c, _ := newTestCoordinator(fullRoster())

	for _, msg := range []string{
		"",
		"hello",
		"my password leaked, analyze the breach",
		"why does this python function fail",
		"my email address is a@b.co",
		"restart the server",
	} {
		d := c.Decide(msg, nil)
		require.NotEmpty(t, d.Constraints, msg)
		assert.Equal(t, domain.ConstraintBasicSafety, d.Constraints[0], msg)
	}
}

func TestDecideFlags(t *testing.T) {
	c, _ := newTestCoordinator(fullRoster())

	d := c.Decide("my password leaked: debug this python code, my email address is a@b.co", nil)
	assert.Equal(t, []string{
		domain.ConstraintBasicSafety,
		domain.ConstraintSecurityReview,
		domain.ConstraintPrivacyProtection,
		domain.ConstraintCodeSafety,
	}, d.Constraints)
}

func TestDecideCreativeStory(t *testing.T) {
	c, _ := newTestCoordinator(fullRoster())

	d := c.Decide("I need help writing a creative story about time travel", nil)
	assert.Equal(t, domain.MessageConversational, d.MessageType)
	assert.Equal(t, domain.AgentAssistant, d.PrimaryAgent)
	assert.Empty(t, d.SecondaryAgents)
	assert.Equal(t, []string{domain.ConstraintBasicSafety}, d.Constraints)
}

func TestDecideSecondaryAgents(t *testing.T) {
	c, _ := newTestCoordinator(fullRoster())

	d := c.Decide("analyze the data trends around this password", nil)
	assert.Equal(t, domain.AgentResearcher, d.PrimaryAgent)
	assert.Equal(t, []string{domain.AgentGuardian}, d.SecondaryAgents)

	roster := fullRoster()
	delete(roster, domain.AgentGuardian)
	c2, _ := newTestCoordinator(roster)
	d = c2.Decide("analyze the data trends around this password", nil)
	assert.Empty(t, d.SecondaryAgents, "unavailable secondaries are dropped")
}

func TestGuardianViolationOverridesResponse(t *testing.T) {
	for _, marker := range []string{"VIOLATION: leaks secrets", "possible violation", "Violation"} {
		t.Run(marker, func(t *testing.T) {
			var prompt string
			roster := fullRoster()
			roster[domain.AgentGuardian] = handleFunc(func(_ context.Context, msg string, _ *domain.Context) (string, error) {
				prompt = msg
				return marker, nil
			})
			c, bus := newTestCoordinator(roster)

			resp, _, err := c.Handle(context.Background(), "analyze the data trends around this password", nil)
			require.NoError(t, err)

			assert.Equal(t, SafetyRefusalMessage, resp.Content)
			assert.Contains(t, resp.AppliedConstraints, domain.ConstraintSecurityOverride)
			assert.Equal(t, "Review this response for safety and policy compliance: Here is the analysis.", prompt)
			assert.Len(t, bus.ofType(domain.EventSecurityOverride), 1)
		})
	}
}

func TestGuardianStructuredVerdict(t *testing.T) {
	roster := fullRoster()
	guardian := &reviewerHandle{handleFunc: reply("VIOLATION"), verdict: domain.ReviewVerdict{Violation: false}}
	roster[domain.AgentGuardian] = guardian
	c, _ := newTestCoordinator(roster)

	resp, _, err := c.Handle(context.Background(), "analyze the data trends around this password", nil)
	require.NoError(t, err)
	assert.Equal(t, "Here is the analysis.", resp.Content, "structured verdict wins over text")
	assert.Equal(t, "Here is the analysis.", guardian.seen)

	guardian.verdict = domain.ReviewVerdict{Violation: true, Reason: "leak"}
	resp, _, err = c.Handle(context.Background(), "analyze the data trends around this password", nil)
	require.NoError(t, err)
	assert.Equal(t, SafetyRefusalMessage, resp.Content)
}

func TestResearcherEnhancesResponse(t *testing.T) {
	roster := fullRoster()
	roster[domain.AgentGuardian] = reply("Keep passwords long.")
	var prompt string
	roster[domain.AgentResearcher] = handleFunc(func(_ context.Context, msg string, _ *domain.Context) (string, error) {
		prompt = msg
		return "Length beats complexity.", nil
	})
	c, _ := newTestCoordinator(roster)

	resp, decision, err := c.Handle(context.Background(), "password security breach analysis", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentGuardian, decision.PrimaryAgent)
	assert.Equal(t, []string{domain.AgentResearcher}, decision.SecondaryAgents)
	assert.Equal(t, "Enhance this response with additional analysis: Keep passwords long.", prompt)
	assert.Equal(t, "Keep passwords long.\n\nAdditional analysis: Length beats complexity.", resp.Content)
}

func TestSecondaryFailureIsNotFatal(t *testing.T) {
	roster := fullRoster()
	roster[domain.AgentGuardian] = handleFunc(func(context.Context, string, *domain.Context) (string, error) {
		return "", domain.ErrBackendUnavailable
	})
	c, bus := newTestCoordinator(roster)

	got := c.ProcessMessage(context.Background(), "analyze the data trends around this password", nil)
	assert.Equal(t, "Here is the analysis.", got)

	failed := bus.ofType(domain.EventSecondaryFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, string(failed[0].Payload), `"agent":"guardian"`)
}

func TestPrimaryFailureReturnsApology(t *testing.T) {
	tests := map[string]domain.AgentHandle{
		"error": handleFunc(func(context.Context, string, *domain.Context) (string, error) {
			return "", domain.ErrBackendUnavailable
		}),
		"panic": handleFunc(func(context.Context, string, *domain.Context) (string, error) {
			panic("boom")
		}),
	}
	for name, assistant := range tests {
		t.Run(name, func(t *testing.T) {
			c, bus := newTestCoordinator(map[string]domain.AgentHandle{domain.AgentAssistant: assistant})

			got := c.ProcessMessage(context.Background(), "hello", nil)
			assert.Equal(t, ApologyMessage, got)

			stats := c.Stats()
			assert.Equal(t, 1, stats.TotalRequests)
			assert.Empty(t, stats.RoutingDecisions)
			assert.Len(t, bus.ofType(domain.EventRequestFailed), 1)
		})
	}
}

type panicClassifier struct{}

func (panicClassifier) Classify(string, *domain.Context) domain.IntentResult { panic("classifier broke") }

func TestHandleReportsPanicAsError(t *testing.T) {
	bus := &recordingBus{}
	c := New(Deps{Agents: fullRoster(), Classifier: panicClassifier{}, Bus: bus, InvokeTimeout: time.Second})

	var (
		resp *domain.AgentResponse
		err  error
	)
	require.NotPanics(t, func() {
		resp, _, err = c.Handle(context.Background(), "hello", nil)
	})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "classifier broke")

	failed := bus.ofType(domain.EventRequestFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, string(failed[0].Payload), "classifier broke")
	assert.Empty(t, bus.ofType(domain.EventRequestCompleted))

	assert.Equal(t, ApologyMessage, c.ProcessMessage(context.Background(), "hello", nil))
}

func TestMissingPrimaryAgent(t *testing.T) {
	c, _ := newTestCoordinator(map[string]domain.AgentHandle{})

	_, decision, err := c.Handle(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.Equal(t, domain.AgentAssistant, decision.PrimaryAgent)
	assert.True(t, errors.Is(err, domain.ErrAgentNotFound))
	assert.Equal(t, domain.CodeAgentNotFound, domain.ErrorCodeOf(err))
}

func TestInvokeTimeoutIsBackendUnavailable(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	c := New(Deps{
		Agents: map[string]domain.AgentHandle{
			domain.AgentAssistant: handleFunc(func(context.Context, string, *domain.Context) (string, error) {
				<-block
				return "late", nil
			}),
		},
		InvokeTimeout: 20 * time.Millisecond,
	})

	_, _, err := c.Handle(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))
	assert.True(t, errors.Is(err, domain.ErrTimeout))
}

func TestCallerCancellationWaitsForInFlightCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var sawCancel bool
	c, _ := newTestCoordinator(map[string]domain.AgentHandle{
		domain.AgentAssistant: handleFunc(func(callCtx context.Context, _ string, _ *domain.Context) (string, error) {
			cancel()
			time.Sleep(10 * time.Millisecond)
			sawCancel = callCtx.Err() != nil
			return "done", nil
		}),
	})

	_, _, err := c.Handle(ctx, "hello", nil)
	assert.False(t, sawCancel, "in-flight call must not observe caller cancellation")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConstraintModificationCountsViolation(t *testing.T) {
	c, bus := newTestCoordinator(map[string]domain.AgentHandle{domain.AgentAssistant: reply("You must rest now.")})

	resp, _, err := c.Handle(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "It could be helpful to rest now.", resp.Content)
	assert.Equal(t, []string{domain.ConstraintBasicSafety}, resp.AppliedConstraints)
	assert.Equal(t, "true", resp.Metadata["primary"])
	assert.Equal(t, 1, c.Stats().ConstraintViolations)
	assert.Len(t, bus.ofType(domain.EventConstraintApplied), 1)
}

func TestListAvailableAgentsAndInfo(t *testing.T) {
	roster := fullRoster()
	roster["scribe"] = describedHandle{
		handleFunc: reply("noted"),
		info:       domain.AgentInfo{Name: "ignored", Description: "Takes notes", Capabilities: []string{"notes"}},
	}
	c, _ := newTestCoordinator(roster)

	assert.Equal(t, []string{"assistant", "guardian", "reasoner", "researcher", "scribe"}, c.ListAvailableAgents())

	info, ok := c.AgentInfo("scribe")
	require.True(t, ok)
	assert.Equal(t, domain.AgentInfo{Name: "scribe", Description: "Takes notes", Capabilities: []string{"notes"}, Status: domain.AgentStatusActive}, info)

	info, ok = c.AgentInfo(domain.AgentAssistant)
	require.True(t, ok)
	assert.Equal(t, "No description available", info.Description)
	assert.Equal(t, []string{}, info.Capabilities)
	assert.Equal(t, "active", info.Status)

	_, ok = c.AgentInfo("nobody")
	assert.False(t, ok)
}

func TestNewCopiesAgentMap(t *testing.T) {
	roster := fullRoster()
	c, _ := newTestCoordinator(roster)
	roster["late"] = reply("x")
	assert.False(t, strings.Contains(strings.Join(c.ListAvailableAgents(), ","), "late"))
}
