package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/domain"
	"conductor/internal/usecase/eventbus"
)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func completed(requestID, agent string, applied ...string) domain.Event {
	return domain.NewEvent(domain.EventRequestCompleted, requestID, domain.RequestCompletedPayload{
		Decision: domain.RoutingDecision{
			PrimaryAgent: agent,
			MessageType:  domain.MessageConversational,
			Confidence:   0.5,
			Constraints:  []string{domain.ConstraintBasicSafety},
		},
		Applied:      applied,
		Modified:     len(applied) > 0,
		DurationMS:   12,
		MessageChars: 5,
	})
}

func TestJournalRecordAndRecent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, completed("r1", "assistant")))
	time.Sleep(2 * time.Millisecond)

	failed := domain.NewEvent(domain.EventRequestFailed, "r2", domain.RequestCompletedPayload{
		Decision: domain.RoutingDecision{
			PrimaryAgent:    "guardian",
			SecondaryAgents: []string{"researcher"},
			MessageType:     domain.MessageSecurity,
			Confidence:      0.8,
			Constraints:     []string{domain.ConstraintBasicSafety, domain.ConstraintSecurityReview},
		},
		Error: "backend down",
	})
	require.NoError(t, j.Record(ctx, failed))

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	newest := entries[0]
	assert.Equal(t, "r2", newest.RequestID)
	assert.Equal(t, OutcomeFailed, newest.Outcome)
	assert.Equal(t, "guardian", newest.Decision.PrimaryAgent)
	assert.Equal(t, []string{"researcher"}, newest.Decision.SecondaryAgents)
	assert.Equal(t, domain.MessageSecurity, newest.Decision.MessageType)
	assert.InDelta(t, 0.8, newest.Decision.Confidence, 1e-9)
	assert.Equal(t, "backend down", newest.Error)
	assert.Equal(t, []string{}, newest.Applied)

	oldest := entries[1]
	assert.Equal(t, OutcomeCompleted, oldest.Outcome)
	assert.Equal(t, int64(12), oldest.DurationMS)
	assert.Equal(t, 5, oldest.MessageChars)
	assert.False(t, oldest.CreatedAt.IsZero())
}

func TestJournalStats(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, ev := range []domain.Event{
		completed("a", "assistant"),
		completed("b", "assistant", domain.ConstraintBasicSafety),
		completed("c", "guardian", domain.ConstraintSecurityOverride),
	} {
		require.NoError(t, j.Record(ctx, ev))
	}

	stats, err := j.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRequests)
	assert.Equal(t, map[string]int{"assistant": 2, "guardian": 1}, stats.RoutingDecisions)
	assert.Equal(t, 1, stats.ConstraintViolations)
}

func TestJournalStatsEmpty(t *testing.T) {
	j := newTestJournal(t)

	stats, err := j.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRequests)
	assert.NotNil(t, stats.RoutingDecisions)

	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournalRejectsOtherEvents(t *testing.T) {
	j := newTestJournal(t)

	err := j.Record(context.Background(), domain.NewEvent(domain.EventAgentFallback, "x", nil))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	bad := domain.Event{Type: domain.EventRequestCompleted, Payload: []byte(`{`)}
	err = j.Record(context.Background(), bad)
	assert.True(t, errors.Is(err, domain.ErrJournalWrite))
}

func TestJournalAttach(t *testing.T) {
	j := newTestJournal(t)
	bus := eventbus.New(nil)

	detach := j.Attach(bus)
	bus.Publish(context.Background(), completed("via-bus", "reasoner"))
	bus.Publish(context.Background(), domain.NewEvent(domain.EventAgentFallback, "ignored", nil))
	bus.Drain()

	detach()
	bus.Publish(context.Background(), completed("after-detach", "reasoner"))
	bus.Close()

	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "via-bus", entries[0].RequestID)
}

func TestJournalReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), completed("persisted", "assistant")))
	require.NoError(t, j.Close())

	j, err = Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	stats, err := j.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRequests)
}
