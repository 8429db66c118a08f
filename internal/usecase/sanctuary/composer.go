package sanctuary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
	"conductor/internal/infra/tracer"
)

// DefaultCacheSize is the per-kind cache capacity used when none is configured.
const DefaultCacheSize = 128

// Composer assembles prompts from fragments held in a FragmentStore.
// Parsed fragments are cached per kind; concurrent misses on one key share a
// single load.
type Composer struct {
	store       domain.FragmentStore
	essences    *lru.Cache[string, *domain.Essence]
	rooms       *lru.Cache[string, *domain.Room]
	modulations *lru.Cache[string, []domain.ModulationRule]
	group       singleflight.Group
	logger      *slog.Logger
}

// NewComposer creates a Composer. A cacheSize <= 0 selects DefaultCacheSize.
func NewComposer(store domain.FragmentStore, cacheSize int, log *slog.Logger) (*Composer, error) {
	if store == nil {
		return nil, fmt.Errorf("sanctuary: nil fragment store")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	essences, err := lru.New[string, *domain.Essence](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("essence cache: %w", err)
	}
	rooms, err := lru.New[string, *domain.Room](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("room cache: %w", err)
	}
	modulations, err := lru.New[string, []domain.ModulationRule](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("modulation cache: %w", err)
	}
	return &Composer{
		store:       store,
		essences:    essences,
		rooms:       rooms,
		modulations: modulations,
		logger:      logger.OrDiscard(log),
	}, nil
}

// Essence returns the parsed essence for an agent.
func (c *Composer) Essence(ctx context.Context, agent string) (*domain.Essence, error) {
	return load(ctx, c, c.essences, domain.FragmentEssence, agent, ParseEssence)
}

// Room returns the parsed room.
func (c *Composer) Room(ctx context.Context, room string) (*domain.Room, error) {
	return load(ctx, c, c.rooms, domain.FragmentRoom, room, ParseRoom)
}

// Modulations returns the rules of one modulation set in document order.
func (c *Composer) Modulations(ctx context.Context, set string) ([]domain.ModulationRule, error) {
	return load(ctx, c, c.modulations, domain.FragmentModulation, set, ParseModulations)
}

func load[T any](
	ctx context.Context,
	c *Composer,
	cache *lru.Cache[string, T],
	kind domain.FragmentKind,
	name string,
	parse func(name, text string) (T, error),
) (T, error) {
	if v, ok := cache.Get(name); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(groupKey(kind, name), func() (any, error) {
		if v, ok := cache.Get(name); ok {
			return v, nil
		}
		text, err := c.store.Fragment(ctx, kind, name)
		if err != nil {
			var fe *domain.FragmentError
			if errors.As(err, &fe) {
				return nil, err
			}
			return nil, &domain.FragmentError{Kind: kind, Name: name, Err: err}
		}
		parsed, err := parse(name, text)
		if err != nil {
			return nil, err
		}
		cache.Add(name, parsed)
		c.logger.Debug("fragment cached", "kind", kind, "name", name)
		return parsed, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func groupKey(kind domain.FragmentKind, name string) string {
	return string(kind) + "/" + name
}

// Invalidate drops one cached fragment so the next use reparses it.
func (c *Composer) Invalidate(kind domain.FragmentKind, name string) {
	switch kind {
	case domain.FragmentEssence:
		c.essences.Remove(name)
	case domain.FragmentRoom:
		c.rooms.Remove(name)
	case domain.FragmentModulation:
		c.modulations.Remove(name)
	}
	c.group.Forget(groupKey(kind, name))
}

// Purge empties every cache.
func (c *Composer) Purge() {
	c.essences.Purge()
	c.rooms.Purge()
	c.modulations.Purge()
}

// ComposePrompt builds the full prompt: essence, room, active modulation
// rules, constraints, context, then the user marker. Empty sections are left out.
func (c *Composer) ComposePrompt(ctx context.Context, agent, room, message string, msgCtx *domain.Context, modulations []string) (prompt string, err error) {
	ctx, span := tracer.StartSpan(ctx, "sanctuary.compose",
		trace.WithAttributes(
			tracer.StringAttr("sanctuary.agent", agent),
			tracer.StringAttr("sanctuary.room", room),
			tracer.StringsAttr("sanctuary.modulations", modulations),
		),
	)
	defer func() { tracer.Finish(span, err) }()

	essence, err := c.Essence(ctx, agent)
	if err != nil {
		return "", err
	}
	r, err := c.Room(ctx, room)
	if err != nil {
		return "", err
	}

	var rules []domain.ModulationRule
	for _, set := range modulations {
		setRules, err := c.Modulations(ctx, set)
		if err != nil {
			return "", err
		}
		rules = append(rules, setRules...)
	}
	SortByPriority(rules)

	constraints := make([]string, 0, len(essence.DriftBoundaries)+len(r.Constraints))
	constraints = append(constraints, essence.DriftBoundaries...)
	constraints = append(constraints, r.Constraints...)

	return joinSections(
		essenceSection(agent, essence),
		roomSection(r),
		modulationSection(rules),
		constraintsSection(constraints),
		contextSection(msgCtx),
		userSection(message),
	), nil
}

// ComposeBaselinePrompt builds an essence-only prompt with no room or
// modulation, for comparison against ComposePrompt.
func (c *Composer) ComposeBaselinePrompt(ctx context.Context, agent, message string, msgCtx *domain.Context) (prompt string, err error) {
	ctx, span := tracer.StartSpan(ctx, "sanctuary.compose",
		trace.WithAttributes(
			tracer.StringAttr("sanctuary.agent", agent),
			tracer.BoolAttr("sanctuary.baseline", true),
		),
	)
	defer func() { tracer.Finish(span, err) }()

	essence, err := c.Essence(ctx, agent)
	if err != nil {
		return "", err
	}
	return BaselinePrompt(agent, essence, message, msgCtx), nil
}

// BaselinePrompt renders an essence-only prompt from an already resolved essence.
func BaselinePrompt(agent string, essence *domain.Essence, message string, msgCtx *domain.Context) string {
	return joinSections(
		essenceSection(agent, essence),
		constraintsSection(essence.DriftBoundaries),
		contextSection(msgCtx),
		userSection(message),
	)
}

func joinSections(sections ...string) string {
	kept := sections[:0]
	for _, s := range sections {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}

func bulletBlock(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n\n" + heading)
	for _, item := range items {
		b.WriteString("\n- " + item)
	}
}

func essenceSection(agent string, e *domain.Essence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an agent with the following essence:\n\nCore Tone: %s", agent, e.CoreTone)
	bulletBlock(&b, "Behavioral Pillars:", e.BehavioralPillars)
	bulletBlock(&b, "Your modulation features include:", e.ModulationFeatures)
	if e.Notes != "" {
		b.WriteString("\n\nAdditional notes: " + e.Notes)
	}
	return b.String()
}

func kvItems(kv *domain.KV) []string {
	if kv == nil {
		return nil
	}
	items := make([]string, 0, kv.Len())
	for pair := kv.Oldest(); pair != nil; pair = pair.Next() {
		items = append(items, pair.Key+": "+pair.Value)
	}
	return items
}

func roomSection(r *domain.Room) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are currently in the %s, a space for %s.", r.Name, r.Purpose)
	bulletBlock(&b, "The atmosphere here is:", kvItems(r.Atmosphere))
	bulletBlock(&b, "In this room, modulate your responses with:", kvItems(r.Modulation))
	return b.String()
}

func modulationSection(rules []domain.ModulationRule) string {
	if len(rules) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Active modulation rules:")
	for _, r := range rules {
		b.WriteString("\n- " + r.Name + ": " + r.Effect)
	}
	return b.String()
}

func constraintsSection(constraints []string) string {
	if len(constraints) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You must honor these boundaries and constraints:")
	for _, c := range constraints {
		b.WriteString("\n- " + c)
	}
	return b.String()
}

func contextSection(msgCtx *domain.Context) string {
	if msgCtx.Len() == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Context:")
	msgCtx.Each(func(k, v string) {
		b.WriteString("\n- " + k + ": " + v)
	})
	return b.String()
}

func userSection(message string) string {
	return "User: " + message + "\n\nResponse:"
}
