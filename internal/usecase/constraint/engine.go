// Package constraint applies named content rules to agent output.
package constraint

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
	"conductor/internal/infra/tracer"
)

// Options configures an Engine.
type Options struct {
	// Disabled rule names are treated as unknown.
	Disabled []string
	// Rewrites extend DefaultRewrites for basic_safety.
	Rewrites []Rewrite
}

// Engine applies named rules in order. It is safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	rules    map[string]Rule
	aliases  map[string]string
	disabled map[string]bool
	logger   *slog.Logger
}

// New builds an Engine with the built-in rules. It rejects rewrites whose
// replacement contains any rewrite phrase, since those can never settle.
func New(opts Options, log *slog.Logger) (*Engine, error) {
	rewrites := append(append([]Rewrite{}, DefaultRewrites...), opts.Rewrites...)
	if err := checkRewrites(rewrites); err != nil {
		return nil, err
	}

	log = logger.OrDiscard(log)
	e := &Engine{
		rules: map[string]Rule{
			domain.ConstraintBasicSafety:       softenDirectives(rewrites, log),
			domain.ConstraintSecurityReview:    redactAll(secretRedactions),
			domain.ConstraintPrivacyProtection: redactAll(personalDataRedactions),
			domain.ConstraintCodeSafety:        flagDangerousCode,
		},
		aliases: map[string]string{
			domain.ConstraintHumanGroundedLock: domain.ConstraintBasicSafety,
		},
		disabled: make(map[string]bool, len(opts.Disabled)),
		logger:   log,
	}
	for _, name := range opts.Disabled {
		e.disabled[name] = true
	}
	return e, nil
}

// MustNew is New for built-in options that are known to be valid.
func MustNew(opts Options, log *slog.Logger) *Engine {
	e, err := New(opts, log)
	if err != nil {
		panic(err)
	}
	return e
}

func checkRewrites(rewrites []Rewrite) error {
	for i, rw := range rewrites {
		if strings.TrimSpace(rw.From) == "" {
			return domain.NewSubSystemError("constraint", "constraint.New", domain.ErrInvalidInput,
				fmt.Sprintf("rewrite %d has an empty phrase", i))
		}
		to := strings.ToLower(rw.To)
		for _, other := range rewrites {
			if strings.Contains(to, strings.ToLower(strings.TrimSpace(other.From))) {
				return domain.NewSubSystemError("constraint", "constraint.New", domain.ErrInvalidInput,
					fmt.Sprintf("replacement %q contains phrase %q", rw.To, other.From))
			}
		}
	}
	return nil
}

// Register adds or replaces a rule. rule must be idempotent.
func (e *Engine) Register(name string, rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[name] = rule
}

// Known reports whether name resolves to an enabled rule.
func (e *Engine) Known(name string) bool {
	_, ok := e.lookup(name)
	return ok
}

func (e *Engine) lookup(name string) (Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.disabled[name] {
		return nil, false
	}
	if target, ok := e.aliases[name]; ok {
		if e.disabled[target] {
			return nil, false
		}
		name = target
	}
	rule, ok := e.rules[name]
	return rule, ok
}

// Apply runs the named rules over content in the given order. Unknown names
// are skipped. Applied lists the names whose rule changed the text.
func (e *Engine) Apply(ctx context.Context, content string, names []string) domain.ConstraintResult {
	_, span := tracer.StartSpan(ctx, "constraint.apply",
		trace.WithAttributes(tracer.StringsAttr("constraint.requested", names)),
	)
	defer span.End()

	current := content
	applied := []string{}
	for _, name := range names {
		rule, ok := e.lookup(name)
		if !ok {
			e.logger.Debug("unknown constraint ignored", "constraint", name)
			continue
		}
		out, ok := e.run(name, rule, current)
		if !ok || out == current {
			continue
		}
		current = out
		applied = append(applied, name)
	}

	result := domain.ConstraintResult{
		Content:  current,
		Modified: current != content,
		Applied:  applied,
	}
	span.SetAttributes(
		tracer.BoolAttr("constraint.modified", result.Modified),
		tracer.StringsAttr("constraint.applied", applied),
	)
	tracer.SetOK(span)
	return result
}

// run evaluates one rule, treating a panic as "no change".
func (e *Engine) run(name string, rule Rule, content string) (out string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("constraint rule panicked", "constraint", name, "panic", r)
			out, ok = content, false
		}
	}()
	return rule(content), true
}

// ApplyText is Apply without tracing context, returning only the text.
func (e *Engine) ApplyText(content string, names []string) string {
	return e.Apply(context.Background(), content, names).Content
}
