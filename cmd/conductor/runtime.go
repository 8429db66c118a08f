package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"conductor/internal/adapter/fragment"
	"conductor/internal/adapter/journal"
	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/logger"
	"conductor/internal/infra/tracer"
	"conductor/internal/usecase/constraint"
	"conductor/internal/usecase/coordinator"
	"conductor/internal/usecase/eventbus"
	"conductor/internal/usecase/intent"
	"conductor/internal/usecase/multiagent"
	"conductor/internal/usecase/sanctuary"
)

// needs selects the optional parts of the runtime a command uses.
type needs struct {
	llm     bool
	agents  bool // implies llm
	journal bool
	watch   bool
	tui     bool // terminal owned by the UI; console logging moves to a file
}

// runtime is the wired object graph shared by the commands.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	bus      *eventbus.Bus
	store    *fragment.FileStore
	composer *sanctuary.Composer
	engine   *constraint.Engine

	llm         *LLMComponents
	roster      *multiagent.Registry
	coordinator *coordinator.Coordinator
	broker      *multiagent.Broker
	router      *multiagent.PrefixRouter
	journal     *journal.SQLiteJournal

	closers []func() error
}

func newRuntime(ctx context.Context, n needs) (rt *runtime, err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}

	if n.tui {
		switch strings.ToLower(cfg.Logger.Output) {
		case "", "stderr", "stdout":
			cfg.Logger.Output = filepath.Join(os.TempDir(), "conductor-chat.log")
		}
		if cfg.Tracer.Exporter == "stdout" {
			cfg.Tracer.Enabled = false
		}
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	rt = &runtime{cfg: cfg, logger: log}
	rt.closers = append(rt.closers, closeLog)
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return rt, fmt.Errorf("tracer: %w", err)
	}
	rt.closers = append(rt.closers, func() error { return shutdownTracer(context.Background()) })

	rt.bus = eventbus.New(log)
	rt.closers = append(rt.closers, func() error { rt.bus.Close(); return nil })

	rt.store = fragment.NewFileStore(cfg.Sanctuary.Dir)
	rt.composer, err = sanctuary.NewComposer(rt.store, cfg.Sanctuary.CacheSize, log)
	if err != nil {
		return rt, err
	}

	rewrites := make([]constraint.Rewrite, 0, len(cfg.Constraints.Rewrites))
	for _, rw := range cfg.Constraints.Rewrites {
		rewrites = append(rewrites, constraint.Rewrite{From: rw.From, To: rw.To})
	}
	rt.engine, err = constraint.New(constraint.Options{Disabled: cfg.Constraints.Disabled, Rewrites: rewrites}, log)
	if err != nil {
		return rt, err
	}

	if n.journal && cfg.Journal.Enabled {
		if err := rt.openJournal(); err != nil {
			return rt, err
		}
	}

	if n.watch && cfg.Sanctuary.Watch {
		rt.startWatcher(ctx)
	}

	if n.llm || n.agents {
		rt.llm, err = initLLM(cfg, log)
		if err != nil {
			return rt, err
		}
	}

	if n.agents {
		if err := rt.buildAgents(ctx); err != nil {
			return rt, err
		}
	}
	return rt, nil
}

func (rt *runtime) openJournal() error {
	j, err := journal.Open(rt.cfg.Journal.Path, rt.logger)
	if err != nil {
		return err
	}
	rt.journal = j
	detach := j.Attach(rt.bus)
	// Closers run in reverse: pending journal writes finish before the database closes.
	rt.closers = append(rt.closers, j.Close, func() error {
		rt.bus.Drain()
		detach()
		return nil
	})
	return nil
}

func (rt *runtime) startWatcher(ctx context.Context) {
	w, err := fragment.NewWatcher(rt.store, 0, func(kind domain.FragmentKind, name string) {
		rt.composer.Invalidate(kind, name)
		rt.bus.Publish(ctx, domain.NewEvent(domain.EventFragmentChanged, "", domain.FragmentChangedPayload{Kind: kind, Name: name}))
	}, rt.logger)
	if errors.Is(err, fragment.ErrNoWatchDirs) {
		rt.logger.Warn("fragment watch disabled", "dir", rt.store.Root(), "error", err)
		return
	}
	if err != nil {
		rt.logger.Warn("fragment watch failed to start", "error", err)
		return
	}
	go w.Run(ctx)
	rt.closers = append(rt.closers, w.Close)
}

func (rt *runtime) buildAgents(ctx context.Context) error {
	cfg := rt.cfg
	roster, err := multiagent.Build(ctx, cfg.Agents.Instances, multiagent.RosterDeps{
		Providers:       rt.llm.Registry,
		DefaultProvider: cfg.LLM.DefaultProvider,
		MaxTokens: func(provider string) int {
			pc, _ := cfg.ProviderByName(provider)
			return pc.MaxTokens
		},
		Sanctuary: rt.composer,
		Engine:    rt.engine,
		Breath:    cfg.Agents.Breath,
		Logger:    rt.logger,
	})
	if err != nil {
		return err
	}
	rt.roster = roster

	rt.coordinator = coordinator.New(coordinator.Deps{
		Agents:        roster.Handles(),
		Classifier:    intent.FromConfig(cfg.Intent.Keywords, cfg.Intent.Categories, cfg.Intent.PersonalData),
		Engine:        rt.engine,
		Bus:           rt.bus,
		Logger:        rt.logger,
		InvokeTimeout: cfg.Coordinator.InvokeTimeout,
	})
	rt.broker = multiagent.NewBroker(roster, rt.bus, rt.logger)

	names := make([]string, 0, len(cfg.Agents.Instances))
	for _, inst := range cfg.Agents.Instances {
		names = append(names, inst.Name)
	}
	rt.router = multiagent.NewPrefixRouter(names, rt.logger)
	return nil
}

// Close releases everything in reverse construction order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("shutdown step failed", "error", err)
		}
	}
	rt.closers = nil
}
