// Package app wires every Voidtable subsystem into a running table: provider
// construction from config, knowledge retrieval, the roster, the optional
// human takeover bridge, and the campaign loop that plays sessions back to
// back.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run plays the configured number of sessions, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithProvider,
// WithRetriever, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arkavel/voidtable/internal/config"
	"github.com/arkavel/voidtable/internal/human"
	"github.com/arkavel/voidtable/internal/kb"
	kbmcp "github.com/arkavel/voidtable/internal/kb/mcp"
	kbpostgres "github.com/arkavel/voidtable/internal/kb/postgres"
	"github.com/arkavel/voidtable/internal/observe"
	"github.com/arkavel/voidtable/internal/promptkit"
	"github.com/arkavel/voidtable/pkg/provider/llm"
	"github.com/arkavel/voidtable/pkg/provider/llm/replay"
	"github.com/arkavel/voidtable/pkg/types"
)

// App owns all subsystem lifetimes and runs the campaign.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	metrics  *observe.Metrics

	provider        llm.Provider
	providerName    string
	playerProviders map[string]llm.Provider

	retriever kb.Retriever
	roster    []*types.CharacterSheet
	prompts   *promptkit.Registry
	bridge    *human.Server

	sessions int
	watcher  *config.Watcher
	logLevel *slog.LevelVar

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry injects a provider registry instead of the default one.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithProvider injects the table's LLM provider instead of creating one from
// config. The name labels it for prompt-registry addressing.
func WithProvider(p llm.Provider, name string) Option {
	return func(a *App) {
		a.provider = p
		a.providerName = name
	}
}

// WithRetriever injects a knowledge retriever instead of connecting one.
func WithRetriever(r kb.Retriever) Option {
	return func(a *App) { a.retriever = r }
}

// WithRoster injects the character roster instead of loading it from config.
func WithRoster(roster []*types.CharacterSheet) Option {
	return func(a *App) { a.roster = roster }
}

// WithMetrics injects a metrics instance instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSessions sets how many sessions the campaign plays back to back.
func WithSessions(n int) Option {
	return func(a *App) {
		if n > 0 {
			a.sessions = n
		}
	}
}

// WithWatcher attaches a config file watcher; between sessions the campaign
// picks up roster and log-level changes from it.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithLogLevel hands the campaign the level var driving the process logger,
// so a config reload can retune verbosity between sessions.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: provider construction,
// replay capture setup, knowledge retriever connection, and roster loading.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:             cfg,
		sessions:        1,
		playerProviders: make(map[string]llm.Provider),
	}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = config.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.prompts == nil {
		a.prompts = promptkit.NewRegistry()
	}

	// ── 1. LLM providers ─────────────────────────────────────────────────
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	// ── 2. Knowledge retriever ───────────────────────────────────────────
	if err := a.initRetriever(ctx); err != nil {
		return nil, fmt.Errorf("app: init retriever: %w", err)
	}

	// ── 3. Roster ────────────────────────────────────────────────────────
	if err := a.initRoster(); err != nil {
		return nil, fmt.Errorf("app: init roster: %w", err)
	}

	// ── 4. Human takeover bridge ─────────────────────────────────────────
	if cfg.Session.EnableHumanInterface {
		a.bridge = human.NewServer(cfg.Server.HumanAddr, a.metrics)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initProviders builds the table's default provider and the per-character
// overrides, wrapping each in replay capture (default only) and metrics
// instrumentation. A table with no providers at all is legal: every agent
// runs on its deterministic fallback.
func (a *App) initProviders() error {
	base := a.provider
	entry := a.cfg.Providers.Default

	if base == nil && entry.Name != "" {
		p, err := a.registry.CreateLLM(entry)
		if err != nil {
			return fmt.Errorf("default provider %q: %w", entry.Name, err)
		}
		base = p
		a.providerName = entry.Name
	}

	// Replay wraps the raw provider so recorded transcripts hold real model
	// output; instrumentation goes outermost so playback hits still count.
	if mode := a.cfg.Session.Replay.Mode; mode != config.ReplayOff {
		rp, err := replay.New(base, replayMode(mode), a.cfg.Session.Replay.Path)
		if err != nil {
			return fmt.Errorf("replay %q: %w", mode, err)
		}
		a.closers = append(a.closers, rp.Close)
		base = rp.ForAgent("table")
	}
	a.provider = observe.WrapProvider(base, a.metrics, a.providerName, "table")

	for character, pe := range a.cfg.Providers.Players {
		p, err := a.registry.CreateLLM(pe)
		if err != nil {
			return fmt.Errorf("provider %q for %s: %w", pe.Name, character, err)
		}
		a.playerProviders[character] = observe.WrapProvider(p, a.metrics, pe.Name, character)
	}
	return nil
}

// initRetriever connects the Director's lore backend. An MCP server wins over
// the pgvector store; neither configured means static lore only.
func (a *App) initRetriever(ctx context.Context) error {
	if a.retriever != nil {
		return nil // injected
	}

	if mcpCfg := a.cfg.Knowledge.MCP; mcpCfg != nil {
		r, err := kbmcp.Connect(ctx, kbmcp.Config{
			Command: mcpCfg.Command,
			URL:     mcpCfg.URL,
			Tool:    mcpCfg.Tool,
		})
		if err != nil {
			return err
		}
		a.retriever = r
		a.closers = append(a.closers, r.Close)
		slog.Info("lore retrieval over MCP", "tool", mcpCfg.Tool)
		return nil
	}

	if dsn := a.cfg.Knowledge.PostgresDSN; dsn != "" {
		embedder, err := a.registry.CreateEmbeddings(a.cfg.Providers.Embeddings)
		if err != nil {
			return fmt.Errorf("embeddings provider: %w", err)
		}
		r, err := kbpostgres.Connect(ctx, dsn, embedder)
		if err != nil {
			return err
		}
		a.retriever = r
		a.closers = append(a.closers, func() error {
			r.Close()
			return nil
		})
		slog.Info("lore retrieval over pgvector")
	}
	return nil
}

// initRoster loads the merged roster unless one was injected.
func (a *App) initRoster() error {
	if a.roster != nil {
		return nil
	}
	roster, err := config.LoadRoster(a.cfg)
	if err != nil {
		return err
	}
	a.roster = roster
	slog.Info("roster loaded", "characters", len(roster))
	return nil
}

// replayMode maps the config enum onto the replay package's.
func replayMode(m config.ReplayMode) replay.Mode {
	switch m {
	case config.ReplayPlayback:
		return replay.ModeReplay
	case config.ReplayHybrid:
		return replay.ModeHybrid
	default:
		return replay.ModeRecord
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the human bridge (when configured) and plays the campaign: the
// configured number of sessions back to back, reloading roster and log level
// from the config watcher between them. It returns once the last session's
// record is written or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.bridge != nil {
		if err := a.bridge.Start(ctx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, func() error {
			return a.bridge.Close(context.Background())
		})
	}

	sm := NewSessionManager(SessionManagerConfig{
		Config:          a.cfg,
		Provider:        a.provider,
		ProviderName:    a.providerName,
		PlayerProviders: a.playerProviders,
		Retriever:       a.retriever,
		Prompts:         a.prompts,
		Roster:          a.roster,
		Bridge:          a.bridge,
		Metrics:         a.metrics,
		Watcher:         a.watcher,
		LogLevel:        a.logLevel,
	})

	slog.Info("campaign starting", "sessions", a.sessions, "roster", len(a.roster))
	return sm.Run(ctx, a.sessions)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.watcher != nil {
			a.watcher.Stop()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
