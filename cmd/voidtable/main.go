// Command voidtable runs a campaign of autonomous tabletop sessions: a
// Director agent and a party of player agents playing YAGS-style scenes over
// a local message bus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkavel/voidtable/internal/app"
	"github.com/arkavel/voidtable/internal/config"
	"github.com/arkavel/voidtable/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	sessions := flag.Int("sessions", 1, "number of sessions to play back to back")
	scenario := flag.String("scenario", "", "force this scenario theme (overrides config)")
	combat := flag.Bool("combat", false, "force a combat encounter in the opening scene")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voidtable: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voidtable: %v\n", err)
		}
		return 1
	}
	if *scenario != "" {
		cfg.Session.ForceScenario = *scenario
	}
	if *combat {
		cfg.Session.ForceCombat = true
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads between sessions can
	// retune verbosity without rebuilding the handler.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("voidtable starting",
		"config", *configPath,
		"sessions", *sessions,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voidtable",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Config watcher ────────────────────────────────────────────────────────
	// Campaigns longer than one session pick up roster and log-level edits
	// between sessions.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		slog.Info("config file changed, applying between sessions")
	})
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}

	printStartupSummary(cfg, *sessions)

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg,
		app.WithSessions(*sessions),
		app.WithWatcher(watcher),
		app.WithLogLevel(level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("campaign error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, sessions int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Voidtable — campaign setup     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Campaign", cfg.Session.Name)
	printRow("Sessions", fmt.Sprintf("%d", sessions))
	printRow("Provider", providerLabel(cfg.Providers.Default))
	printRow("Characters", fmt.Sprintf("%d inline", len(cfg.Roster.Characters)))
	printRow("Knowledge", knowledgeLabel(cfg))
	if cfg.Session.EnableHumanInterface {
		printRow("Human seat", cfg.Server.HumanAddr)
	}
	if cfg.Session.Replay.Mode != config.ReplayOff {
		printRow("Replay", string(cfg.Session.Replay.Mode))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s   : %-19s ║\n", label, value)
}

func providerLabel(entry config.ProviderEntry) string {
	if entry.Name == "" {
		return "fallback only"
	}
	if entry.Model != "" {
		return entry.Name + " / " + entry.Model
	}
	return entry.Name
}

func knowledgeLabel(cfg *config.Config) string {
	switch {
	case cfg.Knowledge.MCP != nil:
		return "mcp"
	case cfg.Knowledge.PostgresDSN != "":
		return "pgvector"
	default:
		return "static"
	}
}
