package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/arkavel/voidtable/internal/config"
	"github.com/arkavel/voidtable/internal/human"
	"github.com/arkavel/voidtable/internal/kb"
	"github.com/arkavel/voidtable/internal/observe"
	"github.com/arkavel/voidtable/internal/promptkit"
	"github.com/arkavel/voidtable/internal/session"
	"github.com/arkavel/voidtable/pkg/provider/llm"
	"github.com/arkavel/voidtable/pkg/types"
)

// SessionManagerConfig carries everything a campaign's sessions share.
type SessionManagerConfig struct {
	Config          *config.Config
	Provider        llm.Provider
	ProviderName    string
	PlayerProviders map[string]llm.Provider
	Retriever       kb.Retriever
	Prompts         *promptkit.Registry
	Roster          []*types.CharacterSheet
	Bridge          *human.Server
	Metrics         *observe.Metrics

	// Watcher, when set, supplies a fresh config between sessions so roster
	// and log-level edits land without a restart.
	Watcher *config.Watcher

	// LogLevel is the level var driving the process logger; nil means
	// log-level changes from the watcher are logged but not applied.
	LogLevel *slog.LevelVar
}

// SessionManager plays sessions one at a time. Only one session may be
// active; the campaign loop in Run enforces that, and the mutex guards
// against concurrent callers of RunSession.
type SessionManager struct {
	cfg SessionManagerConfig

	mu     sync.Mutex
	active bool
	info   SessionInfo
	seq    int
}

// SessionInfo describes the currently (or most recently) active session.
type SessionInfo struct {
	SessionID string
	Name      string
	StartedAt time.Time
	Seq       int
}

// NewSessionManager creates a manager with no active session.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &SessionManager{cfg: cfg}
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns the current session's info. The second return is false when
// no session is active.
func (sm *SessionManager) Info() (SessionInfo, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info, sm.active
}

// Run plays n sessions back to back, applying config changes from the
// watcher between sessions. It stops early on ctx cancellation or when a
// session fails to assemble; a session that merely ends badly for the party
// does not stop the campaign.
func (sm *SessionManager) Run(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := sm.RunSession(ctx); err != nil {
			return err
		}
		if i < n-1 {
			sm.reload()
		}
	}
	return nil
}

// RunSession plays exactly one session. It errors if one is already active.
func (sm *SessionManager) RunSession(ctx context.Context) error {
	sm.mu.Lock()
	if sm.active {
		sm.mu.Unlock()
		return fmt.Errorf("app: session %s already active", sm.info.SessionID)
	}
	sm.seq++
	sm.active = true
	sm.info = SessionInfo{
		SessionID: sessionID(sm.cfg.Config.Session.Name, sm.seq),
		Name:      sm.cfg.Config.Session.Name,
		StartedAt: time.Now().UTC(),
		Seq:       sm.seq,
	}
	info := sm.info
	sm.mu.Unlock()

	defer func() {
		sm.mu.Lock()
		sm.active = false
		sm.mu.Unlock()
	}()

	sm.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	defer sm.cfg.Metrics.ActiveSessions.Add(ctx, -1)

	orch, err := session.New(sm.sessionConfig(info), sm.sessionDeps())
	if err != nil {
		return fmt.Errorf("app: assemble session %s: %w", info.SessionID, err)
	}

	slog.Info("session starting", "session", info.SessionID, "seq", info.Seq)
	start := time.Now()
	err = orch.Run(ctx)
	slog.Info("session finished", "session", info.SessionID,
		"duration", time.Since(start).Round(time.Second), "err", err)
	return err
}

// sessionConfig maps the app config onto one session's tuning.
func (sm *SessionManager) sessionConfig(info SessionInfo) session.Config {
	c := sm.cfg.Config
	return session.Config{
		ID:                   info.SessionID,
		Name:                 c.Session.Name,
		SocketPath:           c.Server.SocketPath,
		OutputDir:            c.Server.OutputDir,
		MaxRounds:            c.Session.MaxRounds,
		PartySize:            c.Session.PartySize,
		Language:             c.Session.Language,
		ForceScenario:        c.Session.ForceScenario,
		ForceCombat:          c.Session.ForceCombat,
		FreeTargeting:        c.Session.FreeTargeting,
		VendorSpawnFrequency: c.Session.VendorSpawnFrequency,
		ForceVendorGate:      c.Session.ForceVendorGate,
		DeclarationTimeout:   time.Duration(c.Session.DeclarationTimeout),
		Seed:                 c.Session.Seed,
	}
}

func (sm *SessionManager) sessionDeps() session.Deps {
	deps := session.Deps{
		Provider:        sm.cfg.Provider,
		PlayerProviders: sm.cfg.PlayerProviders,
		ProviderName:    sm.cfg.ProviderName,
		Retriever:       sm.cfg.Retriever,
		Prompts:         sm.cfg.Prompts,
		Roster:          sm.cfg.Roster,
		Metrics:         sm.cfg.Metrics,
	}
	if sm.cfg.Bridge != nil {
		deps.Controller = sm.cfg.Bridge
	}
	return deps
}

// reload picks up config edits between sessions: log level takes effect
// immediately, a changed inline roster is reloaded wholesale. Provider and
// server settings need a restart and are deliberately not re-read.
func (sm *SessionManager) reload() {
	if sm.cfg.Watcher == nil {
		return
	}
	fresh := sm.cfg.Watcher.Current()
	if fresh == nil {
		return
	}
	d := config.Diff(sm.cfg.Config, fresh)

	if d.LogLevelChanged {
		if sm.cfg.LogLevel != nil {
			sm.cfg.LogLevel.Set(d.NewLogLevel.Slog())
		}
		slog.Info("log level changed between sessions", "level", d.NewLogLevel)
	}

	if d.RosterChanged {
		for _, cd := range d.RosterChanges {
			slog.Info("roster change", "character", cd.Name,
				"added", cd.Added, "removed", cd.Removed,
				"skills", cd.SkillsChanged, "personality", cd.PersonalityChanged)
		}
		roster, err := config.LoadRoster(fresh)
		if err != nil {
			slog.Warn("roster reload failed, keeping previous roster", "err", err)
		} else {
			sm.cfg.Roster = roster
		}
	}

	sm.cfg.Config = fresh
}

// sessionID derives a stable, filesystem-safe id for one session.
func sessionID(name string, seq int) string {
	base := sanitizeName(name)
	if base == "" {
		base = "session"
	}
	return fmt.Sprintf("%s-%s-%02d", base, time.Now().UTC().Format("20060102T1504Z"), seq)
}

// sanitizeName lowercases and hyphenates a campaign name for use in ids and
// file names.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
