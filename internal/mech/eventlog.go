package mech

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType names one kind of session event.
type EventType string

const (
	EventSessionStart      EventType = "session_start"
	EventSessionEnd        EventType = "session_end"
	EventRoundStart        EventType = "round_start"
	EventRoundSummary      EventType = "round_summary"
	EventDeclaration       EventType = "action_declared"
	EventAdjudicationStart EventType = "adjudication_start"
	EventResolution        EventType = "action_resolved"
	EventSynthesis         EventType = "synthesis"
	EventCombatAction      EventType = "combat_action"
	EventClockCreated      EventType = "clock_created"
	EventClockUpdated      EventType = "clock_updated"
	EventClockFilled       EventType = "clock_filled"
	EventClockExpired      EventType = "clock_expired"
	EventVoidChanged       EventType = "void_changed"
	EventSoulcreditChanged EventType = "soulcredit_changed"
	EventConditionAdded    EventType = "condition_added"
	EventEnemySpawned      EventType = "enemy_spawned"
	EventEnemyDefeated     EventType = "enemy_defeated"
	EventActionInvalidated EventType = "action_invalidated"
	EventDamageDealt       EventType = "damage_dealt"
	EventDeathSave         EventType = "death_save"
	EventCharacterSnapshot EventType = "character_snapshot"
	EventMissionDebrief    EventType = "mission_debrief"
	EventVendorArrived     EventType = "vendor_arrived"
	EventVendorGateCleared EventType = "vendor_gate_cleared"
)

// Event is one line in the append-only session event stream. The stream is
// the authoritative record for replay and analysis; append order matches
// causal production order.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Round     int            `json:"round"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventLog is an append-only JSON-line event writer. It keeps an in-memory
// copy of every event for end-of-session restructuring.
type EventLog struct {
	mu        sync.Mutex
	sessionID string
	round     int
	w         io.Writer
	file      *os.File
	events    []Event
	clock     func() time.Time
}

// NewEventLog creates a log writing to session_<id>.jsonl under outputDir.
// An empty outputDir keeps the log purely in memory.
func NewEventLog(outputDir, sessionID string) (*EventLog, error) {
	el := &EventLog{sessionID: sessionID, clock: time.Now}
	if outputDir == "" {
		return el, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create %q: %w", outputDir, err)
	}
	path := filepath.Join(outputDir, fmt.Sprintf("session_%s.jsonl", sessionID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %q: %w", path, err)
	}
	el.file = f
	el.w = f
	return el, nil
}

// NewMemoryEventLog creates an in-memory log, used by tests and by engines
// that are constructed before the session id is known.
func NewMemoryEventLog(sessionID string) *EventLog {
	return &EventLog{sessionID: sessionID, clock: time.Now}
}

// SetClock overrides the timestamp source. Tests use a fixed clock so replay
// comparison can normalise timestamps.
func (l *EventLog) SetClock(fn func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = fn
}

// SetRound updates the round number stamped on subsequent events.
func (l *EventLog) SetRound(round int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.round = round
}

// Emit appends one event to the stream. Write failures are logged, never
// propagated: a full disk must not kill the session mid-round.
func (l *EventLog) Emit(typ EventType, payload map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{
		Timestamp: l.clock().UTC(),
		SessionID: l.sessionID,
		Round:     l.round,
		Type:      typ,
		Payload:   payload,
	}
	l.events = append(l.events, ev)

	if l.w == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("eventlog marshal failed", "type", typ, "err", err)
		return
	}
	if _, err := l.w.Write(append(b, '\n')); err != nil {
		slog.Warn("eventlog write failed", "type", typ, "err", err)
	}
}

// Events returns a copy of every event emitted so far.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Close flushes and closes the underlying file, if any.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.w = nil
	if err != nil {
		return fmt.Errorf("eventlog: close: %w", err)
	}
	return nil
}
