// Package outcome lifts structured state changes out of the Director's
// free-form narration: clock deltas, void and soulcredit changes, conditions,
// position moves, effect blocks, and the control markers that drive scene
// progression.
//
// The LLM response is untrusted input. Parsing never mutates engine state —
// it produces one immutable [Report] that the adjudication path applies,
// which keeps the parser testable and allows dry-run previews.
package outcome

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/pkg/types"
)

// ClockUpdate is one extracted clock delta.
type ClockUpdate struct {
	Clock    string
	Ticks    int
	Reason   string
	Explicit bool
}

// VoidDelta is one extracted void change.
type VoidDelta struct {
	Amount   int
	Reason   string
	HighRisk bool
}

// SoulcreditDelta is one extracted soulcredit change.
type SoulcreditDelta struct {
	Amount int
	Reason string
}

// SessionEnd is a parsed [SESSION_END: ...] marker.
type SessionEnd struct {
	Result string // "VICTORY", "DEFEAT", or "DRAW"
	Reason string
}

// NewClock is a parsed [NEW_CLOCK: Name | Max | Description] marker.
type NewClock struct {
	Name        string
	Max         int
	Description string
}

// StoryAdvance is a parsed [ADVANCE_STORY: Location | Situation] marker.
type StoryAdvance struct {
	Location  string
	Situation string
}

// SpawnSpec is a parsed [SPAWN_ENEMY: name | template | count | position | tactics]
// marker. All five fields are required; incomplete markers land in
// [Report.InvalidSpawns] instead, for a compliance retry.
type SpawnSpec struct {
	Name     string
	Template string
	Count    int
	Position string
	Tactics  string
}

// DespawnSpec is a parsed [DESPAWN_ENEMY: name | reason] marker.
type DespawnSpec struct {
	Name   string
	Reason string
}

// EffectType classifies an EFFECT block.
type EffectType string

const (
	EffectDamage   EffectType = "damage"
	EffectDebuff   EffectType = "debuff"
	EffectStatus   EffectType = "status"
	EffectMovement EffectType = "movement"
	EffectReveal   EffectType = "reveal"
)

// Effect is a parsed EFFECT block (or a synthesised fallback attack effect).
type Effect struct {
	Type     EffectType
	Target   string
	Amount   int
	Duration int
	Detail   string
	Position string

	// Fallback marks effects synthesised from the action's damage numbers
	// because the narration omitted an EFFECT block on a successful attack.
	Fallback bool
}

// Report is the full bundle of state changes parsed from one narration.
type Report struct {
	ClockUpdates []ClockUpdate
	VoidDeltas   []VoidDelta

	// PurgeNotes are recovery markers ("purge attempted") that carry no
	// numeric delta; the Director weighs them narratively.
	PurgeNotes []string

	Soulcredit []SoulcreditDelta
	Conditions []mech.Condition
	Position   string

	SessionEnd   *SessionEnd
	NewClocks    []NewClock
	PivotTheme   string
	AdvanceStory *StoryAdvance

	Spawns        []SpawnSpec
	InvalidSpawns []string
	Despawns      []DespawnSpec
	Surrenders    []string
	Flees         []string

	Effects []Effect
}

// Parser extracts a [Report] from Director narration. It is stateless and
// safe for concurrent use.
type Parser struct{}

// New returns a Parser.
func New() *Parser { return &Parser{} }

// Parse runs every extraction pass over narration for the given action and
// resolution, against the currently active clocks.
func (p *Parser) Parse(narration string, action types.ActionDeclaration, res types.ActionResolution, clocks []mech.Clock) Report {
	var r Report

	r.ClockUpdates = parseExplicitClocks(narration)
	if len(r.ClockUpdates) == 0 {
		r.ClockUpdates = inferImplicitClocks(narration, res, clocks)
	}

	r.VoidDeltas, r.PurgeNotes = parseVoid(narration, action, res)
	r.Soulcredit = parseSoulcredit(narration)
	r.Conditions = parseConditions(narration)
	r.Position = parsePosition(narration, action)

	parseControlMarkers(narration, &r)

	r.Effects = parseEffects(narration, action, res)

	return r
}

// ─────────────────────────────────────────────────────────────────────────────
// Explicit markers
// ─────────────────────────────────────────────────────────────────────────────

var (
	clockMarkerRe = regexp.MustCompile(`📊\s*([^:\n]+?):\s*([+-]\d+)(?:\s*\(([^)]*)\))?`)
	voidMarkerRe  = regexp.MustCompile(`⚫\s*Void:\s*([+-]?\d+)(?:\s*\(([^)]*)\))?`)
	soulMarkerRe  = regexp.MustCompile(`⚖️\s*Soulcredit:\s*([+-]\d+)(?:\s*\(([^)]*)\))?`)
)

func parseExplicitClocks(narration string) []ClockUpdate {
	var out []ClockUpdate
	for _, m := range clockMarkerRe.FindAllStringSubmatch(narration, -1) {
		ticks, err := strconv.Atoi(m[2])
		if err != nil || ticks == 0 {
			continue
		}
		out = append(out, ClockUpdate{
			Clock:    strings.TrimSpace(m[1]),
			Ticks:    ticks,
			Reason:   strings.TrimSpace(m[3]),
			Explicit: true,
		})
	}
	return out
}

func parseSoulcredit(narration string) []SoulcreditDelta {
	var out []SoulcreditDelta
	for _, m := range soulMarkerRe.FindAllStringSubmatch(narration, -1) {
		amt, err := strconv.Atoi(m[1])
		if err != nil || amt == 0 {
			continue
		}
		out = append(out, SoulcreditDelta{Amount: amt, Reason: strings.TrimSpace(m[2])})
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Void extraction
// ─────────────────────────────────────────────────────────────────────────────

var (
	voidPlainRe      = regexp.MustCompile(`(?i)\+(\d+)\s+void\b`)
	voidCorruptionRe = regexp.MustCompile(`(?i)\b(\d+)\s+void\s+corruption\b`)
)

var (
	voidManipWords = []string{"channels the void", "draws on the void", "void energy", "opens the breach", "taps the rift"}
	feedbackWords  = []string{"psychic feedback", "backlash", "mind recoils", "lash of static"}
	shortcutWords  = []string{"ritual shortcut", "cuts the rite short", "skips the invocation"}
	recoveryWords  = []string{"ground", "grounds", "center", "centers", "centre", "meditate", "meditates"}
	purgeWords     = []string{"purge", "purges", "expel the void", "expels the void"}
)

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func parseVoid(narration string, action types.ActionDeclaration, res types.ActionResolution) ([]VoidDelta, []string) {
	lower := strings.ToLower(narration)
	var deltas []VoidDelta
	var notes []string

	// Explicit markers first; ⚫ takes priority over prose numerals.
	explicit := false
	for _, m := range voidMarkerRe.FindAllStringSubmatch(narration, -1) {
		amt, err := strconv.Atoi(m[1])
		if err != nil || amt == 0 {
			continue
		}
		deltas = append(deltas, VoidDelta{Amount: amt, Reason: strings.TrimSpace(m[2])})
		explicit = true
	}
	if !explicit {
		for _, m := range voidPlainRe.FindAllStringSubmatch(lower, -1) {
			if amt, err := strconv.Atoi(m[1]); err == nil && amt > 0 {
				deltas = append(deltas, VoidDelta{Amount: amt, Reason: "void gain in narration"})
				explicit = true
			}
		}
	}
	if !explicit {
		for _, m := range voidCorruptionRe.FindAllStringSubmatch(lower, -1) {
			if amt, err := strconv.Atoi(m[1]); err == nil && amt > 0 {
				deltas = append(deltas, VoidDelta{Amount: amt, Reason: "void corruption in narration"})
				explicit = true
			}
		}
	}

	// Heuristics only when the narration carried no explicit number.
	if !explicit {
		switch {
		case action.IsRitual && !res.Success:
			deltas = append(deltas, VoidDelta{Amount: 1, Reason: "failed ritual"})
		case containsAny(lower, voidManipWords) && !res.Success:
			deltas = append(deltas, VoidDelta{Amount: 1, Reason: "void manipulation gone wrong", HighRisk: true})
		case containsAny(lower, feedbackWords):
			deltas = append(deltas, VoidDelta{Amount: 1, Reason: "psychic feedback"})
		case containsAny(lower, shortcutWords):
			deltas = append(deltas, VoidDelta{Amount: 1, Reason: "ritual shortcut", HighRisk: true})
		}
	}

	if res.Success && containsAny(strings.ToLower(action.Intent), recoveryWords) {
		deltas = append(deltas, VoidDelta{Amount: -1, Reason: "grounding recovery"})
	}
	if containsAny(strings.ToLower(action.Intent), purgeWords) {
		notes = append(notes, "purge attempted")
	}

	return deltas, notes
}

// ─────────────────────────────────────────────────────────────────────────────
// Conditions and position
// ─────────────────────────────────────────────────────────────────────────────

func parseConditions(narration string) []mech.Condition {
	lower := strings.ToLower(narration)
	var out []mech.Condition
	if strings.Contains(lower, "headache") || strings.Contains(lower, "migraine") {
		out = append(out, mech.Condition{
			Name: "Mental Strain", Type: "mental", Penalty: -2, Duration: -1,
			Description: "a splitting pressure behind the eyes",
		})
	}
	if strings.Contains(lower, "overheat") || strings.Contains(lower, "crack") || strings.Contains(lower, "damaged equipment") {
		out = append(out, mech.Condition{
			Name: "Equipment Damage", Type: "equipment", Penalty: -2, Duration: -1,
			Description: "gear running past tolerance",
		})
	}
	return out
}

var (
	positionMarkerRe = regexp.MustCompile(`\[POSITION:\s*([^\]]+)\]`)
	movesFromRe      = regexp.MustCompile(`(?i)moves? from\s+\S+\s+to\s+([A-Za-z][\w-]*)`)
	shiftsToRe       = regexp.MustCompile(`(?i)shifts? to\s+([A-Za-z][\w-]*)`)
)

// parsePosition resolves the actor's new position in priority order: explicit
// narration marker, the action's declared target position, then movement
// prose. Empty means no movement.
func parsePosition(narration string, action types.ActionDeclaration) string {
	if m := positionMarkerRe.FindStringSubmatch(narration); m != nil {
		return normalizePosition(m[1])
	}
	if action.TargetPosition != "" {
		return normalizePosition(action.TargetPosition)
	}
	if m := movesFromRe.FindStringSubmatch(narration); m != nil {
		return normalizePosition(m[1])
	}
	if m := shiftsToRe.FindStringSubmatch(narration); m != nil {
		return normalizePosition(m[1])
	}
	return ""
}

// normalizePosition title-cases a position token so "near" and "Near" compare
// equal downstream.
func normalizePosition(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
}
