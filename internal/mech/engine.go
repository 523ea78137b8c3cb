// Package mech is the deterministic rules core of Voidtable: YAGS-style dice
// resolution, difficulty computation, scene clocks with batched updates, the
// Void and Soulcredit ledgers, conditions, and the append-only event log.
//
// The engine is owned by the session orchestrator. Director adjudication
// mutates it only while the orchestrator awaits that adjudication, so no two
// writers ever overlap; the internal mutex exists for the read paths that
// prompt builders use mid-round.
package mech

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/arkavel/voidtable/pkg/dice"
	"github.com/arkavel/voidtable/pkg/types"
)

// Difficulty bounds. Every computed DC clamps into this window.
const (
	DifficultyMin = 10
	DifficultyMax = 40
)

// Engine holds all mechanical session state.
type Engine struct {
	mu sync.Mutex

	roller *dice.Roller
	log    *EventLog

	round int

	// Scene-level pressure raises DCs when high.
	sceneVoidLevel int

	clocks          map[string]*Clock
	pending         []pendingUpdate
	filledThisRound []string

	lastClockIncrementRound int

	void       map[string]*VoidState
	soulcredit map[string]*SoulcreditState
	conditions map[string][]Condition

	history []types.ActionResolution
}

// NewEngine creates an engine rolling dice from roller and emitting events to
// log. Both must be non-nil.
func NewEngine(roller *dice.Roller, log *EventLog) *Engine {
	return &Engine{
		roller:     roller,
		log:        log,
		clocks:     make(map[string]*Clock),
		void:       make(map[string]*VoidState),
		soulcredit: make(map[string]*SoulcreditState),
		conditions: make(map[string][]Condition),
	}
}

// Log returns the engine's event log.
func (e *Engine) Log() *EventLog { return e.log }

// Roller returns the engine's dice source.
func (e *Engine) Roller() *dice.Roller { return e.roller }

// BeginRound advances the round counter, stamps the event log, and resets
// every per-round accumulator: round void caps and the filled-clock list.
func (e *Engine) BeginRound() int {
	e.mu.Lock()
	e.round++
	round := e.round
	e.filledThisRound = nil
	e.mu.Unlock()

	e.log.SetRound(round)
	e.ResetRoundVoid()
	e.log.Emit(EventRoundStart, map[string]any{"round": round})
	return round
}

// Round returns the current round number.
func (e *Engine) Round() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round
}

// SetSceneVoidLevel records the scenario's ambient void pressure (0–10).
func (e *Engine) SetSceneVoidLevel(level int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > 10 {
		level = 10
	}
	e.sceneVoidLevel = level
}

// SceneVoidLevel returns the scenario's ambient void pressure.
func (e *Engine) SceneVoidLevel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sceneVoidLevel
}

// ─────────────────────────────────────────────────────────────────────────────
// Difficulty
// ─────────────────────────────────────────────────────────────────────────────

// DifficultyFlags qualifies a difficulty computation beyond the action type.
type DifficultyFlags struct {
	IsRitual     bool
	IsExtreme    bool
	IsMultiStage bool
	IsInterParty bool
}

// environmental complication vocabulary for inter-party exchanges.
var complicationWords = []string{
	"noise", "din", "shouting", "across the", "distance", "far side",
	"combat", "melee", "under fire", "mid-battle",
}

// Difficulty computes the DC for an intent. Inter-party social exchanges are
// easy (10) unless the environment complicates them (18); rituals sit at 22;
// everything else follows the action-type table. Extreme or multi-stage work
// floors at 26, scene void pressure adds +2/+4, and the result clamps to
// [10, 40].
func (e *Engine) Difficulty(intent string, actionType types.ActionType, flags DifficultyFlags) int {
	lower := strings.ToLower(intent)

	var dc int
	switch {
	case flags.IsInterParty && (actionType == types.ActionSocial || actionType == types.ActionRitual):
		dc = 10
		for _, w := range complicationWords {
			if strings.Contains(lower, w) {
				dc = 18
				break
			}
		}
	case flags.IsRitual || actionType == types.ActionRitual:
		dc = 22
	case actionType == types.ActionCombat:
		dc = 18
	case actionType == types.ActionSocial:
		dc = 18
	case actionType == types.ActionPerception || actionType == types.ActionInvestigate:
		dc = 20
	case actionType == types.ActionTechnical:
		dc = 20
	default:
		dc = 18
	}

	if flags.IsExtreme || flags.IsMultiStage {
		if dc < 26 {
			dc = 26
		}
	}

	e.mu.Lock()
	voidLevel := e.sceneVoidLevel
	e.mu.Unlock()
	switch {
	case voidLevel >= 7:
		dc += 4
	case voidLevel >= 4:
		dc += 2
	}

	if dc < DifficultyMin {
		dc = DifficultyMin
	}
	if dc > DifficultyMax {
		dc = DifficultyMax
	}
	return dc
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolution
// ─────────────────────────────────────────────────────────────────────────────

// Resolve rolls one action. skill is empty for unskilled attempts.
//
// Skilled:   total = attr·skill + d20 + modifiers
// Unskilled: total = attr + d20 − 5 + modifiers
//
// Active conditions whose Affects list is empty or names the attribute/skill
// are folded into the modifier sum. The arithmetic is re-verified after the
// fact; a mismatch panics because it can only mean an engine bug.
func (e *Engine) Resolve(intent string, attr types.Attribute, skill string, attrValue, skillValue, dc int, modifiers map[string]int, agentID string) types.ActionResolution {
	e.mu.Lock()

	mods := make(map[string]int, len(modifiers)+2)
	for k, v := range modifiers {
		mods[k] = v
	}
	for _, c := range e.conditions[agentID] {
		if c.applies(attr, skill) {
			mods["condition:"+c.Name] = c.Penalty
		}
	}
	e.mu.Unlock()

	roll := e.roller.D20()

	var base int
	skilled := skill != "" && skillValue > 0
	if skilled {
		base = attrValue*skillValue + roll
	} else {
		base = attrValue + roll - 5
	}

	modSum := 0
	for _, v := range mods {
		modSum += v
	}
	total := base + modSum

	// Verify the resolution identity; a mismatch is an engine bug, not a
	// recoverable condition.
	var check int
	if skilled {
		check = attrValue*skillValue + roll + modSum
	} else {
		check = attrValue + roll - 5 + modSum
	}
	if check != total {
		panic(fmt.Sprintf("mech: resolution identity violated: total=%d check=%d", total, check))
	}

	margin := total - dc
	tier := types.TierForMargin(margin)

	res := types.ActionResolution{
		Intent:         intent,
		Attribute:      attr,
		Skill:          skill,
		AttributeValue: attrValue,
		SkillValue:     skillValue,
		Roll:           roll,
		Total:          total,
		Difficulty:     dc,
		Margin:         margin,
		Tier:           tier,
		Success:        margin >= 0,
		Narrative:      narrativeStub(intent, tier),
		AgentID:        agentID,
	}

	e.mu.Lock()
	e.history = append(e.history, res)
	e.mu.Unlock()

	e.log.Emit(EventResolution, map[string]any{
		"agent": agentID, "intent": intent,
		"attribute": string(attr), "skill": skill,
		"roll": roll, "total": total, "dc": dc,
		"margin": margin, "tier": string(tier), "success": res.Success,
		"modifiers": mods,
	})
	return res
}

// narrativeStub produces the short mechanical seed the Director's narration
// expands on.
func narrativeStub(intent string, tier types.OutcomeTier) string {
	switch tier {
	case types.TierCriticalFailure:
		return fmt.Sprintf("%s — and it goes catastrophically wrong.", intent)
	case types.TierFailure:
		return fmt.Sprintf("%s — but it fails.", intent)
	case types.TierMarginal:
		return fmt.Sprintf("%s — barely succeeding.", intent)
	case types.TierModerate:
		return fmt.Sprintf("%s — succeeding solidly.", intent)
	case types.TierGood:
		return fmt.Sprintf("%s — succeeding well.", intent)
	case types.TierExcellent:
		return fmt.Sprintf("%s — an excellent result.", intent)
	default:
		return fmt.Sprintf("%s — an exceptional result.", intent)
	}
}

// History returns a copy of every resolution so far, in production order.
func (e *Engine) History() []types.ActionResolution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.ActionResolution, len(e.history))
	copy(out, e.history)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Ritual resolution
// ─────────────────────────────────────────────────────────────────────────────

// RitualContext describes the material circumstances of a ritual attempt.
type RitualContext struct {
	HasPrimaryTool  bool
	SanctifiedAltar bool
	HasOffering     bool
	Components      []string
}

// PendingVoid is a void gain computed during ritual resolution but not yet
// applied. The outcome parser applies it under the same action id so the
// engine's dedup guarantees it lands exactly once.
type PendingVoid struct {
	Amount   int
	Reason   string
	HighRisk bool
}

// RitualResult bundles a ritual's resolution with its side effects.
type RitualResult struct {
	Resolution      types.ActionResolution
	Consequences    []string
	SoulcreditDelta int
	PendingVoid     []PendingVoid
}

// ResolveRitual resolves a ritual action. Rituals always roll Willpower ×
// Astral Arts regardless of what was declared; the silent correction is
// logged. Missing tools and offerings convert into pending void gains, and a
// missing offering also downgrades a successful tier by one step (floor
// Marginal).
func (e *Engine) ResolveRitual(intent string, declared types.Attribute, declaredSkill string, sheet *types.CharacterSheet, dc int, rctx RitualContext, agentID string) RitualResult {
	if declared != types.Willpower || declaredSkill != "Astral Arts" {
		e.log.Emit(EventAdjudicationStart, map[string]any{
			"agent": agentID, "correction": "ritual forced to Willpower × Astral Arts",
			"declared_attribute": string(declared), "declared_skill": declaredSkill,
		})
	}

	mods := make(map[string]int)
	var pending []PendingVoid
	var consequences []string

	if rctx.HasPrimaryTool {
		mods["primary tool"] = 2
	} else {
		pending = append(pending, PendingVoid{Amount: 1, Reason: "ritual without primary tool"})
		consequences = append(consequences, "the working strains without its primary tool")
	}
	if rctx.SanctifiedAltar {
		mods["sanctified altar"] = 3
	}
	if rctx.HasOffering {
		mods["offering"] = 1
	}

	res := e.Resolve(intent, types.Willpower, "Astral Arts",
		sheet.Attributes[types.Willpower], sheet.Skills["Astral Arts"],
		dc, mods, agentID)

	if !rctx.HasOffering {
		pending = append(pending, PendingVoid{Amount: 1, Reason: "ritual without offering"})
		if res.Success {
			res.Tier = downgradeTier(res.Tier)
			consequences = append(consequences, "the rite succeeds, but thinner than it should")
		}
	}

	scDelta := 0
	switch {
	case res.Tier == types.TierCriticalFailure:
		pending = append(pending, PendingVoid{Amount: 2, Reason: "catastrophic ritual failure", HighRisk: true})
		consequences = append(consequences, "the ritual collapses and the void floods the breach")
		scDelta = -1
	case !res.Success:
		pending = append(pending, PendingVoid{Amount: 1, Reason: "failed ritual"})
		consequences = append(consequences, "the ritual fizzles, leaving a residue")
	case res.Margin >= 10:
		scDelta = 1
	}

	return RitualResult{
		Resolution:      res,
		Consequences:    consequences,
		SoulcreditDelta: scDelta,
		PendingVoid:     pending,
	}
}

// downgradeTier steps a successful tier down by one. Marginal maps to itself:
// a missing offering thins a success, it never converts one into failure.
func downgradeTier(t types.OutcomeTier) types.OutcomeTier {
	switch t {
	case types.TierExceptional:
		return types.TierExcellent
	case types.TierExcellent:
		return types.TierGood
	case types.TierGood:
		return types.TierModerate
	case types.TierModerate:
		return types.TierMarginal
	default:
		return t
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Initiative
// ─────────────────────────────────────────────────────────────────────────────

// InitiativeEntry pairs an agent with its rolled initiative.
type InitiativeEntry struct {
	AgentID    string
	Initiative int
}

// Initiative rolls Agility·4 + d20 for one combatant.
func (e *Engine) Initiative(agility int) int {
	return agility*4 + e.roller.D20()
}

// RollInitiative rolls initiative for every listed combatant and returns the
// entries sorted fastest first. Ties break by agent id so replays stay
// deterministic.
func (e *Engine) RollInitiative(agility map[string]int) []InitiativeEntry {
	ids := make([]string, 0, len(agility))
	for id := range agility {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]InitiativeEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, InitiativeEntry{
			AgentID:    id,
			Initiative: e.Initiative(agility[id]),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Initiative != entries[j].Initiative {
			return entries[i].Initiative > entries[j].Initiative
		}
		return entries[i].AgentID < entries[j].AgentID
	})
	return entries
}
