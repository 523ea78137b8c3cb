package director

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/outcome"
	"github.com/arkavel/voidtable/internal/protocol"
	"github.com/arkavel/voidtable/pkg/types"
)

// Adjudication is the complete outcome of one player action: the mechanical
// resolution, the Director's narration, and the state changes already applied
// to the engine plus those the orchestrator must apply to the battlefield.
type Adjudication struct {
	Resolution types.ActionResolution
	Narration  string
	Source     string // "llm" or "fallback"

	// VoidApplied is the net void change actually applied after caps.
	VoidApplied int

	// SoulcreditApplied is the net reputation change actually applied.
	SoulcreditApplied int

	// Position, when non-empty, is the actor's new position band.
	Position string

	// Effects are battlefield changes (damage, movement) the orchestrator
	// applies to enemies and players.
	Effects []outcome.Effect

	// Consequences are ritual side effects worth narrating.
	Consequences []string

	Report outcome.Report
}

var (
	extremeWords    = []string{"impossible", "suicidal", "against all odds", "single-handedly"}
	multiStageWords = []string{" and then ", " while also ", " before finally "}
)

// Adjudicate resolves one declared action end to end. Clock deltas are queued
// for the synthesis flush; void, soulcredit, and conditions are applied
// immediately under the action's id.
func (d *Director) Adjudicate(ctx context.Context, decl types.ActionDeclaration, sheet *types.CharacterSheet, combat *protocol.CombatContext) Adjudication {
	actionID := uuid.NewString()
	dc := d.difficulty(decl)
	mods := d.modifiers(decl, sheet)

	var res types.ActionResolution
	var ritual *mech.RitualResult
	if decl.IsRitual {
		r := d.engine.ResolveRitual(decl.Intent, decl.Attribute, decl.Skill, sheet, dc, mech.RitualContext{
			HasPrimaryTool: decl.HasPrimaryTool,
			HasOffering:    decl.HasOffering,
			Components:     decl.Components,
		}, decl.AgentID)
		res = r.Resolution
		ritual = &r
	} else {
		res = d.engine.Resolve(decl.Intent, decl.Attribute, decl.Skill,
			sheet.Attributes[decl.Attribute], sheet.Skills[decl.Skill],
			dc, mods, decl.AgentID)
	}
	res.ActionID = actionID

	narration, source := d.narrate(ctx, decl, res, sheet, combat)
	report := d.parser.Parse(narration, decl, res, d.engine.Clocks())

	adj := Adjudication{
		Resolution: res,
		Narration:  narration,
		Source:     source,
		Position:   report.Position,
		Effects:    report.Effects,
		Report:     report,
	}
	var pending []mech.PendingVoid
	if ritual != nil {
		adj.Consequences = ritual.Consequences
		pending = ritual.PendingVoid
		if ritual.SoulcreditDelta != 0 {
			adj.SoulcreditApplied += d.engine.AdjustSoulcredit(decl.AgentID, ritual.SoulcreditDelta, "ritual outcome")
		}
	}

	d.apply(decl, res, report, actionID, pending, sheet, &adj)
	return adj
}

// difficulty computes the authoritative DC. The player's estimate is advisory;
// the engine's table wins.
func (d *Director) difficulty(decl types.ActionDeclaration) int {
	lower := strings.ToLower(decl.Intent)
	_, interParty := d.state.PlayerByName(decl.Target)
	return d.engine.Difficulty(decl.Intent, decl.Type, mech.DifficultyFlags{
		IsRitual:     decl.IsRitual,
		IsExtreme:    containsAny(lower, extremeWords),
		IsMultiStage: containsAny(lower, multiStageWords),
		IsInterParty: interParty || decl.IsFreeAction,
	})
}

// modifiers gathers situational bonuses: the declaration's own modifiers,
// active buffs, and a banked coordination bonus, consumed here.
func (d *Director) modifiers(decl types.ActionDeclaration, sheet *types.CharacterSheet) map[string]int {
	mods := make(map[string]int, len(decl.Modifiers)+2)
	for k, v := range decl.Modifiers {
		mods[k] = v
	}
	for _, b := range sheet.Buffs {
		mods["buff:"+b.Effect] = b.Bonus
	}
	if bonus, ok := d.state.ConsumeBonus(decl.AgentID); ok {
		mods["coordination from "+bonus.From] = bonus.Bonus
	}
	return mods
}

// narrate asks the LLM to expand the mechanical stub; the stub itself is the
// fallback.
func (d *Director) narrate(ctx context.Context, decl types.ActionDeclaration, res types.ActionResolution, sheet *types.CharacterSheet, combat *protocol.CombatContext) (string, string) {
	prompt, _, err := d.render("adjudicate", map[string]any{
		"actor": map[string]any{
			"name":    sheet.Name,
			"faction": sheet.Faction,
		},
		"action": map[string]any{
			"intent": decl.Intent,
		},
		"resolution": map[string]any{
			"total":      res.Total,
			"difficulty": res.Difficulty,
			"tier":       string(res.Tier),
			"margin":     res.Margin,
		},
		"scene": map[string]any{
			"clocks": d.clockLines(),
		},
		"combat": map[string]any{
			"context": formatCombatContext(combat),
		},
	})
	if err != nil {
		return res.Narrative, "fallback"
	}

	text, cerr := d.complete(ctx, prompt, 0.7, 350)
	if cerr != nil {
		slog.Debug("adjudication narration fell back", "agent", decl.AgentID, "err", cerr)
		return res.Narrative, "fallback"
	}
	return strings.TrimSpace(text), "llm"
}

// apply pushes the parsed report into the engine. Void from every source of
// the declaration — ritual shortfalls and parsed markers alike — lands as one
// application under the action's id, so the per-action cap holds however many
// sources fired.
func (d *Director) apply(decl types.ActionDeclaration, res types.ActionResolution, report outcome.Report, actionID string, pending []mech.PendingVoid, sheet *types.CharacterSheet, adj *Adjudication) {
	for _, cu := range report.ClockUpdates {
		ticks := clampTicks(cu.Ticks)
		d.engine.QueueUpdate(cu.Clock, ticks, cu.Reason)
	}

	for _, vd := range report.VoidDeltas {
		pending = append(pending, mech.PendingVoid{Amount: vd.Amount, Reason: vd.Reason, HighRisk: vd.HighRisk})
	}
	gain, loss := 0, 0
	highRisk := false
	var gained, lost []string
	for _, pv := range pending {
		if pv.Amount >= 0 {
			gain += pv.Amount
			highRisk = highRisk || pv.HighRisk
			gained = append(gained, pv.Reason)
		} else {
			loss += pv.Amount
			lost = append(lost, pv.Reason)
		}
	}
	if gain > 0 {
		adj.VoidApplied += d.engine.AddVoid(decl.AgentID, gain, strings.Join(gained, "; "), actionID, highRisk)
	}
	if loss < 0 {
		// Recovery is uncapped and not dedup-keyed; an empty id skips both.
		adj.VoidApplied += d.engine.AddVoid(decl.AgentID, loss, strings.Join(lost, "; "), "", false)
	}

	for _, sd := range report.Soulcredit {
		adj.SoulcreditApplied += d.engine.AdjustSoulcredit(decl.AgentID, sd.Amount, sd.Reason)
	}
	if delta, reasons := mech.EvaluateSoulcredit(decl.Intent, adj.Narration, sheet.Faction, res.Success, res.Margin, decl.IsRitual); delta != 0 {
		adj.SoulcreditApplied += d.engine.AdjustSoulcredit(decl.AgentID, delta, strings.Join(reasons, "; "))
	}

	for _, c := range report.Conditions {
		d.engine.AddCondition(decl.AgentID, c)
	}
}

// clampTicks keeps a single narration from swinging a clock by more than 3.
func clampTicks(ticks int) int {
	if ticks > 3 {
		return 3
	}
	if ticks < -3 {
		return -3
	}
	return ticks
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
