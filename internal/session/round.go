package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arkavel/voidtable/internal/enemy"
	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/outcome"
	"github.com/arkavel/voidtable/internal/protocol"
	"github.com/arkavel/voidtable/internal/shared"
	"github.com/arkavel/voidtable/pkg/types"
)

// sessionEnd carries a round's terminal verdict out of the round loop.
type sessionEnd struct {
	result string // "victory", "defeat", "draw"
	reason string
}

// declared is one combatant's declaration(s) awaiting resolution.
type declared struct {
	agentID string
	player  []types.ActionDeclaration // nil for enemies
	enemy   *enemy.Declaration
}

// runRound executes one full round. A nil return means the session continues.
func (o *Orchestrator) runRound(ctx context.Context) *sessionEnd {
	start := time.Now()
	defer func() {
		o.metrics.RoundDuration.Record(ctx, time.Since(start).Seconds())
	}()

	round := o.engine.BeginRound()
	o.engine.IncrementAllClockRounds()
	slog.Info("round begins", "round", round)

	o.maybeSpawnVendor(round)

	combat := o.combatContext()

	// Initiative: declarations run slowest to fastest, so the quick get to
	// react; resolutions run fastest to slowest.
	order := o.initiativeOrder()

	declarations := make(map[string]*declared, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		select {
		case <-ctx.Done():
			return &sessionEnd{result: "draw", reason: "cancelled"}
		default:
		}
		if slot, ok := o.players[id]; ok && slot.sheet.Alive() {
			declarations[id] = &declared{agentID: id, player: o.requestDeclaration(ctx, id, combat)}
			continue
		}
		if e, ok := o.enemies.ByID(id); ok && e.CanAct() {
			decl := o.enemies.Declare(ctx, e, derefCombat(combat))
			declarations[id] = &declared{agentID: id, enemy: &decl}
		}
	}

	var resolutions []types.ActionResolution
	rs := enemy.NewResolutionState()
	for _, id := range order {
		d, ok := declarations[id]
		if !ok {
			continue
		}
		switch {
		case d.player != nil:
			resolutions = append(resolutions, o.resolvePlayer(ctx, id, d.player, combat)...)
		case d.enemy != nil:
			if res := o.resolveEnemy(id, *d.enemy, rs); res != nil {
				resolutions = append(resolutions, *res)
			}
		}
	}

	for _, res := range resolutions {
		o.metrics.Rolls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", rollOutcome(res.Tier))))
		o.metrics.RollMargin.Record(ctx, float64(res.Margin))
	}

	if end := o.synthesize(ctx, round, resolutions); end != nil {
		return end
	}

	o.cleanup(round)
	o.updateEnemyGauge(ctx)
	return nil
}

// rollOutcome buckets a tier for the roll counter.
func rollOutcome(tier types.OutcomeTier) string {
	switch tier {
	case types.TierCriticalFailure:
		return "crit_fail"
	case types.TierFailure:
		return "fail"
	case types.TierExceptional:
		return "crit_success"
	default:
		return "success"
	}
}

// updateEnemyGauge reconciles the living-enemy gauge with the battlefield.
func (o *Orchestrator) updateEnemyGauge(ctx context.Context) {
	n := len(o.enemies.Living())
	if d := n - o.livingEnemies; d != 0 {
		o.metrics.LivingEnemies.Add(ctx, int64(d))
		o.livingEnemies = n
	}
}

// initiativeOrder rolls initiative over every living combatant and returns
// agent ids fastest first.
func (o *Orchestrator) initiativeOrder() []string {
	agility := o.enemies.AgilityMap()
	for id, slot := range o.players {
		if slot.sheet.Alive() {
			agility[id] = slot.sheet.Attributes[types.Agility]
		}
	}
	entries := o.engine.RollInitiative(agility)
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		order = append(order, e.AgentID)
	}
	return order
}

// requestDeclaration asks one player for this round's action(s) and waits.
func (o *Orchestrator) requestDeclaration(ctx context.Context, agentID string, combat *protocol.CombatContext) []types.ActionDeclaration {
	req := protocol.TurnRequestPayload{
		Round:         o.engine.Round(),
		Phase:         protocol.PhaseDeclaration,
		Scenario:      o.scenario,
		Clocks:        o.clockStates(),
		CombatContext: combat,
	}
	if t, ok := o.state.ConsumeTransfer(agentID); ok {
		req.PendingTransfer = &t
	}
	o.sendTo(agentID, protocol.TurnRequest, req)

	timeout := time.NewTimer(o.cfg.DeclarationTimeout)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timeout.C:
			slog.Warn("declaration timed out", "agent", agentID)
			return []types.ActionDeclaration{o.defaultDeclaration(agentID)}
		case msg := <-o.inbox.decls:
			if msg.AgentID != agentID {
				// A stale declaration from an earlier timeout; drop it.
				continue
			}
			for _, act := range msg.Payload.Actions {
				o.engine.Log().Emit(mech.EventDeclaration, map[string]any{
					"agent": agentID, "intent": act.Intent,
					"attribute": string(act.Attribute), "skill": act.Skill,
					"free_action": act.IsFreeAction,
				})
			}
			return msg.Payload.Actions
		}
	}
}

// defaultDeclaration covers an unresponsive agent so the round never stalls.
func (o *Orchestrator) defaultDeclaration(agentID string) types.ActionDeclaration {
	sheet := o.players[agentID].sheet
	return types.ActionDeclaration{
		Intent:              "I hold position and watch for trouble",
		Description:         "A wary, defensive stance.",
		Attribute:           types.Perception,
		Skill:               "",
		EstimatedDifficulty: 18,
		Justification:       "declaration timeout",
		CharacterName:       sheet.Name,
		AgentID:             agentID,
		Type:                types.ActionPerception,
		Timestamp:           time.Now().UTC(),
	}
}

// resolvePlayer adjudicates one player's declared action(s) and applies the
// battlefield consequences.
func (o *Orchestrator) resolvePlayer(ctx context.Context, agentID string, actions []types.ActionDeclaration, combat *protocol.CombatContext) []types.ActionResolution {
	slot := o.players[agentID]
	var out []types.ActionResolution

	for _, act := range actions {
		adj := o.director.Adjudicate(ctx, act, slot.sheet, combat)
		out = append(out, adj.Resolution)

		if adj.Position != "" {
			slot.sheet.Position = adj.Position
		}
		slot.sheet.Void = o.engine.VoidScore(agentID)
		slot.sheet.Soulcredit = o.engine.SoulcreditScore(agentID)

		for _, eff := range adj.Effects {
			o.applyEffect(act, eff)
		}
		if adj.VoidApplied > 0 {
			o.metrics.VoidAccrued.Add(ctx, int64(adj.VoidApplied))
		}

		o.broadcast(protocol.ActionResolved, protocol.ActionResolvedPayload{
			Round:      o.engine.Round(),
			AgentID:    agentID,
			Resolution: adj.Resolution,
			Narration:  adj.Narration,
			Source:     adj.Source,
			VoidDelta:  adj.VoidApplied,
			Character:  slot.sheet,
		})
	}
	return out
}

// applyEffect lands one parsed EFFECT block on the battlefield.
func (o *Orchestrator) applyEffect(act types.ActionDeclaration, eff outcome.Effect) {
	switch eff.Type {
	case outcome.EffectDamage:
		target := eff.Target
		if target == "" {
			target = act.Target
		}
		if target == "" {
			return
		}
		if e, remaining, down := o.damageTarget(target, eff.Amount); e != "" {
			slog.Debug("damage applied", "target", e, "amount", eff.Amount,
				"remaining", remaining, "down", down)
		}
	case outcome.EffectMovement:
		if eff.Position != "" {
			if slot, ok := o.slotByName(eff.Target); ok {
				slot.sheet.Position = eff.Position
			}
		}
	}
}

// damageTarget routes damage to an enemy or, on friendly fire, a player.
// A hit that lands on an ally is warned about but still applied; the opaque
// target id was the player's to aim.
func (o *Orchestrator) damageTarget(ref string, amount int) (string, int, bool) {
	if e, remaining, ok := o.enemies.DamageByRef(ref, amount); ok {
		return e.Name, remaining, remaining == 0
	}
	if entry, ok := o.state.CombatIDs().Resolve(ref); ok && entry.Kind == shared.KindPlayer {
		remaining, down := o.ApplyDamage(entry.AgentID, amount)
		slog.Warn("friendly fire", "target", entry.Name, "ref", ref,
			"damage", amount, "remaining", remaining, "down", down)
		o.engine.Log().Emit(mech.EventDamageDealt, map[string]any{
			"target": entry.Name, "damage": amount, "remaining": remaining,
			"down": down, "friendly_fire": true,
		})
		return entry.Name, remaining, down
	}
	return "", 0, false
}

// resolveEnemy executes one enemy declaration against the live battlefield.
func (o *Orchestrator) resolveEnemy(id string, decl enemy.Declaration, rs *enemy.ResolutionState) *types.ActionResolution {
	e, ok := o.enemies.ByID(id)
	if !ok {
		return nil
	}
	result := o.enemies.Execute(e, decl, rs, o)

	narration := result.Narration
	if result.Invalidation != nil {
		narration = e.Name + " falters: " + result.Invalidation.Detail + "."
	}
	if narration != "" {
		o.broadcast(protocol.DMNarration, protocol.NarrationPayload{
			Round: o.engine.Round(),
			Text:  narration,
		})
	}
	return result.Resolution
}

// synthesize closes the round narratively and enacts the control markers.
func (o *Orchestrator) synthesize(ctx context.Context, round int, resolutions []types.ActionResolution) *sessionEnd {
	syn := o.director.Synthesize(ctx, round, resolutions, o.needsStoryAdvance())

	o.broadcast(protocol.DMNarration, protocol.NarrationPayload{
		Round:            round,
		Text:             syn.Narration,
		IsRoundSynthesis: true,
		Source:           syn.Source,
	})
	o.engine.Log().Emit(mech.EventSynthesis, map[string]any{
		"round": round, "filled": syn.FilledClocks, "source": syn.Source,
	})

	for _, cu := range syn.Report.ClockUpdates {
		direction := "advance"
		if cu.Ticks < 0 {
			direction = "regress"
		}
		o.metrics.ClockTicks.Add(ctx, 1, metric.WithAttributes(
			attribute.String("clock", cu.Clock),
			attribute.String("direction", direction)))
	}

	for _, spec := range syn.Report.Spawns {
		if _, err := o.enemies.Spawn(spec); err != nil {
			slog.Warn("spawn marker rejected", "template", spec.Template, "err", err)
		} else {
			o.metrics.EnemiesSpawned.Add(ctx, int64(spec.Count), metric.WithAttributes(
				attribute.String("template", spec.Template)))
		}
	}
	for _, d := range syn.Report.Despawns {
		o.enemies.Despawn(d.Name, d.Reason)
	}
	for _, name := range syn.Report.Surrenders {
		o.enemies.Surrender(name)
	}
	for _, name := range syn.Report.Flees {
		o.enemies.Flee(name)
	}

	if adv := syn.Report.AdvanceStory; adv != nil {
		if !o.vendorGateOpen() {
			slog.Info("story advance held by purchase gate",
				"required_purchase", o.scenario.RequiredPurchase)
		} else {
			o.scenario.Location = adv.Location
			o.scenario.Situation = adv.Situation
			o.state.RecordScenario(adv.Location)
			o.broadcast(protocol.ScenarioUpdate, o.scenario)
		}
	}
	if syn.Report.PivotTheme != "" {
		o.scenario.Theme = syn.Report.PivotTheme
		o.broadcast(protocol.ScenarioUpdate, o.scenario)
	}

	if se := syn.Report.SessionEnd; se != nil {
		return &sessionEnd{
			result: strings.ToLower(se.Result),
			reason: se.Reason,
		}
	}
	return nil
}

// needsStoryAdvance reports whether the scene has exhausted its clocks.
func (o *Orchestrator) needsStoryAdvance() bool {
	clocks := o.engine.Clocks()
	if len(clocks) == 0 {
		return o.engine.Round() > 1
	}
	for _, c := range clocks {
		if !c.Filled() {
			return false
		}
	}
	return true
}

// cleanup ages buffs and conditions, runs enemy end-of-round processing, and
// snapshots every character.
func (o *Orchestrator) cleanup(round int) {
	for _, ev := range o.enemies.EndOfRound() {
		o.broadcast(protocol.DMNarration, protocol.NarrationPayload{
			Round: round, Text: ev.Note + ".",
		})
	}

	o.engine.TickConditions()
	for agentID, slot := range o.players {
		slot.sheet.TickBuffs()
		slot.sheet.FreeActionUsed = false
		o.engine.Log().Emit(mech.EventCharacterSnapshot, map[string]any{
			"agent": agentID, "name": slot.sheet.Name,
			"health": slot.sheet.Health, "max_health": slot.sheet.MaxHealth,
			"void": o.engine.VoidScore(agentID), "soulcredit": o.engine.SoulcreditScore(agentID),
			"position": slot.sheet.Position, "wounds": slot.sheet.Wounds,
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Battlefield view
// ─────────────────────────────────────────────────────────────────────────────

// PositionOf implements [enemy.Battlefield] over the player roster.
func (o *Orchestrator) PositionOf(agentID string) (string, bool) {
	if slot, ok := o.players[agentID]; ok {
		return slot.sheet.Position, true
	}
	return "", false
}

// SoakOf implements [enemy.Battlefield].
func (o *Orchestrator) SoakOf(agentID string) int {
	if slot, ok := o.players[agentID]; ok {
		return slot.sheet.Soak
	}
	return types.DefaultSoak
}

// ApplyDamage implements [enemy.Battlefield].
func (o *Orchestrator) ApplyDamage(agentID string, amount int) (int, bool) {
	slot, ok := o.players[agentID]
	if !ok {
		return 0, false
	}
	sheet := slot.sheet
	sheet.Health -= amount
	sheet.Wounds += 1 + amount/10
	if sheet.Health <= 0 {
		sheet.Health = 0
		return 0, true
	}
	return sheet.Health, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Context builders
// ─────────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) clockStates() []protocol.ClockState {
	clocks := o.engine.Clocks()
	out := make([]protocol.ClockState, 0, len(clocks))
	for _, c := range clocks {
		out = append(out, protocol.ClockState{
			Name:              c.Name,
			Current:           c.Current,
			Max:               c.Max,
			AdvanceMeans:      c.AdvanceMeans,
			RegressMeans:      c.RegressMeans,
			FilledConsequence: c.FilledConsequence,
		})
	}
	return out
}

// combatContext builds the battlefield summary for declaration prompts, or
// nil outside combat.
func (o *Orchestrator) combatContext() *protocol.CombatContext {
	living := o.enemies.Living()
	if len(living) == 0 {
		return nil
	}

	cc := &protocol.CombatContext{FreeTargeting: o.cfg.FreeTargeting}
	for _, id := range o.order {
		slot := o.players[id]
		combatID := ""
		if o.cfg.FreeTargeting {
			combatID = o.state.CombatIDs().Assign(id, slot.sheet.Name, shared.KindPlayer)
		}
		cc.Combatants = append(cc.Combatants, protocol.Combatant{
			CombatID: combatID,
			Name:     slot.sheet.Name,
			Role:     protocol.RolePlayer,
			Position: slot.sheet.Position,
			Health:   slot.sheet.Health,
			Alive:    slot.sheet.Alive(),
		})
	}
	for _, e := range living {
		combatID, _ := o.state.CombatIDs().ForAgent(e.ID)
		cc.Combatants = append(cc.Combatants, protocol.Combatant{
			CombatID: combatID,
			Name:     e.Name,
			Role:     protocol.RoleEnemy,
			Position: e.Position,
			Health:   e.Sheet.Health,
			Alive:    e.Alive(),
		})
	}
	return cc
}

func (o *Orchestrator) slotByName(name string) (*playerSlot, bool) {
	for _, slot := range o.players {
		if strings.EqualFold(slot.sheet.Name, name) {
			return slot, true
		}
	}
	return nil, false
}

// derefCombat hands the enemy manager a value copy; it must not see later
// mutations of the shared context.
func derefCombat(cc *protocol.CombatContext) protocol.CombatContext {
	if cc == nil {
		return protocol.CombatContext{}
	}
	return *cc
}
