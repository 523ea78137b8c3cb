package enemy

import (
	"fmt"
	"strings"

	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/shared"
	"github.com/arkavel/voidtable/pkg/types"
)

// Battlefield is the manager's view of non-enemy combatants. The orchestrator
// implements it over the player roster so enemy attacks can land without the
// manager owning player state.
type Battlefield interface {
	// PositionOf returns the combatant's current range band.
	PositionOf(agentID string) (string, bool)

	// SoakOf returns the combatant's damage soak.
	SoakOf(agentID string) int

	// ApplyDamage deducts health and reports the remainder and whether the
	// combatant went down.
	ApplyDamage(agentID string, amount int) (remaining int, down bool)
}

// ActionResult is the executed (or invalidated) form of one declaration.
type ActionResult struct {
	Enemy       *Enemy
	Declaration Declaration

	// Invalidation is set when the declared action could not execute; the
	// Director narrates it as a failure instead.
	Invalidation *Invalidation

	Resolution *types.ActionResolution
	Damage     int
	TargetName string
	Narration  string
}

// Execute runs one declared enemy action against the live battlefield. The
// declaration is re-validated first: resolution order can differ from
// declaration order, so the target may already be down, the token claimed, or
// the range closed off.
func (m *Manager) Execute(e *Enemy, decl Declaration, rs *ResolutionState, bf Battlefield) ActionResult {
	res := ActionResult{Enemy: e, Declaration: decl}
	if !e.CanAct() {
		res.Invalidation = &Invalidation{Reason: InvalidTargetDown, Detail: e.Name + " is out of the fight"}
		return res
	}

	var target shared.CombatEntry
	haveTarget := false
	if strings.TrimSpace(decl.Target) != "" {
		target, haveTarget = m.ids.Resolve(decl.Target)
		if !haveTarget {
			res.Narration = fmt.Sprintf("%s lashes out at a target that is no longer there.", e.Name)
			return res
		}
		res.TargetName = target.Name
	}

	if haveTarget {
		if inv := m.validate(e, decl, target, rs, bf); inv != nil {
			res.Invalidation = inv
			m.engine.Log().Emit(mech.EventActionInvalidated, map[string]any{
				"enemy": e.Name, "target": target.Name, "reason": string(inv.Reason),
			})
			return res
		}
	}

	if isMovement(decl.Action) {
		return m.executeMove(e, decl, target, haveTarget, rs, bf, res)
	}

	weapon := m.weaponOf(e)
	attr, skill := attackProfile(weapon.Reach)
	r := m.engine.Resolve(
		decl.Action, attr, skill,
		e.Sheet.Attributes[attr], e.Sheet.Skills[skill],
		18, nil, e.ID,
	)
	res.Resolution = &r

	if !haveTarget || r.Margin < 0 {
		res.Narration = fmt.Sprintf("%s: %s (%s).", e.Name, decl.Action, r.Tier)
		return res
	}

	soak := m.soakOf(target, bf)
	dmg := weapon.Damage + r.Margin/5 - soak/5
	if dmg < 1 {
		dmg = 1
	}
	res.Damage = dmg

	remaining, down := m.applyDamage(target, dmg, bf)
	if down {
		rs.MarkDefeated(target.CombatID)
	}
	if decl.ClaimToken != "" {
		rs.ClaimToken(decl.ClaimToken, target.CombatID)
	}

	res.Narration = fmt.Sprintf("%s hits %s with %s for %d (%d left).",
		e.Name, target.Name, weapon.Name, dmg, remaining)
	m.engine.Log().Emit(mech.EventDamageDealt, map[string]any{
		"attacker": e.Name, "target": target.Name, "weapon": weapon.ID,
		"damage": dmg, "remaining": remaining, "down": down,
	})
	return res
}

// validate re-checks a declaration against the resolution-phase accumulator.
func (m *Manager) validate(e *Enemy, decl Declaration, target shared.CombatEntry, rs *ResolutionState, bf Battlefield) *Invalidation {
	if rs.Defeated(target.CombatID) {
		return &Invalidation{Reason: InvalidTargetDown, Detail: target.Name + " went down earlier this round"}
	}
	if decl.ClaimToken != "" && rs.TokenClaimed(decl.ClaimToken) {
		return &Invalidation{Reason: InvalidTokenClaimed, Detail: "token " + decl.ClaimToken + " was already claimed"}
	}
	if isMovement(decl.Action) {
		return nil
	}

	pos := m.targetPosition(target, rs, bf)
	attacker := e.Position
	if p, moved := rs.PositionOf(m.combatIDOf(e)); moved {
		attacker = p
	}
	if !Reachable(decl.RequiredReach, attacker, pos) {
		return &Invalidation{
			Reason: InvalidOutOfRange,
			Detail: fmt.Sprintf("%s is at %s, beyond %s reach", target.Name, pos, decl.RequiredReach),
		}
	}
	return nil
}

func (m *Manager) executeMove(e *Enemy, decl Declaration, target shared.CombatEntry, haveTarget bool, rs *ResolutionState, bf Battlefield, res ActionResult) ActionResult {
	dest := closer(e.Position)
	if haveTarget {
		dest = stepToward(e.Position, m.targetPosition(target, rs, bf))
	}
	e.Position = dest
	e.Sheet.Position = dest
	rs.Relocate(m.combatIDOf(e), dest)
	res.Narration = fmt.Sprintf("%s moves to %s.", e.Name, dest)
	return res
}

// targetPosition prefers the live relocation record over the sheet position.
func (m *Manager) targetPosition(target shared.CombatEntry, rs *ResolutionState, bf Battlefield) string {
	if p, moved := rs.PositionOf(target.CombatID); moved {
		return p
	}
	if e, ok := m.enemies[target.AgentID]; ok {
		return e.Position
	}
	if bf != nil {
		if p, ok := bf.PositionOf(target.AgentID); ok {
			return p
		}
	}
	return "Near"
}

func (m *Manager) soakOf(target shared.CombatEntry, bf Battlefield) int {
	if e, ok := m.enemies[target.AgentID]; ok {
		return e.Sheet.Soak
	}
	if bf != nil {
		return bf.SoakOf(target.AgentID)
	}
	return 10
}

// applyDamage routes damage to an enemy or, via the battlefield, to a player.
func (m *Manager) applyDamage(target shared.CombatEntry, amount int, bf Battlefield) (remaining int, down bool) {
	if e, ok := m.enemies[target.AgentID]; ok {
		return m.Damage(e, amount)
	}
	if bf != nil {
		return bf.ApplyDamage(target.AgentID, amount)
	}
	return 0, false
}

// Damage applies a hit to an enemy: health drops, wounds accrue, and heavy
// hits erode morale.
func (m *Manager) Damage(e *Enemy, amount int) (remaining int, down bool) {
	e.Sheet.Health -= amount
	e.Wounds += 1 + amount/10
	if amount >= 5 {
		e.Morale--
	}
	if e.Sheet.Health <= 0 {
		e.Sheet.Health = 0
		return 0, true
	}
	return e.Sheet.Health, false
}

// DamageByRef applies player-dealt damage using a combat id or name, as lifted
// from Director narration.
func (m *Manager) DamageByRef(ref string, amount int) (*Enemy, int, bool) {
	entry, ok := m.ids.Resolve(ref)
	if !ok {
		return nil, 0, false
	}
	e, ok := m.enemies[entry.AgentID]
	if !ok {
		return nil, 0, false
	}
	remaining, down := m.Damage(e, amount)
	m.engine.Log().Emit(mech.EventDamageDealt, map[string]any{
		"target": e.Name, "damage": amount, "remaining": remaining, "down": down,
	})
	return e, remaining, down
}

// ─────────────────────────────────────────────────────────────────────────────
// End of round
// ─────────────────────────────────────────────────────────────────────────────

// RoundEvent is one narratable thing that happened in end-of-round processing.
type RoundEvent struct {
	Enemy *Enemy
	Kind  string // "died", "unconscious", "fled", "surrendered"
	Note  string
}

// EndOfRound runs death saves and morale checks for every enemy and removes
// the dead and the fled. A flee advances an escape-themed clock when one
// exists.
func (m *Manager) EndOfRound() []RoundEvent {
	var events []RoundEvent
	for _, id := range append([]string(nil), m.order...) {
		e, ok := m.enemies[id]
		if !ok {
			continue
		}

		if e.Sheet.Health <= 0 || e.Wounds >= 5 {
			ev := m.deathSave(e)
			events = append(events, ev)
			if ev.Kind == "died" {
				m.remove(e, "death")
				continue
			}
		}

		if !e.Alive() || e.Unconscious {
			continue
		}
		if m.moraleBroken(e) {
			e.Fled = true
			events = append(events, RoundEvent{Enemy: e, Kind: "fled",
				Note: e.Name + " breaks and runs"})
			m.advanceEscapeClock(e)
			m.remove(e, "fled")
		}
	}
	return events
}

// deathSave rolls remaining Health·2 + d20 against DC 20 + 5·(wounds−5), so
// an enemy dropped to zero lives only on the die. A natural 1 always kills.
// Beating the DC by 10 keeps the enemy on its feet; beating it at all leaves
// it unconscious; anything less is death.
func (m *Manager) deathSave(e *Enemy) RoundEvent {
	over := e.Wounds - 5
	if over < 0 {
		over = 0
	}
	dc := 20 + 5*over
	die := m.engine.Roller().D20()
	total := e.Sheet.Health*2 + die

	var kind, note string
	switch {
	case die == 1:
		kind, note = "died", e.Name+" goes still"
	case total >= dc+10:
		kind, note = "conscious", e.Name+" stays up through the pain"
	case total >= dc:
		e.Unconscious = true
		kind, note = "unconscious", e.Name+" collapses, breathing"
	default:
		kind, note = "died", e.Name+" goes still"
	}

	m.engine.Log().Emit(mech.EventDeathSave, map[string]any{
		"enemy": e.Name, "wounds": e.Wounds, "dc": dc, "die": die,
		"total": total, "result": kind,
	})
	return RoundEvent{Enemy: e, Kind: kind, Note: note}
}

// moraleBroken checks the flee threshold: morale has been ground to nothing,
// or the enemy is badly hurt with shaky nerve.
func (m *Manager) moraleBroken(e *Enemy) bool {
	if e.Morale <= 0 {
		return true
	}
	badlyHurt := e.Sheet.MaxHealth > 0 && e.Sheet.Health*4 < e.Sheet.MaxHealth
	return badlyHurt && e.Morale <= 3
}

// advanceEscapeClock queues a tick on the first clock whose name reads as an
// escape or pursuit timer.
func (m *Manager) advanceEscapeClock(e *Enemy) {
	for _, c := range m.engine.Clocks() {
		name := strings.ToLower(c.Name)
		if strings.Contains(name, "escape") || strings.Contains(name, "getaway") ||
			strings.Contains(name, "pursuit") {
			m.engine.QueueUpdate(c.Name, 1, e.Name+" fled the fight")
			return
		}
	}
}

// Surrender marks the named enemy surrendered, removing it from the order of
// battle but leaving it on the field.
func (m *Manager) Surrender(name string) (*Enemy, bool) {
	e, ok := m.ByName(name)
	if !ok {
		return nil, false
	}
	e.Surrender = true
	m.engine.Log().Emit(mech.EventEnemyDefeated, map[string]any{
		"enemy": e.Name, "id": e.ID, "reason": "surrendered",
	})
	return e, true
}

// Flee marks the named enemy fled and removes it.
func (m *Manager) Flee(name string) (*Enemy, bool) {
	e, ok := m.ByName(name)
	if !ok {
		return nil, false
	}
	e.Fled = true
	m.advanceEscapeClock(e)
	m.remove(e, "fled")
	return e, true
}

func (m *Manager) remove(e *Enemy, reason string) {
	delete(m.enemies, e.ID)
	m.ids.Remove(e.ID)
	m.compactOrder()
	m.engine.Log().Emit(mech.EventEnemyDefeated, map[string]any{
		"enemy": e.Name, "id": e.ID, "reason": reason,
	})
}

func (m *Manager) combatIDOf(e *Enemy) string {
	if id, ok := m.ids.ForAgent(e.ID); ok {
		return id
	}
	return e.ID
}

// attackProfile maps a weapon's reach band to the attack roll: Agility×Melee
// in close quarters, Perception×Ranged at distance.
func attackProfile(reach string) (types.Attribute, string) {
	if rank(reach) > 0 {
		return types.Perception, "Ranged"
	}
	return types.Agility, "Melee"
}

func isMovement(action string) bool {
	a := strings.ToLower(action)
	for _, w := range []string{"advance", "close the distance", "move toward", "moves toward", "reposition", "retreat", "fall back"} {
		if strings.Contains(a, w) {
			return true
		}
	}
	return false
}

// stepToward moves one band from the attacker's position toward the target's.
func stepToward(from, to string) string {
	f, t := rank(from), rank(to)
	switch {
	case f > t:
		return bandFor(f - 1)
	case f < t:
		return bandFor(f + 1)
	default:
		return from
	}
}

// closer moves one band inward with no specific target.
func closer(from string) string {
	f := rank(from)
	if f == 0 {
		return from
	}
	return bandFor(f - 1)
}

func bandFor(r int) string {
	for band, v := range positionRank {
		if v == r {
			return band
		}
	}
	return "Near"
}
