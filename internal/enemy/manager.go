package enemy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/arkavel/voidtable/internal/gear"
	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/outcome"
	"github.com/arkavel/voidtable/internal/protocol"
	"github.com/arkavel/voidtable/internal/shared"
	"github.com/arkavel/voidtable/pkg/provider/llm"
	"github.com/arkavel/voidtable/pkg/types"
)

// Manager owns every live enemy: spawning from Director markers, per-enemy
// tactical declaration, resolution with live-state invalidation, and
// end-of-round morale and death processing.
type Manager struct {
	provider  llm.Provider
	engine    *mech.Engine
	templates *TemplateRegistry
	weapons   *gear.Registry
	ids       *shared.CombatIDMapper

	freeTargeting bool

	enemies map[string]*Enemy // enemy id → enemy
	order   []string          // spawn order, for deterministic iteration
}

// NewManager wires a combat manager. provider may be nil, in which case every
// declaration uses the doctrine fallback.
func NewManager(provider llm.Provider, engine *mech.Engine, templates *TemplateRegistry, weapons *gear.Registry, ids *shared.CombatIDMapper, freeTargeting bool) *Manager {
	return &Manager{
		provider:      provider,
		engine:        engine,
		templates:     templates,
		weapons:       weapons,
		ids:           ids,
		freeTargeting: freeTargeting,
		enemies:       make(map[string]*Enemy),
	}
}

// Spawn creates spec.Count enemies from the named template. Unknown
// templates are an error reported back to the Director for a retry.
func (m *Manager) Spawn(spec outcome.SpawnSpec) ([]*Enemy, error) {
	t, ok := m.templates.Lookup(spec.Template)
	if !ok {
		return nil, fmt.Errorf("enemy: unknown template %q", spec.Template)
	}

	var spawned []*Enemy
	for i := 1; i <= spec.Count; i++ {
		e := newEnemy(t, spec.Name, i, spec.Position, spec.Tactics)
		m.enemies[e.ID] = e
		m.order = append(m.order, e.ID)
		m.ids.Assign(e.ID, e.Name, shared.KindEnemy)
		spawned = append(spawned, e)

		m.engine.Log().Emit(mech.EventEnemySpawned, map[string]any{
			"enemy": e.Name, "id": e.ID, "template": t.ID,
			"position": e.Position, "health": e.Sheet.Health,
		})
	}
	slog.Info("enemies spawned", "name", spec.Name, "template", spec.Template, "count", spec.Count)
	return spawned, nil
}

// Despawn removes the named enemy (or every enemy sharing the name) with the
// given reason. Returns the removed enemies.
func (m *Manager) Despawn(name, reason string) []*Enemy {
	var removed []*Enemy
	for _, id := range m.order {
		e, ok := m.enemies[id]
		if !ok || !strings.EqualFold(e.Name, name) {
			continue
		}
		delete(m.enemies, id)
		m.ids.Remove(id)
		removed = append(removed, e)
		m.engine.Log().Emit(mech.EventEnemyDefeated, map[string]any{
			"enemy": e.Name, "id": e.ID, "reason": reason,
		})
	}
	m.compactOrder()
	return removed
}

// ByName finds a living enemy by display name.
func (m *Manager) ByName(name string) (*Enemy, bool) {
	for _, id := range m.order {
		if e, ok := m.enemies[id]; ok && strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return nil, false
}

// ByID finds an enemy by agent id.
func (m *Manager) ByID(id string) (*Enemy, bool) {
	e, ok := m.enemies[id]
	return e, ok
}

// Living returns every enemy still able to fight, in spawn order.
func (m *Manager) Living() []*Enemy {
	var out []*Enemy
	for _, id := range m.order {
		if e, ok := m.enemies[id]; ok && e.Alive() {
			out = append(out, e)
		}
	}
	return out
}

// Any reports whether any living enemy remains.
func (m *Manager) Any() bool { return len(m.Living()) > 0 }

// AgilityMap returns agent id → Agility for initiative rolling.
func (m *Manager) AgilityMap() map[string]int {
	out := make(map[string]int)
	for _, e := range m.Living() {
		if e.CanAct() {
			out[e.ID] = e.Sheet.Attributes[types.Agility]
		}
	}
	return out
}

func (m *Manager) compactOrder() {
	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := m.enemies[id]; ok {
			kept = append(kept, id)
		}
	}
	m.order = kept
}

// ─────────────────────────────────────────────────────────────────────────────
// Declaration
// ─────────────────────────────────────────────────────────────────────────────

// Declaration is one enemy's declared major action for the round.
type Declaration struct {
	EnemyID string `json:"-"`

	// Action is the verb phrase of the major action.
	Action string `json:"action"`

	// Target is a combat id (free-targeting mode) or a raw name.
	Target string `json:"target,omitempty"`

	// ClaimToken is an objective token the enemy intends to seize.
	ClaimToken string `json:"claim_token,omitempty"`

	// RequiredReach is the weapon reach band the action depends on.
	RequiredReach string `json:"-"`
}

// threatPriorities is the doctrine-independent targeting guidance included in
// every declaration prompt.
const threatPriorities = `Threat priority, highest first:
1. A character mid-ritual or channeling void energy.
2. The character who wounded you most recently.
3. The closest character you can reach this round.
4. Anyone guarding an objective token.`

// Declare produces the enemy's action for this round. The LLM is asked for a
// small JSON object; a malformed or missing response falls back to a
// doctrine-driven template attack so the round never stalls.
func (m *Manager) Declare(ctx context.Context, e *Enemy, combat protocol.CombatContext) Declaration {
	decl := m.fallbackDeclaration(e, combat)

	if m.provider == nil {
		return decl
	}

	prompt := m.declarationPrompt(e, combat)
	resp, err := m.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil || resp == nil || strings.TrimSpace(resp.Content) == "" {
		slog.Warn("enemy declaration fell back to doctrine", "enemy", e.Name, "err", err)
		return decl
	}

	var parsed Declaration
	if jerr := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); jerr != nil {
		slog.Warn("enemy declaration unparseable", "enemy", e.Name, "err", jerr)
		return decl
	}
	if strings.TrimSpace(parsed.Action) == "" {
		return decl
	}

	parsed.EnemyID = e.ID
	parsed.RequiredReach = m.reachOf(e)
	return parsed
}

func (m *Manager) declarationPrompt(e *Enemy, combat protocol.CombatContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s.\n", e.Name, m.describeTemplate(e))
	fmt.Fprintf(&b, "Doctrine: %s\n\n", e.Doctrine)
	b.WriteString("Battlefield:\n")
	for _, c := range combat.Combatants {
		status := "up"
		if !c.Alive {
			status = "down"
		}
		id := c.Name
		if combat.FreeTargeting && c.CombatID != "" {
			id = c.CombatID
		}
		fmt.Fprintf(&b, "- %s (%s) at %s, %s\n", c.Name, id, c.Position, status)
	}
	if len(combat.ClaimedTokens) > 0 {
		fmt.Fprintf(&b, "Claimed tokens: %s\n", strings.Join(combat.ClaimedTokens, ", "))
	}
	b.WriteString("\n" + threatPriorities + "\n\n")
	b.WriteString(`Reply with exactly one JSON object and nothing else:
{"action": "<what you do>", "target": "<combat id or name, or empty>", "claim_token": "<token or empty>"}`)
	return b.String()
}

func (m *Manager) describeTemplate(e *Enemy) string {
	if t, ok := m.templates.Lookup(e.Template); ok && t.Description != "" {
		return t.Description
	}
	return "an enemy combatant"
}

// fallbackDeclaration is the template action used when the LLM is absent or
// non-compliant: attack the nearest living player with the equipped weapon.
func (m *Manager) fallbackDeclaration(e *Enemy, combat protocol.CombatContext) Declaration {
	decl := Declaration{
		EnemyID:       e.ID,
		Action:        "attack the nearest threat",
		RequiredReach: m.reachOf(e),
	}

	var candidates []protocol.Combatant
	for _, c := range combat.Combatants {
		if c.Role == protocol.RolePlayer && c.Alive {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Name < candidates[j].Name
	})
	for _, c := range candidates {
		if Reachable(decl.RequiredReach, e.Position, c.Position) {
			decl.Target = pickTargetRef(c, combat.FreeTargeting)
			return decl
		}
	}
	if len(candidates) > 0 {
		// Nothing in reach; close distance toward the first candidate.
		decl.Action = "advance toward the nearest threat"
		decl.Target = pickTargetRef(candidates[0], combat.FreeTargeting)
	}
	return decl
}

func pickTargetRef(c protocol.Combatant, freeTargeting bool) string {
	if freeTargeting && c.CombatID != "" {
		return c.CombatID
	}
	return c.Name
}

// reachOf returns the reach band of the enemy's best weapon.
func (m *Manager) reachOf(e *Enemy) string {
	best := "Engaged"
	for _, id := range e.Sheet.EquippedWeapons {
		if w, ok := m.weapons.Lookup(id); ok && rank(w.Reach) > rank(best) {
			best = w.Reach
		}
	}
	return best
}

// weaponOf returns the enemy's primary weapon, defaulting to fists.
func (m *Manager) weaponOf(e *Enemy) gear.Weapon {
	for _, id := range e.Sheet.EquippedWeapons {
		if w, ok := m.weapons.Lookup(id); ok {
			return w
		}
	}
	w, _ := m.weapons.Lookup("fists")
	return w
}

// extractJSON trims everything outside the outermost braces, tolerating
// models that wrap their JSON in prose or fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
