package enemy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/arkavel/voidtable/pkg/types"
)

// Enemy is one live opponent. Enemies are in-process agents driven by the
// combat manager rather than bus clients: they have a stable id, a sheet
// derived from a template, a position, a tactical doctrine, and morale.
type Enemy struct {
	ID       string
	Name     string
	Template string
	Sheet    types.CharacterSheet
	Position string

	// Doctrine is the tactics clause from the spawn marker, injected into
	// the enemy's declaration prompt verbatim.
	Doctrine string

	Morale    int
	Wounds    int
	Surrender bool
	Fled      bool

	// Unconscious enemies stay on the field but take no actions.
	Unconscious bool
}

// newEnemy stamps one enemy from a template. Numbered names disambiguate
// multi-spawns ("Void Husk 2").
func newEnemy(t Template, name string, ordinal int, position, doctrine string) *Enemy {
	display := name
	if ordinal > 1 {
		display = fmt.Sprintf("%s %d", name, ordinal)
	}

	sheet := types.CharacterSheet{
		Name:            display,
		Attributes:      cloneAttrs(t.Attributes),
		Skills:          cloneSkills(t.Skills),
		EquippedWeapons: append([]string(nil), t.Weapons...),
	}
	sheet.InitDerived()
	// Template health overrides the derived figure when set.
	if t.Health > 0 {
		sheet.MaxHealth = t.Health
		sheet.Health = t.Health
	}
	sheet.Position = position

	return &Enemy{
		ID:       "enemy_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Name:     display,
		Template: t.ID,
		Sheet:    sheet,
		Position: position,
		Doctrine: doctrine,
		Morale:   t.Morale,
	}
}

// Alive reports whether the enemy is still a combatant.
func (e *Enemy) Alive() bool {
	return e.Sheet.Health > 0 && !e.Fled && !e.Surrender
}

// CanAct reports whether the enemy takes a turn this round.
func (e *Enemy) CanAct() bool {
	return e.Alive() && !e.Unconscious
}

func cloneAttrs(in map[types.Attribute]int) map[types.Attribute]int {
	out := make(map[types.Attribute]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneSkills(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
