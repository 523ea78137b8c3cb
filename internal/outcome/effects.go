package outcome

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/arkavel/voidtable/pkg/types"
)

var effectLineRe = regexp.MustCompile(`(?m)^\s*EFFECT:\s*(.+)$`)

// parseEffects extracts every EFFECT block from the narration. When a
// successful attack against an enemy carries no block at all, a fallback
// damage effect is synthesised from the action's numbers. Actions that target
// a player character never synthesise a fallback — for heals, harms, and
// purifications aimed at the party, the Director's narration is authoritative.
func parseEffects(narration string, action types.ActionDeclaration, res types.ActionResolution) []Effect {
	var out []Effect
	for _, m := range effectLineRe.FindAllStringSubmatch(narration, -1) {
		if eff, ok := parseEffectBody(m[1]); ok {
			out = append(out, eff)
		}
	}

	if len(out) == 0 && res.Success && action.Type == types.ActionCombat && action.Target != "" && !targetsPlayer(action) {
		out = append(out, Effect{
			Type:     EffectDamage,
			Target:   action.Target,
			Amount:   fallbackDamage(res),
			Detail:   "weapon strike",
			Fallback: true,
		})
	}
	return out
}

// parseEffectBody parses the comma-separated key=value pairs of one block.
func parseEffectBody(body string) (Effect, bool) {
	var eff Effect
	for _, field := range strings.Split(body, ",") {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		switch k {
		case "type":
			eff.Type = EffectType(strings.ToLower(v))
		case "target":
			eff.Target = v
		case "amount", "damage":
			if n, err := strconv.Atoi(v); err == nil {
				eff.Amount = n
			}
		case "duration":
			if n, err := strconv.Atoi(v); err == nil {
				eff.Duration = n
			}
		case "effect", "detail":
			eff.Detail = v
		case "position":
			eff.Position = v
		}
	}

	switch eff.Type {
	case EffectDamage, EffectDebuff, EffectStatus, EffectMovement, EffectReveal:
	default:
		return Effect{}, false
	}
	if eff.Target == "" {
		return Effect{}, false
	}
	return eff, true
}

// targetsPlayer reports whether the declared target looks like a party
// member rather than an enemy. Combat ids are opaque, so here only raw names
// can be checked; combat-id resolution happens in the combat manager, which
// performs its own friendly-fire detection.
func targetsPlayer(action types.ActionDeclaration) bool {
	if strings.HasPrefix(action.Target, "tgt_") {
		return false
	}
	return strings.EqualFold(action.Target, action.CharacterName)
}

// fallbackDamage derives a damage figure from the margin when the narration
// gave none: a base 4 plus one per 5 points of margin.
func fallbackDamage(res types.ActionResolution) int {
	dmg := 4 + res.Margin/5
	if dmg < 1 {
		dmg = 1
	}
	return dmg
}
