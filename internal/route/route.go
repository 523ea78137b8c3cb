// Package route normalises a player's intended action to an (attribute,
// skill) pairing, validates declaration structure, and de-duplicates
// near-identical consecutive intents.
//
// Routing is a priority chain: a declared skill the character actually has
// wins outright; after that, intent keywords select specialised pairings;
// the action type provides the fallback.
package route

import (
	"strings"

	"github.com/arkavel/voidtable/pkg/types"
)

// Decision is the router's verdict for one intent.
type Decision struct {
	Attribute types.Attribute
	Skill     string // empty means unskilled
	Rationale string

	// IsFreeAction marks inter-party dialogue that does not consume the
	// actor's main action.
	IsFreeAction bool

	// DialogueTarget is the named party member for free-action dialogue.
	DialogueTarget string
}

// skillAttribute is the canonical attribute for each known skill. Unknown
// skills default to Intelligence.
var skillAttribute = map[string]types.Attribute{
	"Systems":         types.Intelligence,
	"Engineering":     types.Intelligence,
	"Medicine":        types.Intelligence,
	"Lore":            types.Intelligence,
	"Pilot":           types.Agility,
	"Stealth":         types.Agility,
	"Melee":           types.Agility,
	"Ranged":          types.Perception,
	"Charm":           types.Empathy,
	"Counsel":         types.Empathy,
	"Intimacy Ritual": types.Empathy,
	"Guile":           types.Charisma,
	"Command":         types.Charisma,
	"Intimidation":    types.Charisma,
	"Awareness":       types.Perception,
	"Attunement":      types.Perception,
	"Astral Arts":     types.Willpower,
	"Dreamwork":       types.Willpower,
	"Discipline":      types.Willpower,
}

// AttributeForSkill returns the canonical attribute paired with skill.
func AttributeForSkill(skill string) types.Attribute {
	if attr, ok := skillAttribute[skill]; ok {
		return attr
	}
	return types.Intelligence
}

var (
	recoveryWords    = []string{"ground myself", "ground me", "center", "centre", "meditate", "steady my mind", "calm my breathing"}
	purgeWords       = []string{"purge", "flush the system", "vent the"}
	dialogueWords    = []string{"tell ", "ask ", "talk to", "speak with", "speak to", "warn ", "explain to", "share with"}
	sensingWords     = []string{"sense", "attune", "feel for", "listen for the current", "read the flow"}
	techWords        = []string{"hack", "interface", "rewire", "splice", "program", "systems", "console", "terminal"}
	dreamWords       = []string{"dream", "trance", "vision", "sleepwalk"}
	careWords        = []string{"comfort", "reassure", "soothe", "console", "counsel"}
	commandWords     = []string{"order", "command", "rally", "direct the", "take charge"}
	socialWords      = []string{"persuade", "convince", "charm", "negotiate", "befriend"}
	investigateWords = []string{"investigate", "search", "examine", "inspect", "study the", "look for"}
)

// Route maps an intent to its attribute/skill pairing.
//
// characterSkills is the declarer's skill map; declaredSkill is the skill the
// player named, honoured when the character has it and the action is not an
// explicit ritual override; otherPlayers is used to recognise inter-party
// dialogue targets.
func Route(intent string, actionType types.ActionType, characterSkills map[string]int, isExplicitRitual bool, declaredSkill string, otherPlayers []string) Decision {
	lower := strings.ToLower(intent)

	// 1. A declared skill the character has wins, unless an explicit ritual
	// overrides the declaration entirely.
	if declaredSkill != "" && !isExplicitRitual {
		if _, ok := characterSkills[declaredSkill]; ok {
			return Decision{
				Attribute: AttributeForSkill(declaredSkill),
				Skill:     declaredSkill,
				Rationale: "declared skill",
			}
		}
	}

	// 2. Recovery.
	if containsAny(lower, recoveryWords) {
		skill := ""
		if _, ok := characterSkills["Discipline"]; ok {
			skill = "Discipline"
		}
		return Decision{Attribute: types.Willpower, Skill: skill, Rationale: "grounding recovery"}
	}

	// 3. Purge.
	if containsAny(lower, purgeWords) {
		return Decision{Attribute: types.Intelligence, Skill: pick(characterSkills, "Systems"), Rationale: "system purge"}
	}

	// 4. Dialogue aimed at a party member is a free action.
	if target := dialogueTarget(lower, otherPlayers); target != "" && containsAny(lower, dialogueWords) {
		skill := pick(characterSkills, "Charm")
		if skill == "" {
			skill = pick(characterSkills, "Counsel")
		}
		return Decision{
			Attribute:      types.Empathy,
			Skill:          skill,
			Rationale:      "inter-party dialogue",
			IsFreeAction:   true,
			DialogueTarget: target,
		}
	}

	// 5. Rituals on another party member are intimate workings.
	if isExplicitRitual {
		if target := dialogueTarget(lower, otherPlayers); target != "" {
			return Decision{
				Attribute:      types.Empathy,
				Skill:          pick(characterSkills, "Intimacy Ritual"),
				Rationale:      "inter-party ritual",
				DialogueTarget: target,
			}
		}
		// 6. Every other explicit ritual is astral work.
		return Decision{Attribute: types.Willpower, Skill: pick(characterSkills, "Astral Arts"), Rationale: "ritual"}
	}

	// 7. Keyword families.
	switch {
	case containsAny(lower, sensingWords):
		return Decision{Attribute: types.Perception, Skill: pick(characterSkills, "Attunement"), Rationale: "sensing"}
	case containsAny(lower, techWords):
		return Decision{Attribute: types.Intelligence, Skill: pick(characterSkills, "Systems"), Rationale: "technical work"}
	case containsAny(lower, dreamWords):
		return Decision{Attribute: types.Willpower, Skill: pick(characterSkills, "Dreamwork"), Rationale: "dreamwork"}
	case containsAny(lower, careWords):
		return Decision{Attribute: types.Empathy, Skill: pick(characterSkills, "Counsel"), Rationale: "social care"}
	case containsAny(lower, commandWords):
		return Decision{Attribute: types.Charisma, Skill: pick(characterSkills, "Command"), Rationale: "social command"}
	case containsAny(lower, socialWords):
		return Decision{Attribute: types.Empathy, Skill: pick(characterSkills, "Charm"), Rationale: "general social"}
	case containsAny(lower, investigateWords):
		return Decision{Attribute: types.Perception, Skill: pick(characterSkills, "Awareness"), Rationale: "investigation"}
	}

	// 8. Fallback by action type; the ultimate fallback is unskilled
	// Perception.
	switch actionType {
	case types.ActionRitual:
		return Decision{Attribute: types.Willpower, Skill: pick(characterSkills, "Astral Arts"), Rationale: "action type: ritual"}
	case types.ActionSocial:
		return Decision{Attribute: types.Empathy, Skill: pick(characterSkills, "Charm"), Rationale: "action type: social"}
	case types.ActionCombat:
		return Decision{Attribute: types.Agility, Skill: pick(characterSkills, "Melee"), Rationale: "action type: combat"}
	case types.ActionTechnical:
		return Decision{Attribute: types.Intelligence, Skill: pick(characterSkills, "Systems"), Rationale: "action type: technical"}
	case types.ActionInvestigate:
		return Decision{Attribute: types.Perception, Skill: pick(characterSkills, "Awareness"), Rationale: "action type: investigate"}
	case types.ActionPerception:
		return Decision{Attribute: types.Perception, Skill: pick(characterSkills, "Awareness"), Rationale: "action type: perception"}
	case types.ActionExplore:
		return Decision{Attribute: types.Perception, Skill: pick(characterSkills, "Awareness"), Rationale: "action type: explore"}
	}
	return Decision{Attribute: types.Perception, Rationale: "fallback"}
}

// pick returns skill when the character has it, else empty (unskilled).
func pick(skills map[string]int, skill string) string {
	if _, ok := skills[skill]; ok {
		return skill
	}
	return ""
}

// dialogueTarget finds the first other player's name mentioned in the intent.
func dialogueTarget(lowerIntent string, otherPlayers []string) string {
	for _, name := range otherPlayers {
		if name == "" {
			continue
		}
		if strings.Contains(lowerIntent, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
