// Package types defines the shared types used across all Voidtable packages.
//
// These types form the lingua franca between the mechanics engine, the agents,
// the outcome parser, and the session orchestrator. Each package defines its
// own domain types, but cross-cutting data structures live here to avoid
// circular imports.
package types

import "time"

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (for multi-speaker contexts).
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this responds to.
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool/function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool

	// SupportsVision indicates the model can process image inputs.
	SupportsVision bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}

// ─────────────────────────────────────────────────────────────────────────────
// Attributes and skills
// ─────────────────────────────────────────────────────────────────────────────

// Attribute is one of the eight named character attributes.
type Attribute string

const (
	Strength     Attribute = "Strength"
	Agility      Attribute = "Agility"
	Endurance    Attribute = "Endurance"
	Perception   Attribute = "Perception"
	Intelligence Attribute = "Intelligence"
	Empathy      Attribute = "Empathy"
	Willpower    Attribute = "Willpower"
	Charisma     Attribute = "Charisma"
)

// Attributes lists all eight attributes in canonical order.
var Attributes = []Attribute{
	Strength, Agility, Endurance, Perception,
	Intelligence, Empathy, Willpower, Charisma,
}

// IsValid reports whether a is one of the eight recognised attributes.
func (a Attribute) IsValid() bool {
	for _, v := range Attributes {
		if a == v {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Seeds and energy
// ─────────────────────────────────────────────────────────────────────────────

// SeedVariant distinguishes the three forms a ritual seed can take.
type SeedVariant string

const (
	// SeedRaw is an unattuned seed with a limited number of cycles before it
	// collapses into a Hollow seed.
	SeedRaw SeedVariant = "raw"

	// SeedAttuned is a seed bound to a single element. Attuned seeds are stable.
	SeedAttuned SeedVariant = "attuned"

	// SeedHollow is a spent seed. Hollow seeds have no ritual value but retain
	// a small trade value.
	SeedHollow SeedVariant = "hollow"
)

// Seed is a ritual consumable carried in a character's energy inventory.
type Seed struct {
	Variant SeedVariant `yaml:"variant" json:"variant"`

	// Element is set only for attuned seeds (e.g., "Ash", "Tide", "Echo").
	Element string `yaml:"element,omitempty" json:"element,omitempty"`

	// CyclesRemaining applies only to raw seeds; it decrements once per session
	// and the seed becomes hollow at zero.
	CyclesRemaining int `yaml:"cycles_remaining,omitempty" json:"cycles_remaining,omitempty"`
}

// Decay advances a raw seed by one session cycle. Attuned and hollow seeds are
// unchanged. Returns the seed after decay.
func (s Seed) Decay() Seed {
	if s.Variant != SeedRaw {
		return s
	}
	s.CyclesRemaining--
	if s.CyclesRemaining <= 0 {
		s.CyclesRemaining = 0
		s.Variant = SeedHollow
	}
	return s
}

// EnergyInventory holds the four energy currencies plus carried seeds.
type EnergyInventory struct {
	Breath int    `yaml:"breath" json:"breath"`
	Drip   int    `yaml:"drip" json:"drip"`
	Grain  int    `yaml:"grain" json:"grain"`
	Spark  int    `yaml:"spark" json:"spark"`
	Seeds  []Seed `yaml:"seeds,omitempty" json:"seeds,omitempty"`
}

// Currency returns a pointer to the named currency field, or nil when name is
// not a recognised currency. Names are matched case-insensitively by callers.
func (e *EnergyInventory) Currency(name string) *int {
	switch name {
	case "breath", "Breath":
		return &e.Breath
	case "drip", "Drip":
		return &e.Drip
	case "grain", "Grain":
		return &e.Grain
	case "spark", "Spark":
		return &e.Spark
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Character sheet
// ─────────────────────────────────────────────────────────────────────────────

// Buff is a temporary bonus applied to a character for a number of rounds.
type Buff struct {
	Effect   string `json:"effect"`
	Bonus    int    `json:"bonus"`
	Duration int    `json:"duration"` // rounds remaining
	Source   string `json:"source"`
}

// PersonalityProfile tunes template-based fallback behaviour for a player agent.
type PersonalityProfile struct {
	RiskTolerance      float64 `yaml:"risk_tolerance" json:"risk_tolerance"`
	VoidCuriosity      float64 `yaml:"void_curiosity" json:"void_curiosity"`
	BondPreference     float64 `yaml:"bond_preference" json:"bond_preference"`
	RitualConservatism float64 `yaml:"ritual_conservatism" json:"ritual_conservatism"`
}

// CharacterSheet is the full mechanical description of a participant.
// Player characters load it from configuration; enemies derive it from a
// template. Derived combat state lives alongside the static fields because a
// sheet is owned by exactly one agent and mutated only on that agent's turn.
type CharacterSheet struct {
	Name     string `yaml:"name" json:"name"`
	Pronouns string `yaml:"pronouns" json:"pronouns"`
	Faction  string `yaml:"faction" json:"faction"`

	// Size feeds the max-health derivation. Zero means the default of 5.
	Size int `yaml:"size,omitempty" json:"size,omitempty"`

	Attributes map[Attribute]int `yaml:"attributes" json:"attributes"`
	Skills     map[string]int    `yaml:"skills" json:"skills"`

	Void       int `yaml:"void,omitempty" json:"void"`
	Soulcredit int `yaml:"soulcredit,omitempty" json:"soulcredit"`

	Goals []string `yaml:"goals,omitempty" json:"goals,omitempty"`
	Bonds []string `yaml:"bonds,omitempty" json:"bonds,omitempty"`

	Inventory map[string]int  `yaml:"inventory,omitempty" json:"inventory,omitempty"`
	Energy    EnergyInventory `yaml:"energy,omitempty" json:"energy"`

	EquippedWeapons []string `yaml:"equipped_weapons,omitempty" json:"equipped_weapons,omitempty"`
	CarriedWeapons  []string `yaml:"carried_weapons,omitempty" json:"carried_weapons,omitempty"`

	Personality PersonalityProfile `yaml:"personality,omitempty" json:"personality"`

	// Derived combat state.
	MaxHealth      int    `yaml:"-" json:"max_health"`
	Health         int    `yaml:"-" json:"health"`
	Wounds         int    `yaml:"-" json:"wounds"`
	Stuns          int    `yaml:"-" json:"stuns"`
	Soak           int    `yaml:"-" json:"soak"`
	Position       string `yaml:"-" json:"position"`
	Buffs          []Buff `yaml:"-" json:"buffs,omitempty"`
	FreeActionUsed bool   `yaml:"-" json:"free_action_used"`
}

// DefaultSoak is the flat damage resistance applied to every combatant.
// The attribute-derived soak the rules text describes is never used in play.
const DefaultSoak = 10

// InitDerived computes max health, current health, and soak from the static
// fields. Call once after loading a sheet and before the first round.
func (c *CharacterSheet) InitDerived() {
	size := c.Size
	if size == 0 {
		size = 5
	}
	c.MaxHealth = size*2 + c.Attributes[Endurance] + 13
	if c.Health == 0 {
		c.Health = c.MaxHealth
	}
	if c.Soak == 0 {
		c.Soak = DefaultSoak
	}
	if c.Position == "" {
		c.Position = "Near"
	}
}

// Alive reports whether the character can still act.
func (c *CharacterSheet) Alive() bool {
	return c.Health > 0
}

// TickBuffs decrements every buff's remaining duration and drops expired
// buffs. Called once per round during cleanup.
func (c *CharacterSheet) TickBuffs() {
	kept := c.Buffs[:0]
	for _, b := range c.Buffs {
		b.Duration--
		if b.Duration > 0 {
			kept = append(kept, b)
		}
	}
	c.Buffs = kept
}

// ─────────────────────────────────────────────────────────────────────────────
// Actions
// ─────────────────────────────────────────────────────────────────────────────

// ActionType classifies a declared action for routing and difficulty purposes.
type ActionType string

const (
	ActionExplore     ActionType = "explore"
	ActionInvestigate ActionType = "investigate"
	ActionRitual      ActionType = "ritual"
	ActionSocial      ActionType = "social"
	ActionCombat      ActionType = "combat"
	ActionTechnical   ActionType = "technical"
	ActionPerception  ActionType = "perception"
	ActionCustom      ActionType = "custom"
)

// ActionTypes lists every recognised action type.
var ActionTypes = []ActionType{
	ActionExplore, ActionInvestigate, ActionRitual, ActionSocial,
	ActionCombat, ActionTechnical, ActionPerception, ActionCustom,
}

// IsValid reports whether t is a recognised action type.
func (t ActionType) IsValid() bool {
	for _, v := range ActionTypes {
		if t == v {
			return true
		}
	}
	return false
}

// ActionDeclaration is a structured statement of a character's intended
// action, produced during the declaration phase before any dice are rolled.
type ActionDeclaration struct {
	Intent      string `json:"intent"`
	Description string `json:"description"`

	Attribute Attribute `json:"attribute"`
	Skill     string    `json:"skill,omitempty"`

	EstimatedDifficulty int    `json:"estimated_difficulty"`
	Justification       string `json:"justification"`

	CharacterName string     `json:"character_name"`
	AgentID       string     `json:"agent_id"`
	Type          ActionType `json:"action_type"`

	// TargetPosition is the position the actor intends to move to, if any.
	TargetPosition string `json:"target_position,omitempty"`

	// Target names an enemy or character, either as a raw name or as a
	// generated combat id of the form "tgt_xxxx".
	Target string `json:"target,omitempty"`

	IsRitual       bool     `json:"is_ritual,omitempty"`
	HasPrimaryTool bool     `json:"has_primary_tool,omitempty"`
	HasOffering    bool     `json:"has_offering,omitempty"`
	Components     []string `json:"components,omitempty"`

	// Modifiers holds situational modifiers by label (e.g., "cover": -2).
	Modifiers map[string]int `json:"modifiers,omitempty"`

	// IsFreeAction marks inter-party dialogue and rituals that do not consume
	// the actor's main action.
	IsFreeAction bool `json:"is_free_action,omitempty"`

	// Prompt records which prompt template produced this declaration.
	Prompt PromptMeta `json:"prompt,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// PromptMeta travels with a declaration for event-log traceability.
type PromptMeta struct {
	Version  string `json:"version,omitempty"`
	Provider string `json:"provider,omitempty"`
	Language string `json:"language,omitempty"`
	Template string `json:"template,omitempty"`
}

// OutcomeTier is one of the seven margin-derived result bands.
type OutcomeTier string

const (
	TierCriticalFailure OutcomeTier = "critical_failure"
	TierFailure         OutcomeTier = "failure"
	TierMarginal        OutcomeTier = "marginal"
	TierModerate        OutcomeTier = "moderate"
	TierGood            OutcomeTier = "good"
	TierExcellent       OutcomeTier = "excellent"
	TierExceptional     OutcomeTier = "exceptional"
)

// TierForMargin maps a margin to its outcome tier.
func TierForMargin(margin int) OutcomeTier {
	switch {
	case margin <= -20:
		return TierCriticalFailure
	case margin < 0:
		return TierFailure
	case margin < 5:
		return TierMarginal
	case margin < 10:
		return TierModerate
	case margin < 15:
		return TierGood
	case margin < 20:
		return TierExcellent
	default:
		return TierExceptional
	}
}

// ActionResolution is the mechanical outcome of one declared action.
type ActionResolution struct {
	Intent    string    `json:"intent"`
	Attribute Attribute `json:"attribute"`
	Skill     string    `json:"skill,omitempty"`

	AttributeValue int `json:"attribute_value"`
	SkillValue     int `json:"skill_value"`

	Roll       int `json:"roll"`
	Total      int `json:"total"`
	Difficulty int `json:"difficulty"`
	Margin     int `json:"margin"`

	Tier    OutcomeTier `json:"tier"`
	Success bool        `json:"success"`

	// Narrative is a short mechanical stub the Director expands on.
	Narrative string `json:"narrative"`

	AgentID  string `json:"agent_id,omitempty"`
	ActionID string `json:"action_id,omitempty"`
}
