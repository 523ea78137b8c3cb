package protocol

import (
	"github.com/arkavel/voidtable/pkg/types"
)

// RegisterPayload is the first frame a client sends after connecting; the bus
// uses Sender from the envelope plus this payload to register the client.
type RegisterPayload struct {
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
}

// ReadyPayload announces that an agent has finished starting up.
type ReadyPayload struct {
	Role             Role   `json:"role"`
	CharacterName    string `json:"character_name,omitempty"`
	CharacterSummary string `json:"character_summary,omitempty"`
}

// SessionStartPayload kicks off scenario generation.
type SessionStartPayload struct {
	SessionID   string   `json:"session_id"`
	SessionName string   `json:"session_name"`
	PartyNames  []string `json:"party_names"`

	// ForceScenario pins the scenario theme when non-empty.
	ForceScenario string `json:"force_scenario,omitempty"`
	ForceCombat   bool   `json:"force_combat,omitempty"`
}

// ClockSpec describes one scene clock in a scenario setup or update.
type ClockSpec struct {
	Name              string `json:"name"`
	Max               int    `json:"max"`
	Description       string `json:"description"`
	AdvanceMeans      string `json:"advance_means,omitempty"`
	RegressMeans      string `json:"regress_means,omitempty"`
	FilledConsequence string `json:"filled_consequence,omitempty"`
}

// ScenarioPayload carries a generated or updated scenario.
type ScenarioPayload struct {
	Theme     string `json:"theme"`
	Location  string `json:"location"`
	Situation string `json:"situation"`
	VoidLevel int    `json:"void_level"`

	Clocks []ClockSpec `json:"clocks,omitempty"`

	ActiveVendor     string `json:"active_vendor,omitempty"`
	RequiredPurchase string `json:"required_purchase,omitempty"`
	PurchaseGate     string `json:"purchase_gate,omitempty"`
}

// TurnPhase names a stage of the round pipeline.
type TurnPhase string

const (
	PhaseDeclaration    TurnPhase = "declaration"
	PhaseResolutionOnly TurnPhase = "resolution_only"
	PhaseSynthesis      TurnPhase = "synthesis"
	PhaseDebrief        TurnPhase = "debrief"
)

// TurnRequestPayload asks one agent to act in the named phase.
type TurnRequestPayload struct {
	Round int       `json:"round"`
	Phase TurnPhase `json:"phase"`

	// Scenario travels with every turn request so agents never act on a
	// stale scene.
	Scenario ScenarioPayload `json:"scenario"`

	// Clocks is the live clock state rendered for prompt building.
	Clocks []ClockState `json:"clocks,omitempty"`

	// PendingTransfer is delivered with the recipient's next turn request.
	PendingTransfer *Transfer `json:"pending_transfer,omitempty"`

	// CombatContext is present only while enemies are active.
	CombatContext *CombatContext `json:"combat_context,omitempty"`
}

// ClockState is the rendered state of one scene clock.
type ClockState struct {
	Name              string `json:"name"`
	Current           int    `json:"current"`
	Max               int    `json:"max"`
	AdvanceMeans      string `json:"advance_means,omitempty"`
	RegressMeans      string `json:"regress_means,omitempty"`
	FilledConsequence string `json:"filled_consequence,omitempty"`
}

// Combatant is one entry in the combat context handed to declaring agents.
type Combatant struct {
	CombatID string `json:"combat_id,omitempty"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Position string `json:"position"`
	Health   int    `json:"health"`
	Alive    bool   `json:"alive"`
}

// CombatContext summarises the battlefield for declaration prompts.
type CombatContext struct {
	Combatants    []Combatant `json:"combatants"`
	ClaimedTokens []string    `json:"claimed_tokens,omitempty"`
	FreeTargeting bool        `json:"free_targeting"`
}

// Transfer is an inter-player currency transfer awaiting pickup.
type Transfer struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Currency string `json:"currency"`
	Amount   int    `json:"amount"`
}

// ActionDeclaredPayload wraps one or more declarations from a single agent.
// Two declarations appear when a free action triggered a second main action.
type ActionDeclaredPayload struct {
	Round   int                       `json:"round"`
	Phase   TurnPhase                 `json:"phase"`
	Actions []types.ActionDeclaration `json:"actions"`
}

// ActionResolvedPayload broadcasts the outcome of one resolved action.
type ActionResolvedPayload struct {
	Round      int                    `json:"round"`
	AgentID    string                 `json:"agent_id"`
	Resolution types.ActionResolution `json:"resolution"`
	Narration  string                 `json:"narration"`
	Source     string                 `json:"narration_source,omitempty"` // "llm" or "fallback"
	VoidDelta  int                    `json:"void_delta,omitempty"`
	Purchase   *PurchaseReceipt       `json:"purchase,omitempty"`
	Transfer   *Transfer              `json:"transfer,omitempty"`
	Character  *types.CharacterSheet  `json:"character,omitempty"`
}

// PurchaseReceipt records a successful vendor purchase.
type PurchaseReceipt struct {
	Item     string `json:"item"`
	Currency string `json:"currency"`
	Price    int    `json:"price"`
}

// SynthesisPayload is the batch of resolutions sent to the Director for the
// end-of-round synthesis narration.
type SynthesisPayload struct {
	Round       int                      `json:"round"`
	Resolutions []types.ActionResolution `json:"resolutions"`

	// NeedsStoryAdvancement is set when every clock has filled or expired;
	// the Director must answer with ADVANCE_STORY plus a NEW_CLOCK marker.
	NeedsStoryAdvancement bool `json:"needs_story_advancement,omitempty"`
}

// NarrationPayload is a Director narration broadcast.
type NarrationPayload struct {
	Round            int    `json:"round"`
	Text             string `json:"text"`
	IsRoundSynthesis bool   `json:"is_round_synthesis,omitempty"`
	Source           string `json:"narration_source,omitempty"`
}

// DebriefPayload is an in-character end-of-session statement from a player.
type DebriefPayload struct {
	CharacterName string `json:"character_name"`
	Text          string `json:"text"`
}

// ShutdownPayload carries the reason for a session shutdown broadcast.
type ShutdownPayload struct {
	Reason string `json:"reason,omitempty"`
}
