package player

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arkavel/voidtable/internal/bus"
	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/promptkit"
	"github.com/arkavel/voidtable/internal/protocol"
	"github.com/arkavel/voidtable/internal/shared"
	"github.com/arkavel/voidtable/pkg/provider/llm"
	llmmock "github.com/arkavel/voidtable/pkg/provider/llm/mock"
	"github.com/arkavel/voidtable/pkg/types"
)

func testSheet(name string) *types.CharacterSheet {
	sheet := &types.CharacterSheet{
		Name:    name,
		Faction: "Tidewrights",
		Attributes: map[types.Attribute]int{
			types.Strength: 3, types.Agility: 4, types.Endurance: 3,
			types.Perception: 4, types.Intelligence: 3, types.Empathy: 3,
			types.Willpower: 4, types.Charisma: 2,
		},
		Skills: map[string]int{
			"Awareness": 3, "Melee": 2, "Astral Arts": 3, "Charm": 2, "Systems": 2,
		},
		Inventory: map[string]int{"ritual_focus": 1, "offering": 2},
		Energy:    types.EnergyInventory{Breath: 5, Drip: 5, Grain: 5, Spark: 5},
		Goals:     []string{"map the flooded district"},
	}
	sheet.InitDerived()
	return sheet
}

// newTestAgent wires a player agent to a throwaway bus server.
func newTestAgent(t *testing.T, provider llm.Provider, opts ...Option) (*Agent, *shared.State) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := bus.NewServer(filepath.Join(t.TempDir(), "bus.sock"))
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("bus start: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	state := shared.NewState()
	a, err := New(ctx, srv.Path(), "player-1", testSheet("Maren"), provider, promptkit.NewRegistry(), state, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a, state
}

func turnRequest() protocol.TurnRequestPayload {
	return protocol.TurnRequestPayload{
		Round: 1,
		Phase: protocol.PhaseDeclaration,
		Scenario: protocol.ScenarioPayload{
			Location:  "Drowned Exchange",
			Situation: "The tide engines are failing one by one.",
		},
	}
}

func TestDeclareActionParsesProviderJSON(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `Here is my action:
{"intent": "I examine the failing tide engine", "description": "Crouch by the intake and trace the fault", "action_type": "investigate", "attribute": "Perception", "skill": "Awareness", "difficulty": 16, "justification": "trained rigger"}`,
		},
	}
	a, _ := newTestAgent(t, provider)

	decl := a.declareAction(context.Background(), turnRequest(), false)
	if decl.Intent != "I examine the failing tide engine" {
		t.Errorf("intent = %q", decl.Intent)
	}
	if decl.Attribute != types.Perception || decl.Skill != "Awareness" {
		t.Errorf("routing = %s/%s, want Perception/Awareness", decl.Attribute, decl.Skill)
	}
	if decl.EstimatedDifficulty != 16 {
		t.Errorf("difficulty = %d, want 16", decl.EstimatedDifficulty)
	}
	if decl.AgentID != "player-1" || decl.CharacterName != "Maren" {
		t.Errorf("identity = %s/%s", decl.AgentID, decl.CharacterName)
	}
}

func TestDeclareActionRetriesOnGarbageThenFallsBack(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "no json here at all"},
	}
	a, _ := newTestAgent(t, provider)

	decl := a.declareAction(context.Background(), turnRequest(), false)
	if len(provider.CompleteCalls) != 2 {
		t.Errorf("complete calls = %d, want 2 (one retry)", len(provider.CompleteCalls))
	}
	if decl.Justification != "template fallback" {
		t.Errorf("expected template fallback, got %+v", decl)
	}
	if decl.Intent == "" || decl.Attribute == "" {
		t.Errorf("fallback declaration incomplete: %+v", decl)
	}
}

func TestDeclareActionRitualFillsComponents(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"intent": "I perform a ritual to seal the rift", "action_type": "ritual", "difficulty": 20, "justification": "astral training"}`,
		},
	}
	a, _ := newTestAgent(t, provider)

	decl := a.declareAction(context.Background(), turnRequest(), false)
	if !decl.IsRitual {
		t.Fatal("not flagged as ritual")
	}
	if !decl.HasPrimaryTool || !decl.HasOffering {
		t.Errorf("components = tool %v offering %v, want both", decl.HasPrimaryTool, decl.HasOffering)
	}
	if decl.Attribute != types.Willpower || decl.Skill != "Astral Arts" {
		t.Errorf("ritual routed to %s/%s", decl.Attribute, decl.Skill)
	}
}

func TestDeclareActionMainAfterFreeRejectsDialogue(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: `{"intent": "I tell Josu to watch the door", "action_type": "social", "difficulty": 12, "justification": "teamwork"}`},
			{Content: `{"intent": "I search the vault for the missing seal", "action_type": "investigate", "difficulty": 18, "justification": "following up"}`},
		},
	}
	a, state := newTestAgent(t, provider)
	state.RegisterPlayer(shared.PlayerInfo{AgentID: "player-2", Name: "Josu"})

	decl := a.declareAction(context.Background(), turnRequest(), true)
	if decl.IsFreeAction {
		t.Errorf("main action after free came back as free: %+v", decl)
	}
	if !strings.Contains(decl.Intent, "search the vault") {
		t.Errorf("expected the retried main action, got %q", decl.Intent)
	}
}

// stubController answers every turn with a fixed declaration or error.
type stubController struct {
	decl  *types.ActionDeclaration
	err   error
	calls int
}

func (c *stubController) Declare(_ context.Context, _ *types.CharacterSheet, _ protocol.TurnRequestPayload) (*types.ActionDeclaration, error) {
	c.calls++
	return c.decl, c.err
}

func TestControllerTakesOverDeclaration(t *testing.T) {
	ctrl := &stubController{
		decl: &types.ActionDeclaration{
			Intent:              "I wedge the intake shut with a pry bar",
			Description:         "Bracing against the housing, full weight on the bar.",
			Attribute:           types.Strength,
			Skill:               "Melee",
			EstimatedDifficulty: 20,
			Justification:       "declared by controller",
			Type:                types.ActionCombat,
		},
	}
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"intent": "unused", "justification": "x"}`},
	}
	a, _ := newTestAgent(t, provider, WithController(ctrl))

	decl := a.declareAction(context.Background(), turnRequest(), false)
	if ctrl.calls != 1 {
		t.Errorf("controller calls = %d, want 1", ctrl.calls)
	}
	if len(provider.CompleteCalls) != 0 {
		t.Errorf("LLM was called %d times despite controller answer", len(provider.CompleteCalls))
	}
	if decl.Intent != ctrl.decl.Intent {
		t.Errorf("intent = %q, want controller's", decl.Intent)
	}
	if decl.AgentID != "player-1" || decl.CharacterName != "Maren" {
		t.Errorf("identity = %s/%s, want stamped by the agent", decl.AgentID, decl.CharacterName)
	}
}

func TestControllerErrorFallsThroughToLLM(t *testing.T) {
	ctrl := &stubController{err: context.DeadlineExceeded}
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"intent": "I examine the failing tide engine", "description": "Crouch by the intake and trace the fault", "action_type": "investigate", "skill": "Awareness", "difficulty": 16, "justification": "trained rigger"}`,
		},
	}
	a, _ := newTestAgent(t, provider, WithController(ctrl))

	decl := a.declareAction(context.Background(), turnRequest(), false)
	if len(provider.CompleteCalls) != 1 {
		t.Errorf("LLM calls = %d, want 1 after controller declined", len(provider.CompleteCalls))
	}
	if decl.Skill != "Awareness" {
		t.Errorf("skill = %q, want the LLM declaration", decl.Skill)
	}
}

func TestControllerInvalidDeclarationFallsThrough(t *testing.T) {
	// Too-short description fails validation; the LLM path must take over.
	ctrl := &stubController{
		decl: &types.ActionDeclaration{
			Intent:              "I act",
			Description:         "short",
			Attribute:           types.Strength,
			EstimatedDifficulty: 20,
			Justification:       "declared by controller",
			Type:                types.ActionCombat,
		},
	}
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"intent": "I hold the line at the stairwell", "description": "Shield up, feet planted on the wet stone.", "action_type": "combat", "skill": "Melee", "difficulty": 18, "justification": "soldier's instinct"}`,
		},
	}
	a, _ := newTestAgent(t, provider, WithController(ctrl))

	decl := a.declareAction(context.Background(), turnRequest(), false)
	if decl.Intent != "I hold the line at the stairwell" {
		t.Errorf("intent = %q, want the LLM declaration", decl.Intent)
	}
}

func TestDifficultyClamped(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"intent": "I leap the chasm blindfolded", "action_type": "explore", "difficulty": 90, "justification": "showing off"}`,
		},
	}
	a, _ := newTestAgent(t, provider)

	decl := a.declareAction(context.Background(), turnRequest(), false)
	if decl.EstimatedDifficulty != 50 {
		t.Errorf("difficulty = %d, want clamp to 50", decl.EstimatedDifficulty)
	}
}

func TestFallbackDeclarationAttacksInCombat(t *testing.T) {
	a, _ := newTestAgent(t, nil)

	req := turnRequest()
	req.CombatContext = &protocol.CombatContext{
		Combatants: []protocol.Combatant{
			{Name: "Void Husk", Role: protocol.RoleEnemy, Position: "Near", Alive: true},
		},
	}
	decl := a.fallbackDeclaration(req, false)
	if decl.Type != types.ActionCombat {
		t.Errorf("type = %s, want combat", decl.Type)
	}
	if decl.Attribute != types.Agility || decl.Skill != "Melee" {
		t.Errorf("routing = %s/%s", decl.Attribute, decl.Skill)
	}
}

func TestGrantCoordinationBanksBonus(t *testing.T) {
	a, state := newTestAgent(t, nil)
	state.RegisterPlayer(shared.PlayerInfo{AgentID: "player-2", Name: "Josu"})

	a.grantCoordination(types.ActionDeclaration{Intent: "I cover Josu while he works"})

	bonus, ok := state.ConsumeBonus("player-2")
	if !ok {
		t.Fatal("no bonus banked")
	}
	if bonus.Bonus != 2 || bonus.From != "Maren" {
		t.Errorf("bonus = %+v", bonus)
	}
	if _, ok := state.ConsumeBonus("player-2"); ok {
		t.Error("bonus was not single-use")
	}
}

func TestSettleEconomyPurchase(t *testing.T) {
	a, _ := newTestAgent(t, nil)

	a.settleEconomy("I buy a ward charm from the stall keeper")
	if a.sheet.Inventory["ward_charm"] != 1 {
		t.Errorf("ward_charm count = %d", a.sheet.Inventory["ward_charm"])
	}
	if a.sheet.Energy.Drip != 2 {
		t.Errorf("drip = %d, want 2 after paying 3", a.sheet.Energy.Drip)
	}
}

func TestSettleEconomyPurchaseInsufficientFunds(t *testing.T) {
	a, _ := newTestAgent(t, nil)
	a.sheet.Energy.Spark = 1

	a.settleEconomy("I buy a seed casing")
	if a.sheet.Inventory["seed_casing"] != 0 {
		t.Error("purchase went through without funds")
	}
	if a.sheet.Energy.Spark != 1 {
		t.Errorf("spark = %d, wallet should be untouched", a.sheet.Energy.Spark)
	}
}

func TestSettleEconomyTransferQueuesAndDebits(t *testing.T) {
	a, state := newTestAgent(t, nil)
	state.RegisterPlayer(shared.PlayerInfo{AgentID: "player-2", Name: "Josu"})

	a.settleEconomy("I give 3 spark to Josu for the repairs")
	if a.sheet.Energy.Spark != 2 {
		t.Errorf("spark = %d, want 2 after sending 3", a.sheet.Energy.Spark)
	}

	tr, ok := state.ConsumeTransfer("player-2")
	if !ok {
		t.Fatal("no transfer queued")
	}
	if tr.Amount != 3 || tr.Currency != "spark" || tr.From != "Maren" || tr.To != "Josu" {
		t.Errorf("transfer = %+v", tr)
	}
}

func TestReceiveTransferCredits(t *testing.T) {
	a, _ := newTestAgent(t, nil)

	a.receiveTransfer(protocol.Transfer{From: "Josu", To: "Maren", Currency: "grain", Amount: 4})
	if a.sheet.Energy.Grain != 9 {
		t.Errorf("grain = %d, want 9", a.sheet.Energy.Grain)
	}
}

func TestConsumeOfferingPrefersInventoryThenHollowSeed(t *testing.T) {
	a, _ := newTestAgent(t, nil)
	a.sheet.Inventory["offering"] = 1
	a.sheet.Energy.Seeds = []types.Seed{
		{Variant: types.SeedAttuned, Element: "Tide"},
		{Variant: types.SeedHollow},
	}

	a.consumeOffering()
	if a.sheet.Inventory["offering"] != 0 {
		t.Errorf("inventory offering = %d", a.sheet.Inventory["offering"])
	}
	if len(a.sheet.Energy.Seeds) != 2 {
		t.Error("seed burned while inventory offering remained")
	}

	a.consumeOffering()
	if len(a.sheet.Energy.Seeds) != 1 || a.sheet.Energy.Seeds[0].Variant != types.SeedAttuned {
		t.Errorf("seeds after burn = %+v, want attuned kept", a.sheet.Energy.Seeds)
	}
}

func TestOnActionResolvedAppliesVoidAndOffering(t *testing.T) {
	a, _ := newTestAgent(t, nil)
	a.sheet.Inventory["offering"] = 1

	msg := protocol.New(protocol.ActionResolved, "coordinator", protocol.ActionResolvedPayload{
		AgentID:   "player-1",
		VoidDelta: 2,
		Resolution: types.ActionResolution{
			Intent:  "I burn the offering at the rift",
			Success: false,
		},
	})
	if err := a.onActionResolved(context.Background(), msg); err != nil {
		t.Fatalf("onActionResolved: %v", err)
	}
	if a.sheet.Void != 2 {
		t.Errorf("void = %d, want 2", a.sheet.Void)
	}
	if a.sheet.Inventory["offering"] != 0 {
		t.Error("offering not consumed on failed ritual")
	}
}

func TestOnActionResolvedClampsVoidDisplay(t *testing.T) {
	a, _ := newTestAgent(t, nil)
	a.sheet.Void = 9

	msg := protocol.New(protocol.ActionResolved, "coordinator", protocol.ActionResolvedPayload{
		AgentID:   "player-1",
		VoidDelta: 3,
	})
	if err := a.onActionResolved(context.Background(), msg); err != nil {
		t.Fatalf("onActionResolved: %v", err)
	}
	if a.sheet.Void != mech.VoidMax {
		t.Errorf("void = %d, want clamped at %d", a.sheet.Void, mech.VoidMax)
	}

	msg = protocol.New(protocol.ActionResolved, "coordinator", protocol.ActionResolvedPayload{
		AgentID:   "player-1",
		VoidDelta: -12,
	})
	if err := a.onActionResolved(context.Background(), msg); err != nil {
		t.Fatalf("onActionResolved: %v", err)
	}
	if a.sheet.Void != 0 {
		t.Errorf("void = %d, want floored at 0", a.sheet.Void)
	}
}

func TestOnActionResolvedIgnoresOtherAgents(t *testing.T) {
	a, _ := newTestAgent(t, nil)

	msg := protocol.New(protocol.ActionResolved, "coordinator", protocol.ActionResolvedPayload{
		AgentID:   "player-9",
		VoidDelta: 3,
	})
	if err := a.onActionResolved(context.Background(), msg); err != nil {
		t.Fatalf("onActionResolved: %v", err)
	}
	if a.sheet.Void != 0 {
		t.Errorf("void = %d, want untouched", a.sheet.Void)
	}
}
