// Package player implements the player-character agent: it declares actions
// when the orchestrator requests a turn, tracks its own sheet as resolutions
// come back, and speaks an in-character debrief at session end.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arkavel/voidtable/internal/agent"
	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/promptkit"
	"github.com/arkavel/voidtable/internal/protocol"
	"github.com/arkavel/voidtable/internal/route"
	"github.com/arkavel/voidtable/internal/shared"
	"github.com/arkavel/voidtable/pkg/provider/llm"
	"github.com/arkavel/voidtable/pkg/types"
)

const maxRecentIntents = 5

// Controller supplies declarations from an input source outside the LLM,
// such as a person at a websocket console. Implementations block until an
// answer arrives or ctx expires; any error hands the turn back to the
// agent's normal declaration path.
type Controller interface {
	Declare(ctx context.Context, sheet *types.CharacterSheet, req protocol.TurnRequestPayload) (*types.ActionDeclaration, error)
}

// Agent is one player character on the bus.
type Agent struct {
	*agent.Base

	sheet    *types.CharacterSheet
	provider llm.Provider
	prompts  *promptkit.Registry
	state    *shared.State

	providerName string
	language     string
	controller   Controller

	validator *route.Validator

	scenario      protocol.ScenarioPayload
	recentIntents []string
	lastNarration string
}

// Option customises a player agent.
type Option func(*Agent)

// WithProviderName records which LLM provider serves this agent, for prompt
// registry addressing and traceability.
func WithProviderName(name string) Option {
	return func(a *Agent) { a.providerName = name }
}

// WithLanguage selects the prompt language.
func WithLanguage(lang string) Option {
	return func(a *Agent) { a.language = lang }
}

// WithController attaches an external input source consulted before the LLM
// on every declaration turn.
func WithController(c Controller) Option {
	return func(a *Agent) { a.controller = c }
}

// New connects a player agent to the bus and registers its handlers. The
// sheet must already have InitDerived applied.
func New(ctx context.Context, socketPath, id string, sheet *types.CharacterSheet, provider llm.Provider, prompts *promptkit.Registry, state *shared.State, opts ...Option) (*Agent, error) {
	base, err := agent.NewBase(ctx, socketPath, id, protocol.RolePlayer)
	if err != nil {
		return nil, fmt.Errorf("player: %w", err)
	}

	a := &Agent{
		Base:      base,
		sheet:     sheet,
		provider:  provider,
		prompts:   prompts,
		state:     state,
		validator: route.NewValidator(),
	}
	for _, opt := range opts {
		opt(a)
	}

	state.RegisterPlayer(shared.PlayerInfo{AgentID: id, Name: sheet.Name, Faction: sheet.Faction})

	a.Handle(protocol.ScenarioSetup, a.onScenario)
	a.Handle(protocol.ScenarioUpdate, a.onScenario)
	a.Handle(protocol.TurnRequest, a.onTurnRequest)
	a.Handle(protocol.ActionResolved, a.onActionResolved)
	a.Handle(protocol.DMNarration, a.onNarration)

	return a, nil
}

// Sheet exposes the character for the orchestrator's battlefield view.
func (a *Agent) Sheet() *types.CharacterSheet { return a.sheet }

// AnnounceReady sends the AgentReady message with a short character summary.
func (a *Agent) AnnounceReady() error {
	return a.Send(protocol.New(protocol.AgentReady, a.ID(), protocol.ReadyPayload{
		Role:             protocol.RolePlayer,
		CharacterName:    a.sheet.Name,
		CharacterSummary: a.summary(),
	}))
}

func (a *Agent) summary() string {
	return fmt.Sprintf("%s of the %s — HP %d/%d, Void %d, Soulcredit %d",
		a.sheet.Name, a.sheet.Faction, a.sheet.Health, a.sheet.MaxHealth,
		a.sheet.Void, a.sheet.Soulcredit)
}

func (a *Agent) onScenario(_ context.Context, msg protocol.Message) error {
	return msg.Decode(&a.scenario)
}

func (a *Agent) onNarration(_ context.Context, msg protocol.Message) error {
	var p protocol.NarrationPayload
	if err := msg.Decode(&p); err != nil {
		return err
	}
	a.lastNarration = p.Text
	return nil
}

func (a *Agent) onTurnRequest(ctx context.Context, msg protocol.Message) error {
	var req protocol.TurnRequestPayload
	if err := msg.Decode(&req); err != nil {
		return err
	}

	switch req.Phase {
	case protocol.PhaseDeclaration:
		return a.declareTurn(ctx, msg.Sender, req)
	case protocol.PhaseDebrief:
		return a.debrief(ctx, msg.Sender)
	default:
		return fmt.Errorf("player %s: unexpected turn phase %q", a.ID(), req.Phase)
	}
}

// declareTurn produces this round's declaration(s): one main action, or a
// free dialogue action followed by a main action.
func (a *Agent) declareTurn(ctx context.Context, coordinator string, req protocol.TurnRequestPayload) error {
	if req.PendingTransfer != nil {
		a.receiveTransfer(*req.PendingTransfer)
	}

	first := a.declareAction(ctx, req, false)
	actions := []types.ActionDeclaration{first}

	if first.IsFreeAction {
		a.grantCoordination(first)
		main := a.declareAction(ctx, req, true)
		main.IsFreeAction = false
		actions = append(actions, main)
	} else {
		a.grantCoordination(first)
	}

	for _, act := range actions {
		a.rememberIntent(act.Intent)
	}

	return a.Send(protocol.NewDirect(protocol.ActionDeclared, a.ID(), coordinator, protocol.ActionDeclaredPayload{
		Round:   req.Round,
		Phase:   protocol.PhaseDeclaration,
		Actions: actions,
	}))
}

// grantCoordination detects coordination phrasing and banks a single-use +2
// for the named teammate.
func (a *Agent) grantCoordination(act types.ActionDeclaration) {
	lower := strings.ToLower(act.Intent)
	if !containsAny(lower, coordinationWords) {
		return
	}
	for _, p := range a.state.Players() {
		if p.AgentID == a.ID() {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p.Name)) {
			a.state.GrantBonus(p.AgentID, shared.CoordinationBonus{
				From:  a.sheet.Name,
				Topic: act.Intent,
				Bonus: 2,
			})
			slog.Debug("coordination bonus granted",
				"from", a.sheet.Name, "to", p.Name)
			return
		}
	}
}

var coordinationWords = []string{"assist", "cover ", "coordinate", "set up", "distract", "support "}

func (a *Agent) rememberIntent(intent string) {
	a.recentIntents = append(a.recentIntents, intent)
	if len(a.recentIntents) > maxRecentIntents {
		a.recentIntents = a.recentIntents[len(a.recentIntents)-maxRecentIntents:]
	}
}

// onActionResolved applies the mechanical consequences of the agent's own
// resolved actions to the local sheet.
func (a *Agent) onActionResolved(_ context.Context, msg protocol.Message) error {
	var p protocol.ActionResolvedPayload
	if err := msg.Decode(&p); err != nil {
		return err
	}
	if p.AgentID != a.ID() {
		return nil
	}

	if p.VoidDelta != 0 {
		a.sheet.Void += p.VoidDelta
		if a.sheet.Void < 0 {
			a.sheet.Void = 0
		}
		if a.sheet.Void > mech.VoidMax {
			a.sheet.Void = mech.VoidMax
		}
	}

	if p.Resolution.Success {
		a.settleEconomy(p.Resolution.Intent)
	}

	// Ritual offerings are consumed whether or not the working held.
	if strings.Contains(strings.ToLower(p.Resolution.Intent), "offering") {
		a.consumeOffering()
	}
	return nil
}

// debrief answers a debrief-phase turn request with an in-character summary.
func (a *Agent) debrief(ctx context.Context, coordinator string) error {
	text := a.fallbackDebrief()
	if a.provider != nil {
		prompt, _, err := a.prompts.Render(promptkit.Key{
			AgentType: "player",
			Provider:  a.providerName,
			Language:  a.language,
			Section:   "debrief",
		}, map[string]any{
			"character": map[string]any{"name": a.sheet.Name},
		})
		if err == nil {
			resp, cerr := a.provider.Complete(ctx, llm.CompletionRequest{
				Messages:    []types.Message{{Role: "user", Content: prompt}},
				Temperature: 0.8,
				MaxTokens:   250,
			})
			if cerr == nil && resp != nil && strings.TrimSpace(resp.Content) != "" {
				text = strings.TrimSpace(resp.Content)
			}
		}
	}

	return a.Send(protocol.NewDirect(protocol.PlayerResponse, a.ID(), coordinator, protocol.DebriefPayload{
		CharacterName: a.sheet.Name,
		Text:          text,
	}))
}

func (a *Agent) fallbackDebrief() string {
	if !a.sheet.Alive() {
		return fmt.Sprintf("%s did not walk out. The ledger closes at void %d.", a.sheet.Name, a.sheet.Void)
	}
	return fmt.Sprintf("We made it through. I'm carrying void %d and whatever we learned in there.", a.sheet.Void)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
