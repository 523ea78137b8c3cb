// Package session contains the coordinator: it owns the bus, the rules
// engine, the Director, and the enemy manager, spawns the player agents, and
// drives the round pipeline — initiative, declaration, resolution, synthesis,
// cleanup — until an end condition fires.
package session

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/arkavel/voidtable/internal/bus"
	"github.com/arkavel/voidtable/internal/director"
	"github.com/arkavel/voidtable/internal/enemy"
	"github.com/arkavel/voidtable/internal/gear"
	"github.com/arkavel/voidtable/internal/kb"
	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/observe"
	"github.com/arkavel/voidtable/internal/player"
	"github.com/arkavel/voidtable/internal/promptkit"
	"github.com/arkavel/voidtable/internal/protocol"
	"github.com/arkavel/voidtable/internal/shared"
	"github.com/arkavel/voidtable/pkg/dice"
	"github.com/arkavel/voidtable/pkg/provider/llm"
	"github.com/arkavel/voidtable/pkg/types"
)

// coordinatorID is the sender id the orchestrator stamps on bus messages.
const coordinatorID = "coordinator"

// Config tunes one session.
type Config struct {
	ID   string
	Name string

	// SocketPath is the bus socket; empty picks a temp-dir socket.
	SocketPath string

	// OutputDir receives the event stream, the structured session record,
	// and dm_notes.json. Empty disables persistence.
	OutputDir string

	MaxRounds int
	PartySize int
	Language  string

	ForceScenario string
	ForceCombat   bool

	// FreeTargeting enables opaque combat ids for target references.
	FreeTargeting bool

	// VendorSpawnFrequency brings a vendor into the scene every N rounds.
	// Zero disables vendor scenes.
	VendorSpawnFrequency int

	// ForceVendorGate makes each vendor scene name a required purchase that
	// blocks story advancement until a party member buys it.
	ForceVendorGate bool

	// DeclarationTimeout bounds how long one player may take to declare.
	DeclarationTimeout time.Duration

	// Seed fixes the dice stream; zero derives one from the clock.
	Seed uint64
}

func (c *Config) withDefaults() {
	if c.ID == "" {
		c.ID = uuid.NewString()[:8]
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = 10
	}
	if c.PartySize == 0 {
		c.PartySize = 3
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.DeclarationTimeout == 0 {
		c.DeclarationTimeout = 90 * time.Second
	}
	if c.Seed == 0 {
		c.Seed = uint64(time.Now().UnixNano())
	}
}

// Deps are the pluggable backends a session runs against.
type Deps struct {
	// Provider serves the Director and any player without its own entry.
	Provider llm.Provider

	// PlayerProviders overrides the provider per character name, letting a
	// mixed-provider party play at one table.
	PlayerProviders map[string]llm.Provider

	// ProviderName labels Provider for prompt-registry addressing.
	ProviderName string

	// Retriever is the Director's knowledge base; nil means static lore only.
	Retriever kb.Retriever

	// Prompts is the template registry; nil builds a default one.
	Prompts *promptkit.Registry

	// Roster is every configured character; a random PartySize subset plays.
	Roster []*types.CharacterSheet

	// Controller, when set, is offered every player declaration turn before
	// the LLM; the human takeover bridge plugs in here.
	Controller player.Controller

	// Metrics receives the session's gameplay instruments; nil uses the
	// process-wide default meter.
	Metrics *observe.Metrics
}

// Orchestrator runs one session end to end.
type Orchestrator struct {
	cfg  Config
	deps Deps

	srv      *bus.Server
	engine   *mech.Engine
	state    *shared.State
	director *director.Director
	enemies  *enemy.Manager
	prompts  *promptkit.Registry
	rng      *rand.Rand
	metrics  *observe.Metrics

	players map[string]*playerSlot // agent id → slot
	order   []string               // agent ids in join order

	scenario protocol.ScenarioPayload

	// gateBaseline is the party's stock of the required purchase when the
	// vendor arrived; the gate clears when the stock rises above it.
	gateBaseline int

	// livingEnemies mirrors the battlefield for the enemy gauge.
	livingEnemies int

	inbox *inbox

	record *Recorder
}

// playerSlot pairs a player agent id with its coordinator-side view.
type playerSlot struct {
	agentID string
	sheet   *types.CharacterSheet
	ready   bool
}

// New assembles an orchestrator. The bus is not started and no agents exist
// yet; Run does both.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	cfg.withDefaults()
	if len(deps.Roster) == 0 {
		return nil, fmt.Errorf("session: empty roster")
	}
	if deps.Prompts == nil {
		deps.Prompts = promptkit.NewRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}

	log, err := mech.NewEventLog(cfg.OutputDir, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	engine := mech.NewEngine(dice.New(cfg.Seed), log)
	state := shared.NewState()

	templates := enemy.NewTemplateRegistry()
	enemies := enemy.NewManager(deps.Provider, engine, templates,
		gear.NewRegistry(), state.CombatIDs(), cfg.FreeTargeting)

	dir := director.New(deps.Provider, deps.Prompts, engine, state, templates,
		director.WithProviderName(deps.ProviderName),
		director.WithLanguage(cfg.Language),
		director.WithRetriever(deps.Retriever),
	)

	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		srv:      bus.NewServer(cfg.SocketPath),
		engine:   engine,
		state:    state,
		director: dir,
		enemies:  enemies,
		prompts:  deps.Prompts,
		rng:      rand.New(rand.NewSource(int64(cfg.Seed))),
		metrics:  deps.Metrics,
		players:  make(map[string]*playerSlot),
		inbox:    newInbox(),
		record:   NewRecorder(cfg.ID, cfg.Name, cfg.OutputDir, log),
	}, nil
}

// Engine exposes the rules engine, mainly for tests and the CLI's dry runs.
func (o *Orchestrator) Engine() *mech.Engine { return o.engine }

// State exposes the shared session registry.
func (o *Orchestrator) State() *shared.State { return o.state }

// pickParty selects the session's party: a random PartySize subset of the
// roster, deterministic under the session seed.
func (o *Orchestrator) pickParty() []*types.CharacterSheet {
	roster := append([]*types.CharacterSheet(nil), o.deps.Roster...)
	o.rng.Shuffle(len(roster), func(i, j int) {
		roster[i], roster[j] = roster[j], roster[i]
	})
	n := o.cfg.PartySize
	if n > len(roster) {
		n = len(roster)
	}
	return roster[:n]
}

// providerFor resolves the LLM backend for one character.
func (o *Orchestrator) providerFor(characterName string) llm.Provider {
	if p, ok := o.deps.PlayerProviders[characterName]; ok {
		return p
	}
	return o.deps.Provider
}

// broadcast routes a message from the coordinator to every connected agent.
func (o *Orchestrator) broadcast(typ protocol.MessageType, payload any) {
	o.srv.Route(protocol.New(typ, coordinatorID, payload))
}

// sendTo routes a message from the coordinator to one agent.
func (o *Orchestrator) sendTo(agentID string, typ protocol.MessageType, payload any) {
	o.srv.Route(protocol.NewDirect(typ, coordinatorID, agentID, payload))
}
