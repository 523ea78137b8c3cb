// Package shared holds the process-wide session registry every component
// reads: registered players, recent party discoveries, pending coordination
// bonuses, scenario history, inter-player transfers, and the combat-id
// mapper.
//
// The state is single-writer in practice — the orchestrator and agents
// append or read, never concurrently mutate the same key — but a mutex
// guards it anyway because prompt builders read mid-round.
package shared

import (
	"strings"
	"sync"

	"github.com/arkavel/voidtable/internal/protocol"
)

const (
	maxDiscoveries    = 10
	maxRecentScenario = 5
)

// PlayerInfo identifies one registered player.
type PlayerInfo struct {
	AgentID string
	Name    string
	Faction string
}

// CoordinationBonus is a single-use +2 granted by a teammate's coordination;
// it is consumed by the recipient's next related roll.
type CoordinationBonus struct {
	From    string
	Topic   string
	Bonus   int
	Expired bool
}

// State is the shared session registry.
type State struct {
	mu sync.Mutex

	players     []PlayerInfo
	discoveries []string
	bonuses     map[string][]CoordinationBonus // recipient agent id → pending
	recent      []string                       // recent scenario locations/themes
	transfers   map[string][]protocol.Transfer // recipient agent id → pending

	combatIDs *CombatIDMapper
}

// NewState returns an empty shared state.
func NewState() *State {
	return &State{
		bonuses:   make(map[string][]CoordinationBonus),
		transfers: make(map[string][]protocol.Transfer),
		combatIDs: NewCombatIDMapper(),
	}
}

// CombatIDs returns the session's combat-id mapper.
func (s *State) CombatIDs() *CombatIDMapper { return s.combatIDs }

// RegisterPlayer records a player's identity.
func (s *State) RegisterPlayer(p PlayerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.players {
		if existing.AgentID == p.AgentID {
			s.players[i] = p
			return
		}
	}
	s.players = append(s.players, p)
}

// Players returns a copy of the registered players.
func (s *State) Players() []PlayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayerInfo, len(s.players))
	copy(out, s.players)
	return out
}

// PlayerByName finds a registered player by character name,
// case-insensitively.
func (s *State) PlayerByName(name string) (PlayerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return PlayerInfo{}, false
}

// PlayerNames returns all registered character names.
func (s *State) PlayerNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.players))
	for i, p := range s.players {
		out[i] = p.Name
	}
	return out
}

// AddDiscovery appends to the bounded FIFO of party discoveries.
func (s *State) AddDiscovery(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoveries = append(s.discoveries, text)
	if len(s.discoveries) > maxDiscoveries {
		s.discoveries = s.discoveries[len(s.discoveries)-maxDiscoveries:]
	}
}

// Discoveries returns a copy of the recent party discoveries.
func (s *State) Discoveries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.discoveries))
	copy(out, s.discoveries)
	return out
}

// GrantBonus queues a single-use coordination bonus for recipient.
func (s *State) GrantBonus(recipientAgentID string, b CoordinationBonus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bonuses[recipientAgentID] = append(s.bonuses[recipientAgentID], b)
}

// ConsumeBonus pops the oldest pending bonus for the agent, if any. The
// bonus is single-use: once returned it is gone.
func (s *State) ConsumeBonus(agentID string) (CoordinationBonus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.bonuses[agentID]
	if len(pending) == 0 {
		return CoordinationBonus{}, false
	}
	b := pending[0]
	s.bonuses[agentID] = pending[1:]
	return b, true
}

// RecordScenario appends to the bounded recent-scenario list.
func (s *State) RecordScenario(location string) {
	if location == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, location)
	if len(s.recent) > maxRecentScenario {
		s.recent = s.recent[len(s.recent)-maxRecentScenario:]
	}
}

// RecentScenarios returns a copy of the recent scenario list.
func (s *State) RecentScenarios() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recent))
	copy(out, s.recent)
	return out
}

// SeedRecentScenarios loads the cross-session scenario history read from
// dm_notes at startup.
func (s *State) SeedRecentScenarios(locations []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent[:0], locations...)
	if len(s.recent) > maxRecentScenario {
		s.recent = s.recent[len(s.recent)-maxRecentScenario:]
	}
}

// QueueTransfer enqueues a currency transfer for the recipient's next turn.
func (s *State) QueueTransfer(recipientAgentID string, t protocol.Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[recipientAgentID] = append(s.transfers[recipientAgentID], t)
}

// ConsumeTransfer pops the oldest pending transfer for the agent, if any.
func (s *State) ConsumeTransfer(agentID string) (protocol.Transfer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.transfers[agentID]
	if len(pending) == 0 {
		return protocol.Transfer{}, false
	}
	t := pending[0]
	s.transfers[agentID] = pending[1:]
	return t, true
}
