package shared

import (
	"fmt"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"
)

// CombatantKind distinguishes party members from enemies in the mapper.
type CombatantKind string

const (
	KindPlayer CombatantKind = "player"
	KindEnemy  CombatantKind = "enemy"
)

// CombatEntry maps one opaque combat id to a live combatant.
type CombatEntry struct {
	CombatID string
	AgentID  string
	Name     string
	Kind     CombatantKind
}

// CombatIDMapper assigns opaque tgt_xxxx identifiers to every combatant when
// free-targeting mode is enabled. LLMs target by id, which prevents
// ambiguous fuzzy-name matches and makes friendly fire detectable instead of
// silent.
type CombatIDMapper struct {
	mu      sync.Mutex
	byID    map[string]CombatEntry
	byAgent map[string]string // agent id → combat id
}

// NewCombatIDMapper returns an empty mapper.
func NewCombatIDMapper() *CombatIDMapper {
	return &CombatIDMapper{
		byID:    make(map[string]CombatEntry),
		byAgent: make(map[string]string),
	}
}

// Assign gives the combatant a fresh tgt_xxxx id, or returns the existing
// one when the agent is already mapped.
func (m *CombatIDMapper) Assign(agentID, name string, kind CombatantKind) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byAgent[agentID]; ok {
		return id
	}
	id := fmt.Sprintf("tgt_%s", uuid.NewString()[:4])
	for _, taken := m.byID[id]; taken; _, taken = m.byID[id] {
		id = fmt.Sprintf("tgt_%s", uuid.NewString()[:4])
	}
	m.byID[id] = CombatEntry{CombatID: id, AgentID: agentID, Name: name, Kind: kind}
	m.byAgent[agentID] = id
	return id
}

// Remove drops the combatant from the mapper.
func (m *CombatIDMapper) Remove(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byAgent[agentID]; ok {
		delete(m.byID, id)
		delete(m.byAgent, agentID)
	}
}

// Lookup resolves a combat id to its entry.
func (m *CombatIDMapper) Lookup(combatID string) (CombatEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[combatID]
	return e, ok
}

// ForAgent returns the combat id assigned to an agent, if any.
func (m *CombatIDMapper) ForAgent(agentID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byAgent[agentID]
	return id, ok
}

// Entries returns a copy of every mapping.
func (m *CombatIDMapper) Entries() []CombatEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CombatEntry, 0, len(m.byID))
	for _, e := range m.byID {
		out = append(out, e)
	}
	return out
}

// Resolve turns a declared target — a tgt_xxxx id or a raw name — into a
// combat entry. Raw names resolve exactly first, then by best Jaro-Winkler
// match at or above 0.85, which tolerates the LLM misspelling a name without
// letting it hit an unrelated combatant.
func (m *CombatIDMapper) Resolve(target string) (CombatEntry, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return CombatEntry{}, false
	}

	if strings.HasPrefix(target, "tgt_") {
		return m.Lookup(target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.byID {
		if strings.EqualFold(e.Name, target) {
			return e, true
		}
	}

	var best CombatEntry
	bestScore := 0.0
	for _, e := range m.byID {
		score := matchr.JaroWinkler(strings.ToLower(target), strings.ToLower(e.Name), true)
		if score > bestScore {
			bestScore = score
			best = e
		}
	}
	if bestScore >= 0.85 {
		return best, true
	}
	return CombatEntry{}, false
}
