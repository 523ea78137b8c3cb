package mech

import (
	"strings"
)

// Soulcredit bounds. The ledger clamps hard at both ends; reputation does not
// wrap and does not overflow.
const (
	SoulcreditMin = -10
	SoulcreditMax = 10
)

// SoulcreditChange is one entry in a character's reputation history.
type SoulcreditChange struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
	Old    int    `json:"old"`
	New    int    `json:"new"`
}

// SoulcreditState tracks one character's spiritual reputation.
type SoulcreditState struct {
	Score   int                `json:"score"`
	History []SoulcreditChange `json:"history,omitempty"`
}

// soulcreditState returns (creating on first reference) the ledger for
// agentID. Caller must hold e.mu.
func (e *Engine) soulcreditState(agentID string) *SoulcreditState {
	ss, ok := e.soulcredit[agentID]
	if !ok {
		ss = &SoulcreditState{}
		e.soulcredit[agentID] = ss
	}
	return ss
}

// SoulcreditScore returns the current soulcredit for agentID.
func (e *Engine) SoulcreditScore(agentID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.soulcreditState(agentID).Score
}

// SetInitialSoulcredit seeds a character's soulcredit from configuration
// without writing history.
func (e *Engine) SetInitialSoulcredit(agentID string, score int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if score < SoulcreditMin {
		score = SoulcreditMin
	}
	if score > SoulcreditMax {
		score = SoulcreditMax
	}
	e.soulcredit[agentID] = &SoulcreditState{Score: score}
}

// AdjustSoulcredit applies delta to agentID's soulcredit, clamped to
// [-10, +10], and returns the amount actually applied.
func (e *Engine) AdjustSoulcredit(agentID string, delta int, reason string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	ss := e.soulcreditState(agentID)
	old := ss.Score
	ss.Score += delta
	if ss.Score > SoulcreditMax {
		ss.Score = SoulcreditMax
	}
	if ss.Score < SoulcreditMin {
		ss.Score = SoulcreditMin
	}
	applied := ss.Score - old
	if applied != 0 {
		ss.History = append(ss.History, SoulcreditChange{
			Delta: applied, Reason: reason, Old: old, New: ss.Score,
		})
		e.log.Emit(EventSoulcreditChanged, map[string]any{
			"agent": agentID, "delta": applied, "reason": reason,
			"old": old, "new": ss.Score,
		})
	}
	return applied
}

// factionTenets maps a faction to vocabulary that marks acting for or against
// its tenets. Matching is a lowercase substring scan over intent + narration.
var factionTenets = map[string]struct{ uphold, betray []string }{
	"Ashen Concord": {
		uphold: []string{"preserve the balance", "honor the pact", "shield the weak"},
		betray: []string{"break the pact", "abandon the weak"},
	},
	"Tidewrights": {
		uphold: []string{"repair", "restore the flow", "mend"},
		betray: []string{"sabotage", "dam the flow"},
	},
	"Hollow Chorus": {
		uphold: []string{"embrace the void", "listen to the silence"},
		betray: []string{"deny the void", "silence the chorus"},
	},
}

// scPattern is one soulcredit-relevant text pattern with its delta.
type scPattern struct {
	delta    int
	reason   string
	keywords []string

	// minMargin, when non-zero, requires the resolution margin to be at
	// least this value for the pattern to count.
	minMargin int

	// requireSuccess restricts the pattern to successful resolutions.
	requireSuccess bool

	// requireFailure restricts the pattern to failed resolutions.
	requireFailure bool
}

var scPatterns = []scPattern{
	{delta: +1, reason: "fulfilled a contract", requireSuccess: true,
		keywords: []string{"fulfill the contract", "fulfills the contract", "completes the oath", "honors the oath", "keeps the oath"}},
	{delta: +1, reason: "aided another's ritual with an offering", requireSuccess: true,
		keywords: []string{"aids the ritual", "assists the ritual", "joins the ritual with an offering", "supports the rite"}},
	{delta: +2, reason: "void cleansing", requireSuccess: true,
		keywords: []string{"cleanses the void", "cleanse the void", "purges the corruption", "purifies the taint"}},
	{delta: +1, reason: "public witnessed ritual", requireSuccess: true, minMargin: 5,
		keywords: []string{"witnessed ritual", "before the assembled", "in front of the crowd", "public rite"}},
	{delta: +1, reason: "upheld faction tenets at cost", requireSuccess: true,
		keywords: []string{"at great personal cost", "sacrifices", "at cost to themselves"}},
	{delta: -2, reason: "broke a contract or oath",
		keywords: []string{"breaks the contract", "break the oath", "breaks the oath", "betrays the bond", "breaks the bond"}},
	{delta: -2, reason: "defaulted on ritual debt",
		keywords: []string{"defaults on", "unpaid ritual debt", "ritual debt unpaid"}},
	{delta: -3, reason: "betrayed a guiding principle",
		keywords: []string{"betrays their principle", "abandons their principle", "against everything they stand for"}},
	{delta: -1, reason: "negligent ritual failure", requireFailure: true,
		keywords: []string{"careless ritual", "negligent ritual", "botched rite", "sloppy ritual"}},
}

// EvaluateSoulcredit scans intent + narration for reputation-relevant
// behaviour and returns the summed delta with its reasons. The cleansing
// bonus upgrades to +3 on margin ≥ 10, and a ritual success with margin ≥ 10
// earns +1 on its own.
func EvaluateSoulcredit(intent, narration, faction string, success bool, margin int, isRitual bool) (int, []string) {
	text := strings.ToLower(intent + " " + narration)

	total := 0
	var reasons []string

	match := func(keys []string) bool {
		for _, k := range keys {
			if strings.Contains(text, k) {
				return true
			}
		}
		return false
	}

	for _, p := range scPatterns {
		if p.requireSuccess && !success {
			continue
		}
		if p.requireFailure && success {
			continue
		}
		if p.minMargin != 0 && margin < p.minMargin {
			continue
		}
		if !match(p.keywords) {
			continue
		}
		delta := p.delta
		if p.reason == "void cleansing" && margin >= 10 {
			delta = 3
		}
		total += delta
		reasons = append(reasons, p.reason)
	}

	if isRitual && success && margin >= 10 {
		total++
		reasons = append(reasons, "ritual success with high margin")
	}

	if tenets, ok := factionTenets[faction]; ok {
		if match(tenets.uphold) && success {
			total++
			reasons = append(reasons, "upheld faction tenets")
		}
		if match(tenets.betray) {
			total -= 2
			reasons = append(reasons, "acted against faction tenets")
		}
	}

	return total, reasons
}
