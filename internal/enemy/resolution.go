package enemy

import (
	"fmt"
	"sync"
)

// InvalidReason codes why a declared action could not execute at resolution
// time.
type InvalidReason string

const (
	InvalidTargetDown   InvalidReason = "target_down"
	InvalidTokenClaimed InvalidReason = "token_claimed"
	InvalidOutOfRange   InvalidReason = "out_of_range"
)

// ResolutionState accumulates what has already happened during the current
// resolution phase: targets defeated, tokens claimed, combatants relocated.
// Declared actions are re-checked against it before executing, because the
// battlefield a declaration saw is not the battlefield its resolution meets.
type ResolutionState struct {
	mu sync.Mutex

	defeated  map[string]struct{} // combat ids downed this round
	claimed   map[string]string   // token → claimant combat id
	relocated map[string]string   // combat id → new position
}

// NewResolutionState returns a fresh per-round accumulator.
func NewResolutionState() *ResolutionState {
	return &ResolutionState{
		defeated:  make(map[string]struct{}),
		claimed:   make(map[string]string),
		relocated: make(map[string]string),
	}
}

// MarkDefeated records that a combatant went down this round.
func (rs *ResolutionState) MarkDefeated(combatID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.defeated[combatID] = struct{}{}
}

// Defeated reports whether the combatant was downed earlier in this round.
func (rs *ResolutionState) Defeated(combatID string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	_, ok := rs.defeated[combatID]
	return ok
}

// ClaimToken records a token claim. Returns false when someone already holds
// the token this round.
func (rs *ResolutionState) ClaimToken(token, combatID string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, taken := rs.claimed[token]; taken {
		return false
	}
	rs.claimed[token] = combatID
	return true
}

// TokenClaimed reports whether the token is already held.
func (rs *ResolutionState) TokenClaimed(token string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	_, ok := rs.claimed[token]
	return ok
}

// ClaimedTokens lists every token claimed so far this round.
func (rs *ResolutionState) ClaimedTokens() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]string, 0, len(rs.claimed))
	for t := range rs.claimed {
		out = append(out, t)
	}
	return out
}

// Relocate records a combatant's movement during resolution.
func (rs *ResolutionState) Relocate(combatID, position string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.relocated[combatID] = position
}

// PositionOf returns the live position when the combatant moved this round.
func (rs *ResolutionState) PositionOf(combatID string) (string, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	p, ok := rs.relocated[combatID]
	return p, ok
}

// Invalidation describes a declared action converted to a narrated failure.
type Invalidation struct {
	Reason InvalidReason
	Detail string
}

func (i Invalidation) String() string {
	return fmt.Sprintf("%s: %s", i.Reason, i.Detail)
}

// positionRank orders the range bands for reachability checks.
var positionRank = map[string]int{
	"Engaged": 0,
	"Near":    1,
	"Far":     2,
	"Extreme": 3,
}

// Reachable reports whether a weapon with the given reach can strike from
// attacker position to target position. Unknown bands are treated as "Near".
func Reachable(reach, attackerPos, targetPos string) bool {
	gap := rank(attackerPos) - rank(targetPos)
	if gap < 0 {
		gap = -gap
	}
	return gap <= rank(reach)
}

func rank(band string) int {
	if r, ok := positionRank[band]; ok {
		return r
	}
	return 1
}
