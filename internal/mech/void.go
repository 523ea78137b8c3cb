package mech

// Void accumulation caps. An action can corrupt only so fast: at most one
// point per action, two per round, three per scene — unless the source of the
// corruption is flagged high-risk, which bypasses the scene cap.
const (
	VoidMax       = 10
	voidActionCap = 1
	voidRoundCap  = 2
	voidSceneCap  = 3
)

// VoidChange is one entry in a character's append-only void history.
type VoidChange struct {
	Delta    int    `json:"delta"`
	Reason   string `json:"reason"`
	Old      int    `json:"old"`
	New      int    `json:"new"`
	HighRisk bool   `json:"high_risk,omitempty"`
}

// VoidState tracks one character's corruption score and its accumulators.
type VoidState struct {
	Score   int          `json:"score"`
	History []VoidChange `json:"history,omitempty"`

	roundAccum int
	sceneAccum int
	processed  map[string]struct{} // action ids already applied
}

func newVoidState(initial int) *VoidState {
	if initial < 0 {
		initial = 0
	}
	if initial > VoidMax {
		initial = VoidMax
	}
	return &VoidState{Score: initial, processed: make(map[string]struct{})}
}

// voidState returns (creating on first reference) the void ledger for agentID.
// Caller must hold e.mu.
func (e *Engine) voidState(agentID string) *VoidState {
	vs, ok := e.void[agentID]
	if !ok {
		vs = newVoidState(0)
		e.void[agentID] = vs
	}
	return vs
}

// VoidScore returns the current void score for agentID.
func (e *Engine) VoidScore(agentID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voidState(agentID).Score
}

// SetInitialVoid seeds a character's void score from configuration. It writes
// no history and bypasses all caps; use only before the first round.
func (e *Engine) SetInitialVoid(agentID string, score int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.void[agentID] = newVoidState(score)
}

// AddVoid applies a void gain (or loss, for negative amounts) to agentID.
//
// Gains are capped at +1 per action, +2 per round, and +3 per scene; the
// scene cap alone is bypassed when highRisk is set. A previously-seen
// actionID is skipped entirely, so the same corrupting action can never be
// double-counted across the ritual path and the outcome parser. Returns the
// amount actually applied.
func (e *Engine) AddVoid(agentID string, amount int, reason, actionID string, highRisk bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	vs := e.voidState(agentID)

	if actionID != "" {
		if _, done := vs.processed[actionID]; done {
			return 0
		}
	}

	applied := amount
	if applied > 0 {
		if applied > voidActionCap {
			applied = voidActionCap
		}
		if room := voidRoundCap - vs.roundAccum; applied > room {
			applied = room
		}
		if !highRisk {
			if room := voidSceneCap - vs.sceneAccum; applied > room {
				applied = room
			}
		}
		if applied < 0 {
			applied = 0
		}
	}

	old := vs.Score
	vs.Score += applied
	if vs.Score > VoidMax {
		vs.Score = VoidMax
	}
	if vs.Score < 0 {
		vs.Score = 0
	}
	applied = vs.Score - old

	if applied > 0 {
		vs.roundAccum += applied
		vs.sceneAccum += applied
	}

	if actionID != "" {
		vs.processed[actionID] = struct{}{}
	}

	if applied != 0 {
		vs.History = append(vs.History, VoidChange{
			Delta: applied, Reason: reason, Old: old, New: vs.Score, HighRisk: highRisk,
		})
		e.log.Emit(EventVoidChanged, map[string]any{
			"agent": agentID, "delta": applied, "reason": reason,
			"old": old, "new": vs.Score, "high_risk": highRisk,
		})
	}
	return applied
}

// ResetRoundVoid clears every character's per-round void accumulator.
// Called once at the top of each round.
func (e *Engine) ResetRoundVoid() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, vs := range e.void {
		vs.roundAccum = 0
	}
}

// ResetSceneVoid clears every character's per-scene void accumulator. One
// session is one scene; the only in-session scene boundary is a scenario
// pivot, which is when the Director calls this.
func (e *Engine) ResetSceneVoid() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, vs := range e.void {
		vs.sceneAccum = 0
	}
}

// VoidHistory returns a copy of the void history for agentID.
func (e *Engine) VoidHistory(agentID string) []VoidChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	vs := e.voidState(agentID)
	out := make([]VoidChange, len(vs.History))
	copy(out, vs.History)
	return out
}
