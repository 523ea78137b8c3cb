package mech

import (
	"fmt"
	"sort"
)

// Clock is a named scene-pressure counter. Current may exceed Max (overflow
// signals urgency) and may go below zero only when AllowNegative is set.
type Clock struct {
	Name        string `json:"name"`
	Current     int    `json:"current"`
	Max         int    `json:"max"`
	Description string `json:"description"`

	// Semantic labels rendered into prompts so the LLMs know what moving
	// this clock means in the fiction.
	AdvanceMeans      string `json:"advance_means,omitempty"`
	RegressMeans      string `json:"regress_means,omitempty"`
	FilledConsequence string `json:"filled_consequence,omitempty"`

	// TimeoutRounds is the number of rounds the clock may live before it
	// expires unfilled. Zero means auto-assign from Max.
	TimeoutRounds int `json:"timeout_rounds,omitempty"`

	AllowNegative bool `json:"allow_negative,omitempty"`

	roundsAlive int
	everFilled  bool
}

// timeoutForMax assigns the default lifetime for a clock of the given size.
func timeoutForMax(max int) int {
	switch {
	case max <= 4:
		return 4
	case max <= 6:
		return 6
	case max <= 8:
		return 7
	default:
		return 8
	}
}

// Filled reports whether the clock has reached or passed its maximum.
func (c *Clock) Filled() bool { return c.Current >= c.Max }

// EverFilled reports whether the clock has ever been filled. The flag latches
// true the first time Filled becomes true and never resets.
func (c *Clock) EverFilled() bool { return c.everFilled }

// RoundsAlive returns how many rounds the clock has existed.
func (c *Clock) RoundsAlive() int { return c.roundsAlive }

// Overflow returns how far past Max the clock has advanced (zero when not
// filled). An overflow of 3 or more reads as "critical overflow" in narration
// context.
func (c *Clock) Overflow() int {
	if c.Current <= c.Max {
		return 0
	}
	return c.Current - c.Max
}

// Advance increases Current by ticks, allowing overflow past Max.
func (c *Clock) Advance(ticks int) {
	if ticks < 0 {
		c.Regress(-ticks)
		return
	}
	c.Current += ticks
	if c.Filled() {
		c.everFilled = true
	}
}

// Regress decreases Current by ticks, clamped at zero unless AllowNegative.
func (c *Clock) Regress(ticks int) {
	if ticks < 0 {
		c.Advance(-ticks)
		return
	}
	c.Current -= ticks
	if c.Current < 0 && !c.AllowNegative {
		c.Current = 0
	}
}

// ExpiryReason explains why a clock left play.
type ExpiryReason string

const (
	// ExpiryForceResolve fires when a clock filled: its consequence happens.
	ExpiryForceResolve ExpiryReason = "force_resolve"

	// ExpiryCrisisAverted fires when an unfilled clock timed out below half.
	ExpiryCrisisAverted ExpiryReason = "crisis_averted"

	// ExpiryEscalate fires when a clock timed out at half or more: the
	// pressure does not vanish, it transforms.
	ExpiryEscalate ExpiryReason = "escalate"
)

// ExpiredClock reports one clock removed during expiry checking, for the
// Director to narrate.
type ExpiredClock struct {
	Clock  Clock
	Reason ExpiryReason
}

// pendingUpdate is one queued clock delta awaiting the synthesis flush.
type pendingUpdate struct {
	clock  string
	ticks  int
	reason string
}

// CreateClock registers a clock under its name; a name collision replaces the
// existing clock. TimeoutRounds is auto-assigned from Max when unset.
func (e *Engine) CreateClock(c Clock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.TimeoutRounds == 0 {
		c.TimeoutRounds = timeoutForMax(c.Max)
	}
	e.clocks[c.Name] = &c
	e.log.Emit(EventClockCreated, map[string]any{
		"clock": c.Name, "max": c.Max, "timeout_rounds": c.TimeoutRounds,
	})
}

// Clock returns the named clock, or nil when absent. The returned pointer is
// live engine state; callers must not mutate it outside the update queue.
func (e *Engine) Clock(name string) *Clock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clocks[name]
}

// Clocks returns a name-sorted snapshot of all active clocks.
func (e *Engine) Clocks() []Clock {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Clock, 0, len(e.clocks))
	for _, c := range e.clocks {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// QueueUpdate records a clock delta to be applied at the next synthesis
// flush. Deltas queued during resolution are invisible to every other
// resolution in the same round.
func (e *Engine) QueueUpdate(clock string, ticks int, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.clocks[clock]; !ok {
		return
	}
	e.pending = append(e.pending, pendingUpdate{clock: clock, ticks: ticks, reason: reason})
}

// ApplyQueuedUpdates flushes the pending queue: deltas are aggregated per
// clock and applied as a single signed advance or regress, so two +3 queues
// on a 4-clock fill it once, not twice. Returns the names of clocks that
// filled during this flush.
func (e *Engine) ApplyQueuedUpdates() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	aggregate := make(map[string]int)
	reasons := make(map[string][]string)
	order := make([]string, 0, len(e.pending))
	for _, p := range e.pending {
		if _, seen := aggregate[p.clock]; !seen {
			order = append(order, p.clock)
		}
		aggregate[p.clock] += p.ticks
		if p.reason != "" {
			reasons[p.clock] = append(reasons[p.clock], p.reason)
		}
	}
	e.pending = nil

	var filled []string
	for _, name := range order {
		c, ok := e.clocks[name]
		if !ok {
			continue
		}
		wasFilled := c.Filled()
		c.Advance(aggregate[name])
		e.log.Emit(EventClockUpdated, map[string]any{
			"clock":   name,
			"ticks":   aggregate[name],
			"current": c.Current,
			"max":     c.Max,
			"reasons": reasons[name],
		})
		if !wasFilled && c.Filled() {
			filled = append(filled, name)
			e.filledThisRound = append(e.filledThisRound, name)
			e.log.Emit(EventClockFilled, map[string]any{
				"clock": name, "current": c.Current, "max": c.Max,
				"overflow": c.Overflow(), "consequence": c.FilledConsequence,
			})
		}
	}
	return filled
}

// CheckAndExpireClocks removes clocks that have filled (force_resolve) or
// outlived their timeout (crisis_averted below half, escalate otherwise) and
// reports them so the Director can narrate consequences.
func (e *Engine) CheckAndExpireClocks() []ExpiredClock {
	e.mu.Lock()
	defer e.mu.Unlock()

	var expired []ExpiredClock
	for name, c := range e.clocks {
		var reason ExpiryReason
		switch {
		case c.Filled():
			reason = ExpiryForceResolve
		case c.roundsAlive >= c.TimeoutRounds:
			if c.Current < c.Max/2 {
				reason = ExpiryCrisisAverted
			} else {
				reason = ExpiryEscalate
			}
		default:
			continue
		}
		expired = append(expired, ExpiredClock{Clock: *c, Reason: reason})
		delete(e.clocks, name)
		e.log.Emit(EventClockExpired, map[string]any{
			"clock": name, "reason": string(reason),
			"current": c.Current, "max": c.Max, "rounds_alive": c.roundsAlive,
		})
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Clock.Name < expired[j].Clock.Name })
	return expired
}

// IncrementAllClockRounds ages every clock by one round. Idempotent within a
// round: calling it twice for the same round counter is a no-op.
func (e *Engine) IncrementAllClockRounds() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastClockIncrementRound == e.round {
		return
	}
	e.lastClockIncrementRound = e.round
	for _, c := range e.clocks {
		c.roundsAlive++
	}
}

// FilledThisRound returns the clocks that filled during the current round's
// flush, in fill order.
func (e *Engine) FilledThisRound() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.filledThisRound))
	copy(out, e.filledThisRound)
	return out
}

// describeClock renders a one-line status for prompts and logs.
func describeClock(c *Clock) string {
	status := ""
	if over := c.Overflow(); over >= 3 {
		status = " (critical overflow)"
	} else if c.Filled() {
		status = " (filled)"
	}
	return fmt.Sprintf("%s: %d/%d%s", c.Name, c.Current, c.Max, status)
}
