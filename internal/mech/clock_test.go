package mech

import (
	"testing"
)

func TestClockAdvanceRegress(t *testing.T) {
	c := &Clock{Name: "Alarm", Max: 4}

	c.Advance(3)
	if c.Current != 3 || c.Filled() {
		t.Fatalf("after +3: current=%d filled=%v", c.Current, c.Filled())
	}
	c.Advance(3)
	if !c.Filled() || c.Overflow() != 2 {
		t.Errorf("after +6: filled=%v overflow=%d, want filled with overflow 2", c.Filled(), c.Overflow())
	}
	if !c.EverFilled() {
		t.Error("EverFilled() = false after fill")
	}

	c.Regress(10)
	if c.Current != 0 {
		t.Errorf("regress clamps at 0, got %d", c.Current)
	}
	if !c.EverFilled() {
		t.Error("EverFilled() reset by regress; the latch must hold")
	}

	neg := &Clock{Name: "Trust", Max: 4, AllowNegative: true}
	neg.Regress(2)
	if neg.Current != -2 {
		t.Errorf("AllowNegative clock = %d, want -2", neg.Current)
	}

	// Signed deltas route to the other operation.
	c.Advance(-1)
	if c.Current != 0 {
		t.Errorf("Advance(-1) = %d, want regress clamped at 0", c.Current)
	}
}

func TestCreateClockAssignsTimeout(t *testing.T) {
	tests := []struct{ max, want int }{
		{3, 4}, {4, 4}, {6, 6}, {8, 7}, {10, 8},
	}
	for _, tt := range tests {
		e := newTestEngine(t, 1)
		e.CreateClock(Clock{Name: "c", Max: tt.max})
		if got := e.Clock("c").TimeoutRounds; got != tt.want {
			t.Errorf("max %d: timeout = %d, want %d", tt.max, got, tt.want)
		}
	}

	// An explicit timeout survives.
	e := newTestEngine(t, 1)
	e.CreateClock(Clock{Name: "c", Max: 4, TimeoutRounds: 9})
	if got := e.Clock("c").TimeoutRounds; got != 9 {
		t.Errorf("explicit timeout = %d, want 9", got)
	}
}

func TestQueuedUpdatesInvisibleUntilFlush(t *testing.T) {
	e := newTestEngine(t, 1)
	e.CreateClock(Clock{Name: "Alarm", Max: 4})

	e.QueueUpdate("Alarm", 2, "guard spots movement")
	if got := e.Clock("Alarm").Current; got != 0 {
		t.Fatalf("clock moved before flush: %d", got)
	}

	filled := e.ApplyQueuedUpdates()
	if len(filled) != 0 {
		t.Errorf("filled = %v, want none", filled)
	}
	if got := e.Clock("Alarm").Current; got != 2 {
		t.Errorf("after flush: %d, want 2", got)
	}
}

func TestQueuedUpdatesAggregatePerClock(t *testing.T) {
	e := newTestEngine(t, 1)
	e.BeginRound()
	e.CreateClock(Clock{Name: "Alarm", Max: 4})

	// Two +3 queues on a 4-clock fill it once with a single aggregated
	// advance, not twice.
	e.QueueUpdate("Alarm", 3, "first shout")
	e.QueueUpdate("Alarm", 3, "second shout")
	filled := e.ApplyQueuedUpdates()

	if len(filled) != 1 || filled[0] != "Alarm" {
		t.Fatalf("filled = %v, want [Alarm]", filled)
	}
	if got := e.Clock("Alarm").Current; got != 6 {
		t.Errorf("current = %d, want 6", got)
	}
	if got := e.FilledThisRound(); len(got) != 1 {
		t.Errorf("FilledThisRound = %v, want one entry", got)
	}

	// Opposing deltas cancel before touching the clock.
	e.CreateClock(Clock{Name: "Ward", Max: 4})
	e.QueueUpdate("Ward", 2, "")
	e.QueueUpdate("Ward", -2, "")
	e.ApplyQueuedUpdates()
	if got := e.Clock("Ward").Current; got != 0 {
		t.Errorf("cancelled deltas moved the clock to %d", got)
	}
}

func TestQueueUpdateUnknownClockIgnored(t *testing.T) {
	e := newTestEngine(t, 1)
	e.QueueUpdate("Nope", 3, "")
	if filled := e.ApplyQueuedUpdates(); len(filled) != 0 {
		t.Errorf("filled = %v for a clock that never existed", filled)
	}
}

func TestCheckAndExpireClocks(t *testing.T) {
	e := newTestEngine(t, 1)

	e.CreateClock(Clock{Name: "Filled", Max: 4})
	e.QueueUpdate("Filled", 4, "")
	e.ApplyQueuedUpdates()

	e.CreateClock(Clock{Name: "Averted", Max: 6, TimeoutRounds: 1})
	e.QueueUpdate("Averted", 1, "")

	e.CreateClock(Clock{Name: "Escalates", Max: 6, TimeoutRounds: 1})
	e.QueueUpdate("Escalates", 3, "")
	e.ApplyQueuedUpdates()

	e.BeginRound()
	e.IncrementAllClockRounds()

	expired := e.CheckAndExpireClocks()
	got := make(map[string]ExpiryReason, len(expired))
	for _, x := range expired {
		got[x.Clock.Name] = x.Reason
	}

	if got["Filled"] != ExpiryForceResolve {
		t.Errorf("Filled reason = %q, want force_resolve", got["Filled"])
	}
	if got["Averted"] != ExpiryCrisisAverted {
		t.Errorf("Averted reason = %q, want crisis_averted", got["Averted"])
	}
	if got["Escalates"] != ExpiryEscalate {
		t.Errorf("Escalates reason = %q, want escalate", got["Escalates"])
	}
	if len(e.Clocks()) != 0 {
		t.Errorf("expired clocks still registered: %v", e.Clocks())
	}
}

func TestIncrementAllClockRoundsIdempotentPerRound(t *testing.T) {
	e := newTestEngine(t, 1)
	e.CreateClock(Clock{Name: "Alarm", Max: 4})

	e.BeginRound()
	e.IncrementAllClockRounds()
	e.IncrementAllClockRounds()
	if got := e.Clock("Alarm").RoundsAlive(); got != 1 {
		t.Errorf("rounds alive = %d after double increment, want 1", got)
	}

	e.BeginRound()
	e.IncrementAllClockRounds()
	if got := e.Clock("Alarm").RoundsAlive(); got != 2 {
		t.Errorf("rounds alive = %d, want 2", got)
	}
}
