package mech

import (
	"testing"
)

func TestAdjustSoulcreditClamps(t *testing.T) {
	e := newTestEngine(t, 1)

	if applied := e.AdjustSoulcredit("p1", 15, "legend"); applied != SoulcreditMax {
		t.Errorf("applied = %d, want clamp at %d", applied, SoulcreditMax)
	}
	if applied := e.AdjustSoulcredit("p1", -30, "disgrace"); applied != SoulcreditMin-SoulcreditMax {
		t.Errorf("applied = %d, want %d", applied, SoulcreditMin-SoulcreditMax)
	}
	if got := e.SoulcreditScore("p1"); got != SoulcreditMin {
		t.Errorf("score = %d, want %d", got, SoulcreditMin)
	}

	// A delta absorbed by the clamp writes no history.
	before := len(e.soulcredit["p1"].History)
	e.AdjustSoulcredit("p1", -1, "already at the floor")
	if after := len(e.soulcredit["p1"].History); after != before {
		t.Errorf("history grew by %d for a no-op adjustment", after-before)
	}
}

func TestSetInitialSoulcreditClamps(t *testing.T) {
	e := newTestEngine(t, 1)
	e.SetInitialSoulcredit("p1", 99)
	if got := e.SoulcreditScore("p1"); got != SoulcreditMax {
		t.Errorf("score = %d, want %d", got, SoulcreditMax)
	}
	if h := e.soulcredit["p1"].History; len(h) != 0 {
		t.Errorf("seeding wrote %d history entries, want 0", len(h))
	}
}

func TestEvaluateSoulcredit(t *testing.T) {
	tests := []struct {
		name      string
		intent    string
		narration string
		faction   string
		success   bool
		margin    int
		isRitual  bool
		want      int
	}{
		{
			name:    "fulfilled contract",
			intent:  "fulfill the contract with the dockmaster",
			success: true, margin: 3,
			want: 1,
		},
		{
			name:    "contract needs success",
			intent:  "fulfill the contract with the dockmaster",
			success: false, margin: -4,
			want: 0,
		},
		{
			name:      "broken oath counts even on success",
			narration: "she breaks the oath without hesitation",
			success:   true, margin: 6,
			want: -2,
		},
		{
			name:      "void cleansing",
			narration: "the rite cleanses the void from the chamber",
			success:   true, margin: 4,
			want: 2,
		},
		{
			name:      "void cleansing upgraded at high margin",
			narration: "the rite cleanses the void from the chamber",
			success:   true, margin: 12, isRitual: true,
			// +3 cleansing (margin ≥ 10) +1 high-margin ritual
			want: 4,
		},
		{
			name:     "high-margin ritual alone",
			intent:   "bind the echo",
			success:  true, margin: 11, isRitual: true,
			want: 1,
		},
		{
			name:      "witnessed ritual below threshold",
			narration: "a public rite before the docks",
			success:   true, margin: 3,
			want: 0,
		},
		{
			name:      "negligent failure",
			narration: "a botched rite scorches the altar",
			success:   false, margin: -3,
			want: -1,
		},
		{
			name:      "faction tenets upheld",
			intent:    "repair the tide-gate",
			faction:   "Tidewrights",
			success:   true, margin: 2,
			want: 1,
		},
		{
			name:      "faction betrayal regardless of success",
			intent:    "sabotage the tide-gate",
			faction:   "Tidewrights",
			success:   true, margin: 2,
			want: -2,
		},
		{
			name:    "unknown faction is neutral",
			intent:  "repair the tide-gate",
			faction: "Free Company",
			success: true, margin: 2,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reasons := EvaluateSoulcredit(tt.intent, tt.narration, tt.faction,
				tt.success, tt.margin, tt.isRitual)
			if got != tt.want {
				t.Errorf("delta = %d (reasons %v), want %d", got, reasons, tt.want)
			}
			if got != 0 && len(reasons) == 0 {
				t.Error("non-zero delta with no reasons")
			}
		})
	}
}
