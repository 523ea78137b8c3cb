package outcome

import (
	"testing"

	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/pkg/types"
)

func parse(t *testing.T, narration string, action types.ActionDeclaration, res types.ActionResolution, clocks ...mech.Clock) Report {
	t.Helper()
	return New().Parse(narration, action, res, clocks)
}

func success(margin int) types.ActionResolution {
	return types.ActionResolution{
		Success: true, Margin: margin, Tier: types.TierForMargin(margin),
	}
}

func failure(margin int) types.ActionResolution {
	return types.ActionResolution{
		Success: false, Margin: margin, Tier: types.TierForMargin(margin),
	}
}

// ─── Explicit markers ────────────────────────────────────────────────────────

func TestParseExplicitClockMarkers(t *testing.T) {
	r := parse(t, "The guards stir. 📊 Alarm: +2 (shattered glass) 📊 Ward Integrity: -1",
		types.ActionDeclaration{}, failure(-3))

	if len(r.ClockUpdates) != 2 {
		t.Fatalf("updates = %d, want 2", len(r.ClockUpdates))
	}
	first := r.ClockUpdates[0]
	if first.Clock != "Alarm" || first.Ticks != 2 || first.Reason != "shattered glass" || !first.Explicit {
		t.Errorf("first update = %+v", first)
	}
	if second := r.ClockUpdates[1]; second.Clock != "Ward Integrity" || second.Ticks != -1 {
		t.Errorf("second update = %+v", second)
	}
}

func TestExplicitMarkersSuppressImplicitInference(t *testing.T) {
	alarm := mech.Clock{Name: "Alarm", Max: 4}

	// The narration would also trip the danger-clock failure rule; the
	// explicit marker must be the only update.
	r := parse(t, "A crash of gunfire. 📊 Alarm: +1", types.ActionDeclaration{}, failure(-2), alarm)
	if len(r.ClockUpdates) != 1 || !r.ClockUpdates[0].Explicit {
		t.Fatalf("updates = %+v, want exactly the explicit one", r.ClockUpdates)
	}
}

func TestParseSoulcreditMarker(t *testing.T) {
	r := parse(t, "The dockmaster nods. ⚖️ Soulcredit: +1 (contract honored)",
		types.ActionDeclaration{}, success(4))
	if len(r.Soulcredit) != 1 {
		t.Fatalf("soulcredit deltas = %d, want 1", len(r.Soulcredit))
	}
	if d := r.Soulcredit[0]; d.Amount != 1 || d.Reason != "contract honored" {
		t.Errorf("delta = %+v", d)
	}
}

// ─── Void extraction ─────────────────────────────────────────────────────────

func TestParseVoidMarkerBeatsProse(t *testing.T) {
	r := parse(t, "Static floods in. ⚫ Void: +2 (open breach) — she takes +1 void besides",
		types.ActionDeclaration{}, failure(-2))
	if len(r.VoidDeltas) != 1 {
		t.Fatalf("deltas = %+v, want only the ⚫ marker", r.VoidDeltas)
	}
	if d := r.VoidDeltas[0]; d.Amount != 2 || d.Reason != "open breach" {
		t.Errorf("delta = %+v", d)
	}
}

func TestParseVoidProseNumeral(t *testing.T) {
	r := parse(t, "The backlash costs her +1 void.", types.ActionDeclaration{}, failure(-2))
	if len(r.VoidDeltas) != 1 || r.VoidDeltas[0].Amount != 1 {
		t.Fatalf("deltas = %+v", r.VoidDeltas)
	}
}

func TestParseVoidHeuristics(t *testing.T) {
	tests := []struct {
		name      string
		narration string
		action    types.ActionDeclaration
		res       types.ActionResolution
		wantRisk  bool
		want      int
	}{
		{"failed ritual", "the circle gutters out",
			types.ActionDeclaration{IsRitual: true}, failure(-4), false, 1},
		{"void manipulation gone wrong", "she draws on the void and it slips",
			types.ActionDeclaration{}, failure(-4), true, 1},
		{"psychic feedback", "a lash of static whips back through her mind",
			types.ActionDeclaration{}, success(2), false, 1},
		{"ritual shortcut", "he cuts the rite short to save time",
			types.ActionDeclaration{}, success(2), true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := parse(t, tt.narration, tt.action, tt.res)
			if len(r.VoidDeltas) != 1 {
				t.Fatalf("deltas = %+v, want 1", r.VoidDeltas)
			}
			d := r.VoidDeltas[0]
			if d.Amount != tt.want || d.HighRisk != tt.wantRisk {
				t.Errorf("delta = %+v, want amount %d highRisk %v", d, tt.want, tt.wantRisk)
			}
		})
	}
}

func TestParseVoidRecoveryAndPurge(t *testing.T) {
	r := parse(t, "She breathes out and steadies.",
		types.ActionDeclaration{Intent: "center myself against the hum"}, success(3))
	if len(r.VoidDeltas) != 1 || r.VoidDeltas[0].Amount != -1 {
		t.Errorf("grounding deltas = %+v, want one -1", r.VoidDeltas)
	}

	r = parse(t, "The chant rises.",
		types.ActionDeclaration{Intent: "purge the taint from my blood"}, failure(-1))
	if len(r.PurgeNotes) != 1 {
		t.Errorf("purge notes = %v, want one", r.PurgeNotes)
	}
	if len(r.VoidDeltas) != 0 {
		t.Errorf("purge produced numeric deltas %+v; it must stay a note", r.VoidDeltas)
	}
}

// ─── Conditions and position ─────────────────────────────────────────────────

func TestParseConditions(t *testing.T) {
	r := parse(t, "A migraine blooms behind her eyes as the capacitor starts to overheat.",
		types.ActionDeclaration{}, failure(-2))
	if len(r.Conditions) != 2 {
		t.Fatalf("conditions = %+v, want 2", r.Conditions)
	}
	names := map[string]bool{}
	for _, c := range r.Conditions {
		names[c.Name] = true
		if c.Duration != -1 {
			t.Errorf("condition %q duration = %d, want -1", c.Name, c.Duration)
		}
	}
	if !names["Mental Strain"] || !names["Equipment Damage"] {
		t.Errorf("condition names = %v", names)
	}
}

func TestParsePositionPriority(t *testing.T) {
	// Marker beats declared target position beats prose.
	r := parse(t, "[POSITION: far] she moves from Near to Close",
		types.ActionDeclaration{TargetPosition: "close"}, success(2))
	if r.Position != "Far" {
		t.Errorf("position = %q, want Far (marker wins)", r.Position)
	}

	r = parse(t, "she moves from Near to Close",
		types.ActionDeclaration{TargetPosition: "engaged"}, success(2))
	if r.Position != "Engaged" {
		t.Errorf("position = %q, want Engaged (declared target)", r.Position)
	}

	r = parse(t, "she shifts to cover behind the crates", types.ActionDeclaration{}, success(2))
	if r.Position != "Cover" {
		t.Errorf("position = %q, want Cover (prose)", r.Position)
	}

	r = parse(t, "she holds her ground", types.ActionDeclaration{}, success(2))
	if r.Position != "" {
		t.Errorf("position = %q, want empty (no movement)", r.Position)
	}
}

// ─── Control markers ─────────────────────────────────────────────────────────

func TestParseControlMarkers(t *testing.T) {
	narration := `The seal holds — barely.
[SESSION_END: VICTORY - the breach is closed]
[NEW_CLOCK: Aftershocks | 4 | the lattice resettles]
[PIVOT_SCENARIO: the drowned archive]
[ADVANCE_STORY: Flooded Stacks | water rising past the second shelf]
[SPAWN_ENEMY: Husk Warden | husk | 2 | Near | guards the stair]
[SPAWN_ENEMY: broken marker | husk]
[DESPAWN_ENEMY: Pale Sentry | dissolved into mist]
[ENEMY_SURRENDER: Tarn the Lesser]
[ENEMY_FLEE: Gutter Shade]`

	r := parse(t, narration, types.ActionDeclaration{}, success(5))

	if r.SessionEnd == nil || r.SessionEnd.Result != "VICTORY" || r.SessionEnd.Reason != "the breach is closed" {
		t.Errorf("SessionEnd = %+v", r.SessionEnd)
	}
	if len(r.NewClocks) != 1 || r.NewClocks[0].Name != "Aftershocks" || r.NewClocks[0].Max != 4 {
		t.Errorf("NewClocks = %+v", r.NewClocks)
	}
	if r.PivotTheme != "the drowned archive" {
		t.Errorf("PivotTheme = %q", r.PivotTheme)
	}
	if r.AdvanceStory == nil || r.AdvanceStory.Location != "Flooded Stacks" {
		t.Errorf("AdvanceStory = %+v", r.AdvanceStory)
	}
	if len(r.Spawns) != 1 {
		t.Fatalf("Spawns = %+v, want 1 valid", r.Spawns)
	}
	s := r.Spawns[0]
	if s.Name != "Husk Warden" || s.Template != "husk" || s.Count != 2 || s.Position != "Near" || s.Tactics != "guards the stair" {
		t.Errorf("spawn = %+v", s)
	}
	if len(r.InvalidSpawns) != 1 {
		t.Errorf("InvalidSpawns = %v, want the two-field marker", r.InvalidSpawns)
	}
	if len(r.Despawns) != 1 || r.Despawns[0].Name != "Pale Sentry" || r.Despawns[0].Reason != "dissolved into mist" {
		t.Errorf("Despawns = %+v", r.Despawns)
	}
	if len(r.Surrenders) != 1 || r.Surrenders[0] != "Tarn the Lesser" {
		t.Errorf("Surrenders = %v", r.Surrenders)
	}
	if len(r.Flees) != 1 || r.Flees[0] != "Gutter Shade" {
		t.Errorf("Flees = %v", r.Flees)
	}
}

func TestParseSpawnRejectsBadCount(t *testing.T) {
	r := parse(t, "[SPAWN_ENEMY: Husk | husk | zero | Near | waits]",
		types.ActionDeclaration{}, success(1))
	if len(r.Spawns) != 0 || len(r.InvalidSpawns) != 1 {
		t.Errorf("Spawns = %+v InvalidSpawns = %v", r.Spawns, r.InvalidSpawns)
	}
}

// ─── Implicit clock inference ────────────────────────────────────────────────

func TestInferImplicitClocks(t *testing.T) {
	danger := mech.Clock{Name: "Patrol Alert", Max: 6}
	invest := mech.Clock{Name: "Trail of Evidence", Max: 6}
	corrupt := mech.Clock{Name: "Void Breach", Max: 4}

	tests := []struct {
		name      string
		narration string
		res       types.ActionResolution
		clocks    []mech.Clock
		want      map[string]int
	}{
		{"failure raises danger", "she slips on the catwalk", failure(-3),
			[]mech.Clock{danger}, map[string]int{"Patrol Alert": 1}},
		{"critical failure doubles", "everything goes wrong at once", failure(-21),
			[]mech.Clock{danger}, map[string]int{"Patrol Alert": 2}},
		{"reckless success", "the door gives with a crash", success(2),
			[]mech.Clock{danger}, map[string]int{"Patrol Alert": 1}},
		{"quiet success leaves danger alone", "she eases the door open", success(2),
			[]mech.Clock{danger}, map[string]int{}},
		{"investigation progress", "they uncover a ledger of names", success(3),
			[]mech.Clock{invest}, map[string]int{"Trail of Evidence": 1}},
		{"strong investigation", "they uncover a ledger of names", success(12),
			[]mech.Clock{invest}, map[string]int{"Trail of Evidence": 2}},
		{"cleansing regresses corruption", "the rite purifies the chamber", success(4),
			[]mech.Clock{corrupt}, map[string]int{"Void Breach": -1}},
		{"failed void work advances corruption", "the breach widens as she fumbles", failure(-5),
			[]mech.Clock{corrupt}, map[string]int{"Void Breach": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := parse(t, tt.narration, types.ActionDeclaration{}, tt.res, tt.clocks...)
			got := map[string]int{}
			for _, u := range r.ClockUpdates {
				got[u.Clock] += u.Ticks
				if u.Explicit {
					t.Errorf("implicit update flagged explicit: %+v", u)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("updates = %v, want %v", got, tt.want)
			}
			for name, ticks := range tt.want {
				if got[name] != ticks {
					t.Errorf("clock %q ticks = %d, want %d", name, got[name], ticks)
				}
			}
		})
	}
}

// ─── Effects ─────────────────────────────────────────────────────────────────

func TestParseEffectBlocks(t *testing.T) {
	narration := `The blade bites deep.
EFFECT: type=damage, target=tgt_a1b2, amount=7, effect=bleeding gash
EFFECT: type=debuff, target=Husk Warden, amount=2, duration=2, detail=staggered
EFFECT: type=mystery, target=tgt_a1b2
EFFECT: type=damage, amount=3`

	r := parse(t, narration,
		types.ActionDeclaration{Type: types.ActionCombat, Target: "tgt_a1b2"}, success(6))

	if len(r.Effects) != 2 {
		t.Fatalf("effects = %+v, want 2 valid", r.Effects)
	}
	if e := r.Effects[0]; e.Type != EffectDamage || e.Target != "tgt_a1b2" || e.Amount != 7 || e.Detail != "bleeding gash" {
		t.Errorf("first effect = %+v", e)
	}
	if e := r.Effects[1]; e.Type != EffectDebuff || e.Duration != 2 || e.Detail != "staggered" {
		t.Errorf("second effect = %+v", e)
	}
	for _, e := range r.Effects {
		if e.Fallback {
			t.Errorf("parsed effect flagged fallback: %+v", e)
		}
	}
}

func TestFallbackDamageSynthesis(t *testing.T) {
	// Successful attack, no EFFECT block: synthesise damage from the margin.
	r := parse(t, "The strike lands clean.",
		types.ActionDeclaration{Type: types.ActionCombat, Target: "tgt_a1b2"}, success(11))
	if len(r.Effects) != 1 {
		t.Fatalf("effects = %+v, want one fallback", r.Effects)
	}
	e := r.Effects[0]
	if !e.Fallback || e.Type != EffectDamage || e.Amount != 4+11/5 {
		t.Errorf("fallback = %+v, want damage %d", e, 4+11/5)
	}

	// Failure never synthesises.
	r = parse(t, "The strike goes wide.",
		types.ActionDeclaration{Type: types.ActionCombat, Target: "tgt_a1b2"}, failure(-2))
	if len(r.Effects) != 0 {
		t.Errorf("effects on failure = %+v, want none", r.Effects)
	}

	// Self-targeting never synthesises; narration is authoritative for the
	// party.
	r = parse(t, "She braces.",
		types.ActionDeclaration{Type: types.ActionCombat, Target: "Maren", CharacterName: "Maren"}, success(5))
	if len(r.Effects) != 0 {
		t.Errorf("effects on self-target = %+v, want none", r.Effects)
	}
}
