package types

import "testing"

func TestTierForMargin(t *testing.T) {
	tests := []struct {
		margin int
		want   OutcomeTier
	}{
		{-25, TierCriticalFailure},
		{-20, TierCriticalFailure},
		{-19, TierFailure},
		{-1, TierFailure},
		{0, TierMarginal},
		{4, TierMarginal},
		{5, TierModerate},
		{9, TierModerate},
		{10, TierGood},
		{14, TierGood},
		{15, TierExcellent},
		{19, TierExcellent},
		{20, TierExceptional},
		{37, TierExceptional},
	}
	for _, tt := range tests {
		if got := TierForMargin(tt.margin); got != tt.want {
			t.Errorf("TierForMargin(%d) = %s, want %s", tt.margin, got, tt.want)
		}
	}
}

func TestInitDerived(t *testing.T) {
	c := &CharacterSheet{
		Name:       "Maren",
		Attributes: map[Attribute]int{Endurance: 3},
	}
	c.InitDerived()

	// size 5 default: 5*2 + 3 + 13
	if c.MaxHealth != 26 {
		t.Errorf("MaxHealth = %d, want 26", c.MaxHealth)
	}
	if c.Health != c.MaxHealth {
		t.Errorf("Health = %d, want full", c.Health)
	}
	if c.Soak != DefaultSoak {
		t.Errorf("Soak = %d, want %d", c.Soak, DefaultSoak)
	}
	if c.Position != "Near" {
		t.Errorf("Position = %q, want Near", c.Position)
	}

	// Re-init after damage must not heal.
	c.Health = 4
	c.Position = "Far"
	c.InitDerived()
	if c.Health != 4 || c.Position != "Far" {
		t.Errorf("re-init clobbered state: health=%d position=%q", c.Health, c.Position)
	}

	big := &CharacterSheet{Size: 8, Attributes: map[Attribute]int{Endurance: 2}}
	big.InitDerived()
	if big.MaxHealth != 31 {
		t.Errorf("size-8 MaxHealth = %d, want 31", big.MaxHealth)
	}
}

func TestAlive(t *testing.T) {
	c := &CharacterSheet{Attributes: map[Attribute]int{Endurance: 2}}
	c.InitDerived()
	if !c.Alive() {
		t.Error("fresh character not alive")
	}
	c.Health = 0
	if c.Alive() {
		t.Error("character at 0 health still alive")
	}
}

func TestTickBuffs(t *testing.T) {
	c := &CharacterSheet{Buffs: []Buff{
		{Effect: "warded", Bonus: 2, Duration: 2},
		{Effect: "steadied", Bonus: 1, Duration: 1},
	}}

	c.TickBuffs()
	if len(c.Buffs) != 1 || c.Buffs[0].Effect != "warded" {
		t.Fatalf("buffs after tick = %+v", c.Buffs)
	}
	c.TickBuffs()
	if len(c.Buffs) != 0 {
		t.Errorf("buffs not fully expired: %+v", c.Buffs)
	}
}

func TestSeedDecay(t *testing.T) {
	raw := Seed{Variant: SeedRaw, CyclesRemaining: 2}
	raw = raw.Decay()
	if raw.Variant != SeedRaw || raw.CyclesRemaining != 1 {
		t.Errorf("after first decay: %+v", raw)
	}
	raw = raw.Decay()
	if raw.Variant != SeedHollow || raw.CyclesRemaining != 0 {
		t.Errorf("after final decay: %+v", raw)
	}

	attuned := Seed{Variant: SeedAttuned, Element: "Tide"}
	if got := attuned.Decay(); got != attuned {
		t.Errorf("attuned seed decayed: %+v", got)
	}
}

func TestEnergyCurrency(t *testing.T) {
	e := &EnergyInventory{Breath: 3}
	p := e.Currency("breath")
	if p == nil {
		t.Fatal("breath not recognised")
	}
	*p += 2
	if e.Breath != 5 {
		t.Errorf("Breath = %d, want 5", e.Breath)
	}
	if e.Currency("obols") != nil {
		t.Error("unknown currency resolved")
	}
}
