package dice

import "testing"

func TestSameSeedSameSequence(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 50; i++ {
		if ra, rb := a.D20(), b.D20(); ra != rb {
			t.Fatalf("roll %d diverged: %d vs %d", i, ra, rb)
		}
	}

	c, d := New(42), New(43)
	diverged := false
	for i := 0; i < 50; i++ {
		if c.D20() != d.D20() {
			diverged = true
			break
		}
	}
	if !diverged {
		t.Error("different seeds produced identical sequences")
	}
}

func TestRollBounds(t *testing.T) {
	r := New(7)
	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		v := r.D20()
		if v < 1 || v > 20 {
			t.Fatalf("d20 rolled %d", v)
		}
		seen[v] = true
	}
	if len(seen) != 20 {
		t.Errorf("2000 rolls hit only %d of 20 faces", len(seen))
	}
}

func TestRollDegenerateSides(t *testing.T) {
	r := New(1)
	if got := r.Roll(0); got != 1 {
		t.Errorf("Roll(0) = %d, want 1", got)
	}
	if got := r.Roll(-3); got != 1 {
		t.Errorf("Roll(-3) = %d, want 1", got)
	}
	if got := r.Roll(1); got != 1 {
		t.Errorf("Roll(1) = %d, want 1", got)
	}
}

func TestRollNSums(t *testing.T) {
	r := New(9)
	for i := 0; i < 100; i++ {
		sum := r.RollN(3, 6)
		if sum < 3 || sum > 18 {
			t.Fatalf("3d6 = %d", sum)
		}
	}
	if got := r.RollN(0, 6); got != 0 {
		t.Errorf("0d6 = %d, want 0", got)
	}
}
