package gear

import (
	"strings"
	"testing"
)

func TestBuiltinCatalog(t *testing.T) {
	r := NewRegistry()

	w, ok := r.Lookup("knife")
	if !ok {
		t.Fatal("built-in knife missing")
	}
	if w.Damage != 4 || w.Reach != "Engaged" {
		t.Errorf("knife = %+v", w)
	}

	if _, ok := r.Lookup("orbital_cannon"); ok {
		t.Error("unknown weapon resolved")
	}
}

func TestRegisterRequiresID(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Weapon{Name: "Nameless"}); err == nil {
		t.Error("weapon without id accepted")
	}

	// Re-registering an id replaces the entry.
	if err := r.Register(Weapon{ID: "knife", Name: "Boarding Knife", Damage: 5, Reach: "Engaged"}); err != nil {
		t.Fatal(err)
	}
	if w, _ := r.Lookup("knife"); w.Damage != 5 {
		t.Errorf("override not applied: %+v", w)
	}
}

func TestLoadMergesYAML(t *testing.T) {
	r := NewRegistry()
	doc := `
- id: harpoon
  name: Tide Harpoon
  damage: 7
  reach: Near
  tags: [thrown]
- id: fists
  name: Reinforced Fists
  damage: 3
  reach: Engaged
`
	if err := r.Load(strings.NewReader(doc)); err != nil {
		t.Fatal(err)
	}

	w, ok := r.Lookup("harpoon")
	if !ok || w.Damage != 7 || len(w.Tags) != 1 {
		t.Errorf("harpoon = %+v ok=%v", w, ok)
	}
	if w, _ := r.Lookup("fists"); w.Damage != 3 {
		t.Errorf("built-in not overridden: %+v", w)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	r := NewRegistry()
	err := r.Load(strings.NewReader("- id: x\n  ammo: 30\n"))
	if err == nil {
		t.Error("unknown field accepted")
	}
}
