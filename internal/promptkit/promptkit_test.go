package promptkit

import (
	"strings"
	"testing"
)

func TestSubstitute(t *testing.T) {
	data := map[string]any{
		"name": "Vex",
		"character": map[string]any{
			"faction": "Tidewrights",
			"stats":   map[string]any{"void": 3},
		},
		"skills": []string{"Melee", "Rigging"},
	}

	tests := []struct {
		name, in, want string
	}{
		{"flat", "You are {name}.", "You are Vex."},
		{"nested", "Faction: {character.faction}", "Faction: Tidewrights"},
		{"deep", "Void {character.stats.void}", "Void 3"},
		{"slice", "Skills: {skills}", "Skills: Melee, Rigging"},
		{"missing kept", "Hello {nobody}", "Hello {nobody}"},
		{"missing path kept", "{character.unknown.deep}", "{character.unknown.deep}"},
		{"json untouched", `{"intent": "x"}`, `{"intent": "x"}`},
		{"mixed", "{name} of {character.faction}", "Vex of Tidewrights"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Substitute(tt.in, data); got != tt.want {
				t.Errorf("Substitute(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLookupFallbackChain(t *testing.T) {
	r := NewRegistry()
	r.Register(Key{AgentType: "player", Provider: "openai", Language: "de", Section: "declaration"},
		Template{Name: "de_openai", Version: "v1", Text: "genau"})
	r.Register(Key{AgentType: "player", Provider: "openai", Section: "declaration"},
		Template{Name: "en_openai", Version: "v1", Text: "provider-specific"})

	tests := []struct {
		name     string
		key      Key
		wantTmpl string
	}{
		{"exact", Key{AgentType: "player", Provider: "openai", Language: "de", Section: "declaration"}, "de_openai"},
		{"language falls back", Key{AgentType: "player", Provider: "openai", Language: "fr", Section: "declaration"}, "en_openai"},
		{"provider falls back", Key{AgentType: "player", Provider: "anthropic", Section: "declaration"}, "player_declaration"},
		{"both fall back", Key{AgentType: "player", Provider: "x", Language: "fr", Section: "declaration"}, "player_declaration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Lookup(tt.key)
			if !ok {
				t.Fatal("Lookup failed")
			}
			if got.Name != tt.wantTmpl {
				t.Errorf("template = %q, want %q", got.Name, tt.wantTmpl)
			}
		})
	}
}

func TestRenderAttachesMeta(t *testing.T) {
	r := NewRegistry()
	text, meta, err := r.Render(
		Key{AgentType: "player", Provider: "openai", Section: "declaration"},
		map[string]any{"character": map[string]any{"name": "Vex"}},
	)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(text, "You are Vex") {
		t.Errorf("rendered text missing substitution: %q", text[:80])
	}
	if meta.Template != "player_declaration" || meta.Version == "" {
		t.Errorf("meta = %+v", meta)
	}
	if meta.Provider != "openai" || meta.Language != DefaultLanguage {
		t.Errorf("meta address = %+v", meta)
	}
}

func TestRenderUnknownSection(t *testing.T) {
	r := NewRegistry()
	if _, _, err := r.Render(Key{AgentType: "player", Section: "nonexistent"}, nil); err == nil {
		t.Fatal("Render of unknown section succeeded")
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Key{}, Template{Text: "x"}); err == nil {
		t.Error("Register with empty key succeeded")
	}
	if err := r.Register(Key{AgentType: "dm", Section: "s"}, Template{Name: "empty"}); err == nil {
		t.Error("Register with empty body succeeded")
	}
}

func TestDefaultsCoverCoreSections(t *testing.T) {
	r := NewRegistry()
	for _, want := range []string{"declaration", "main_after_free", "debrief"} {
		if _, ok := r.Lookup(Key{AgentType: "player", Section: want}); !ok {
			t.Errorf("no default player/%s template", want)
		}
	}
	for _, want := range []string{"scenario", "adjudicate", "synthesis", "compliance_retry", "story_advance"} {
		if _, ok := r.Lookup(Key{AgentType: "dm", Section: want}); !ok {
			t.Errorf("no default dm/%s template", want)
		}
	}
}
