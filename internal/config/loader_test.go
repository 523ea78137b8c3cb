package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arkavel/voidtable/internal/config"
)

func TestValidate_DuplicateCharacterNames(t *testing.T) {
	t.Parallel()
	yaml := `
roster:
  characters:
    - name: Maren
    - name: Maren
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate character names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_MissingCharacterName(t *testing.T) {
	t.Parallel()
	yaml := `
roster:
  characters:
    - faction: Tidewrights
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing character name, got nil")
	}
	if !strings.Contains(err.Error(), "name") {
		t.Errorf("error should mention name, got: %v", err)
	}
}

func TestValidate_PersonalityOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
roster:
  characters:
    - name: Maren
      personality:
        risk_tolerance: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range personality, got nil")
	}
	if !strings.Contains(err.Error(), "risk_tolerance") {
		t.Errorf("error should mention risk_tolerance, got: %v", err)
	}
}

func TestValidate_AttributeOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
roster:
  characters:
    - name: Maren
      attributes:
        Agility: 14
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range attribute, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_PostgresWithoutEmbeddings(t *testing.T) {
	t.Parallel()
	yaml := `
knowledge:
  postgres_dsn: postgres://localhost/voidtable
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for postgres_dsn without embeddings provider, got nil")
	}
	if !strings.Contains(err.Error(), "embeddings") {
		t.Errorf("error should mention embeddings, got: %v", err)
	}
}

func TestValidate_MCPCommandAndURLExclusive(t *testing.T) {
	t.Parallel()
	yaml := `
knowledge:
  mcp:
    command: /usr/local/bin/lore-server
    url: https://lore.example.com/mcp
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for mcp with both command and url, got nil")
	}
}

func TestValidate_MCPNeedsCommandOrURL(t *testing.T) {
	t.Parallel()
	yaml := `
knowledge:
  mcp:
    tool: search_lore
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for mcp with neither command nor url, got nil")
	}
}

func TestValidate_ReplayModeNeedsPath(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  replay:
    mode: record
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for replay mode without path, got nil")
	}
}

func TestValidate_HumanInterfaceNeedsAddr(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  enable_human_interface: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for human interface without address, got nil")
	}
	if !strings.Contains(err.Error(), "human_addr") {
		t.Errorf("error should mention human_addr, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
roster:
  characters:
    - name: Maren
    - name: Maren
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidProviderNames[\"llm\"] should not be empty")
	}
	found := false
	for _, n := range llmNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}

// ── roster loading ───────────────────────────────────────────────────────────

const rosterFileYAML = `
characters:
  - name: Josu
    faction: Ashen Concord
    skills:
      Systems: 3
  - name: Petra
    faction: Hollow Chorus
`

func TestLoadRoster_MergesFileAndInline(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	if err := os.WriteFile(path, []byte(rosterFileYAML), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	yaml := `
roster:
  file: ` + path + `
  characters:
    - name: Maren
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sheets, err := config.LoadRoster(cfg)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if len(sheets) != 3 {
		t.Fatalf("roster size: got %d, want 3", len(sheets))
	}
	// File characters come first, inline last.
	if sheets[0].Name != "Josu" || sheets[2].Name != "Maren" {
		t.Errorf("roster order: got %q ... %q", sheets[0].Name, sheets[2].Name)
	}
}

func TestLoadRoster_EmptyFails(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := config.LoadRoster(cfg); err == nil {
		t.Fatal("expected error for empty roster, got nil")
	}
}

func TestLoadRoster_DuplicateAcrossFileAndInline(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	if err := os.WriteFile(path, []byte("characters:\n  - name: Maren\n"), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	yaml := `
roster:
  file: ` + path + `
  characters:
    - name: Maren
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := config.LoadRoster(cfg); err == nil {
		t.Fatal("expected error for duplicate across file and inline, got nil")
	}
}
