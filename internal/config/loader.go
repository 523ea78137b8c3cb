package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/arkavel/voidtable/pkg/types"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRoster resolves the full character roster: the roster file (if any)
// followed by the inline characters. Returns an error when the merged roster
// is empty or contains duplicate names.
func LoadRoster(cfg *Config) ([]*types.CharacterSheet, error) {
	var sheets []types.CharacterSheet

	if cfg.Roster.File != "" {
		data, err := os.ReadFile(cfg.Roster.File)
		if err != nil {
			return nil, fmt.Errorf("config: read roster %q: %w", cfg.Roster.File, err)
		}
		var file struct {
			Characters []types.CharacterSheet `yaml:"characters"`
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("config: parse roster %q: %w", cfg.Roster.File, err)
		}
		sheets = append(sheets, file.Characters...)
	}
	sheets = append(sheets, cfg.Roster.Characters...)

	if len(sheets) == 0 {
		return nil, fmt.Errorf("config: roster is empty; define roster.characters or roster.file")
	}
	if err := errors.Join(validateCharacters("roster", sheets)...); err != nil {
		return nil, err
	}

	out := make([]*types.CharacterSheet, len(sheets))
	for i := range sheets {
		out[i] = &sheets[i]
	}
	return out, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Session
	if cfg.Session.MaxRounds < 0 {
		errs = append(errs, fmt.Errorf("session.max_rounds %d is negative", cfg.Session.MaxRounds))
	}
	if cfg.Session.PartySize < 0 {
		errs = append(errs, fmt.Errorf("session.party_size %d is negative", cfg.Session.PartySize))
	}
	if !cfg.Session.Replay.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("session.replay.mode %q is invalid; valid values: record, replay", cfg.Session.Replay.Mode))
	}
	if cfg.Session.Replay.Mode != ReplayOff && cfg.Session.Replay.Path == "" {
		errs = append(errs, fmt.Errorf("session.replay.path is required when session.replay.mode is %q", cfg.Session.Replay.Mode))
	}
	if cfg.Session.EnableHumanInterface && cfg.Server.HumanAddr == "" {
		errs = append(errs, fmt.Errorf("session.enable_human_interface requires server.human_addr"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.Default.Name)
	for character, entry := range cfg.Providers.Players {
		if character == "" {
			errs = append(errs, fmt.Errorf("providers.players has an entry with an empty character name"))
		}
		validateProviderName("llm", entry.Name)
	}
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability warnings
	if cfg.Providers.Default.Name == "" && len(cfg.Providers.Players) == 0 {
		slog.Warn("no LLM provider configured; agents will play on deterministic fallbacks")
	}

	// Knowledge ↔ embeddings
	if cfg.Knowledge.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, fmt.Errorf("knowledge.postgres_dsn is set but providers.embeddings is not configured"))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Knowledge.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but knowledge.embedding_dimensions is not set; defaulting to 1536")
	}
	if mcp := cfg.Knowledge.MCP; mcp != nil {
		if mcp.Command != "" && mcp.URL != "" {
			errs = append(errs, fmt.Errorf("knowledge.mcp.command and knowledge.mcp.url are mutually exclusive"))
		}
		if mcp.Command == "" && mcp.URL == "" {
			errs = append(errs, fmt.Errorf("knowledge.mcp needs a command or a url"))
		}
	}

	// Inline roster characters. Roster files are validated on load.
	errs = append(errs, validateCharacters("roster.characters", cfg.Roster.Characters)...)

	return errors.Join(errs...)
}

// validateCharacters checks a list of character sheets for structural problems.
func validateCharacters(prefix string, sheets []types.CharacterSheet) []error {
	var errs []error
	seen := make(map[string]int, len(sheets))

	for i, c := range sheets {
		at := fmt.Sprintf("%s[%d]", prefix, i)
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", at))
		} else {
			if prev, ok := seen[c.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s[%d]", at, c.Name, prefix, prev))
			}
			seen[c.Name] = i
		}

		for attr, score := range c.Attributes {
			if score < 1 || score > 10 {
				errs = append(errs, fmt.Errorf("%s.attributes.%s = %d is out of range [1, 10]", at, attr, score))
			}
		}
		for skill, score := range c.Skills {
			if score < 0 {
				errs = append(errs, fmt.Errorf("%s.skills.%s = %d is negative", at, skill, score))
			}
		}

		p := c.Personality
		for name, v := range map[string]float64{
			"risk_tolerance":      p.RiskTolerance,
			"void_curiosity":      p.VoidCuriosity,
			"bond_preference":     p.BondPreference,
			"ritual_conservatism": p.RitualConservatism,
		} {
			if v < 0 || v > 1 {
				errs = append(errs, fmt.Errorf("%s.personality.%s = %.2f is out of range [0, 1]", at, name, v))
			}
		}
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
