// Package promptkit is the versioned prompt registry and the small template
// engine that fills prompts from runtime state.
//
// Templates are addressed by (agent type, provider, language, section).
// Lookup degrades gracefully: a provider-specific template wins over the
// "default" provider, and any language falls back to "en", so a registry
// seeded only with English defaults still serves every agent. The metadata of
// whichever template actually rendered travels with the declaration into the
// event log.
package promptkit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arkavel/voidtable/pkg/types"
)

// DefaultProvider and DefaultLanguage are the fallback address components.
const (
	DefaultProvider = "default"
	DefaultLanguage = "en"
)

// Key addresses one template in the registry.
type Key struct {
	AgentType string // "player", "dm", "enemy"
	Provider  string // LLM provider name, or DefaultProvider
	Language  string // BCP-47-ish tag, or DefaultLanguage
	Section   string // "declaration", "scenario", "synthesis", ...
}

// Template is one registered prompt body.
type Template struct {
	Name    string
	Version string
	Text    string
}

// Registry holds every registered template, guarded for concurrent agents.
type Registry struct {
	mu        sync.RWMutex
	templates map[Key]Template
}

// NewRegistry returns a registry seeded with the built-in defaults.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[Key]Template)}
	for k, t := range builtinTemplates {
		r.templates[k] = t
	}
	return r
}

// Register adds or replaces a template at the given key.
func (r *Registry) Register(k Key, t Template) error {
	if k.AgentType == "" || k.Section == "" {
		return fmt.Errorf("promptkit: agent type and section are required")
	}
	if t.Text == "" {
		return fmt.Errorf("promptkit: template %q has no body", t.Name)
	}
	if k.Provider == "" {
		k.Provider = DefaultProvider
	}
	if k.Language == "" {
		k.Language = DefaultLanguage
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[k] = t
	return nil
}

// Lookup finds the best template for the key, walking the fallback chain:
// exact → default provider → default language → both defaulted.
func (r *Registry) Lookup(k Key) (Template, bool) {
	if k.Provider == "" {
		k.Provider = DefaultProvider
	}
	if k.Language == "" {
		k.Language = DefaultLanguage
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := []Key{
		k,
		{AgentType: k.AgentType, Provider: DefaultProvider, Language: k.Language, Section: k.Section},
		{AgentType: k.AgentType, Provider: k.Provider, Language: DefaultLanguage, Section: k.Section},
		{AgentType: k.AgentType, Provider: DefaultProvider, Language: DefaultLanguage, Section: k.Section},
	}
	for _, c := range chain {
		if t, ok := r.templates[c]; ok {
			return t, true
		}
	}
	return Template{}, false
}

// Render looks up the best template for the key, substitutes data into it,
// and returns the text plus the metadata of the template that served.
func (r *Registry) Render(k Key, data map[string]any) (string, types.PromptMeta, error) {
	t, ok := r.Lookup(k)
	if !ok {
		return "", types.PromptMeta{}, fmt.Errorf("promptkit: no template for %s/%s", k.AgentType, k.Section)
	}
	meta := types.PromptMeta{
		Version:  t.Version,
		Provider: k.Provider,
		Language: k.Language,
		Template: t.Name,
	}
	if meta.Provider == "" {
		meta.Provider = DefaultProvider
	}
	if meta.Language == "" {
		meta.Language = DefaultLanguage
	}
	return Substitute(t.Text, data), meta, nil
}

// Sections lists every registered section for an agent type, sorted. Useful
// for config validation and tests.
func (r *Registry) Sections(agentType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for k := range r.templates {
		if k.AgentType == agentType {
			seen[k.Section] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
