// Package enemy implements the Director-spawned opposition: template-driven
// enemy agents, the combat manager that declares and resolves their actions,
// and the resolution-phase invalidation that keeps a declared action honest
// against the live battlefield.
package enemy

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/arkavel/voidtable/pkg/types"
)

// Template is the stat block an enemy is stamped from.
type Template struct {
	ID          string                  `yaml:"id"`
	Name        string                  `yaml:"name"`
	Health      int                     `yaml:"health"`
	Attributes  map[types.Attribute]int `yaml:"attributes"`
	Skills      map[string]int          `yaml:"skills,omitempty"`
	Weapons     []string                `yaml:"weapons,omitempty"`
	Morale      int                     `yaml:"morale"`
	Description string                  `yaml:"description,omitempty"`
}

// TemplateRegistry is a pluggable catalog of enemy templates.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateRegistry returns a registry pre-loaded with the built-in
// templates.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{templates: make(map[string]Template)}
	for _, t := range builtinTemplates {
		r.templates[t.ID] = t
	}
	return r
}

var builtinTemplates = []Template{
	{
		ID: "husk", Name: "Void Husk", Health: 14, Morale: 8,
		Attributes: map[types.Attribute]int{
			types.Strength: 4, types.Agility: 2, types.Endurance: 4,
			types.Perception: 2, types.Intelligence: 1, types.Empathy: 1,
			types.Willpower: 3, types.Charisma: 1,
		},
		Skills:      map[string]int{"Melee": 2},
		Weapons:     []string{"fists"},
		Description: "a hollowed body moved by void residue",
	},
	{
		ID: "seeker", Name: "Rift Seeker", Health: 18, Morale: 6,
		Attributes: map[types.Attribute]int{
			types.Strength: 3, types.Agility: 4, types.Endurance: 3,
			types.Perception: 4, types.Intelligence: 2, types.Empathy: 1,
			types.Willpower: 3, types.Charisma: 1,
		},
		Skills:      map[string]int{"Melee": 3, "Awareness": 2},
		Weapons:     []string{"seeker_talons"},
		Description: "a fast predator drawn to astral bleed",
	},
	{
		ID: "warden", Name: "Hollow Warden", Health: 26, Morale: 9,
		Attributes: map[types.Attribute]int{
			types.Strength: 5, types.Agility: 3, types.Endurance: 5,
			types.Perception: 3, types.Intelligence: 3, types.Empathy: 1,
			types.Willpower: 5, types.Charisma: 2,
		},
		Skills:      map[string]int{"Melee": 3, "Astral Arts": 2},
		Weapons:     []string{"void_lash"},
		Description: "an armored sentinel bound to a broken seal",
	},
	{
		ID: "cultist", Name: "Chorus Cultist", Health: 12, Morale: 4,
		Attributes: map[types.Attribute]int{
			types.Strength: 2, types.Agility: 3, types.Endurance: 2,
			types.Perception: 3, types.Intelligence: 3, types.Empathy: 2,
			types.Willpower: 4, types.Charisma: 3,
		},
		Skills:      map[string]int{"Ranged": 2, "Astral Arts": 1},
		Weapons:     []string{"shard_pistol"},
		Description: "a believer with a gun and half a rite",
	},
}

// Register adds or replaces a template.
func (r *TemplateRegistry) Register(t Template) error {
	if t.ID == "" {
		return fmt.Errorf("enemy: template id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
	return nil
}

// Lookup returns the template with the given id.
func (r *TemplateRegistry) Lookup(id string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	return t, ok
}

// IDs returns every registered template id, sorted.
func (r *TemplateRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.templates))
	for id := range r.templates {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LoadFile merges template definitions from a YAML file.
func (r *TemplateRegistry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("enemy: open %q: %w", path, err)
	}
	defer f.Close()
	return r.Load(f)
}

// Load merges template definitions from YAML read from rd.
func (r *TemplateRegistry) Load(rd io.Reader) error {
	var list []Template
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(&list); err != nil {
		return fmt.Errorf("enemy: decode templates: %w", err)
	}
	for _, t := range list {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
