package config

import (
	"slices"

	"github.com/arkavel/voidtable/pkg/types"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely applied between sessions are tracked.
type ConfigDiff struct {
	RosterChanged   bool            // true if any inline character was added, removed, or reshaped
	RosterChanges   []CharacterDiff // per-character diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// CharacterDiff describes what changed for a single roster character.
type CharacterDiff struct {
	Name               string
	PersonalityChanged bool
	GoalsChanged       bool
	SkillsChanged      bool
	Added              bool
	Removed            bool
}

// Diff compares old and new configs and returns what changed.
// Only inline roster characters are compared; roster files are reloaded
// wholesale at session start.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldChars := make(map[string]*types.CharacterSheet, len(old.Roster.Characters))
	for i := range old.Roster.Characters {
		oldChars[old.Roster.Characters[i].Name] = &old.Roster.Characters[i]
	}
	newChars := make(map[string]*types.CharacterSheet, len(new.Roster.Characters))
	for i := range new.Roster.Characters {
		newChars[new.Roster.Characters[i].Name] = &new.Roster.Characters[i]
	}

	for name, oldChar := range oldChars {
		newChar, exists := newChars[name]
		if !exists {
			d.RosterChanges = append(d.RosterChanges, CharacterDiff{Name: name, Removed: true})
			d.RosterChanged = true
			continue
		}
		cd := diffCharacter(name, oldChar, newChar)
		if cd.PersonalityChanged || cd.GoalsChanged || cd.SkillsChanged {
			d.RosterChanges = append(d.RosterChanges, cd)
			d.RosterChanged = true
		}
	}

	for name := range newChars {
		if _, exists := oldChars[name]; !exists {
			d.RosterChanges = append(d.RosterChanges, CharacterDiff{Name: name, Added: true})
			d.RosterChanged = true
		}
	}

	return d
}

// diffCharacter compares two character sheets with the same name.
func diffCharacter(name string, old, new *types.CharacterSheet) CharacterDiff {
	cd := CharacterDiff{Name: name}

	if old.Personality != new.Personality {
		cd.PersonalityChanged = true
	}
	if !slices.Equal(old.Goals, new.Goals) {
		cd.GoalsChanged = true
	}
	if !equalIntMaps(old.Skills, new.Skills) {
		cd.SkillsChanged = true
	}

	return cd
}

func equalIntMaps(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
