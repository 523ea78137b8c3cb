package mech

import (
	"github.com/arkavel/voidtable/pkg/types"
)

// Condition is a lingering penalty on a character. An empty Affects list
// applies the penalty to every roll; otherwise it applies only to rolls using
// one of the listed attributes or skills.
type Condition struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Penalty     int    `json:"penalty"`
	Description string `json:"description,omitempty"`

	// Duration in rounds; -1 means until explicitly resolved.
	Duration int `json:"duration"`

	Affects []string `json:"affects,omitempty"`
}

// applies reports whether the condition penalises a roll with the given
// attribute and skill.
func (c Condition) applies(attr types.Attribute, skill string) bool {
	if len(c.Affects) == 0 {
		return true
	}
	for _, a := range c.Affects {
		if a == string(attr) || (skill != "" && a == skill) {
			return true
		}
	}
	return false
}

// AddCondition attaches a condition to agentID. A condition with the same
// name replaces the existing one rather than stacking.
func (e *Engine) AddCondition(agentID string, c Condition) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.conditions[agentID]
	for i, existing := range list {
		if existing.Name == c.Name {
			list[i] = c
			e.conditions[agentID] = list
			return
		}
	}
	e.conditions[agentID] = append(list, c)
	e.log.Emit(EventConditionAdded, map[string]any{
		"agent": agentID, "condition": c.Name, "penalty": c.Penalty, "duration": c.Duration,
	})
}

// RemoveCondition removes the named condition from agentID, if present.
func (e *Engine) RemoveCondition(agentID, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.conditions[agentID]
	for i, c := range list {
		if c.Name == name {
			e.conditions[agentID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Conditions returns a copy of agentID's active conditions.
func (e *Engine) Conditions(agentID string) []Condition {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.conditions[agentID]
	out := make([]Condition, len(list))
	copy(out, list)
	return out
}

// TickConditions ages every timed condition by one round and drops the ones
// that expired. Conditions with Duration -1 persist until resolved.
func (e *Engine) TickConditions() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for agentID, list := range e.conditions {
		kept := list[:0]
		for _, c := range list {
			if c.Duration < 0 {
				kept = append(kept, c)
				continue
			}
			c.Duration--
			if c.Duration > 0 {
				kept = append(kept, c)
			}
		}
		e.conditions[agentID] = kept
	}
}
