package director

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/arkavel/voidtable/internal/kb"
	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/outcome"
	"github.com/arkavel/voidtable/internal/protocol"
)

// ScenarioResult is a generated scenario plus any opening-ambush spawns.
type ScenarioResult struct {
	Scenario protocol.ScenarioPayload
	Spawns   []outcome.SpawnSpec
	Source   string // "llm" or "fallback"
}

// controlMarkers are the tokens a FILLED consequence must carry; a filled
// clock with no marker would fire without any mechanical effect.
var controlMarkers = []string{
	"[SPAWN_ENEMY:", "[DESPAWN_ENEMY:", "[ADVANCE_STORY:", "[NEW_CLOCK:",
}

// GenerateScenario produces and installs the session's opening scenario:
// clocks are created on the engine, the scene void level is set, and the
// location is recorded for cross-session variety. force pins the theme;
// forceCombat guarantees an opening ambush.
func (d *Director) GenerateScenario(ctx context.Context, force string, forceCombat bool) ScenarioResult {
	scenario, source := d.generateScenario(ctx, force)

	d.engine.SetSceneVoidLevel(scenario.VoidLevel)
	for _, spec := range scenario.Clocks {
		d.engine.CreateClock(mech.Clock{
			Name:              spec.Name,
			Max:               spec.Max,
			Description:       spec.Description,
			AdvanceMeans:      spec.AdvanceMeans,
			RegressMeans:      spec.RegressMeans,
			FilledConsequence: spec.FilledConsequence,
		})
	}
	d.state.RecordScenario(scenario.Location)

	result := ScenarioResult{Scenario: scenario, Source: source}
	if forceCombat {
		result.Spawns = append(result.Spawns, outcome.SpawnSpec{
			Name:     "Void Husk",
			Template: "husk",
			Count:    2,
			Position: "Near",
			Tactics:  "shamble at the closest living thing",
		})
	}
	return result
}

// generateScenario runs the LLM path with one variety retry, falling back to
// the deterministic scenario.
func (d *Director) generateScenario(ctx context.Context, force string) (protocol.ScenarioPayload, string) {
	lore := d.lore(ctx, force)
	recent := d.state.RecentScenarios()

	prompt, _, err := d.render("scenario", map[string]any{
		"lore":             lore,
		"recent_scenarios": strings.Join(recent, "; "),
		"party": map[string]any{
			"roster": strings.Join(d.state.PlayerNames(), ", "),
		},
	})
	if err != nil {
		slog.Warn("scenario prompt render failed", "err", err)
		return fallbackScenario(force, recent), "fallback"
	}
	if force != "" {
		prompt += "\n\nThe theme MUST be: " + force
	}

	for attempt, temp := range []float64{0.9, 1.0} {
		text, cerr := d.complete(ctx, prompt, temp, 700)
		if cerr != nil {
			slog.Warn("scenario generation failed", "attempt", attempt, "err", cerr)
			break
		}
		scenario, perr := parseScenario(text)
		if perr != nil {
			slog.Warn("scenario rejected", "attempt", attempt, "err", perr)
			continue
		}
		if locationCollides(scenario.Location, recent) {
			slog.Info("scenario location reused, regenerating",
				"location", scenario.Location)
			continue
		}
		return scenario, "llm"
	}
	return fallbackScenario(force, recent), "fallback"
}

// lore retrieves canon relevant to the upcoming scene.
func (d *Director) lore(ctx context.Context, force string) string {
	query := "factions rituals void history"
	if force != "" {
		query = force
	}
	results, err := d.retriever.Query(ctx, query, 3)
	if err != nil {
		slog.Warn("lore retrieval failed", "err", err)
		return kb.FormatResults(nil)
	}
	return kb.FormatResults(results)
}

func locationCollides(location string, recent []string) bool {
	lower := strings.ToLower(location)
	for _, r := range recent {
		if strings.ToLower(r) == lower {
			return true
		}
	}
	return false
}

// parseScenario lifts the THEME/LOCATION/SITUATION/VOID_LEVEL/CLOCKS layout
// out of the model's reply. Missing fields or markerless FILLED clauses make
// the whole scenario invalid.
func parseScenario(text string) (protocol.ScenarioPayload, error) {
	var s protocol.ScenarioPayload
	var inClocks bool
	var situation []string

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "THEME:"):
			s.Theme = strings.TrimSpace(strings.TrimPrefix(trimmed, "THEME:"))
		case strings.HasPrefix(trimmed, "LOCATION:"):
			s.Location = strings.TrimSpace(strings.TrimPrefix(trimmed, "LOCATION:"))
		case strings.HasPrefix(trimmed, "SITUATION:"):
			situation = append(situation, strings.TrimSpace(strings.TrimPrefix(trimmed, "SITUATION:")))
		case strings.HasPrefix(trimmed, "VOID_LEVEL:"):
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(trimmed, "VOID_LEVEL:"))); err == nil {
				s.VoidLevel = n
			}
		case strings.HasPrefix(trimmed, "CLOCKS:"):
			inClocks = true
		case inClocks && strings.HasPrefix(trimmed, "- "):
			spec, err := parseClockSpec(strings.TrimPrefix(trimmed, "- "))
			if err != nil {
				return s, err
			}
			s.Clocks = append(s.Clocks, spec)
		case !inClocks && trimmed != "" && len(situation) > 0 && !strings.Contains(trimmed, ":"):
			// Continuation line of a multi-line situation.
			situation = append(situation, trimmed)
		}
	}
	s.Situation = strings.Join(situation, " ")

	if s.Theme == "" || s.Location == "" || s.Situation == "" {
		return s, fmt.Errorf("director: scenario missing theme, location, or situation")
	}
	if len(s.Clocks) < 1 {
		return s, fmt.Errorf("director: scenario has no clocks")
	}
	return s, nil
}

// parseClockSpec splits one pipe-delimited clock line. The FILLED clause must
// contain a control marker.
func parseClockSpec(line string) (protocol.ClockSpec, error) {
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return protocol.ClockSpec{}, fmt.Errorf("director: clock spec %q: want name | max | description", line)
	}

	max, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || max < 2 {
		return protocol.ClockSpec{}, fmt.Errorf("director: clock spec %q: bad max", line)
	}

	spec := protocol.ClockSpec{
		Name:        strings.TrimSpace(parts[0]),
		Max:         max,
		Description: strings.TrimSpace(parts[2]),
	}
	for _, part := range parts[3:] {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "ADVANCE="):
			spec.AdvanceMeans = strings.TrimPrefix(part, "ADVANCE=")
		case strings.HasPrefix(part, "REGRESS="):
			spec.RegressMeans = strings.TrimPrefix(part, "REGRESS=")
		case strings.HasPrefix(part, "FILLED="):
			spec.FilledConsequence = strings.TrimPrefix(part, "FILLED=")
		}
	}

	if spec.FilledConsequence == "" || !containsMarker(spec.FilledConsequence) {
		return spec, fmt.Errorf("director: clock %q: FILLED clause needs a control marker", spec.Name)
	}
	return spec, nil
}

func containsMarker(text string) bool {
	for _, m := range controlMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// fallbackScenario is the deterministic scenario used when the LLM is
// unavailable or twice non-compliant. It rotates through a fixed set,
// skipping recently used locations.
func fallbackScenario(force string, recent []string) protocol.ScenarioPayload {
	candidates := []protocol.ScenarioPayload{
		{
			Theme:     "a seal is failing under the tide engines",
			Location:  "Drowned Exchange",
			Situation: "The lower market is knee-deep and rising. Something under the floor grates is eating the ward-lines one by one.",
			VoidLevel: 3,
		},
		{
			Theme:     "the chorus sings in a dead relay station",
			Location:  "Relay Nine",
			Situation: "Relay Nine went silent two days ago. The repeater still hums, but what it repeats is not traffic.",
			VoidLevel: 4,
		},
		{
			Theme:     "a caravan vanished on the salt road",
			Location:  "Saltcut Pass",
			Situation: "Four wagons, no bodies, one survivor who will not stop drawing the same spiral. The pass must be cleared by dawn.",
			VoidLevel: 2,
		},
	}

	pick := candidates[0]
	for _, c := range candidates {
		if !locationCollides(c.Location, recent) {
			pick = c
			break
		}
	}
	if force != "" {
		pick.Theme = force
	}

	pick.Clocks = []protocol.ClockSpec{
		{
			Name: "Breach Widens", Max: 6,
			Description:       "the local rift pulls itself open",
			AdvanceMeans:      "failed rituals, loud void work",
			RegressMeans:      "sealing work, cleansing rites",
			FilledConsequence: "[SPAWN_ENEMY: Rift Seeker|seeker|2|Far|circle and strike the weakest]",
		},
		{
			Name: "Evacuation", Max: 4,
			Description:       "getting the bystanders clear",
			AdvanceMeans:      "successful crowd work, cleared routes",
			FilledConsequence: "[ADVANCE_STORY: the empty quarter|The civilians are out. Whatever is left in here is yours to face.]",
		},
	}
	return pick
}
