package outcome

import (
	"regexp"
	"strconv"
	"strings"
)

// Control marker grammar. The marker vocabulary is the real protocol between
// the Director and the engine; everything else in a narration is flavour.
var (
	sessionEndRe = regexp.MustCompile(`\[SESSION_END:\s*(VICTORY|DEFEAT|DRAW)(?:\s*-\s*([^\]]+))?\]`)
	newClockRe   = regexp.MustCompile(`\[NEW_CLOCK:\s*([^|\]]+)\|\s*(\d+)\s*\|([^\]]*)\]`)
	pivotRe      = regexp.MustCompile(`\[PIVOT_SCENARIO:\s*([^\]]+)\]`)
	advanceRe    = regexp.MustCompile(`\[ADVANCE_STORY:\s*([^|\]]+)\|([^\]]*)\]`)
	spawnRe      = regexp.MustCompile(`\[SPAWN_ENEMY:\s*([^\]]*)\]`)
	despawnRe    = regexp.MustCompile(`\[DESPAWN_ENEMY:\s*([^|\]]+)(?:\|([^\]]*))?\]`)
	surrenderRe  = regexp.MustCompile(`\[ENEMY_SURRENDER:\s*([^\]]+)\]`)
	fleeRe       = regexp.MustCompile(`\[ENEMY_FLEE:\s*([^\]]+)\]`)
)

func parseControlMarkers(narration string, r *Report) {
	if m := sessionEndRe.FindStringSubmatch(narration); m != nil {
		r.SessionEnd = &SessionEnd{
			Result: m[1],
			Reason: strings.TrimSpace(m[2]),
		}
	}

	for _, m := range newClockRe.FindAllStringSubmatch(narration, -1) {
		max, err := strconv.Atoi(m[2])
		if err != nil || max <= 0 {
			continue
		}
		r.NewClocks = append(r.NewClocks, NewClock{
			Name:        strings.TrimSpace(m[1]),
			Max:         max,
			Description: strings.TrimSpace(m[3]),
		})
	}

	if m := pivotRe.FindStringSubmatch(narration); m != nil {
		r.PivotTheme = strings.TrimSpace(m[1])
	}

	if m := advanceRe.FindStringSubmatch(narration); m != nil {
		r.AdvanceStory = &StoryAdvance{
			Location:  strings.TrimSpace(m[1]),
			Situation: strings.TrimSpace(m[2]),
		}
	}

	for _, m := range spawnRe.FindAllStringSubmatch(narration, -1) {
		spec, ok := parseSpawn(m[1])
		if !ok {
			r.InvalidSpawns = append(r.InvalidSpawns, m[0])
			continue
		}
		r.Spawns = append(r.Spawns, spec)
	}

	for _, m := range despawnRe.FindAllStringSubmatch(narration, -1) {
		r.Despawns = append(r.Despawns, DespawnSpec{
			Name:   strings.TrimSpace(m[1]),
			Reason: strings.TrimSpace(m[2]),
		})
	}

	for _, m := range surrenderRe.FindAllStringSubmatch(narration, -1) {
		r.Surrenders = append(r.Surrenders, strings.TrimSpace(m[1]))
	}
	for _, m := range fleeRe.FindAllStringSubmatch(narration, -1) {
		r.Flees = append(r.Flees, strings.TrimSpace(m[1]))
	}
}

// parseSpawn splits a SPAWN_ENEMY marker body. All five fields — name,
// template, count, position, tactics — are required; anything less fails and
// triggers the Director's format-compliance retry.
func parseSpawn(body string) (SpawnSpec, bool) {
	parts := strings.Split(body, "|")
	if len(parts) != 5 {
		return SpawnSpec{}, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return SpawnSpec{}, false
		}
	}
	count, err := strconv.Atoi(parts[2])
	if err != nil || count < 1 {
		return SpawnSpec{}, false
	}
	return SpawnSpec{
		Name:     parts[0],
		Template: parts[1],
		Count:    count,
		Position: parts[3],
		Tactics:  parts[4],
	}, true
}
