package outcome

import (
	"strings"

	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/pkg/types"
)

// clockCategory is the semantic family an active clock belongs to, inferred
// from its name and labels. Categories drive the implicit tick rules that run
// only when the narration carried no explicit 📊 marker.
type clockCategory int

const (
	catUnknown clockCategory = iota
	catDanger
	catInvestigation
	catCorruption
	catTime
	catStability
	catSafety
	catContainment
)

var categoryKeywords = map[clockCategory][]string{
	catDanger:        {"alarm", "alert", "threat", "danger", "patrol", "hunt", "pursuit"},
	catInvestigation: {"investigation", "clue", "mystery", "trail", "evidence", "search", "truth"},
	catCorruption:    {"void", "corruption", "taint", "breach", "rift", "blight"},
	catTime:          {"countdown", "deadline", "dawn", "dusk", "collapse", "time", "tide"},
	catStability:     {"stability", "integrity", "structure", "wound", "health", "hull"},
	catSafety:        {"safety", "sanctuary", "refuge", "ward", "shelter", "haven"},
	catContainment:   {"containment", "seal", "binding", "quarantine", "cage", "lock"},
}

// classifyClock assigns the first matching category, scanning name plus
// semantic labels. Explicit markers always win over anything classified here,
// so overlapping vocabularies cannot double-fire.
func classifyClock(c mech.Clock) clockCategory {
	text := strings.ToLower(c.Name + " " + c.Description + " " + c.AdvanceMeans + " " + c.RegressMeans)
	for _, cat := range []clockCategory{
		catDanger, catInvestigation, catCorruption, catTime,
		catStability, catSafety, catContainment,
	} {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(text, kw) {
				return cat
			}
		}
	}
	return catUnknown
}

var (
	investigateHits = []string{"discover", "uncover", "learn", "reveal", "clue", "decipher", "trace"}
	recklessHits    = []string{"loud", "crash", "shatter", "alarm", "scream", "gunfire", "explosion"}
	cleansingHits   = []string{"cleanse", "purif", "purge", "banish the void"}
	voidManipHits   = []string{"void", "breach", "rift", "corrupt"}
	healingHits     = []string{"heal", "mend", "repair", "stabilise", "stabilize", "patch"}
	secureHits      = []string{"secure", "fortify", "barricade", "shelter", "ward"}
	sealHits        = []string{"seal", "bind", "contain", "lock down"}
	breachHits      = []string{"breach", "escape", "break loose", "slip free"}
	delayHits       = []string{"stall", "delay", "waste", "hesitate", "linger"}
)

// inferImplicitClocks applies category rules against the narration, outcome
// tier, and margin for each active clock.
func inferImplicitClocks(narration string, res types.ActionResolution, clocks []mech.Clock) []ClockUpdate {
	lower := strings.ToLower(narration)
	var out []ClockUpdate

	add := func(c mech.Clock, ticks int, reason string) {
		out = append(out, ClockUpdate{Clock: c.Name, Ticks: ticks, Reason: reason})
	}

	for _, c := range clocks {
		switch classifyClock(c) {
		case catInvestigation:
			if res.Success && containsAny(lower, investigateHits) {
				ticks := 1
				if res.Margin >= 10 {
					ticks = 2
				}
				add(c, ticks, "investigation progress")
			}

		case catDanger:
			switch {
			case res.Tier == types.TierCriticalFailure:
				add(c, 2, "catastrophic blunder draws attention")
			case !res.Success:
				add(c, 1, "failure raises the alarm")
			case containsAny(lower, recklessHits):
				add(c, 1, "reckless noise")
			}

		case catCorruption:
			switch {
			case !res.Success && containsAny(lower, voidManipHits):
				ticks := 1
				if res.Tier == types.TierCriticalFailure {
					ticks = 2
				}
				add(c, ticks, "failed void manipulation")
			case res.Success && containsAny(lower, cleansingHits):
				add(c, -1, "cleansing work")
			}

		case catTime:
			if containsAny(lower, delayHits) {
				add(c, 1, "time slips away")
			}

		case catStability:
			switch {
			case res.Success && containsAny(lower, healingHits):
				add(c, -1, "stabilising work")
			case !res.Success && containsAny(lower, recklessHits):
				add(c, 1, "further damage")
			}

		case catSafety:
			if res.Success && containsAny(lower, secureHits) {
				add(c, 1, "position secured")
			}

		case catContainment:
			switch {
			case res.Success && containsAny(lower, sealHits):
				add(c, 1, "the seal tightens")
			case !res.Success && containsAny(lower, breachHits):
				add(c, -1, "the containment slips")
			}
		}
	}
	return out
}
