package director

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/outcome"
	"github.com/arkavel/voidtable/pkg/types"
)

// Synthesis is the end-of-round wrap-up: the flushed clock state, the
// Director's round narration, and the control-marker consequences the
// orchestrator must enact.
type Synthesis struct {
	Narration string
	Source    string // "llm" or "fallback"

	FilledClocks  []string
	ExpiredClocks []mech.ExpiredClock

	Report outcome.Report
}

// Synthesize closes the round: queued clock deltas are flushed, expired
// clocks removed, and the Director narrates the whole round in one piece.
// needsAdvance is set when the scene has no clocks left, which obliges the
// narration to carry an ADVANCE_STORY marker.
func (d *Director) Synthesize(ctx context.Context, round int, resolutions []types.ActionResolution, needsAdvance bool) Synthesis {
	filled := d.engine.ApplyQueuedUpdates()
	expired := d.engine.CheckAndExpireClocks()

	narration, source := d.synthesisNarration(ctx, round, resolutions, filled, expired, needsAdvance)

	report := d.parser.Parse(narration, types.ActionDeclaration{}, types.ActionResolution{}, d.engine.Clocks())
	if len(report.InvalidSpawns) > 0 {
		d.retrySpawnCompliance(ctx, &report)
	}
	if needsAdvance && source == "llm" && report.AdvanceStory == nil {
		d.retryAdvanceCompliance(ctx, &narration, &report)
	}

	for _, nc := range report.NewClocks {
		d.engine.CreateClock(mech.Clock{
			Name:        nc.Name,
			Max:         nc.Max,
			Description: nc.Description,
		})
	}
	if report.PivotTheme != "" {
		// A scenario pivot is the one in-session scene boundary.
		d.engine.ResetSceneVoid()
	}

	return Synthesis{
		Narration:     narration,
		Source:        source,
		FilledClocks:  filled,
		ExpiredClocks: expired,
		Report:        report,
	}
}

func (d *Director) synthesisNarration(ctx context.Context, round int, resolutions []types.ActionResolution, filled []string, expired []mech.ExpiredClock, needsAdvance bool) (string, string) {
	directive := ""
	if needsAdvance {
		if text, _, err := d.render("story_advance", nil); err == nil {
			directive = text
		}
	}

	prompt, _, err := d.render("synthesis", map[string]any{
		"round": map[string]any{
			"outcomes":       formatOutcomes(resolutions),
			"filled_clocks":  strings.Join(filled, ", "),
			"expired_clocks": formatExpired(expired),
			"directive":      directive,
		},
		"scene": map[string]any{
			"clocks": d.clockLines(),
		},
	})
	if err != nil {
		return fallbackSynthesis(resolutions, filled, expired), "fallback"
	}

	text, cerr := d.complete(ctx, prompt, 0.8, 700)
	if cerr != nil {
		slog.Debug("synthesis fell back", "round", round, "err", cerr)
		return fallbackSynthesis(resolutions, filled, expired), "fallback"
	}
	return strings.TrimSpace(text), "llm"
}

// retrySpawnCompliance gives the model one low-temperature chance to fix its
// malformed spawn markers. Markers still malformed after the retry are
// dropped; an invented enemy is worse than a missing one.
func (d *Director) retrySpawnCompliance(ctx context.Context, report *outcome.Report) {
	prompt, _, err := d.render("compliance_retry", map[string]any{
		"invalid_markers": strings.Join(report.InvalidSpawns, "\n"),
		"templates":       strings.Join(d.templates.IDs(), ", "),
	})
	if err != nil {
		return
	}

	text, cerr := d.complete(ctx, prompt, 0.3, 200)
	if cerr != nil {
		slog.Warn("spawn compliance retry failed", "err", cerr)
		return
	}

	fixed := d.parser.Parse(text, types.ActionDeclaration{}, types.ActionResolution{}, nil)
	if len(fixed.Spawns) > 0 {
		report.Spawns = append(report.Spawns, fixed.Spawns...)
		report.InvalidSpawns = fixed.InvalidSpawns
		slog.Info("spawn markers repaired", "count", len(fixed.Spawns))
	}
}

// retryAdvanceCompliance gives the model one low-temperature chance to add
// the advancement markers an obliged synthesis left out. If the retry still
// produces none, the scene holds and the next round asks again.
func (d *Director) retryAdvanceCompliance(ctx context.Context, narration *string, report *outcome.Report) {
	prompt, _, err := d.render("advance_retry", map[string]any{
		"narration": *narration,
	})
	if err != nil {
		return
	}

	text, cerr := d.complete(ctx, prompt, 0.3, 300)
	if cerr != nil {
		slog.Warn("story advance retry failed", "err", cerr)
		return
	}

	fixed := d.parser.Parse(text, types.ActionDeclaration{}, types.ActionResolution{}, nil)
	if fixed.AdvanceStory == nil {
		slog.Warn("advancement markers still missing after retry")
		return
	}
	*narration += "\n" + strings.TrimSpace(text)
	report.AdvanceStory = fixed.AdvanceStory
	report.NewClocks = append(report.NewClocks, fixed.NewClocks...)
	slog.Info("advancement markers repaired", "location", fixed.AdvanceStory.Location)
}

func formatOutcomes(resolutions []types.ActionResolution) string {
	if len(resolutions) == 0 {
		return "No actions resolved this round."
	}
	var b strings.Builder
	for _, r := range resolutions {
		fmt.Fprintf(&b, "- %s (%s, margin %+d)\n", r.Narrative, r.Tier, r.Margin)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatExpired(expired []mech.ExpiredClock) string {
	if len(expired) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(expired))
	for _, e := range expired {
		parts = append(parts, fmt.Sprintf("%s (%s)", e.Clock.Name, e.Reason))
	}
	return strings.Join(parts, ", ")
}

// fallbackSynthesis stitches the mechanical stubs into a round summary when
// no LLM narration is available.
func fallbackSynthesis(resolutions []types.ActionResolution, filled []string, expired []mech.ExpiredClock) string {
	var b strings.Builder
	b.WriteString("The round settles.")
	for _, r := range resolutions {
		b.WriteString(" ")
		b.WriteString(r.Narrative)
	}
	for _, name := range filled {
		fmt.Fprintf(&b, " The %s clock has filled; its consequence arrives.", name)
	}
	for _, e := range expired {
		switch e.Reason {
		case mech.ExpiryCrisisAverted:
			fmt.Fprintf(&b, " The pressure behind %s fades — crisis averted.", e.Clock.Name)
		case mech.ExpiryEscalate:
			fmt.Fprintf(&b, " The pressure behind %s does not fade; it transforms.", e.Clock.Name)
		}
	}
	return b.String()
}
