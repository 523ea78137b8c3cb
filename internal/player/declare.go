package player

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/arkavel/voidtable/internal/promptkit"
	"github.com/arkavel/voidtable/internal/protocol"
	"github.com/arkavel/voidtable/internal/route"
	"github.com/arkavel/voidtable/pkg/provider/llm"
	"github.com/arkavel/voidtable/pkg/types"
)

// declResponse is the JSON shape the declaration prompt asks the model for.
type declResponse struct {
	Intent        string `json:"intent"`
	Description   string `json:"description"`
	ActionType    string `json:"action_type"`
	Attribute     string `json:"attribute"`
	Skill         string `json:"skill"`
	Difficulty    int    `json:"difficulty"`
	Justification string `json:"justification"`
	Target        string `json:"target"`
}

// declareAction produces one validated declaration. The LLM gets one retry on
// a validation failure; after that the personality-template fallback fires so
// the round never stalls on a stubborn model.
func (a *Agent) declareAction(ctx context.Context, req protocol.TurnRequestPayload, mainAfterFree bool) types.ActionDeclaration {
	if decl, ok := a.controllerDeclare(ctx, req, mainAfterFree); ok {
		return decl
	}

	section := "declaration"
	if mainAfterFree {
		section = "main_after_free"
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		decl, err := a.llmDeclare(ctx, req, section, lastErr)
		if err != nil {
			lastErr = err
			continue
		}
		if mainAfterFree && decl.IsFreeAction {
			lastErr = fmt.Errorf("player: main action may not be dialogue")
			continue
		}
		if err := a.validator.Validate(decl, false); err != nil {
			lastErr = err
			slog.Debug("declaration rejected", "player", a.ID(), "attempt", attempt, "err", err)
			continue
		}
		return decl
	}

	slog.Warn("declaration fell back to template", "player", a.ID(), "err", lastErr)
	return a.fallbackDeclaration(req, mainAfterFree)
}

// controllerDeclare offers the turn to the attached external controller, if
// any. A declined or invalid answer hands the turn back to the LLM path; the
// round must not stall on an absent human.
func (a *Agent) controllerDeclare(ctx context.Context, req protocol.TurnRequestPayload, mainAfterFree bool) (types.ActionDeclaration, bool) {
	if a.controller == nil {
		return types.ActionDeclaration{}, false
	}

	decl, err := a.controller.Declare(ctx, a.sheet, req)
	if err != nil || decl == nil {
		if err != nil {
			slog.Debug("controller declined turn", "player", a.ID(), "err", err)
		}
		return types.ActionDeclaration{}, false
	}

	decl.AgentID = a.ID()
	decl.CharacterName = a.sheet.Name
	if mainAfterFree {
		decl.IsFreeAction = false
	}
	if decl.IsRitual {
		a.fillRitualComponents(decl)
	}
	if err := a.validator.Validate(*decl, false); err != nil {
		slog.Warn("controller declaration rejected", "player", a.ID(), "err", err)
		return types.ActionDeclaration{}, false
	}
	return *decl, true
}

// llmDeclare renders the declaration prompt, calls the model, and lifts the
// JSON reply into a routed declaration.
func (a *Agent) llmDeclare(ctx context.Context, req protocol.TurnRequestPayload, section string, prevErr error) (types.ActionDeclaration, error) {
	if a.provider == nil {
		return types.ActionDeclaration{}, fmt.Errorf("player: no llm provider")
	}

	prompt, meta, err := a.prompts.Render(promptkit.Key{
		AgentType: "player",
		Provider:  a.providerName,
		Language:  a.language,
		Section:   section,
	}, a.promptData(req))
	if err != nil {
		return types.ActionDeclaration{}, err
	}
	if prevErr != nil {
		prompt += "\n\nYour previous declaration was rejected: " + prevErr.Error() +
			"\nDeclare again, fixing that problem."
	}

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: 0.8,
		MaxTokens:   400,
	})
	if err != nil {
		return types.ActionDeclaration{}, fmt.Errorf("player: declaration call: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return types.ActionDeclaration{}, fmt.Errorf("player: empty declaration response")
	}

	var parsed declResponse
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		return types.ActionDeclaration{}, fmt.Errorf("player: unparseable declaration: %w", err)
	}
	if strings.TrimSpace(parsed.Intent) == "" {
		return types.ActionDeclaration{}, fmt.Errorf("player: declaration without intent")
	}

	decl := a.buildDeclaration(parsed)
	decl.Prompt = meta
	return decl, nil
}

// buildDeclaration normalises the model's raw reply through the action
// router and fills the mechanical flags a declaration carries.
func (a *Agent) buildDeclaration(raw declResponse) types.ActionDeclaration {
	actionType := types.ActionType(strings.ToLower(strings.TrimSpace(raw.ActionType)))
	if !actionType.IsValid() {
		actionType = types.ActionCustom
	}
	isRitual := actionType == types.ActionRitual ||
		strings.Contains(strings.ToLower(raw.Intent), "ritual")

	decision := route.Route(raw.Intent, actionType, a.sheet.Skills, isRitual, raw.Skill, a.otherPlayerNames())

	difficulty := raw.Difficulty
	if difficulty < 5 {
		difficulty = 18
	}
	if difficulty > 50 {
		difficulty = 50
	}

	decl := types.ActionDeclaration{
		Intent:              strings.TrimSpace(raw.Intent),
		Description:         strings.TrimSpace(raw.Description),
		Attribute:           decision.Attribute,
		Skill:               decision.Skill,
		EstimatedDifficulty: difficulty,
		Justification:       strings.TrimSpace(raw.Justification),
		CharacterName:       a.sheet.Name,
		AgentID:             a.ID(),
		Type:                actionType,
		Target:              strings.TrimSpace(raw.Target),
		IsRitual:            isRitual,
		IsFreeAction:        decision.IsFreeAction,
		Timestamp:           time.Now().UTC(),
	}
	if decl.Justification == "" {
		decl.Justification = decision.Rationale
	}
	if decl.Description == "" {
		decl.Description = decl.Intent + ", played straight."
	}
	if decision.DialogueTarget != "" && decl.Target == "" {
		decl.Target = decision.DialogueTarget
	}
	if isRitual {
		a.fillRitualComponents(&decl)
	}
	return decl
}

// fillRitualComponents checks the inventory for a focus tool and an offering.
func (a *Agent) fillRitualComponents(decl *types.ActionDeclaration) {
	if a.sheet.Inventory["ritual_focus"] > 0 {
		decl.HasPrimaryTool = true
		decl.Components = append(decl.Components, "ritual_focus")
	}
	if a.sheet.Inventory["offering"] > 0 || len(a.sheet.Energy.Seeds) > 0 {
		decl.HasOffering = true
		decl.Components = append(decl.Components, "offering")
	}
}

// fallbackDeclaration is the deterministic template action used when the LLM
// is unavailable or twice non-compliant. The personality profile steers the
// choice so fallback parties do not all act identically.
func (a *Agent) fallbackDeclaration(req protocol.TurnRequestPayload, mainAfterFree bool) types.ActionDeclaration {
	p := a.sheet.Personality

	var intent, skill string
	var attr types.Attribute
	actionType := types.ActionInvestigate

	switch {
	case req.CombatContext != nil && len(req.CombatContext.Combatants) > 0 && a.hasLivingEnemy(req.CombatContext):
		intent = "I attack the nearest enemy"
		attr, skill = types.Agility, pickSkill(a.sheet.Skills, "Melee")
		actionType = types.ActionCombat
	case p.VoidCuriosity >= 0.6:
		intent = "I attune to the currents running through this place"
		attr, skill = types.Perception, pickSkill(a.sheet.Skills, "Attunement")
		actionType = types.ActionPerception
	case p.RiskTolerance <= 0.3:
		intent = "I hold position and watch the exits"
		attr, skill = types.Perception, pickSkill(a.sheet.Skills, "Awareness")
		actionType = types.ActionPerception
	default:
		intent = "I search the area for anything the scene is hiding"
		attr, skill = types.Perception, pickSkill(a.sheet.Skills, "Awareness")
	}

	if mainAfterFree && actionType == types.ActionSocial {
		intent = "I search the area for anything the scene is hiding"
		attr, skill = types.Perception, pickSkill(a.sheet.Skills, "Awareness")
		actionType = types.ActionInvestigate
	}

	return types.ActionDeclaration{
		Intent:              intent,
		Description:         intent + ", carefully.",
		Attribute:           attr,
		Skill:               skill,
		EstimatedDifficulty: 18,
		Justification:       "template fallback",
		CharacterName:       a.sheet.Name,
		AgentID:             a.ID(),
		Type:                actionType,
		Timestamp:           time.Now().UTC(),
	}
}

func (a *Agent) hasLivingEnemy(cc *protocol.CombatContext) bool {
	for _, c := range cc.Combatants {
		if c.Role == protocol.RoleEnemy && c.Alive {
			return true
		}
	}
	return false
}

func pickSkill(skills map[string]int, skill string) string {
	if _, ok := skills[skill]; ok {
		return skill
	}
	return ""
}

// ─────────────────────────────────────────────────────────────────────────────
// Prompt data
// ─────────────────────────────────────────────────────────────────────────────

// promptData assembles the substitution map for declaration prompts.
func (a *Agent) promptData(req protocol.TurnRequestPayload) map[string]any {
	return map[string]any{
		"character": map[string]any{
			"name":       a.sheet.Name,
			"archetype":  a.archetype(),
			"faction":    a.sheet.Faction,
			"attributes": formatAttributes(a.sheet.Attributes),
			"skills":     formatSkills(a.sheet.Skills),
			"health":     a.sheet.Health,
			"max_health": a.sheet.MaxHealth,
			"void":       a.sheet.Void,
			"soulcredit": a.sheet.Soulcredit,
			"inventory":  formatInventory(a.sheet),
			"goals":      a.sheet.Goals,
		},
		"scene": map[string]any{
			"location":  req.Scenario.Location,
			"situation": req.Scenario.Situation,
			"clocks":    formatClocks(req.Clocks),
			"vendor":    formatVendor(req.Scenario),
		},
		"party": map[string]any{
			"roster":      strings.Join(a.state.PlayerNames(), ", "),
			"discoveries": strings.Join(a.state.Discoveries(), "; "),
		},
		"history": map[string]any{
			"recent_intents": strings.Join(a.recentIntents, "; "),
		},
		"combat": map[string]any{
			"context": formatCombat(req.CombatContext),
		},
	}
}

// archetype derives a one-word self-description from the two best skills.
func (a *Agent) archetype() string {
	best := topSkills(a.sheet.Skills, 1)
	if len(best) == 0 {
		return "drifter"
	}
	switch best[0] {
	case "Astral Arts", "Dreamwork":
		return "ritualist"
	case "Systems", "Engineering":
		return "rigger"
	case "Melee", "Ranged":
		return "enforcer"
	case "Charm", "Guile", "Command":
		return "face"
	case "Medicine", "Counsel":
		return "mender"
	default:
		return "specialist"
	}
}

func (a *Agent) otherPlayerNames() []string {
	var out []string
	for _, p := range a.state.Players() {
		if p.AgentID != a.ID() {
			out = append(out, p.Name)
		}
	}
	return out
}

func formatAttributes(attrs map[types.Attribute]int) string {
	parts := make([]string, 0, len(types.Attributes))
	for _, attr := range types.Attributes {
		parts = append(parts, fmt.Sprintf("%s %d", attr, attrs[attr]))
	}
	return strings.Join(parts, ", ")
}

// formatSkills renders skills in descending tiers so the model leads with
// what the character is actually good at.
func formatSkills(skills map[string]int) string {
	names := topSkills(skills, len(skills))
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s %d", n, skills[n]))
	}
	if len(parts) == 0 {
		return "(unskilled)"
	}
	return strings.Join(parts, ", ")
}

func topSkills(skills map[string]int, n int) []string {
	names := make([]string, 0, len(skills))
	for name := range skills {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if skills[names[i]] != skills[names[j]] {
			return skills[names[i]] > skills[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func formatInventory(sheet *types.CharacterSheet) string {
	var parts []string
	for item, count := range sheet.Inventory {
		parts = append(parts, fmt.Sprintf("%s x%d", item, count))
	}
	sort.Strings(parts)
	e := sheet.Energy
	parts = append(parts, fmt.Sprintf("breath %d, drip %d, grain %d, spark %d, seeds %d",
		e.Breath, e.Drip, e.Grain, e.Spark, len(e.Seeds)))
	return strings.Join(parts, "; ")
}

func formatClocks(clocks []protocol.ClockState) string {
	if len(clocks) == 0 {
		return "No active clocks."
	}
	var b strings.Builder
	b.WriteString("Active clocks:")
	for _, c := range clocks {
		fmt.Fprintf(&b, "\n- %s [%d/%d]", c.Name, c.Current, c.Max)
		if c.AdvanceMeans != "" {
			fmt.Fprintf(&b, " (advance: %s)", c.AdvanceMeans)
		}
	}
	return b.String()
}

func formatVendor(sc protocol.ScenarioPayload) string {
	if sc.ActiveVendor == "" {
		return ""
	}
	out := sc.ActiveVendor + " is trading here."
	if sc.RequiredPurchase != "" {
		item := strings.ReplaceAll(sc.RequiredPurchase, "_", " ")
		out += " Someone must buy a " + item + " before the party can move on."
	}
	return out
}

func formatCombat(cc *protocol.CombatContext) string {
	if cc == nil || len(cc.Combatants) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n## Combat\n")
	for _, c := range cc.Combatants {
		status := "up"
		if !c.Alive {
			status = "down"
		}
		ref := c.Name
		if cc.FreeTargeting && c.CombatID != "" {
			ref = fmt.Sprintf("%s (%s)", c.Name, c.CombatID)
		}
		fmt.Fprintf(&b, "- %s, %s at %s, %s\n", ref, c.Role, c.Position, status)
	}
	if cc.FreeTargeting {
		b.WriteString("Target by combat id where one is shown.")
	}
	return b.String()
}

// extractJSON trims everything outside the outermost braces.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
