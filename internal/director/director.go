// Package director implements the Director: scenario generation grounded in
// retrieved canon, per-action adjudication that turns mechanical resolutions
// into narration and parsed state changes, and the end-of-round synthesis
// that drives scene progression through control markers.
//
// The Director runs in the coordinator's process and is called synchronously
// by the session orchestrator; its narrations reach the other agents as bus
// broadcasts sent by the orchestrator.
package director

import (
	"context"
	"fmt"
	"strings"

	"github.com/arkavel/voidtable/internal/enemy"
	"github.com/arkavel/voidtable/internal/kb"
	"github.com/arkavel/voidtable/internal/mech"
	"github.com/arkavel/voidtable/internal/outcome"
	"github.com/arkavel/voidtable/internal/promptkit"
	"github.com/arkavel/voidtable/internal/protocol"
	"github.com/arkavel/voidtable/internal/shared"
	"github.com/arkavel/voidtable/pkg/provider/llm"
	"github.com/arkavel/voidtable/pkg/types"
)

// Director adjudicates the session. One instance per session.
type Director struct {
	provider  llm.Provider
	prompts   *promptkit.Registry
	engine    *mech.Engine
	parser    *outcome.Parser
	retriever kb.Retriever
	state     *shared.State
	templates *enemy.TemplateRegistry

	providerName string
	language     string
}

// Option customises a Director.
type Option func(*Director)

// WithProviderName records which LLM provider serves the Director.
func WithProviderName(name string) Option {
	return func(d *Director) { d.providerName = name }
}

// WithLanguage selects the prompt language.
func WithLanguage(lang string) Option {
	return func(d *Director) { d.language = lang }
}

// WithRetriever installs the knowledge-base backend used for scenario canon.
func WithRetriever(r kb.Retriever) Option {
	return func(d *Director) { d.retriever = r }
}

// New builds a Director over the given engine and shared state. provider may
// be nil, in which case every output comes from the deterministic fallbacks.
func New(provider llm.Provider, prompts *promptkit.Registry, engine *mech.Engine, state *shared.State, templates *enemy.TemplateRegistry, opts ...Option) *Director {
	d := &Director{
		provider:  provider,
		prompts:   prompts,
		engine:    engine,
		parser:    outcome.New(),
		state:     state,
		templates: templates,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.retriever == nil {
		d.retriever = kb.NewStatic(nil)
	}
	return d
}

// complete is the one funnel for Director LLM calls.
func (d *Director) complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	if d.provider == nil {
		return "", fmt.Errorf("director: no llm provider")
	}
	resp, err := d.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("director: completion: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("director: empty completion")
	}
	return resp.Content, nil
}

// render addresses the Director's own prompt registry slot.
func (d *Director) render(section string, data map[string]any) (string, types.PromptMeta, error) {
	return d.prompts.Render(promptkit.Key{
		AgentType: "dm",
		Provider:  d.providerName,
		Language:  d.language,
		Section:   section,
	}, data)
}

// clockLines renders the live clocks for prompt context.
func (d *Director) clockLines() string {
	clocks := d.engine.Clocks()
	if len(clocks) == 0 {
		return "No active clocks."
	}
	var b strings.Builder
	b.WriteString("Clocks:")
	for _, c := range clocks {
		fmt.Fprintf(&b, "\n- %s [%d/%d] %s", c.Name, c.Current, c.Max, c.Description)
	}
	return b.String()
}

func formatCombatContext(cc *protocol.CombatContext) string {
	if cc == nil || len(cc.Combatants) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Combatants:")
	for _, c := range cc.Combatants {
		status := "up"
		if !c.Alive {
			status = "down"
		}
		ref := c.Name
		if c.CombatID != "" {
			ref = fmt.Sprintf("%s (%s)", c.Name, c.CombatID)
		}
		fmt.Fprintf(&b, "\n- %s, %s at %s, %s", ref, c.Role, c.Position, status)
	}
	return b.String()
}
