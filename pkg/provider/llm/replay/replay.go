// Package replay wraps an llm.Provider with a completion transcript cache.
//
// Sessions are expensive to iterate on when every round costs live LLM calls.
// A replay provider records each agent's completions keyed by
// (agent id, call sequence) and can later serve a whole session from the
// transcript — deterministically, offline, and for free. Hybrid mode replays
// what it has and records what it lacks, so an extended scenario only pays
// for the new calls.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/arkavel/voidtable/pkg/provider/llm"
	"github.com/arkavel/voidtable/pkg/types"
)

// Mode selects how the provider treats its transcript.
type Mode string

const (
	// ModeRecord calls the inner provider and appends every completion to the
	// transcript.
	ModeRecord Mode = "record"

	// ModeReplay serves exclusively from the transcript; a miss is an error.
	ModeReplay Mode = "replay"

	// ModeHybrid serves from the transcript when possible and falls through
	// to the inner provider (recording the result) on a miss.
	ModeHybrid Mode = "hybrid"
)

// entry is one line of the transcript file.
type entry struct {
	AgentID  string           `json:"agent_id"`
	Sequence int              `json:"sequence"`
	Content  string           `json:"content"`
	Tools    []types.ToolCall `json:"tool_calls,omitempty"`
}

// Provider is the caching wrapper. One Provider serves every agent; each
// agent's calls are sequenced independently.
type Provider struct {
	inner llm.Provider
	mode  Mode
	path  string

	mu      sync.Mutex
	cache   map[string]entry // "agent/seq" → entry
	cursors map[string]int
	file    *os.File
}

// New opens (or creates) the transcript at path. inner may be nil only in
// ModeReplay.
func New(inner llm.Provider, mode Mode, path string) (*Provider, error) {
	if mode != ModeReplay && inner == nil {
		return nil, fmt.Errorf("replay: mode %q requires an inner provider", mode)
	}
	p := &Provider{
		inner:   inner,
		mode:    mode,
		path:    path,
		cache:   make(map[string]entry),
		cursors: make(map[string]int),
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	if mode != ModeReplay {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("replay: open transcript %q: %w", path, err)
		}
		p.file = f
	}
	return p, nil
}

func (p *Provider) load() error {
	f, err := os.Open(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("replay: open transcript %q: %w", p.path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e entry
		if jerr := json.Unmarshal(sc.Bytes(), &e); jerr != nil {
			return fmt.Errorf("replay: corrupt transcript line: %w", jerr)
		}
		p.cache[key(e.AgentID, e.Sequence)] = e
	}
	return sc.Err()
}

func key(agentID string, seq int) string {
	return fmt.Sprintf("%s/%d", agentID, seq)
}

// ForAgent returns an llm.Provider view bound to one agent id. Agents share
// the transcript but advance independent sequence counters.
func (p *Provider) ForAgent(agentID string) llm.Provider {
	return &agentView{parent: p, agentID: agentID}
}

// Close flushes and closes the transcript file.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

func (p *Provider) complete(ctx context.Context, agentID string, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	seq := p.cursors[agentID]
	p.cursors[agentID] = seq + 1
	cached, hit := p.cache[key(agentID, seq)]
	p.mu.Unlock()

	if hit && p.mode != ModeRecord {
		return &llm.CompletionResponse{Content: cached.Content, ToolCalls: cached.Tools}, nil
	}
	if p.mode == ModeReplay {
		return nil, fmt.Errorf("replay: no transcript entry for %s call %d", agentID, seq)
	}

	resp, err := p.inner.Complete(ctx, req)
	if err != nil {
		// The call never happened; give the sequence number back.
		p.mu.Lock()
		p.cursors[agentID] = seq
		p.mu.Unlock()
		return nil, err
	}
	p.record(entry{AgentID: agentID, Sequence: seq, Content: resp.Content, Tools: resp.ToolCalls})
	return resp, nil
}

func (p *Provider) record(e entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[key(e.AgentID, e.Sequence)] = e
	if p.file == nil {
		return
	}
	line, err := json.Marshal(e)
	if err != nil {
		return
	}
	p.file.Write(append(line, '\n'))
}

// agentView binds the shared transcript to one agent's sequence counter.
type agentView struct {
	parent  *Provider
	agentID string
}

// Complete implements llm.Provider.
func (v *agentView) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return v.parent.complete(ctx, v.agentID, req)
}

// StreamCompletion implements llm.Provider by emitting the cached (or
// recorded) completion as a single chunk.
func (v *agentView) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	resp, err := v.parent.complete(ctx, v.agentID, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk, 2)
	ch <- llm.Chunk{Text: resp.Content, ToolCalls: resp.ToolCalls}
	ch <- llm.Chunk{FinishReason: "stop"}
	close(ch)
	return ch, nil
}

// CountTokens delegates to the inner provider when present, else uses a
// four-characters-per-token approximation.
func (v *agentView) CountTokens(messages []types.Message) (int, error) {
	if v.parent.inner != nil {
		return v.parent.inner.CountTokens(messages)
	}
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total, nil
}

// Capabilities delegates to the inner provider when present.
func (v *agentView) Capabilities() types.ModelCapabilities {
	if v.parent.inner != nil {
		return v.parent.inner.Capabilities()
	}
	return types.ModelCapabilities{}
}

var _ llm.Provider = (*agentView)(nil)
