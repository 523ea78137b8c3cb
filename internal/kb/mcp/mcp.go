// Package mcp implements kb.Retriever over a Model Context Protocol lore
// server. The server exposes a search tool (default "search_lore") taking
// {"query": ..., "limit": ...} and returning either a JSON array of results
// or plain text.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/arkavel/voidtable/internal/kb"
)

// Config describes how to reach the lore server.
type Config struct {
	// Command spawns a stdio server ("path/to/server --flag"). Mutually
	// exclusive with URL.
	Command string

	// URL is a streamable-HTTP endpoint.
	URL string

	// Tool is the search tool name; defaults to "search_lore".
	Tool string
}

// Retriever is a connected MCP lore client.
type Retriever struct {
	session *mcpsdk.ClientSession
	tool    string
}

// Connect establishes the session and verifies the search tool exists.
func Connect(ctx context.Context, cfg Config) (*Retriever, error) {
	tool := cfg.Tool
	if tool == "" {
		tool = "search_lore"
	}

	var transport mcpsdk.Transport
	switch {
	case cfg.Command != "":
		parts := strings.Fields(cfg.Command)
		transport = &mcpsdk.CommandTransport{Command: exec.CommandContext(ctx, parts[0], parts[1:]...)}
	case cfg.URL != "":
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return nil, fmt.Errorf("kb mcp: config needs a Command or a URL")
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "voidtable-kb", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("kb mcp: connect: %w", err)
	}

	found := false
	for t, err := range session.Tools(ctx, nil) {
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("kb mcp: list tools: %w", err)
		}
		if t.Name == tool {
			found = true
		}
	}
	if !found {
		session.Close()
		return nil, fmt.Errorf("kb mcp: server exposes no %q tool", tool)
	}

	return &Retriever{session: session, tool: tool}, nil
}

// wireResult is the JSON shape a structured lore server returns per hit.
type wireResult struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Query implements [kb.Retriever].
func (r *Retriever) Query(ctx context.Context, query string, limit int) ([]kb.Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	res, err := r.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      r.tool,
		Arguments: map[string]any{"query": query, "limit": limit},
	})
	if err != nil {
		return nil, fmt.Errorf("kb mcp: call %q: %w", r.tool, err)
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if res.IsError {
		return nil, fmt.Errorf("kb mcp: tool error: %s", text)
	}
	if text == "" {
		return nil, nil
	}

	// Structured servers return a JSON array; anything else is one blob.
	var wire []wireResult
	if err := json.Unmarshal([]byte(text), &wire); err == nil {
		out := make([]kb.Result, 0, len(wire))
		for _, w := range wire {
			out = append(out, kb.Result{Source: "mcp", Title: w.Title, Content: w.Content, Score: w.Score})
		}
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}
	return []kb.Result{{Source: "mcp", Content: text, Score: 1}}, nil
}

// Close shuts the session down.
func (r *Retriever) Close() error {
	return r.session.Close()
}

var _ kb.Retriever = (*Retriever)(nil)
