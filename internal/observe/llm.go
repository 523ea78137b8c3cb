package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arkavel/voidtable/pkg/provider/llm"
	"github.com/arkavel/voidtable/pkg/types"
)

// InstrumentedProvider wraps an [llm.Provider] and records request counts,
// latency, and errors for every call. The agent label distinguishes Director
// traffic from individual players.
type InstrumentedProvider struct {
	inner    llm.Provider
	metrics  *Metrics
	provider string
	agent    string
}

// WrapProvider instruments inner with the given metrics. A nil inner returns
// nil so fallback-only setups stay fallback-only.
func WrapProvider(inner llm.Provider, m *Metrics, providerName, agent string) llm.Provider {
	if inner == nil {
		return nil
	}
	return &InstrumentedProvider{
		inner:    inner,
		metrics:  m,
		provider: providerName,
		agent:    agent,
	}
}

// Complete implements llm.Provider.
func (p *InstrumentedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := StartSpan(ctx, "llm.complete")
	defer span.End()

	start := time.Now()
	resp, err := p.inner.Complete(ctx, req)
	p.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("provider", p.provider),
			attribute.String("agent", p.agent),
		),
	)
	if err != nil {
		p.metrics.RecordLLMRequest(ctx, p.provider, p.agent, "error")
		p.metrics.RecordLLMError(ctx, p.provider, p.agent)
		return nil, err
	}
	p.metrics.RecordLLMRequest(ctx, p.provider, p.agent, "ok")
	return resp, nil
}

// StreamCompletion implements llm.Provider. Duration covers stream setup only;
// chunk-level timing is left to the caller.
func (p *InstrumentedProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch, err := p.inner.StreamCompletion(ctx, req)
	if err != nil {
		p.metrics.RecordLLMRequest(ctx, p.provider, p.agent, "error")
		p.metrics.RecordLLMError(ctx, p.provider, p.agent)
		return nil, err
	}
	p.metrics.RecordLLMRequest(ctx, p.provider, p.agent, "ok")
	return ch, nil
}

// CountTokens implements llm.Provider.
func (p *InstrumentedProvider) CountTokens(messages []types.Message) (int, error) {
	return p.inner.CountTokens(messages)
}

// Capabilities implements llm.Provider.
func (p *InstrumentedProvider) Capabilities() types.ModelCapabilities {
	return p.inner.Capabilities()
}
