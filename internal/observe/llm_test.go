package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/arkavel/voidtable/pkg/provider/llm"
	llmmock "github.com/arkavel/voidtable/pkg/provider/llm/mock"
)

func TestWrapProvider_NilStaysNil(t *testing.T) {
	m, _ := newTestMetrics(t)
	if got := WrapProvider(nil, m, "openai", "dm"); got != nil {
		t.Errorf("WrapProvider(nil) = %v, want nil", got)
	}
}

func TestWrapProvider_RecordsSuccess(t *testing.T) {
	m, reader := newTestMetrics(t)
	inner := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}

	p := WrapProvider(inner, m, "openai", "player-1")
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q, want %q", resp.Content, "ok")
	}

	rm := collect(t, reader)
	met := findMetric(rm, "voidtable.llm.requests")
	if met == nil {
		t.Fatal("request counter not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 1 {
		t.Error("request counter did not record the call")
	}

	dur := findMetric(rm, "voidtable.llm.duration")
	if dur == nil {
		t.Fatal("duration histogram not found")
	}
	hist := dur.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
		t.Error("duration histogram did not record the call")
	}
}

func TestWrapProvider_RecordsError(t *testing.T) {
	m, reader := newTestMetrics(t)
	inner := &llmmock.Provider{CompleteErr: errors.New("backend down")}

	p := WrapProvider(inner, m, "openai", "dm")
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error from inner provider")
	}

	rm := collect(t, reader)
	met := findMetric(rm, "voidtable.llm.errors")
	if met == nil {
		t.Fatal("error counter not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 1 {
		t.Error("error counter did not record the failure")
	}
}
