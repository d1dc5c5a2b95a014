package registry

import (
	"context"
	"sync"
	"time"

	"llmproxy/metrics"
	"llmproxy/pipeline"
	"llmproxy/types"
)

// PipelineModule adapts a *pipeline.Pipeline to the registry's Module
// interface: identity and lifecycle delegate straight to the pipeline,
// and Execute wraps pipeline.Execute to record the per-module in-process
// counters spec §4.8's getMetrics() contract needs, independent of the
// Prometheus histograms the pipeline itself already updates.
type PipelineModule struct {
	BaseModule
	pipeline *pipeline.Pipeline

	mu       sync.Mutex
	counters metrics.ModuleCounters
}

// NewPipelineModule wraps p for registration. id should match p's own
// pipeline id so registry and pipeline metrics line up under the same key.
func NewPipelineModule(id string, p *pipeline.Pipeline) *PipelineModule {
	return &PipelineModule{
		BaseModule: NewBaseModule(id, id, "pipeline", "1.0.0"),
		pipeline:   p,
	}
}

func (m *PipelineModule) Start() error { return m.pipeline.Start() }
func (m *PipelineModule) Stop() error  { return m.pipeline.Stop() }

func (m *PipelineModule) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters.Reset()
	return nil
}

// Cleanup releases the pipeline the same way Stop does; the pipeline
// itself owns no other per-instance resources to release.
func (m *PipelineModule) Cleanup() error { return m.Stop() }

func (m *PipelineModule) HealthCheck(ctx context.Context) error {
	return m.pipeline.Validate(ctx)
}

func (m *PipelineModule) GetMetrics() metrics.ModuleSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters.Snapshot()
}

// Execute runs req through the wrapped pipeline and records the call's
// duration and outcome into this module's in-process counters.
func (m *PipelineModule) Execute(ctx context.Context, raw types.RawMessage, serializedSize int) (types.ClientResponse, []types.OpenAIStreamChunk, *pipeline.Result, error) {
	start := time.Now()
	resp, chunks, result, err := m.pipeline.Execute(ctx, raw, serializedSize)

	m.mu.Lock()
	m.counters.Record(time.Since(start), err != nil)
	m.mu.Unlock()

	return resp, chunks, result, err
}
