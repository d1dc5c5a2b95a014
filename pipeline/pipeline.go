// Package pipeline assembles the sealed, ordered module chain (spec §4.5):
// Validator → dialect codec (C1) → protocol controller (C2) → server-compat
// adapter (C3) → upstream client (C4). Generalizes the teacher's single
// hardcoded HandleAnthropicRequest call sequence (proxy/handler.go) into a
// reusable, inspectable object: membership and order are fixed at
// construction, execution is forward-then-reverse with per-stage timing,
// and any stage failure halts the run immediately.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"llmproxy/adapter"
	"llmproxy/apierror"
	"llmproxy/config"
	"llmproxy/dialect"
	"llmproxy/metrics"
	"llmproxy/protocol"
	"llmproxy/types"
	"llmproxy/upstreamclient"
)

// ModuleID names one stage of the fixed module chain.
type ModuleID string

const (
	ModuleValidator ModuleID = "validator"
	ModuleDialect   ModuleID = "dialect"
	ModuleProtocol  ModuleID = "protocol"
	ModuleAdapter   ModuleID = "adapter"
	ModuleUpstream  ModuleID = "upstream"
)

// ModuleOrder is the fixed, declared sequence modules run in on the
// forward pass; the reverse pass of Execute revisits the adapter,
// protocol, and dialect stages in the opposite order.
var ModuleOrder = []ModuleID{ModuleValidator, ModuleDialect, ModuleProtocol, ModuleAdapter, ModuleUpstream}

// ModuleResult records one stage's cumulative elapsed time (forward plus
// reverse direction) and the error it raised, if any.
type ModuleResult struct {
	Module  ModuleID
	Elapsed time.Duration
	Err     error
}

// Result is the outcome of one Execute call.
type Result struct {
	Success bool
	Elapsed time.Duration
	Modules map[ModuleID]ModuleResult
	Context *Context
}

// EventSink receives the pipeline's lifecycle and execution events
// (pipelineStarted, pipelineExecutionCompleted, pipelineExecutionFailed,
// moduleError — spec §4.5's observability bus). Satisfied structurally by
// *registry.Registry without either package importing the other.
type EventSink interface {
	EmitEvent(eventType string, moduleID string, fields map[string]interface{})
}

// Pipeline is the sealed module chain bound to one routing decision. Its
// module set and order are fixed by New; AddModule, RemoveModule, and
// SetModuleOrder exist only to fail with pipeline_sealed; this is a
// correctness property (the four-stage contract depends on it), not a
// preference, per spec.md §9.
type Pipeline struct {
	id       string
	decision adapter.RoutingDecision
	adapt    adapter.Adapter
	upstream *upstreamclient.Client
	nextKey  func() string
	policy   config.ProtocolPolicy
	convLog  *ConversationLogger
	events   EventSink

	resolveToolDescription func(name, original string) string
	skipTools              []string
	transformSystemMessage func(string) string

	mu      sync.Mutex
	running bool
}

// New assembles a sealed pipeline for one routing decision. convLog and
// events may both be nil — both hooks are gated off by default.
func New(id string, decision adapter.RoutingDecision, upstream *upstreamclient.Client, nextKey func() string, policy config.ProtocolPolicy, convLog *ConversationLogger, events EventSink) *Pipeline {
	return &Pipeline{
		id:       id,
		decision: decision,
		adapt:    adapter.For(decision.Provider.Compat),
		upstream: upstream,
		nextKey:  nextKey,
		policy:   policy,
		convLog:  convLog,
		events:   events,
	}
}

func (p *Pipeline) emit(eventType string, fields map[string]interface{}) {
	if p.events != nil {
		p.events.EmitEvent(eventType, p.id, fields)
	}
}

// WithToolPolicy sets the tool-description override resolver and the list
// of tool names to drop unconditionally, both threaded into the dialect
// codec's request translation.
func (p *Pipeline) WithToolPolicy(resolveDescription func(name, original string) string, skipTools []string) *Pipeline {
	p.resolveToolDescription = resolveDescription
	p.skipTools = skipTools
	return p
}

// WithSystemMessagePolicy sets the transform applied to the client's system
// message before it crosses into the OpenAI-family request, threaded into
// the dialect codec's request translation.
func (p *Pipeline) WithSystemMessagePolicy(transform func(string) string) *Pipeline {
	p.transformSystemMessage = transform
	return p
}

// AddModule always fails: the module chain is sealed after construction.
func (p *Pipeline) AddModule(ModuleID) error {
	return apierror.New(apierror.TypePipelineSealed, "pipeline module set is sealed after construction")
}

// RemoveModule always fails: the module chain is sealed after construction.
func (p *Pipeline) RemoveModule(ModuleID) error {
	return apierror.New(apierror.TypePipelineSealed, "pipeline module set is sealed after construction")
}

// SetModuleOrder always fails: the module chain is sealed after construction.
func (p *Pipeline) SetModuleOrder([]ModuleID) error {
	return apierror.New(apierror.TypePipelineSealed, "pipeline module order is sealed after construction")
}

// Start marks the pipeline ready to accept Execute calls.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	p.emit("pipelineStarted", nil)
	return nil
}

// Stop marks the pipeline as no longer accepting Execute calls. The codec,
// protocol, and adapter stages are stateless pure functions with nothing
// of their own to start or stop; Stop exists to satisfy the uniform
// lifecycle surface (spec §4.8) and make Execute reject calls made after
// shutdown deterministically.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.emit("moduleStatusChanged", map[string]interface{}{"status": "stopped"})
	return nil
}

// Validate succeeds iff the pipeline is running and the upstream
// provider's credential probe succeeds.
func (p *Pipeline) Validate(ctx context.Context) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return apierror.New(apierror.TypeModuleNotRunning, "pipeline is not running")
	}
	return p.upstream.Probe(ctx, p.decision.Provider, p.decision.Provider.BaseURL)
}

// Execute threads raw through the sealed module chain per spec.md §4.5.
// Forward: Validator structurally checks the decoded request, the dialect
// codec (C1) translates client dialect into the OpenAI family, the
// protocol controller (C2) forces the outbound request to non-stream
// (remembering whether the client itself asked for a stream), the
// server-compat adapter (C3) applies provider policy and marshals the
// wire body, and the upstream client (C4) dispatches it. Reverse: C3
// decodes and repairs the raw reply, C2 re-expands it into a stream
// sequence if the client asked for one, C1 translates back to client
// dialect. Any stage failure halts execution immediately (failFast) with
// no partial reply emitted.
//
// streamChunks is non-nil only when the original client request asked
// for a stream and stream conversion is enabled by policy.
func (p *Pipeline) Execute(ctx context.Context, raw types.RawMessage, serializedSize int) (types.ClientResponse, []types.OpenAIStreamChunk, *Result, error) {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		err := apierror.New(apierror.TypeModuleNotRunning, "pipeline is not running")
		return types.ClientResponse{}, nil, nil, err
	}

	start := time.Now()
	pctx := NewContext(p.decision.PipelineID)
	result := &Result{Modules: make(map[ModuleID]ModuleResult), Context: pctx}

	run := func(id ModuleID, fn func() error) error {
		stageStart := time.Now()
		err := fn()
		elapsed := time.Since(stageStart)

		mr := result.Modules[id]
		mr.Module = id
		mr.Elapsed += elapsed
		if err != nil {
			mr.Err = err
		}
		result.Modules[id] = mr

		metrics.ModuleDurationSeconds.WithLabelValues(string(id)).Observe(elapsed.Seconds())
		return err
	}

	fail := func(id ModuleID, err error) (types.ClientResponse, []types.OpenAIStreamChunk, *Result, error) {
		pctx.AddError(id, err)
		result.Elapsed = time.Since(start)
		result.Success = false
		metrics.RequestsTotal.WithLabelValues(p.id, "error").Inc()
		metrics.RequestDurationSeconds.WithLabelValues(p.id).Observe(result.Elapsed.Seconds())
		if p.convLog != nil {
			p.convLog.LogFailure(pctx.RequestID, p.id, id, err)
		}
		p.emit("moduleError", map[string]interface{}{"module": string(id), "error": err.Error()})
		p.emit("pipelineExecutionFailed", map[string]interface{}{
			"executionId": pctx.RequestID,
			"durationMs":  result.Elapsed.Milliseconds(),
			"error":       err.Error(),
		})
		return types.ClientResponse{}, nil, result, err
	}

	var clientReq types.ClientRequest
	if err := run(ModuleValidator, func() error {
		if p.policy.ValidationEnabled {
			if err := protocol.Validate(raw, false, serializedSize, p.policy.MaxRequestSize); err != nil {
				return err
			}
		}
		return decodeClientRequest(raw, &clientReq)
	}); err != nil {
		return fail(ModuleValidator, err)
	}

	var openaiReq types.OpenAIRequest
	if err := run(ModuleDialect, func() error {
		var err error
		openaiReq, err = dialect.RequestClientToOpenAI(clientReq, p.decision.Model, dialect.RequestOptions{
			Recorder:               pctx,
			ResolveToolDescription: p.resolveToolDescription,
			SkipTools:              p.skipTools,
			TransformSystemMessage: p.transformSystemMessage,
		})
		return err
	}); err != nil {
		return fail(ModuleDialect, err)
	}

	clientWantsStream := clientReq.Stream
	var nonStreamReq types.OpenAIRequest
	if err := run(ModuleProtocol, func() error {
		nonStreamReq = protocol.StreamRequestToNonStream(openaiReq)
		return nil
	}); err != nil {
		return fail(ModuleProtocol, err)
	}

	var wireBody []byte
	if err := run(ModuleAdapter, func() error {
		processed, err := p.adapt.ProcessRequest(nonStreamReq, p.decision, adapter.Options{Recorder: pctx, Metadata: pctx})
		if err != nil {
			return err
		}
		wireBody, err = p.adapt.MarshalRequest(processed, p.decision)
		return err
	}); err != nil {
		return fail(ModuleAdapter, err)
	}

	var upstreamResult *upstreamclient.Result
	if err := run(ModuleUpstream, func() error {
		res, sendErr := p.upstream.Send(ctx, p.decision.Provider, p.decision.Provider.BaseURL, wireBody, p.nextKey, false)
		if sendErr != nil {
			if ue, ok := sendErr.(*upstreamclient.UpstreamError); ok {
				return p.adapt.NormalizeError(ue.StatusCode, ue.Body, nil)
			}
			if ae, ok := apierror.As(sendErr); ok {
				return ae
			}
			return p.adapt.NormalizeError(0, nil, sendErr)
		}
		upstreamResult = res
		return nil
	}); err != nil {
		return fail(ModuleUpstream, err)
	}

	var openaiResp types.OpenAIResponse
	if err := run(ModuleAdapter, func() error {
		var err error
		openaiResp, err = p.adapt.ProcessResponse(upstreamResult.Body, p.decision, adapter.Options{Recorder: pctx, Metadata: pctx})
		return err
	}); err != nil {
		return fail(ModuleAdapter, err)
	}

	var streamChunks []types.OpenAIStreamChunk
	if err := run(ModuleProtocol, func() error {
		if clientWantsStream && p.policy.StreamConversionEnabled {
			streamChunks = protocol.NonStreamResponseToStream(openaiResp)
		}
		return nil
	}); err != nil {
		return fail(ModuleProtocol, err)
	}

	var clientResp types.ClientResponse
	if err := run(ModuleDialect, func() error {
		var err error
		clientResp, err = dialect.ResponseOpenAIToClient(openaiResp, p.decision.Model, pctx)
		return err
	}); err != nil {
		return fail(ModuleDialect, err)
	}

	result.Elapsed = time.Since(start)
	result.Success = true
	metrics.RequestsTotal.WithLabelValues(p.id, "success").Inc()
	metrics.RequestDurationSeconds.WithLabelValues(p.id).Observe(result.Elapsed.Seconds())
	for _, t := range pctx.Transformations() {
		metrics.TransformationsTotal.WithLabelValues(t.Kind).Inc()
	}

	if p.convLog != nil {
		p.convLog.LogSuccess(pctx.RequestID, p.id, clientReq, clientResp, pctx.Transformations())
	}
	p.emit("pipelineExecutionCompleted", map[string]interface{}{
		"executionId": pctx.RequestID,
		"durationMs":  result.Elapsed.Milliseconds(),
	})

	return clientResp, streamChunks, result, nil
}

// decodeClientRequest re-encodes a structurally-detected RawMessage and
// decodes it into the typed client-dialect request shape. The re-encode
// is wasted work only in the sense that DetectFormat already walked the
// map once; it keeps the codec's input strongly typed without a second
// bespoke map-to-struct reader.
func decodeClientRequest(raw types.RawMessage, out *types.ClientRequest) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return apierror.New(apierror.TypeValidation, "request body could not be re-encoded for decoding").WithCause(err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return apierror.New(apierror.TypeValidation, "request body does not match the client dialect shape").WithCause(err)
	}
	return nil
}
