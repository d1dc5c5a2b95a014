package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"llmproxy/adapter"
	"llmproxy/apierror"
	"llmproxy/config"
	"llmproxy/logger"
	"llmproxy/pipeline"
	"llmproxy/registry"
	"llmproxy/router"
	"llmproxy/sessionflow"
	"llmproxy/types"
	"llmproxy/upstreamclient"
)

// server wires the router, session-flow controller, and module registry
// into the HTTP front-end the teacher's handler.go plays the same role
// for, generalized from one hardcoded Anthropic-to-OpenAI call into a
// routed, pipeline-per-decision dispatch.
type server struct {
	cfg      *config.Config
	router   *router.Router
	flow     *sessionflow.Controller
	registry *registry.Registry
	upstream *upstreamclient.Client
	obsLog   *logger.ObservabilityLogger
	convLog  *pipeline.ConversationLogger

	mu      sync.Mutex
	modules map[string]*registry.PipelineModule
}

func newServer(cfg *config.Config, rt *router.Router, flow *sessionflow.Controller, reg *registry.Registry, obsLog *logger.ObservabilityLogger, convLog *pipeline.ConversationLogger) *server {
	return &server{
		cfg:      cfg,
		router:   rt,
		flow:     flow,
		registry: reg,
		upstream: upstreamclient.New(cfg.HealthManager),
		obsLog:   obsLog,
		convLog:  convLog,
		modules:  make(map[string]*registry.PipelineModule),
	}
}

// moduleFor returns the running pipeline module for decision, constructing
// and registering it on first use. Pipelines are cheap, stateless chains
// bound to one routing decision, so one per distinct pipeline id is built
// lazily rather than for the whole router table up front.
func (s *server) moduleFor(decision adapter.RoutingDecision) (*registry.PipelineModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.modules[decision.PipelineID]; ok {
		return m, nil
	}

	provider := decision.Provider
	nextKey := func() string {
		return s.cfg.NextKey(provider.Name, provider.APIKeys, provider.KeyStrategy)
	}

	p := pipeline.New(decision.PipelineID, decision, s.upstream, nextKey, s.cfg.Policy, s.convLog, s.registry).
		WithToolPolicy(s.cfg.GetToolDescription, nil).
		WithSystemMessagePolicy(s.cfg.ApplySystemMessageOverrides)

	m := registry.NewPipelineModule(decision.PipelineID, p)
	if err := s.registry.Register(m); err != nil {
		return nil, err
	}
	if err := m.Start(); err != nil {
		return nil, err
	}
	s.modules[decision.PipelineID] = m
	return m, nil
}

type executionOutcome struct {
	response types.ClientResponse
	chunks   []types.OpenAIStreamChunk
}

// handleMessages is the core ingress per spec §6: decode, route to a
// healthy pipeline, run it under the session-flow controller so requests
// sharing a conversation stay serial, and render the client-dialect reply.
func (s *server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.Policy.MaxRequestSize))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, apierror.New(apierror.TypeValidation, "failed to read request body").WithCause(err))
		return
	}
	defer r.Body.Close()

	var raw types.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		s.writeError(w, apierror.New(apierror.TypeValidation, "request body is not valid JSON").WithCause(err))
		return
	}

	var clientReq types.ClientRequest
	if err := json.Unmarshal(body, &clientReq); err != nil {
		s.writeError(w, apierror.New(apierror.TypeValidation, "request body does not match the client dialect shape").WithCause(err))
		return
	}

	requestID := generateRequestID()
	conversationKey := generateConversationKey(clientReq)

	decision, err := s.router.Route(clientReq.Model, clientReq)
	if err != nil {
		s.obsLog.Warn(logger.ComponentRouter, logger.CategoryFailover, requestID, "routing failed", map[string]interface{}{
			"model": clientReq.Model,
			"error": err.Error(),
		})
		s.writeError(w, err)
		return
	}

	module, err := s.moduleFor(decision)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Policy.RequestTimeout)
	defer cancel()

	future := s.flow.Submit(ctx, conversationKey, func(ctx context.Context) (interface{}, error) {
		resp, chunks, _, err := module.Execute(ctx, raw, len(body))
		if err != nil {
			return nil, err
		}
		return executionOutcome{response: resp, chunks: chunks}, nil
	})

	result, err := future.Wait(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	outcome := result.(executionOutcome)

	if clientReq.Stream && s.cfg.Policy.StreamConversionEnabled {
		writeStreamingResponse(w, outcome.response)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(outcome.response); err != nil {
		s.obsLog.Error(logger.ComponentConfig, logger.CategoryError, requestID, "failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// handleHealth reports ok only while every registered pipeline module
// passes its own health check (upstream credential probe).
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.modules))
	for id := range s.modules {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	unhealthy := make([]string, 0)
	for _, id := range ids {
		if err := s.registry.HealthCheck(ctx, id); err != nil {
			unhealthy = append(unhealthy, id)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if len(unhealthy) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    statusLabel(len(unhealthy) == 0),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"pipelines": len(ids),
		"unhealthy": unhealthy,
	})
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "degraded"
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	ae, ok := apierror.As(err)
	if !ok {
		ae = apierror.New(apierror.TypeAPI, err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierror.HTTPStatus(ae.ErrType))
	json.NewEncoder(w).Encode(apierror.ToEnvelope(ae))
}

// generateRequestID creates a unique id for log correlation, one per
// inbound request.
func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}

// generateConversationKey derives a stable key for a conversation from its
// model and first message, so the same ongoing dialogue always lands on
// the same session-flow queue. Deliberately drops the timestamp salt the
// teacher's generateSessionID mixes in for collision resistance: that salt
// would make every request in the same conversation hash to a different
// key, defeating the serialization sessionflow exists to provide.
func generateConversationKey(req types.ClientRequest) string {
	if len(req.Messages) == 0 {
		return "empty-conversation"
	}
	h := sha256.New()
	h.Write([]byte(req.Model))
	if content, ok := req.Messages[0].Content.(string); ok {
		h.Write([]byte(content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeStreamingResponse re-expands an already-complete client-dialect
// response into a simulated SSE event stream, matching the teacher's
// sendStreamingResponse: the upstream call is always made non-streaming
// (spec §4.2/§9 forbid SSE passthrough at the edge), so a stream-requesting
// client receives the same content replayed as message_start /
// content_block_start / content_block_delta / content_block_stop /
// message_delta / message_stop events instead.
func writeStreamingResponse(w http.ResponseWriter, resp types.ClientResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	messageID := resp.ID
	if messageID == "" {
		messageID = fmt.Sprintf("msg_%d", time.Now().UnixNano())
	}

	writeSSEEvent(w, "message_start", map[string]interface{}{
		"type": "message_start",
		"message": map[string]interface{}{
			"id":            messageID,
			"type":          "message",
			"role":          "assistant",
			"model":         resp.Model,
			"content":       []interface{}{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage": map[string]interface{}{
				"input_tokens":  resp.Usage.InputTokens,
				"output_tokens": 0,
			},
		},
	})

	for index, block := range resp.Content {
		var contentBlock interface{}
		switch block.Type {
		case "text":
			contentBlock = map[string]interface{}{"type": "text", "text": ""}
		case "tool_use":
			contentBlock = map[string]interface{}{"type": "tool_use", "id": block.ID, "name": block.Name, "input": map[string]interface{}{}}
		}

		writeSSEEvent(w, "content_block_start", map[string]interface{}{
			"type":          "content_block_start",
			"index":         index,
			"content_block": contentBlock,
		})

		switch block.Type {
		case "text":
			for _, chunk := range splitTextForStreaming(block.Text) {
				writeSSEEvent(w, "content_block_delta", map[string]interface{}{
					"type":  "content_block_delta",
					"index": index,
					"delta": map[string]interface{}{"type": "text_delta", "text": chunk},
				})
			}
		case "tool_use":
			if inputJSON, err := json.Marshal(block.Input); err == nil {
				writeSSEEvent(w, "content_block_delta", map[string]interface{}{
					"type":  "content_block_delta",
					"index": index,
					"delta": map[string]interface{}{"type": "input_json_delta", "partial_json": string(inputJSON)},
				})
			}
		}

		writeSSEEvent(w, "content_block_stop", map[string]interface{}{"type": "content_block_stop", "index": index})
	}

	writeSSEEvent(w, "message_delta", map[string]interface{}{
		"type": "message_delta",
		"delta": map[string]interface{}{
			"stop_reason":   resp.StopReason,
			"stop_sequence": nil,
		},
		"usage": map[string]interface{}{"output_tokens": resp.Usage.OutputTokens},
	})

	writeSSEEvent(w, "message_stop", map[string]interface{}{"type": "message_stop"})
}

func writeSSEEvent(w http.ResponseWriter, eventType string, data interface{}) {
	fmt.Fprintf(w, "event: %s\n", eventType)
	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// splitTextForStreaming splits text into a handful of word-group chunks so
// a replayed response still reads as a stream rather than one giant delta.
func splitTextForStreaming(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	const chunkSize = 3
	chunks := make([]string, 0, (len(words)+chunkSize-1)/chunkSize)
	for i := 0; i < len(words); i += chunkSize {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if i > 0 {
			chunk = " " + chunk
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
