// Package adapter implements per-provider-family server-compat policy
// (spec §4.3): request-side parameter clamps and tool/model policy, and
// response-side repair of a provider's raw reply into the canonical
// OpenAI-family non-stream shape, plus upstream error normalization to the
// typed error taxonomy.
package adapter

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"llmproxy/apierror"
	"llmproxy/config"
	"llmproxy/dialect"
	"llmproxy/types"
)

// RoutingDecision carries everything an adapter's request/response methods
// need about where a request is headed: the provider record it resolved to
// and the final model name to send.
type RoutingDecision struct {
	PipelineID string
	Provider   config.ProviderRecord
	Model      string
	KeyIndex   int
	// APIKey is the already-selected credential for this request. Most
	// adapters never read it (the upstream client attaches it generically
	// per Provider.AuthMethod); the Gemini-native adapter needs it directly
	// to write into its protocol config metadata block.
	APIKey string
}

// MetadataSink receives adapter-written routing metadata — the protocol
// config blocks the iFlow and Gemini-native adapters attach for the
// upstream client to read (endpoint, headers, auth format). The pipeline
// context implements this.
type MetadataSink interface {
	Set(key string, value interface{})
}

type noopMetadataSink struct{}

func (noopMetadataSink) Set(string, interface{}) {}

// Options carries the transformations recorder and metadata sink an
// adapter call threads through. Both are optional; a zero Options is
// usable standalone (e.g. in tests).
type Options struct {
	Recorder dialect.TransformationRecorder
	Metadata MetadataSink
}

func (o Options) recorder() dialect.TransformationRecorder {
	if o.Recorder != nil {
		return o.Recorder
	}
	return noopRecorder{}
}

func (o Options) metadata() MetadataSink {
	if o.Metadata != nil {
		return o.Metadata
	}
	return noopMetadataSink{}
}

type noopRecorder struct{}

func (noopRecorder) Record(string, string, map[string]interface{}) {}

// Adapter is the server-compat policy object for one provider family.
// Every policy knob (endpoint, clamps, tool handling) is fixed at
// construction time; calling code never mutates an adapter after that —
// runtime reconfiguration is rejected by construction (there is no setter
// to call).
//
// ProcessResponse takes the raw upstream response body rather than an
// already-decoded OpenAIResponse because provider families disagree on
// wire shape at this layer (Ollama and Gemini-native responses are not
// OpenAI-shaped at all); each adapter owns its own decode before
// normalizing into the canonical shape.
type Adapter interface {
	ProcessRequest(req types.OpenAIRequest, decision RoutingDecision, opts Options) (types.OpenAIRequest, error)
	// MarshalRequest serializes a processed request into the bytes the
	// upstream client sends on the wire. Every provider family except
	// Gemini-native uses the OpenAI wire shape directly; Gemini-native
	// first rewrites the canonical request into its own nested
	// contents/parts shape.
	MarshalRequest(req types.OpenAIRequest, decision RoutingDecision) ([]byte, error)
	ProcessResponse(raw []byte, decision RoutingDecision, opts Options) (types.OpenAIResponse, error)
	NormalizeError(statusCode int, body []byte, cause error) *apierror.Error
}

// For returns the adapter for a provider's configured compat policy,
// falling back to the generic OpenAI-compat adapter when none is set.
func For(compat config.ServerCompat) Adapter {
	switch compat {
	case config.CompatDeepSeek:
		return deepSeekAdapter{}
	case config.CompatIFlow:
		return iFlowAdapter{}
	case config.CompatLMStudio:
		return lmStudioAdapter{}
	case config.CompatOllama:
		return ollamaAdapter{}
	case config.CompatVLLM:
		return vllmAdapter{}
	case config.CompatGemini:
		return geminiAdapter{}
	default:
		return genericAdapter{}
	}
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func randSuffix(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// applyMaxTokensCap clamps req.MaxTokens to cap when cap is positive and
// either no limit was requested or the request exceeds the cap.
func applyMaxTokensCap(requested, cap int) int {
	if cap <= 0 {
		return requested
	}
	if requested <= 0 || requested > cap {
		return cap
	}
	return requested
}

// decodeOpenAIShaped unmarshals raw into an OpenAIResponse for provider
// families whose wire response is already OpenAI-compatible.
func decodeOpenAIShaped(raw []byte) (types.OpenAIResponse, error) {
	var resp types.OpenAIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return types.OpenAIResponse{}, apierror.New(apierror.TypeAPI, "failed to parse upstream response").WithCause(err)
	}
	return resp, nil
}

// marshalOpenAIShaped serializes req as-is; used by every provider family
// whose wire request is the OpenAI chat-completions shape.
func marshalOpenAIShaped(req types.OpenAIRequest) ([]byte, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, apierror.New(apierror.TypeValidation, "failed to serialize request").WithCause(err)
	}
	return b, nil
}

// repairResponse fills the deterministic defaults spec §4.3 requires of
// every adapter's response-side repair, shared by every provider family
// before variant-specific repair (thinking-field stripping, Ollama/Gemini
// reshaping) runs.
func repairResponse(resp types.OpenAIResponse, provider string) types.OpenAIResponse {
	if resp.ID == "" {
		resp.ID = fmt.Sprintf("chatcmpl-%s-%d-%s", provider, time.Now().Unix(), randSuffix(9))
	}
	resp.Object = "chat.completion"
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
	if len(resp.Choices) == 0 {
		stop := "stop"
		resp.Choices = []types.OpenAIChoice{{
			Index:        0,
			Message:      types.OpenAIMessage{Role: "assistant", Content: ""},
			FinishReason: &stop,
		}}
	}
	for i := range resp.Choices {
		resp.Choices[i].Index = i
		if resp.Choices[i].FinishReason == nil {
			reason := "stop"
			if len(resp.Choices[i].Message.ToolCalls) > 0 {
				reason = "tool_calls"
			}
			resp.Choices[i].FinishReason = &reason
		}
		for j := range resp.Choices[i].Message.ToolCalls {
			tc := &resp.Choices[i].Message.ToolCalls[j]
			if tc.ID == "" {
				tc.ID = fmt.Sprintf("call_%s_%d_%s", provider, time.Now().UnixNano(), randSuffix(6))
			}
			if tc.Type == "" {
				tc.Type = "function"
			}
			tc.Function.Arguments = coerceToolArguments(tc.Function.Arguments)
		}
	}

	if resp.Usage.InputTokens != 0 && resp.Usage.PromptTokens == 0 {
		resp.Usage.PromptTokens = resp.Usage.InputTokens
	}
	if resp.Usage.OutputTokens != 0 && resp.Usage.CompletionTokens == 0 {
		resp.Usage.CompletionTokens = resp.Usage.OutputTokens
	}
	if resp.Usage.TotalTokens == 0 {
		resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}

	return resp
}

// coerceToolArguments is idempotent on an already-string value (the common
// case after decodeOpenAIShaped, since json.Unmarshal into a string field
// only accepts JSON strings in the first place); it exists for adapters
// that build OpenAIToolCall from a provider's object-valued arguments.
func coerceToolArguments(raw string) string {
	if raw == "" {
		return "{}"
	}
	return raw
}

// marshalArguments serializes an arbitrary args value (object or string)
// into the JSON-string form OpenAIToolCallFunction.Arguments requires.
func marshalArguments(v interface{}) string {
	switch a := v.(type) {
	case string:
		if a == "" {
			return "{}"
		}
		return a
	case nil:
		return "{}"
	default:
		b, err := json.Marshal(a)
		if err != nil {
			return "{}"
		}
		return string(b)
	}
}
