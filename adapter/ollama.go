package adapter

import (
	"encoding/json"

	"llmproxy/apierror"
	"llmproxy/types"
)

// ollamaAdapter targets a backend with no tool-calling support: tools and
// tool_choice are dropped unconditionally rather than rejected, and
// frequency/presence penalties are removed since Ollama has no equivalent
// knob. Its native non-stream response shape
// ({response, done, prompt_eval_count, eval_count}) is not OpenAI-shaped,
// so ProcessResponse decodes it separately and rebuilds the canonical
// reply.
type ollamaAdapter struct{}

func (ollamaAdapter) ProcessRequest(req types.OpenAIRequest, decision RoutingDecision, opts Options) (types.OpenAIRequest, error) {
	req.Model = decision.Model
	req.Tools = nil
	req.ToolChoice = nil
	req.FrequencyPenalty = 0
	req.PresencePenalty = 0
	req.Temperature = clampFloat(req.Temperature, 0, 2)
	req.TopP = clampFloat(req.TopP, 0, 1)
	req.MaxTokens = applyMaxTokensCap(req.MaxTokens, decision.Provider.MaxTokensFor(decision.Model))
	return req, nil
}

func (ollamaAdapter) MarshalRequest(req types.OpenAIRequest, decision RoutingDecision) ([]byte, error) {
	return marshalOpenAIShaped(req)
}

// ollamaNativeResponse is Ollama's non-chat generate response shape.
type ollamaNativeResponse struct {
	Model          string `json:"model"`
	Response       string `json:"response"`
	Done           bool   `json:"done"`
	PromptEvalCount int   `json:"prompt_eval_count"`
	EvalCount       int   `json:"eval_count"`
}

func (ollamaAdapter) ProcessResponse(raw []byte, decision RoutingDecision, opts Options) (types.OpenAIResponse, error) {
	var native ollamaNativeResponse
	if err := json.Unmarshal(raw, &native); err != nil {
		return types.OpenAIResponse{}, apierror.New(apierror.TypeAPI, "failed to parse upstream response").WithCause(err)
	}

	resp := types.OpenAIResponse{
		Model: native.Model,
		Choices: []types.OpenAIChoice{{
			Index:   0,
			Message: types.OpenAIMessage{Role: "assistant", Content: native.Response},
		}},
		Usage: types.OpenAIUsage{
			PromptTokens:     native.PromptEvalCount,
			CompletionTokens: native.EvalCount,
		},
	}
	return repairResponse(resp, decision.Provider.Name), nil
}

func (ollamaAdapter) NormalizeError(statusCode int, body []byte, cause error) *apierror.Error {
	return normalizeHTTPError(statusCode, body, cause)
}
