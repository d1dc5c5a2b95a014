package adapter

import (
	"llmproxy/apierror"
	"llmproxy/types"
)

// vllmAdapter preserves tools and maps frequency_penalty onto vLLM's
// repetition_penalty knob, which has no direct OpenAI equivalent.
type vllmAdapter struct{}

func (vllmAdapter) ProcessRequest(req types.OpenAIRequest, decision RoutingDecision, opts Options) (types.OpenAIRequest, error) {
	req.Model = decision.Model
	req.Temperature = clampFloat(req.Temperature, 0.001, 2)
	req.TopP = clampFloat(req.TopP, 0, 1)
	req.MaxTokens = applyMaxTokensCap(req.MaxTokens, decision.Provider.MaxTokensFor(decision.Model))

	if req.FrequencyPenalty != 0 {
		req.RepetitionPenalty = 1 + req.FrequencyPenalty
	}

	return req, nil
}

func (vllmAdapter) MarshalRequest(req types.OpenAIRequest, decision RoutingDecision) ([]byte, error) {
	return marshalOpenAIShaped(req)
}

func (vllmAdapter) ProcessResponse(raw []byte, decision RoutingDecision, opts Options) (types.OpenAIResponse, error) {
	resp, err := decodeOpenAIShaped(raw)
	if err != nil {
		return types.OpenAIResponse{}, err
	}
	return repairResponse(resp, decision.Provider.Name), nil
}

func (vllmAdapter) NormalizeError(statusCode int, body []byte, cause error) *apierror.Error {
	return normalizeHTTPError(statusCode, body, cause)
}
