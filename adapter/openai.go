package adapter

import (
	"llmproxy/apierror"
	"llmproxy/types"
)

// genericAdapter is the OpenAI-compatible baseline: preserve tools as-is,
// clamp the standard sampling parameters, bound max_tokens by the
// provider's configured per-model limit.
type genericAdapter struct{}

func (genericAdapter) ProcessRequest(req types.OpenAIRequest, decision RoutingDecision, opts Options) (types.OpenAIRequest, error) {
	req.Model = decision.Model
	req.Temperature = clampFloat(req.Temperature, 0, 2)
	req.TopP = clampFloat(req.TopP, 0, 1)
	req.MaxTokens = applyMaxTokensCap(req.MaxTokens, decision.Provider.MaxTokensFor(decision.Model))
	return req, nil
}

func (genericAdapter) MarshalRequest(req types.OpenAIRequest, decision RoutingDecision) ([]byte, error) {
	return marshalOpenAIShaped(req)
}

func (genericAdapter) ProcessResponse(raw []byte, decision RoutingDecision, opts Options) (types.OpenAIResponse, error) {
	resp, err := decodeOpenAIShaped(raw)
	if err != nil {
		return types.OpenAIResponse{}, err
	}
	return repairResponse(resp, decision.Provider.Name), nil
}

func (genericAdapter) NormalizeError(statusCode int, body []byte, cause error) *apierror.Error {
	return normalizeHTTPError(statusCode, body, cause)
}

// defaultDeepSeekMaxTokens is the fallback max_tokens cap when a
// DeepSeek-like provider record leaves MaxTokensByModel unset.
const defaultDeepSeekMaxTokens = 8192

// deepSeekAdapter matches DeepSeek's stricter sampling ranges, its
// tool_choice default, and its "reasoning_content" thinking trace that
// never reaches the client dialect.
type deepSeekAdapter struct{}

func (deepSeekAdapter) ProcessRequest(req types.OpenAIRequest, decision RoutingDecision, opts Options) (types.OpenAIRequest, error) {
	rec := opts.recorder()
	req.Model = decision.Model

	originalTemp := req.Temperature
	req.Temperature = clampFloat(req.Temperature, 0.01, 2.0)
	if req.Temperature != originalTemp {
		rec.Record("deepseek_temperature_adjusted", "clamped temperature to deepseek's supported range", map[string]interface{}{
			"requested": originalTemp, "applied": req.Temperature,
		})
	}

	req.TopP = clampFloat(req.TopP, 0.01, 1.0)

	cap := decision.Provider.MaxTokensFor(decision.Model)
	if cap <= 0 {
		cap = defaultDeepSeekMaxTokens
	}
	originalMaxTokens := req.MaxTokens
	req.MaxTokens = applyMaxTokensCap(req.MaxTokens, cap)
	if req.MaxTokens != originalMaxTokens {
		rec.Record("deepseek_max_tokens_adjusted", "clamped max_tokens to deepseek's configured cap", map[string]interface{}{
			"requested": originalMaxTokens, "applied": req.MaxTokens,
		})
	}

	if len(req.Tools) > 0 {
		if req.ToolChoice == nil || req.ToolChoice == "none" {
			req.ToolChoice = "auto"
		}
	}
	return req, nil
}

func (deepSeekAdapter) MarshalRequest(req types.OpenAIRequest, decision RoutingDecision) ([]byte, error) {
	return marshalOpenAIShaped(req)
}

func (deepSeekAdapter) ProcessResponse(raw []byte, decision RoutingDecision, opts Options) (types.OpenAIResponse, error) {
	resp, err := decodeOpenAIShaped(raw)
	if err != nil {
		return types.OpenAIResponse{}, err
	}
	resp = repairResponse(resp, decision.Provider.Name)

	rec := opts.recorder()
	for i := range resp.Choices {
		if trace := resp.Choices[i].Message.ReasoningContent; trace != "" {
			rec.Record("thinking_field_stripped", "removed deepseek reasoning trace from response", map[string]interface{}{
				"length": len(trace),
			})
			resp.Choices[i].Message.ReasoningContent = ""
		}
	}
	return resp, nil
}

func (deepSeekAdapter) NormalizeError(statusCode int, body []byte, cause error) *apierror.Error {
	return normalizeHTTPError(statusCode, body, cause)
}

// defaultTopKMin and defaultTopKMax bound the derived top_k value an iFlow
// request gets when the caller left it unset.
const (
	defaultTopKMin = 1
	defaultTopKMax = 40
)

// iFlowAdapter applies iFlow's configured temperature range, derives
// top_k from temperature when absent, and writes the protocol config
// block the upstream client reads for this provider's endpoint/header
// format.
type iFlowAdapter struct{}

func (iFlowAdapter) ProcessRequest(req types.OpenAIRequest, decision RoutingDecision, opts Options) (types.OpenAIRequest, error) {
	req.Model = decision.Model

	tempMin, tempMax := decision.Provider.TemperatureRange(0, 2)
	req.Temperature = clampFloat(req.Temperature, tempMin, tempMax)

	topKMin, topKMax := decision.Provider.TopKRange(defaultTopKMin, defaultTopKMax)
	if req.TopK == 0 {
		derived := int(req.Temperature * float64(topKMax))
		req.TopK = clampInt(derived, topKMin, topKMax)
	}

	for i := range req.Messages {
		for j := range req.Messages[i].ToolCalls {
			req.Messages[i].ToolCalls[j].Function.Arguments = coerceToolArguments(req.Messages[i].ToolCalls[j].Function.Arguments)
		}
	}

	opts.metadata().Set("protocolConfig", map[string]interface{}{
		"endpoint":    decision.Provider.BaseURL,
		"maxRetries":  2,
		"authHeader":  decision.Provider.AuthHeader,
		"authMethod":  string(decision.Provider.AuthMethod),
	})

	return req, nil
}

func (iFlowAdapter) MarshalRequest(req types.OpenAIRequest, decision RoutingDecision) ([]byte, error) {
	return marshalOpenAIShaped(req)
}

func (iFlowAdapter) ProcessResponse(raw []byte, decision RoutingDecision, opts Options) (types.OpenAIResponse, error) {
	resp, err := decodeOpenAIShaped(raw)
	if err != nil {
		return types.OpenAIResponse{}, err
	}
	return repairResponse(resp, decision.Provider.Name), nil
}

func (iFlowAdapter) NormalizeError(statusCode int, body []byte, cause error) *apierror.Error {
	return normalizeHTTPError(statusCode, body, cause)
}
