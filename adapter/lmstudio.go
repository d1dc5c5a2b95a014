package adapter

import (
	"encoding/json"
	"fmt"

	"llmproxy/apierror"
	"llmproxy/types"
)

// defaultLMStudioMaxTokens is the fallback passed to MaxTokensCap: the
// flat max_tokens cap when a provider record has neither a
// MaxTokensByModel entry nor a ContextWindow, and the upper bound on
// ContextWindow/4 when a context window is configured.
const defaultLMStudioMaxTokens = 4096

// lmStudioAdapter targets a backend that accepts OpenAI-shaped requests
// but doesn't reliably round-trip tool_calls/tool-role messages: it
// flattens assistant tool calls and tool results into plain readable text
// before sending, the way the teacher's LM Studio variant does.
type lmStudioAdapter struct{}

func (lmStudioAdapter) ProcessRequest(req types.OpenAIRequest, decision RoutingDecision, opts Options) (types.OpenAIRequest, error) {
	req.Model = decision.Model

	flattened := make([]types.OpenAIMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "tool" {
			flattened = append(flattened, types.OpenAIMessage{
				Role:    "user",
				Content: fmt.Sprintf("[Tool Result] %s", msg.Content),
			})
			continue
		}
		if len(msg.ToolCalls) > 0 {
			content := msg.Content
			for _, tc := range msg.ToolCalls {
				content += fmt.Sprintf("\n[Tool Call: %s] %s", tc.Function.Name, coerceToolArguments(tc.Function.Arguments))
			}
			msg.Content = content
			msg.ToolCalls = nil
		}
		if msg.Content == "" {
			continue
		}
		flattened = append(flattened, msg)
	}
	if len(flattened) == 0 {
		return types.OpenAIRequest{}, apierror.New(apierror.TypeValidation, "no messages survived lm studio compatibility filtering").WithSub(apierror.NoValidMessages)
	}
	req.Messages = flattened

	for i := range req.Tools {
		req.Tools[i].Type = "function"
	}

	cap := decision.Provider.MaxTokensCap(decision.Model, defaultLMStudioMaxTokens)
	req.MaxTokens = applyMaxTokensCap(req.MaxTokens, cap)

	return req, nil
}

func (lmStudioAdapter) MarshalRequest(req types.OpenAIRequest, decision RoutingDecision) ([]byte, error) {
	return marshalOpenAIShaped(req)
}

func (lmStudioAdapter) ProcessResponse(raw []byte, decision RoutingDecision, opts Options) (types.OpenAIResponse, error) {
	var resp types.OpenAIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return types.OpenAIResponse{}, apierror.New(apierror.TypeAPI, "failed to parse upstream response").WithCause(err)
	}
	return repairResponse(resp, decision.Provider.Name), nil
}

func (lmStudioAdapter) NormalizeError(statusCode int, body []byte, cause error) *apierror.Error {
	return normalizeHTTPError(statusCode, body, cause)
}
