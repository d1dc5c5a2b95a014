package adapter

import (
	"encoding/json"
	"strings"

	"llmproxy/apierror"
	"llmproxy/types"
)

// geminiAdapter is the only provider family whose wire shape is not
// OpenAI-compatible (spec §6's egress list calls it out as "a Gemini-
// native JSON endpoint", distinct from the OpenAI-compatible family and
// local-server variants). It rewrites the canonical request into the
// nested contents/parts shape on the way out and rebuilds a canonical
// response from candidates/parts on the way back.
type geminiAdapter struct{}

func (geminiAdapter) ProcessRequest(req types.OpenAIRequest, decision RoutingDecision, opts Options) (types.OpenAIRequest, error) {
	req.Model = decision.Model
	if cap := decision.Provider.MaxTokensFor(decision.Model); cap > 0 && (req.MaxTokens <= 0 || req.MaxTokens > cap) {
		req.MaxTokens = cap
	}

	opts.metadata().Set("protocolConfig", map[string]interface{}{
		"endpoint":            decision.Provider.BaseURL,
		"apiKey":              decision.APIKey,
		"serverCompatibility": "gemini",
		"processedModel":      decision.Model,
	})

	return req, nil
}

// toolCallNames tracks which function a tool_call_id refers to so a
// later "tool" role message can be rendered as a named functionResponse
// part; Gemini pairs a functionResponse with its call by function name
// (functionCall parts carry no id), so the name comes from the
// assistant's matching tool call. The tool_call_id is still copied into
// the functionResponse id field.
func toolCallNames(messages []types.OpenAIMessage) map[string]string {
	names := make(map[string]string)
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID != "" {
				names[tc.ID] = tc.Function.Name
			}
		}
	}
	return names
}

func (geminiAdapter) MarshalRequest(req types.OpenAIRequest, decision RoutingDecision) ([]byte, error) {
	gReq := types.GeminiRequest{}
	names := toolCallNames(req.Messages)

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			if msg.Content == "" {
				continue
			}
			gReq.SystemInstruction = &types.GeminiSystemInstruct{
				Role:  "user",
				Parts: []types.GeminiPart{{Text: msg.Content}},
			}
		case "tool":
			name := names[msg.ToolCallID]
			var response interface{} = msg.Content
			var decoded interface{}
			if json.Unmarshal([]byte(msg.Content), &decoded) == nil {
				if _, isObject := decoded.(map[string]interface{}); isObject {
					response = decoded
				} else {
					response = map[string]interface{}{"return_value": msg.Content}
				}
			} else {
				response = map[string]interface{}{"return_value": msg.Content}
			}
			gReq.Contents = append(gReq.Contents, types.GeminiContent{
				Role: "user",
				Parts: []types.GeminiPart{{
					FunctionResponse: &types.GeminiFunctionResponse{Name: name, Response: response, ID: msg.ToolCallID},
				}},
			})
		default:
			role := "user"
			if msg.Role == "assistant" {
				role = "model"
			}
			var parts []types.GeminiPart
			if msg.Content != "" {
				parts = append(parts, types.GeminiPart{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args interface{}
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					args = map[string]interface{}{}
				}
				parts = append(parts, types.GeminiPart{
					FunctionCall: &types.GeminiFunctionCall{Name: tc.Function.Name, Args: args},
				})
			}
			if len(parts) == 0 {
				continue
			}
			gReq.Contents = append(gReq.Contents, types.GeminiContent{Role: role, Parts: parts})
		}
	}

	for _, tool := range req.Tools {
		gReq.Tools = append(gReq.Tools, types.GeminiTool{
			FunctionDeclarations: []types.GeminiFunctionDecl{{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			}},
		})
	}

	gReq.GenerationConfig = &types.GeminiGenConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		TopK:            req.TopK,
		MaxOutputTokens: req.MaxTokens,
		StopSequences:   req.Stop,
	}
	if decision.Provider.EnableThinking {
		gReq.GenerationConfig.ThinkingConfig = &types.GeminiThinkingConfig{IncludeThoughts: true}
	}

	b, err := json.Marshal(gReq)
	if err != nil {
		return nil, apierror.New(apierror.TypeValidation, "failed to serialize gemini-native request").WithCause(err)
	}
	return b, nil
}

func (geminiAdapter) ProcessResponse(raw []byte, decision RoutingDecision, opts Options) (types.OpenAIResponse, error) {
	var gResp types.GeminiResponse
	if err := json.Unmarshal(raw, &gResp); err != nil {
		return types.OpenAIResponse{}, apierror.New(apierror.TypeAPI, "failed to parse gemini-native response").WithCause(err)
	}
	if len(gResp.Candidates) == 0 {
		return types.OpenAIResponse{}, apierror.New(apierror.TypeProtocol, "gemini-native response has no candidates").WithSub(apierror.MissingResponseChoices)
	}

	candidate := gResp.Candidates[0]
	var textParts []string
	var toolCalls []types.OpenAIToolCall

	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
		if part.FunctionCall != nil {
			toolCalls = append(toolCalls, types.OpenAIToolCall{
				Type: "function",
				Function: types.OpenAIToolCallFunction{
					Name:      part.FunctionCall.Name,
					Arguments: marshalArguments(part.FunctionCall.Args),
				},
			})
		}
	}

	resp := types.OpenAIResponse{
		Model: gResp.ModelVersion,
		Choices: []types.OpenAIChoice{{
			Index: 0,
			Message: types.OpenAIMessage{
				Role:      "assistant",
				Content:   strings.Join(textParts, "\n"),
				ToolCalls: toolCalls,
			},
		}},
	}
	if gResp.UsageMetadata != nil {
		resp.Usage = types.OpenAIUsage{
			PromptTokens:     gResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: gResp.UsageMetadata.CandidatesTokenCount + gResp.UsageMetadata.ThoughtsTokenCount,
		}
	}

	return repairResponse(resp, decision.Provider.Name), nil
}

func (geminiAdapter) NormalizeError(statusCode int, body []byte, cause error) *apierror.Error {
	return normalizeHTTPError(statusCode, body, cause)
}
