package adapter

import (
	"encoding/json"
	"testing"

	"llmproxy/config"
	"llmproxy/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor_DispatchesByCompat(t *testing.T) {
	assert.IsType(t, genericAdapter{}, For(config.CompatGeneric))
	assert.IsType(t, deepSeekAdapter{}, For(config.CompatDeepSeek))
	assert.IsType(t, iFlowAdapter{}, For(config.CompatIFlow))
	assert.IsType(t, lmStudioAdapter{}, For(config.CompatLMStudio))
	assert.IsType(t, ollamaAdapter{}, For(config.CompatOllama))
	assert.IsType(t, vllmAdapter{}, For(config.CompatVLLM))
	assert.IsType(t, geminiAdapter{}, For(config.CompatGemini))
}

func TestGenericAdapter_ClampsAndCapsMaxTokens(t *testing.T) {
	decision := RoutingDecision{
		Provider: config.ProviderRecord{Name: "acme", MaxTokensByModel: map[string]int{"m": 100}},
		Model:    "m",
	}
	req := types.OpenAIRequest{Temperature: 5, TopP: 2, MaxTokens: 500}

	out, err := genericAdapter{}.ProcessRequest(req, decision, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.Temperature)
	assert.Equal(t, 1.0, out.TopP)
	assert.Equal(t, 100, out.MaxTokens)
	assert.Equal(t, "m", out.Model)
}

func TestIFlowAdapter_ClampsTemperatureToConfiguredRange(t *testing.T) {
	decision := RoutingDecision{
		Provider: config.ProviderRecord{TemperatureMin: 0.5, TemperatureMax: 1.0},
	}
	out, err := iFlowAdapter{}.ProcessRequest(types.OpenAIRequest{Temperature: 5}, decision, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Temperature)
}

func TestIFlowAdapter_DerivesTopKFromConfiguredRange(t *testing.T) {
	decision := RoutingDecision{
		Provider: config.ProviderRecord{TopKMin: 5, TopKMax: 50},
	}
	out, err := iFlowAdapter{}.ProcessRequest(types.OpenAIRequest{Temperature: 0.5}, decision, Options{})
	require.NoError(t, err)
	assert.Equal(t, 25, out.TopK)
}

func TestIFlowAdapter_FallsBackToDefaultRangesWhenUnconfigured(t *testing.T) {
	out, err := iFlowAdapter{}.ProcessRequest(types.OpenAIRequest{Temperature: 5}, RoutingDecision{Provider: config.ProviderRecord{}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.Temperature)
	assert.Equal(t, defaultTopKMax, out.TopK)
}

func TestGenericAdapter_ResponseRepairFillsDefaults(t *testing.T) {
	raw := []byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	resp, err := genericAdapter{}.ProcessResponse(raw, RoutingDecision{Provider: config.ProviderRecord{Name: "acme"}}, Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "chat.completion", resp.Object)
	require.Len(t, resp.Choices, 1)
	require.NotNil(t, resp.Choices[0].FinishReason)
	assert.Equal(t, "stop", *resp.Choices[0].FinishReason)
}

func TestGenericAdapter_ResponseRepairDefaultsToolCallsFinishReason(t *testing.T) {
	raw := []byte(`{"choices":[{"message":{"role":"assistant","tool_calls":[{"type":"function","function":{"name":"lookup","arguments":"{}"}}]}}]}`)
	resp, err := genericAdapter{}.ProcessResponse(raw, RoutingDecision{Provider: config.ProviderRecord{Name: "acme"}}, Options{})
	require.NoError(t, err)

	require.NotNil(t, resp.Choices[0].FinishReason)
	assert.Equal(t, "tool_calls", *resp.Choices[0].FinishReason)
	assert.NotEmpty(t, resp.Choices[0].Message.ToolCalls[0].ID)
	assert.Equal(t, "function", resp.Choices[0].Message.ToolCalls[0].Type)
}

func TestDeepSeekAdapter_SetsToolChoiceAutoAndDefaultCap(t *testing.T) {
	req := types.OpenAIRequest{
		Tools:     []types.OpenAITool{{Type: "function", Function: types.OpenAIToolFunction{Name: "x"}}},
		MaxTokens: 99999,
	}
	out, err := deepSeekAdapter{}.ProcessRequest(req, RoutingDecision{Provider: config.ProviderRecord{}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "auto", out.ToolChoice)
	assert.Equal(t, defaultDeepSeekMaxTokens, out.MaxTokens)
}

func TestDeepSeekAdapter_RecordsClampAdjustments(t *testing.T) {
	req := types.OpenAIRequest{
		MaxTokens:   1000000,
		Temperature: 5,
		TopP:        3,
	}
	rec := &captureRecorder{}
	out, err := deepSeekAdapter{}.ProcessRequest(req, RoutingDecision{Provider: config.ProviderRecord{MaxTokensByModel: map[string]int{"": 8192}}}, Options{Recorder: rec})
	require.NoError(t, err)
	assert.Equal(t, 8192, out.MaxTokens)
	assert.Equal(t, 2.0, out.Temperature)
	assert.Contains(t, rec.kinds, "deepseek_max_tokens_adjusted")
	assert.Contains(t, rec.kinds, "deepseek_temperature_adjusted")
}

func TestDeepSeekAdapter_NoClampNoRecord(t *testing.T) {
	req := types.OpenAIRequest{MaxTokens: 100, Temperature: 1, TopP: 0.5}
	rec := &captureRecorder{}
	_, err := deepSeekAdapter{}.ProcessRequest(req, RoutingDecision{Provider: config.ProviderRecord{}}, Options{Recorder: rec})
	require.NoError(t, err)
	assert.NotContains(t, rec.kinds, "deepseek_max_tokens_adjusted")
	assert.NotContains(t, rec.kinds, "deepseek_temperature_adjusted")
}

func TestDeepSeekAdapter_StripsReasoningContentAndRecords(t *testing.T) {
	raw, _ := json.Marshal(types.OpenAIResponse{
		Choices: []types.OpenAIChoice{{Message: types.OpenAIMessage{Role: "assistant", Content: "hi", ReasoningContent: "step by step"}}},
	})
	rec := &captureRecorder{}
	resp, err := deepSeekAdapter{}.ProcessResponse(raw, RoutingDecision{Provider: config.ProviderRecord{Name: "deepseek"}}, Options{Recorder: rec})
	require.NoError(t, err)
	assert.Empty(t, resp.Choices[0].Message.ReasoningContent)
	require.Len(t, rec.kinds, 1)
	assert.Equal(t, "thinking_field_stripped", rec.kinds[0])
}

func TestLMStudioAdapter_FlattensToolCallsAndResults(t *testing.T) {
	req := types.OpenAIRequest{
		Messages: []types.OpenAIMessage{
			{Role: "assistant", Content: "", ToolCalls: []types.OpenAIToolCall{{Function: types.OpenAIToolCallFunction{Name: "lookup", Arguments: `{"q":1}`}}}},
			{Role: "tool", Content: "42", ToolCallID: "call_1"},
		},
	}
	out, err := lmStudioAdapter{}.ProcessRequest(req, RoutingDecision{Provider: config.ProviderRecord{}}, Options{})
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Contains(t, out.Messages[0].Content, "[Tool Call: lookup]")
	assert.Empty(t, out.Messages[0].ToolCalls)
	assert.Equal(t, "user", out.Messages[1].Role)
	assert.Contains(t, out.Messages[1].Content, "[Tool Result]")
}

func TestLMStudioAdapter_RejectsWhenNoMessagesSurvive(t *testing.T) {
	req := types.OpenAIRequest{Messages: []types.OpenAIMessage{{Role: "assistant", Content: ""}}}
	_, err := lmStudioAdapter{}.ProcessRequest(req, RoutingDecision{Provider: config.ProviderRecord{}}, Options{})
	require.Error(t, err)
}

func TestLMStudioAdapter_CapsFromConfiguredContextWindow(t *testing.T) {
	req := types.OpenAIRequest{
		Messages:  []types.OpenAIMessage{{Role: "user", Content: "hi"}},
		MaxTokens: 100000,
	}
	out, err := lmStudioAdapter{}.ProcessRequest(req, RoutingDecision{Provider: config.ProviderRecord{ContextWindow: 8000}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2000, out.MaxTokens)
}

func TestLMStudioAdapter_FallsBackToFlatCapWithNoContextWindowConfigured(t *testing.T) {
	req := types.OpenAIRequest{
		Messages:  []types.OpenAIMessage{{Role: "user", Content: "hi"}},
		MaxTokens: 100000,
	}
	out, err := lmStudioAdapter{}.ProcessRequest(req, RoutingDecision{Provider: config.ProviderRecord{}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, defaultLMStudioMaxTokens, out.MaxTokens)
}

func TestOllamaAdapter_DropsToolsAndPenalties(t *testing.T) {
	req := types.OpenAIRequest{
		Tools:             []types.OpenAITool{{Type: "function"}},
		ToolChoice:        "auto",
		FrequencyPenalty:  0.5,
		PresencePenalty:   0.5,
	}
	out, err := ollamaAdapter{}.ProcessRequest(req, RoutingDecision{Provider: config.ProviderRecord{}}, Options{})
	require.NoError(t, err)
	assert.Nil(t, out.Tools)
	assert.Nil(t, out.ToolChoice)
	assert.Zero(t, out.FrequencyPenalty)
	assert.Zero(t, out.PresencePenalty)
}

func TestOllamaAdapter_RebuildsCanonicalResponseFromNativeShape(t *testing.T) {
	raw := []byte(`{"model":"llama3","response":"hello","done":true,"prompt_eval_count":5,"eval_count":3}`)
	resp, err := ollamaAdapter{}.ProcessResponse(raw, RoutingDecision{Provider: config.ProviderRecord{Name: "ollama"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Choices[0].Message.Content)
	assert.Equal(t, 5, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
	assert.Equal(t, 8, resp.Usage.TotalTokens)
}

func TestVLLMAdapter_MapsFrequencyPenaltyToRepetitionPenalty(t *testing.T) {
	req := types.OpenAIRequest{FrequencyPenalty: 0.3}
	out, err := vllmAdapter{}.ProcessRequest(req, RoutingDecision{Provider: config.ProviderRecord{}}, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 1.3, out.RepetitionPenalty, 0.0001)
}

func TestGeminiAdapter_MarshalsContentsAndSystemInstruction(t *testing.T) {
	req := types.OpenAIRequest{
		Messages: []types.OpenAIMessage{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "", ToolCalls: []types.OpenAIToolCall{{ID: "call_1", Function: types.OpenAIToolCallFunction{Name: "lookup", Arguments: `{"q":1}`}}}},
			{Role: "tool", Content: `{"count":42}`, ToolCallID: "call_1"},
		},
		Tools: []types.OpenAITool{{Type: "function", Function: types.OpenAIToolFunction{Name: "lookup", Description: "looks up"}}},
	}

	raw, err := geminiAdapter{}.MarshalRequest(req, RoutingDecision{Provider: config.ProviderRecord{Name: "gemini"}, Model: "gemini-1.5"})
	require.NoError(t, err)

	var gReq types.GeminiRequest
	require.NoError(t, json.Unmarshal(raw, &gReq))

	require.NotNil(t, gReq.SystemInstruction)
	assert.Equal(t, "user", gReq.SystemInstruction.Role)
	assert.Equal(t, "be terse", gReq.SystemInstruction.Parts[0].Text)

	require.Len(t, gReq.Contents, 3)
	assert.Equal(t, "user", gReq.Contents[0].Role)
	assert.Equal(t, "model", gReq.Contents[1].Role)
	require.NotNil(t, gReq.Contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "lookup", gReq.Contents[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, "user", gReq.Contents[2].Role)
	require.NotNil(t, gReq.Contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "lookup", gReq.Contents[2].Parts[0].FunctionResponse.Name)

	require.Len(t, gReq.Tools, 1)
	assert.Equal(t, "lookup", gReq.Tools[0].FunctionDeclarations[0].Name)
}

func TestGeminiAdapter_MarshalsTopKAndThinkingConfig(t *testing.T) {
	req := types.OpenAIRequest{
		Messages: []types.OpenAIMessage{{Role: "user", Content: "hi"}},
		TopK:     20,
	}

	raw, err := geminiAdapter{}.MarshalRequest(req, RoutingDecision{Provider: config.ProviderRecord{Name: "gemini", EnableThinking: true}})
	require.NoError(t, err)

	var gReq types.GeminiRequest
	require.NoError(t, json.Unmarshal(raw, &gReq))

	require.NotNil(t, gReq.GenerationConfig)
	assert.Equal(t, 20, gReq.GenerationConfig.TopK)
	require.NotNil(t, gReq.GenerationConfig.ThinkingConfig)
	assert.True(t, gReq.GenerationConfig.ThinkingConfig.IncludeThoughts)
}

func TestGeminiAdapter_NoThinkingConfigWhenNotEnabled(t *testing.T) {
	req := types.OpenAIRequest{Messages: []types.OpenAIMessage{{Role: "user", Content: "hi"}}}

	raw, err := geminiAdapter{}.MarshalRequest(req, RoutingDecision{Provider: config.ProviderRecord{Name: "gemini"}})
	require.NoError(t, err)

	var gReq types.GeminiRequest
	require.NoError(t, json.Unmarshal(raw, &gReq))
	assert.Nil(t, gReq.GenerationConfig.ThinkingConfig)
}

func TestGeminiAdapter_ProcessResponseBuildsToolCallsFromFunctionCallParts(t *testing.T) {
	gResp := types.GeminiResponse{
		Candidates: []types.GeminiCandidate{{
			Content: types.GeminiContent{
				Role: "model",
				Parts: []types.GeminiPart{
					{Text: "let me check"},
					{FunctionCall: &types.GeminiFunctionCall{Name: "lookup", Args: map[string]interface{}{"q": "cats"}}},
				},
			},
			FinishReason: "STOP",
		}},
		UsageMetadata: &types.GeminiUsage{PromptTokenCount: 10, CandidatesTokenCount: 4, ThoughtsTokenCount: 2},
	}
	raw, _ := json.Marshal(gResp)

	resp, err := geminiAdapter{}.ProcessResponse(raw, RoutingDecision{Provider: config.ProviderRecord{Name: "gemini"}}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "let me check", resp.Choices[0].Message.Content)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, "lookup", resp.Choices[0].Message.ToolCalls[0].Function.Name)
	require.NotNil(t, resp.Choices[0].FinishReason)
	assert.Equal(t, "tool_calls", *resp.Choices[0].FinishReason)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 6, resp.Usage.CompletionTokens)
}

func TestNormalizeHTTPError_MapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   string
	}{
		{401, "", "authentication_error"},
		{404, "", "not_found_error"},
		{408, "", "timeout_error"},
		{429, "quota exceeded", "quota_exceeded_error"},
		{429, "too many requests", "rate_limit_error"},
		{400, "", "validation_error"},
		{0, "", "connection_error"},
		{500, "", "api_error"},
		{599, "", "api_error"},
	}
	for _, c := range cases {
		err := normalizeHTTPError(c.status, []byte(c.body), nil)
		assert.Equal(t, c.want, string(err.ErrType), "status %d", c.status)
	}
}

type captureRecorder struct {
	kinds []string
}

func (c *captureRecorder) Record(kind, message string, fields map[string]interface{}) {
	c.kinds = append(c.kinds, kind)
}
