// Package dialect implements the bijective translation between the
// client-dialect request/response shape and the OpenAI-family wire shape
// (spec §4.1), plus the structural format-detection predicate the router
// and ingress edge use to dispatch untyped payloads.
package dialect

import (
	"encoding/json"
	"strings"

	"llmproxy/apierror"
	"llmproxy/types"
)

// DetectFormat re-exports the structural format predicate so callers only
// need to import this package for the full C1 surface.
func DetectFormat(v types.RawMessage) types.Format {
	return types.DetectFormat(v)
}

// TransformationRecorder appends one entry to a request's transformations
// log. The pipeline context implements this; codec and tool-translation
// code take it as an interface so they stay independent of the pipeline
// package.
type TransformationRecorder interface {
	Record(kind, message string, fields map[string]interface{})
}

// noopRecorder discards every entry; used when a caller has no
// transformations log to thread through (e.g. standalone tests).
type noopRecorder struct{}

func (noopRecorder) Record(string, string, map[string]interface{}) {}

// RequestOptions carries the policy knobs the codec needs but does not
// own: description overrides and tools to filter unconditionally.
type RequestOptions struct {
	ResolveToolDescription func(name, original string) string
	SkipTools              []string
	TransformSystemMessage func(string) string
	Recorder               TransformationRecorder
}

// RequestClientToOpenAI translates a client-dialect request into an
// OpenAI-family request targeting targetModelName. max_tokens is left at
// whatever the caller already put on the envelope; the codec never invents
// a limit (the server-compat adapter's clamp function owns that).
func RequestClientToOpenAI(req types.ClientRequest, targetModelName string, opts RequestOptions) (types.OpenAIRequest, error) {
	rec := opts.Recorder
	if rec == nil {
		rec = noopRecorder{}
	}

	out := types.OpenAIRequest{
		Model:     targetModelName,
		MaxTokens: req.MaxTokens,
		Stream:    req.Stream,
		Stop:      req.StopSequences,
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		out.TopP = *req.TopP
	}

	if len(req.System) > 0 {
		var parts []string
		for _, s := range req.System {
			if s.Type == "text" && s.Text != "" {
				parts = append(parts, s.Text)
			}
		}
		if len(parts) > 0 {
			joined := strings.Join(parts, "\n")
			if opts.TransformSystemMessage != nil {
				transformed := opts.TransformSystemMessage(joined)
				if transformed != joined {
					rec.Record("system_message_overridden", "applied configured system message overrides", nil)
				}
				joined = transformed
			}
			out.Messages = append(out.Messages, types.OpenAIMessage{
				Role:    "system",
				Content: joined,
			})
		}
	}

	for _, msg := range req.Messages {
		converted, ok := convertMessage(msg, rec)
		if ok {
			out.Messages = append(out.Messages, converted...)
		}
	}

	if len(out.Messages) == 0 {
		out.Messages = append(out.Messages, types.OpenAIMessage{Role: "user", Content: "Hello"})
		rec.Record("empty_conversation_placeholder", "synthesized placeholder user message for all-empty conversation", nil)
	}

	if len(req.Tools) > 0 {
		kept, skipped := filterTools(req.Tools, opts.SkipTools)
		if len(skipped) > 0 {
			rec.Record("tools_skipped", "filtered tools from request", map[string]interface{}{"names": skipped})
		}
		if len(kept) > 0 {
			tools, repaired, err := translateTools(kept, opts.ResolveToolDescription)
			if err != nil {
				return types.OpenAIRequest{}, err
			}
			if len(repaired) > 0 {
				rec.Record("tool_schema_repaired", "repaired malformed tool input schema", map[string]interface{}{"names": repaired})
			}
			out.Tools = tools
		}
	}

	return out, nil
}

// convertMessage renders one client-dialect message as zero or more
// OpenAI-family messages. A tool_result block splits into its own "tool"
// role message; everything else in the same client message folds into a
// single user/assistant message. Returns ok=false only when the message
// should be dropped entirely (no extractable content).
func convertMessage(msg types.ClientMessage, rec TransformationRecorder) ([]types.OpenAIMessage, bool) {
	switch content := msg.Content.(type) {
	case string:
		if content == "" {
			return nil, false
		}
		return []types.OpenAIMessage{{Role: msg.Role, Content: content}}, true

	case []interface{}:
		var textParts []string
		var toolCalls []types.OpenAIToolCall
		var toolMessages []types.OpenAIMessage

		for _, item := range content {
			block, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			blockType, _ := block["type"].(string)
			switch blockType {
			case "text":
				if text, ok := block["text"].(string); ok && text != "" {
					textParts = append(textParts, text)
				}
			case "tool_use":
				id, _ := block["id"].(string)
				name, _ := block["name"].(string)
				input, _ := block["input"].(map[string]interface{})
				argsJSON, _ := json.Marshal(input)
				toolCalls = append(toolCalls, types.OpenAIToolCall{
					ID:   id,
					Type: "function",
					Function: types.OpenAIToolCallFunction{
						Name:      name,
						Arguments: string(argsJSON),
					},
				})
			case "tool_result":
				toolUseID, _ := block["tool_use_id"].(string)
				text := extractToolResultText(block)
				if strings.TrimSpace(text) == "" {
					text = "Tool execution completed with no output"
					rec.Record("empty_tool_result_placeholder", "synthesized placeholder for empty tool result", map[string]interface{}{"tool_use_id": toolUseID})
				}
				toolMessages = append(toolMessages, types.OpenAIMessage{
					Role:       "tool",
					Content:    text,
					ToolCallID: toolUseID,
				})
			}
		}

		var messages []types.OpenAIMessage
		if len(textParts) > 0 || len(toolCalls) > 0 {
			messages = append(messages, types.OpenAIMessage{
				Role:      msg.Role,
				Content:   strings.Join(textParts, "\n"),
				ToolCalls: toolCalls,
			})
		}
		messages = append(messages, toolMessages...)
		return messages, len(messages) > 0

	default:
		return nil, false
	}
}

// extractToolResultText reads the tool_result block's content field,
// which may be a plain string or a nested content-block array.
func extractToolResultText(block map[string]interface{}) string {
	switch c := block["content"].(type) {
	case string:
		return c
	case []interface{}:
		var parts []string
		for _, item := range c {
			if m, ok := item.(map[string]interface{}); ok {
				if t, ok := m["text"].(string); ok {
					parts = append(parts, t)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// ResponseOpenAIToClient translates an OpenAI-family non-stream response
// into the client-dialect reply. Only choice[0] is read; additional
// choices a provider returns are discarded.
func ResponseOpenAIToClient(resp types.OpenAIResponse, model string, rec TransformationRecorder) (types.ClientResponse, error) {
	if rec == nil {
		rec = noopRecorder{}
	}
	if len(resp.Choices) == 0 {
		return types.ClientResponse{}, apierror.New(apierror.TypeProtocol, "response has no choices").WithSub(apierror.MissingResponseChoices)
	}

	choice := resp.Choices[0]
	var content []types.Content

	if choice.Message.Content != "" {
		content = append(content, types.Content{Type: "text", Text: choice.Message.Content})
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]interface{}{}
				rec.Record("tool_args_unparseable", "tool call arguments were not valid JSON, defaulted to {}", map[string]interface{}{
					"tool_call_id": tc.ID,
					"name":         tc.Function.Name,
				})
			}
		}
		content = append(content, types.Content{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: args,
		})
	}

	stopReason := "end_turn"
	if choice.FinishReason != nil {
		switch *choice.FinishReason {
		case "stop":
			stopReason = "end_turn"
		case "length":
			stopReason = "max_tokens"
		case "tool_calls":
			stopReason = "tool_use"
		case "content_filter":
			stopReason = "end_turn"
		default:
			stopReason = "end_turn"
		}
	}

	return types.ClientResponse{
		ID:         resp.ID,
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		Content:    content,
		StopReason: stopReason,
		Usage: types.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
