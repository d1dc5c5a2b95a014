// Package protocol implements stream↔non-stream conversion and structural
// request/response validation (spec §4.2). The pipeline always forces the
// outbound request to non-stream, so the server-compat adapter runs
// response repair on a complete reply, and re-expands that non-stream
// reply into a chunk sequence when the original client request asked for
// one. AggregateChunks collapses a chunk sequence back into one response;
// the pipeline itself does not call it.
package protocol

import (
	"encoding/json"
	"strings"

	"llmproxy/apierror"
	"llmproxy/types"
)

// defaultMaxRequestSize is used when a caller passes maxRequestSize <= 0.
const defaultMaxRequestSize = 10 << 20

// Validate checks a decoded request or response body against the
// structural requirements of §4.2. isResponse selects which field set is
// required. serializedSize is the wire size of the original payload in
// bytes, checked against maxRequestSize (0 uses the 10 MiB default).
func Validate(body types.RawMessage, isResponse bool, serializedSize, maxRequestSize int) error {
	limit := maxRequestSize
	if limit <= 0 {
		limit = defaultMaxRequestSize
	}
	if serializedSize > limit {
		return apierror.Protocol(apierror.RequestSizeExceeded, "request body exceeds configured size limit").WithParam("body")
	}

	if !isResponse {
		model, ok := body["model"].(string)
		if !ok || model == "" {
			return apierror.Protocol(apierror.MissingModel, "request is missing a model field").WithParam("model")
		}
		if _, ok := body["messages"].([]interface{}); !ok {
			return apierror.Protocol(apierror.InvalidMessagesField, "request is missing a messages array").WithParam("messages")
		}
		return nil
	}

	if _, ok := body["id"].(string); !ok {
		return apierror.Protocol(apierror.MissingResponseID, "response is missing an id field").WithParam("id")
	}
	object, ok := body["object"].(string)
	if !ok || (object != "chat.completion" && object != "chat.completion.chunk") {
		return apierror.Protocol(apierror.InvalidResponseObject, "response object must be chat.completion or chat.completion.chunk").WithParam("object")
	}
	return nil
}

// StreamRequestToNonStream returns a copy of req with Stream forced false.
// This is a pure rewrite; the protocol controller never issues the
// upstream call itself.
func StreamRequestToNonStream(req types.OpenAIRequest) types.OpenAIRequest {
	out := req
	out.Stream = false
	return out
}

// maxStreamSlices bounds how many content-delta chunks a non-stream
// response's assistant text is partitioned into.
const maxStreamSlices = 10

// NonStreamResponseToStream expands a collapsed response into the chunk
// sequence a streaming client expects: a role-delta chunk, up to
// maxStreamSlices content-delta chunks, a pair of chunks per tool call,
// then a terminator carrying the original finish_reason. Chunk order
// (role, content*, (tool-start, tool-args)*, terminator) is an observable
// contract.
func NonStreamResponseToStream(resp types.OpenAIResponse) []types.OpenAIStreamChunk {
	if len(resp.Choices) == 0 {
		return nil
	}
	choice := resp.Choices[0]
	var chunks []types.OpenAIStreamChunk

	base := func(delta types.OpenAIStreamDelta, finishReason *string) types.OpenAIStreamChunk {
		return types.OpenAIStreamChunk{
			ID:      resp.ID,
			Object:  "chat.completion.chunk",
			Created: resp.Created,
			Model:   resp.Model,
			Choices: []types.OpenAIStreamChoice{{
				Index:        choice.Index,
				Delta:        delta,
				FinishReason: finishReason,
			}},
		}
	}

	chunks = append(chunks, base(types.OpenAIStreamDelta{Role: "assistant"}, nil))

	for _, slice := range splitIntoSlices(choice.Message.Content, maxStreamSlices) {
		chunks = append(chunks, base(types.OpenAIStreamDelta{Content: slice}, nil))
	}

	for i, tc := range choice.Message.ToolCalls {
		chunks = append(chunks, base(types.OpenAIStreamDelta{
			ToolCalls: []types.OpenAIToolCall{{
				Index: i,
				ID:    tc.ID,
				Type:  tc.Type,
				Function: types.OpenAIToolCallFunction{
					Name: tc.Function.Name,
				},
			}},
		}, nil))
		chunks = append(chunks, base(types.OpenAIStreamDelta{
			ToolCalls: []types.OpenAIToolCall{{
				Index: i,
				Function: types.OpenAIToolCallFunction{
					Arguments: tc.Function.Arguments,
				},
			}},
		}, nil))
	}

	chunks = append(chunks, base(types.OpenAIStreamDelta{}, choice.FinishReason))

	return chunks
}

// splitIntoSlices partitions s into at most n roughly equal pieces, the
// last absorbing any remainder. Returns nil for an empty string so an
// empty-content response emits no content-delta chunks.
func splitIntoSlices(s string, n int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	if len(runes) <= n {
		out := make([]string, len(runes))
		for i, r := range runes {
			out[i] = string(r)
		}
		return out
	}

	sliceLen := len(runes) / n
	var out []string
	for i := 0; i < n-1; i++ {
		out = append(out, string(runes[i*sliceLen:(i+1)*sliceLen]))
	}
	out = append(out, string(runes[(n-1)*sliceLen:]))
	return out
}

// AggregateChunks is the inverse of NonStreamResponseToStream: it
// concatenates text deltas, accumulates tool_calls by index, and takes the
// last non-null finish_reason. Usage counters are left zero; the caller is
// expected to source them elsewhere.
func AggregateChunks(chunks []types.OpenAIStreamChunk) (types.OpenAIResponse, error) {
	if len(chunks) == 0 {
		return types.OpenAIResponse{}, apierror.Protocol(apierror.EmptyChunksList, "no chunks to aggregate")
	}

	first := chunks[0]
	resp := types.OpenAIResponse{
		ID:      first.ID,
		Object:  "chat.completion",
		Created: first.Created,
		Model:   first.Model,
	}

	var contentParts []string
	var toolCalls []types.OpenAIToolCall
	var finishReason *string

	for _, chunk := range chunks {
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			contentParts = append(contentParts, delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			for len(toolCalls) <= tc.Index {
				toolCalls = append(toolCalls, types.OpenAIToolCall{Type: "function"})
			}
			if tc.ID != "" {
				toolCalls[tc.Index].ID = tc.ID
			}
			if tc.Type != "" {
				toolCalls[tc.Index].Type = tc.Type
			}
			if tc.Function.Name != "" {
				toolCalls[tc.Index].Function.Name = tc.Function.Name
			}
			toolCalls[tc.Index].Function.Arguments += tc.Function.Arguments
		}
		if chunk.Choices[0].FinishReason != nil {
			finishReason = chunk.Choices[0].FinishReason
		}
	}

	message := types.OpenAIMessage{
		Role:    "assistant",
		Content: strings.Join(contentParts, ""),
	}
	if len(toolCalls) > 0 {
		message.ToolCalls = toolCalls
	}

	resp.Choices = []types.OpenAIChoice{{
		Index:        0,
		Message:      message,
		FinishReason: finishReason,
	}}

	return resp, nil
}

// DecodeRaw decodes a JSON payload into a RawMessage for format detection
// and validation ahead of dialect-specific unmarshaling.
func DecodeRaw(data []byte) (types.RawMessage, error) {
	var v types.RawMessage
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, apierror.New(apierror.TypeValidation, "request body is not valid JSON").WithCause(err)
	}
	return v, nil
}
