package protocol

import (
	"testing"

	"llmproxy/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestValidate_RequestRequiresModelAndMessages(t *testing.T) {
	err := Validate(types.RawMessage{"model": "m"}, false, 10, 0)
	require.Error(t, err)

	err = Validate(types.RawMessage{"model": "m", "messages": []interface{}{}}, false, 10, 0)
	require.NoError(t, err)
}

func TestValidate_RequestRejectsOversizedPayload(t *testing.T) {
	err := Validate(types.RawMessage{"model": "m", "messages": []interface{}{}}, false, 20<<20, 0)
	require.Error(t, err)
}

func TestValidate_ResponseRequiresIDAndObject(t *testing.T) {
	err := Validate(types.RawMessage{"id": "x", "object": "chat.completion"}, true, 10, 0)
	require.NoError(t, err)

	err = Validate(types.RawMessage{"object": "chat.completion"}, true, 10, 0)
	require.Error(t, err)

	err = Validate(types.RawMessage{"id": "x", "object": "bogus"}, true, 10, 0)
	require.Error(t, err)
}

func TestStreamRequestToNonStream(t *testing.T) {
	req := types.OpenAIRequest{Model: "m", Stream: true}
	out := StreamRequestToNonStream(req)
	assert.False(t, out.Stream)
	assert.Equal(t, "m", out.Model)
}

func TestNonStreamResponseToStream_OrderAndTerminator(t *testing.T) {
	resp := types.OpenAIResponse{
		ID:      "chatcmpl-1",
		Created: 1000,
		Model:   "m",
		Choices: []types.OpenAIChoice{{
			Index: 0,
			Message: types.OpenAIMessage{
				Role:    "assistant",
				Content: "hello world",
				ToolCalls: []types.OpenAIToolCall{
					{ID: "call_1", Type: "function", Function: types.OpenAIToolCallFunction{Name: "lookup", Arguments: `{"q":1}`}},
				},
			},
			FinishReason: strPtr("tool_calls"),
		}},
	}

	chunks := NonStreamResponseToStream(resp)
	require.True(t, len(chunks) >= 4)

	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)
	assert.Nil(t, chunks[0].Choices[0].FinishReason)

	last := chunks[len(chunks)-1]
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "tool_calls", *last.Choices[0].FinishReason)
	assert.Empty(t, last.Choices[0].Delta.Content)

	toolStart := chunks[len(chunks)-3]
	assert.Equal(t, "lookup", toolStart.Choices[0].Delta.ToolCalls[0].Function.Name)
	toolArgs := chunks[len(chunks)-2]
	assert.Equal(t, `{"q":1}`, toolArgs.Choices[0].Delta.ToolCalls[0].Function.Arguments)
}

func TestNonStreamResponseToStream_SlicesTextIntoAtMostTen(t *testing.T) {
	longText := ""
	for i := 0; i < 500; i++ {
		longText += "x"
	}
	resp := types.OpenAIResponse{
		ID: "chatcmpl-2",
		Choices: []types.OpenAIChoice{{
			Message:      types.OpenAIMessage{Content: longText},
			FinishReason: strPtr("stop"),
		}},
	}

	chunks := NonStreamResponseToStream(resp)
	contentChunks := 0
	var rebuilt string
	for _, c := range chunks {
		if c.Choices[0].Delta.Content != "" {
			contentChunks++
			rebuilt += c.Choices[0].Delta.Content
		}
	}
	assert.LessOrEqual(t, contentChunks, maxStreamSlices)
	assert.Equal(t, longText, rebuilt)
}

func TestAggregateChunks_ReconstructsPartialToolCallAcrossChunks(t *testing.T) {
	chunks := []types.OpenAIStreamChunk{
		{
			ID: "chatcmpl-test", Created: 1, Model: "m",
			Choices: []types.OpenAIStreamChoice{{
				Index: 0,
				Delta: types.OpenAIStreamDelta{
					Role: "assistant",
					ToolCalls: []types.OpenAIToolCall{
						{Index: 0, ID: "call_1", Type: "function", Function: types.OpenAIToolCallFunction{Name: "TodoWrite"}},
					},
				},
			}},
		},
		{
			ID: "chatcmpl-test", Created: 1, Model: "m",
			Choices: []types.OpenAIStreamChoice{{
				Index: 0,
				Delta: types.OpenAIStreamDelta{
					ToolCalls: []types.OpenAIToolCall{
						{Index: 0, Function: types.OpenAIToolCallFunction{Arguments: `{"todos":[]}`}},
					},
				},
				FinishReason: strPtr("tool_calls"),
			}},
		},
	}

	resp, err := AggregateChunks(chunks)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.Choices[0].Message.ToolCalls[0].ID)
	assert.Equal(t, "TodoWrite", resp.Choices[0].Message.ToolCalls[0].Function.Name)
	assert.Equal(t, `{"todos":[]}`, resp.Choices[0].Message.ToolCalls[0].Function.Arguments)
	require.NotNil(t, resp.Choices[0].FinishReason)
	assert.Equal(t, "tool_calls", *resp.Choices[0].FinishReason)
}

func TestAggregateChunks_ConcatenatesTextDeltas(t *testing.T) {
	chunks := []types.OpenAIStreamChunk{
		{ID: "c", Choices: []types.OpenAIStreamChoice{{Delta: types.OpenAIStreamDelta{Role: "assistant"}}}},
		{ID: "c", Choices: []types.OpenAIStreamChoice{{Delta: types.OpenAIStreamDelta{Content: "hel"}}}},
		{ID: "c", Choices: []types.OpenAIStreamChoice{{Delta: types.OpenAIStreamDelta{Content: "lo"}, FinishReason: strPtr("stop")}}},
	}

	resp, err := AggregateChunks(chunks)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Choices[0].Message.Content)
}

func TestAggregateChunks_EmptyListIsError(t *testing.T) {
	_, err := AggregateChunks(nil)
	require.Error(t, err)
}

func TestNonStreamResponseToStreamThenAggregateRoundTrips(t *testing.T) {
	resp := types.OpenAIResponse{
		ID:      "chatcmpl-rt",
		Created: 42,
		Model:   "m",
		Choices: []types.OpenAIChoice{{
			Message:      types.OpenAIMessage{Role: "assistant", Content: "round trip text"},
			FinishReason: strPtr("stop"),
		}},
	}

	chunks := NonStreamResponseToStream(resp)
	rebuilt, err := AggregateChunks(chunks)
	require.NoError(t, err)
	assert.Equal(t, resp.Choices[0].Message.Content, rebuilt.Choices[0].Message.Content)
	require.NotNil(t, rebuilt.Choices[0].FinishReason)
	assert.Equal(t, *resp.Choices[0].FinishReason, *rebuilt.Choices[0].FinishReason)
}
