package types

// OpenAIRequest is a request body for an OpenAI-compatible chat completions
// endpoint, produced by translating a ClientRequest through the dialect
// codec and a server-compat adapter. Fields beyond the OpenAI baseline
// (RepetitionPenalty, TopK) exist for providers whose adapters populate
// them from the baseline fields.
type OpenAIRequest struct {
	Model            string          `json:"model"`
	Messages         []OpenAIMessage `json:"messages"`
	Tools            []OpenAITool    `json:"tools,omitempty"`
	ToolChoice       interface{}     `json:"tool_choice,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	Temperature      float64         `json:"temperature,omitempty"`
	TopP             float64         `json:"top_p,omitempty"`
	FrequencyPenalty float64         `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64         `json:"presence_penalty,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	Stream           bool            `json:"stream,omitempty"`

	RepetitionPenalty float64 `json:"repetition_penalty,omitempty"`
	TopK              int     `json:"top_k,omitempty"`
}

// OpenAIResponse is a complete, non-stream chat-completion response from an
// OpenAI-compatible provider. The pipeline's protocol controller always
// forces the outbound request to non-stream, so the upstream reply arrives
// in this shape before the server-compat adapter runs response repair.
type OpenAIResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

// OpenAIStreamChunk is one delta chunk of a streaming chat-completion
// response. Usage is only populated on the final chunk by providers that
// support stream_options.include_usage.
type OpenAIStreamChunk struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []OpenAIStreamChoice `json:"choices"`
	Usage   *OpenAIUsage         `json:"usage,omitempty"`
}

// OpenAIMessage is one flat message: a role and string content, plus
// optional tool-call fields used on assistant and tool-result turns.
type OpenAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`

	// ReasoningContent carries a DeepSeek-style "thinking" trace. The
	// adapter layer strips this after logging its length; it never reaches
	// the client dialect.
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// OpenAIChoice is one response alternative. The pipeline only ever reads
// index 0; additional choices, if a provider returns them, are discarded
// during dialect translation.
type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason *string       `json:"finish_reason"`
}

// OpenAIStreamChoice is one choice within a streaming delta chunk.
// FinishReason is nil until the final chunk for that choice.
type OpenAIStreamChoice struct {
	Index        int               `json:"index"`
	Delta        OpenAIStreamDelta `json:"delta"`
	FinishReason *string           `json:"finish_reason"`
}

// OpenAIStreamDelta carries the incremental fields of one streaming chunk.
// Tool call deltas are keyed by OpenAIToolCall.Index since a single call's
// name and arguments can arrive split across several chunks.
type OpenAIStreamDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []OpenAIToolCall `json:"tool_calls,omitempty"`
}

// OpenAITool is a function-call tool definition.
type OpenAITool struct {
	Type     string             `json:"type"`
	Function OpenAIToolFunction `json:"function"`
}

// OpenAIToolFunction is the function signature portion of an OpenAITool.
type OpenAIToolFunction struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  ToolSchema `json:"parameters"`
}

// OpenAIToolCall is one function invocation requested by the model. Index
// is only meaningful in streaming deltas.
type OpenAIToolCall struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Function OpenAIToolCallFunction `json:"function"`
	Index    int                    `json:"index,omitempty"`
}

// OpenAIToolCallFunction carries the invoked function name and its
// serialized-JSON-string arguments. Arguments stay a string here; the
// dialect codec is responsible for parsing them into the client dialect's
// object-valued Content.Input.
type OpenAIToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// OpenAIUsage is the provider's token-accounting block. InputTokens and
// OutputTokens are accepted as aliases some providers send instead of
// PromptTokens/CompletionTokens; response repair folds them onto the
// canonical fields.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// RawMessage is used where a caller only needs to inspect a payload's shape
// without committing to one of the typed request/response structs, such as
// format detection ahead of dialect translation.
type RawMessage = map[string]interface{}
