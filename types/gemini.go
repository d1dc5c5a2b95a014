package types

// GeminiRequest is the top-level body for POST
// /v1beta/models/{model}:generateContent. The system prompt is a top-level
// field rather than a message, conversation turns become Contents with only
// "user"/"model" roles, and generation parameters nest under
// GenerationConfig.
type GeminiRequest struct {
	Contents          []GeminiContent       `json:"contents"`
	SystemInstruction *GeminiSystemInstruct `json:"systemInstruction,omitempty"`
	Tools             []GeminiTool          `json:"tools,omitempty"`
	GenerationConfig  *GeminiGenConfig      `json:"generationConfig,omitempty"`
}

// GeminiSystemInstruct holds the system prompt. Gemini requires Role to be
// "user" here, never "system".
type GeminiSystemInstruct struct {
	Role  string      `json:"role"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiContent is one conversation turn. Only "user" and "model" roles
// exist: tool results (functionResponse) are carried in role "user", tool
// calls (functionCall) in role "model".
type GeminiContent struct {
	Role  string       `json:"role"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is the union type for content parts; a single content can mix
// text, FunctionCall, and FunctionResponse parts in the same array.
type GeminiPart struct {
	Text             string                 `json:"text,omitempty"`
	FunctionCall     *GeminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *GeminiFunctionResponse `json:"functionResponse,omitempty"`
}

// GeminiFunctionCall is a tool invocation from the model. Args is a JSON
// object, not a JSON string as in the OpenAI family.
type GeminiFunctionCall struct {
	Name string      `json:"name"`
	Args interface{} `json:"args,omitempty"`
}

// GeminiFunctionResponse is a tool result sent back to the model. Response
// must be an object, never a bare string — string results are wrapped as
// {"return_value": "..."}.
type GeminiFunctionResponse struct {
	Name     string      `json:"name"`
	Response interface{} `json:"response"`
	ID       string      `json:"id,omitempty"`
}

// GeminiTool wraps function declarations; all functions go in a single
// FunctionDeclarations array, unlike the OpenAI family's one-tool-per-entry
// list.
type GeminiTool struct {
	FunctionDeclarations []GeminiFunctionDecl `json:"functionDeclarations"`
}

// GeminiFunctionDecl describes a tool available to the model: no
// "type":"function" wrapper, just name, description, and parameters at the
// top level.
type GeminiFunctionDecl struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters,omitempty"`
}

// GeminiGenConfig holds model configuration parameters nested under a
// single object rather than top-level request fields.
type GeminiGenConfig struct {
	Temperature     float64               `json:"temperature,omitempty"`
	TopP            float64               `json:"topP,omitempty"`
	TopK            int                   `json:"topK,omitempty"`
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	StopSequences   []string              `json:"stopSequences,omitempty"`
	ThinkingConfig  *GeminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

// GeminiThinkingConfig enables and shapes the model's reasoning trace.
type GeminiThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
}

// GeminiResponse is the top-level response from generateContent. Candidates
// play the role of the OpenAI family's choices.
type GeminiResponse struct {
	Candidates    []GeminiCandidate `json:"candidates"`
	UsageMetadata *GeminiUsage      `json:"usageMetadata,omitempty"`
	ModelVersion  string            `json:"modelVersion,omitempty"`
}

// GeminiCandidate is one possible completion. FinishReason is "STOP" even
// when the candidate carries a function call — callers must inspect Parts
// for a FunctionCall to detect tool use, never trust FinishReason alone.
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

// GeminiUsage tracks token consumption. CandidatesTokenCount and
// ThoughtsTokenCount (reasoning-model thinking tokens) are both billed as
// output and summed by the adapter when building a canonical Usage.
type GeminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
	ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
}
