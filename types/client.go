package types

// ClientRequest is the incoming request in the client dialect: a
// message-oriented, tool-use-block chat request. This is the shape the
// proxy's external callers speak, independent of any upstream provider.
type ClientRequest struct {
	Model     string          `json:"model"`
	Messages  []ClientMessage `json:"messages"`
	System    []SystemContent `json:"system,omitempty"`
	Tools     []Tool          `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`

	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
	Stream        bool     `json:"stream,omitempty"`
}

// ClientResponse is the reply in the client dialect.
type ClientResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Role         string    `json:"role"`
	Model        string    `json:"model"`
	Content      []Content `json:"content"`
	StopReason   string    `json:"stop_reason"`
	StopSequence *string   `json:"stop_sequence"`
	Usage        Usage     `json:"usage"`
}

// ClientMessage is one turn in a client-dialect conversation. Content is
// either a plain string or a []Content array of typed blocks.
type ClientMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// SystemContent is one block of an optional system prompt.
type SystemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Content is one typed content block: text, image-reference, tool_use, or
// tool_result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use fields
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	// tool_result fields
	ToolUseID string      `json:"tool_use_id,omitempty"`
	Content   interface{} `json:"content,omitempty"`

	// image-reference fields
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource describes an inline or referenced image block.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Tool is a client-dialect tool definition: name, description, and an
// input JSON schema.
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema ToolSchema `json:"input_schema"`
}

// ToolSchema is a (simplified) JSON schema for a tool's input object.
type ToolSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]ToolProperty `json:"properties"`
	Required   []string                `json:"required"`
}

// ToolProperty describes one property of a tool's input schema.
type ToolProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Usage carries client-dialect token counters.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
