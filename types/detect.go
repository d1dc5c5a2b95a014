package types

// Format identifies the wire shape of a decoded JSON value.
type Format int

const (
	// FormatUnknown is returned when no structural predicate matches.
	FormatUnknown Format = iota
	// FormatClientRequest is a client-dialect chat request (messages with
	// content blocks, optional top-level system array).
	FormatClientRequest
	// FormatOpenAIRequest is an OpenAI-family chat-completions request
	// (messages with plain string content).
	FormatOpenAIRequest
	// FormatOpenAIResponse is an OpenAI-family chat-completions response
	// (choices with message/delta).
	FormatOpenAIResponse
	// FormatGeminiRequest is a Gemini-native generateContent request
	// (contents with parts).
	FormatGeminiRequest
)

// DetectFormat classifies a decoded JSON object structurally: by field
// presence and shape, never by an explicit type tag, since none of the
// wire formats in scope carry one. Callers that already know which dialect
// they expect should decode directly instead of calling this; it exists for
// the router and any ingress path that must dispatch on an untyped body.
func DetectFormat(v RawMessage) Format {
	if v == nil {
		return FormatUnknown
	}

	if _, ok := v["contents"]; ok {
		return FormatGeminiRequest
	}

	if choices, ok := v["choices"].([]interface{}); ok {
		if len(choices) == 0 {
			return FormatOpenAIResponse
		}
		if first, ok := choices[0].(map[string]interface{}); ok {
			if _, hasMessage := first["message"]; hasMessage {
				return FormatOpenAIResponse
			}
			if _, hasDelta := first["delta"]; hasDelta {
				return FormatOpenAIResponse
			}
		}
		return FormatOpenAIResponse
	}

	messages, ok := v["messages"].([]interface{})
	if !ok {
		return FormatUnknown
	}

	if _, hasSystemArray := v["system"].([]interface{}); hasSystemArray {
		return FormatClientRequest
	}

	for _, m := range messages {
		msg, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		switch content := msg["content"].(type) {
		case []interface{}:
			// A content array of typed blocks ({"type": "text", ...}) is the
			// client dialect's signature; the OpenAI family always uses a
			// plain string here.
			for _, b := range content {
				if block, ok := b.(map[string]interface{}); ok {
					if _, hasType := block["type"]; hasType {
						return FormatClientRequest
					}
				}
			}
		case string:
			continue
		}
	}

	return FormatOpenAIRequest
}
