package backend

import (
	"encoding/json"
	"strings"
)

// DefaultNoResponse is returned when the provider payload carries no usable
// text under any known shape.
const DefaultNoResponse = "I don't have a response right now. Please try again later."

// Strategy pulls reply text out of one decoded response shape. It reports
// false when the shape does not match or yields empty text.
type Strategy func(body map[string]any) (string, bool)

// Strategies are tried in priority order: plain string fields first, then
// the OpenAI-style choices array.
var Strategies = []Strategy{
	extractDirectField,
	extractFromChoices,
}

// ExtractReply resolves the reply text from a raw provider response body,
// falling back to DefaultNoResponse when nothing matches.
func ExtractReply(body []byte) string {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return DefaultNoResponse
	}

	for _, strategy := range Strategies {
		if text, ok := strategy(decoded); ok {
			return strings.TrimSpace(text)
		}
	}
	return DefaultNoResponse
}

// extractDirectField checks the common single-field shapes in priority
// order: reply, text, content, message.
func extractDirectField(body map[string]any) (string, bool) {
	for _, key := range []string{"reply", "text", "content", "message"} {
		if value, ok := body[key].(string); ok && strings.TrimSpace(value) != "" {
			return value, true
		}
	}
	return "", false
}

// extractFromChoices handles OpenAI-style payloads: the first choice may be
// a bare string, an object with a text field, or an object whose message
// has a content field.
func extractFromChoices(body map[string]any) (string, bool) {
	choices, ok := body["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}

	switch choice := choices[0].(type) {
	case string:
		if strings.TrimSpace(choice) != "" {
			return choice, true
		}
	case map[string]any:
		if text, ok := choice["text"].(string); ok && strings.TrimSpace(text) != "" {
			return text, true
		}
		if message, ok := choice["message"].(map[string]any); ok {
			if content, ok := message["content"].(string); ok && strings.TrimSpace(content) != "" {
				return content, true
			}
		}
	}
	return "", false
}
