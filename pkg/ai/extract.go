package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the first JSON object out of a model reply, tolerating code fences and chatter.
func ExtractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, &InvalidResponseError{Content: json.RawMessage(text), Err: fmt.Errorf("no json object in response")}
	}
	candidate := trimmed[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, &InvalidResponseError{Content: json.RawMessage(text), Err: fmt.Errorf("response is not valid json")}
	}
	return json.RawMessage(candidate), nil
}
