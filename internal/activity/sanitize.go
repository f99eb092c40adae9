package activity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips markup from plain text while keeping punctuation readable.
func SanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// Sanitize strips markup from every string value in a JSON document.
func Sanitize(raw []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("sanitize content: %w", err)
	}
	return json.Marshal(sanitizeValue(doc))
}

func sanitizeValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case string:
		return SanitizeText(typed)
	case []interface{}:
		for i := range typed {
			typed[i] = sanitizeValue(typed[i])
		}
		return typed
	case map[string]interface{}:
		for k, item := range typed {
			typed[k] = sanitizeValue(item)
		}
		return typed
	default:
		return v
	}
}
