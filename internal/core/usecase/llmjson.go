package usecase

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	reasoningBlockRe = regexp.MustCompile(`(?is)<think>.*?</think>`)
	codeFenceRe      = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$")
)

// stripReasoning removes reasoning blocks and markdown fences around a model response.
func stripReasoning(raw string) string {
	raw = reasoningBlockRe.ReplaceAllString(raw, "")
	if idx := strings.Index(strings.ToLower(raw), "<think>"); idx >= 0 {
		raw = raw[:idx]
	}
	raw = codeFenceRe.ReplaceAllString(raw, "")
	return strings.TrimSpace(raw)
}

// extractJSONObject returns the first complete JSON object in a model response.
// Braces in surrounding prose are skipped: each '{' is tried until one decodes.
func extractJSONObject(raw string) (string, bool) {
	raw = stripReasoning(raw)
	for offset := 0; ; {
		i := strings.IndexByte(raw[offset:], '{')
		if i < 0 {
			return "", false
		}
		start := offset + i
		dec := json.NewDecoder(strings.NewReader(raw[start:]))
		var obj map[string]json.RawMessage
		if err := dec.Decode(&obj); err == nil {
			return raw[start : start+int(dec.InputOffset())], true
		}
		offset = start + 1
	}
}
