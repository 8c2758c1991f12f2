package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSONBlock locates the outermost JSON object in a raw LLM response
// and unmarshals it into target. Models often wrap JSON in prose or code
// fences; anything before the first '{' and after the last '}' is ignored.
// A response with no parseable object fails with ErrMalformedResponse.
func extractJSONBlock(raw string, target any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no JSON object in %q", ErrMalformedResponse, truncate(raw, 120))
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
