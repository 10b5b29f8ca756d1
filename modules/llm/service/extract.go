package service

import (
	"encoding/json"
	"strings"
)

// ExtractJSON parses raw as JSON; on failure it looks for the first '{' and
// last '}' and retries once. It returns ok=false if no valid JSON object
// can be recovered.
func ExtractJSON(raw string, out any) bool {
	if json.Unmarshal([]byte(raw), out) == nil {
		return true
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return false
	}
	return json.Unmarshal([]byte(raw[start:end+1]), out) == nil
}
