package tool

import "strings"

// Keys stripped from operation payloads before they are fed back to the
// model. Internal identifiers stay internal; secrets never transit the
// model at all.
var (
	strippedExact = map[string]struct{}{
		"internal_id": {},
		"internalid":  {},
		"db_id":       {},
		"dbid":        {},
		"row_id":      {},
		"rowid":       {},
	}
	strippedParts = []string{"secret", "token", "password", "api_key", "apikey", "credential", "private_key"}
)

// SanitizePayload returns a deep copy of v with secret-bearing and
// internal-identifier keys removed from every nested map. Slices are walked;
// scalar values pass through unchanged.
func SanitizePayload(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if isStrippedKey(k) {
				continue
			}
			out[k] = SanitizePayload(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = SanitizePayload(inner)
		}
		return out
	default:
		return v
	}
}

func isStrippedKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if _, ok := strippedExact[k]; ok {
		return true
	}
	for _, part := range strippedParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return strings.HasPrefix(k, "internal_")
}
