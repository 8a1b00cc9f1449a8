package runtime

import (
	"encoding/json"
	"strings"

	"github.com/squadlite/squad-lite/internal/domain"
)

// extractFirstJSONObject scans text for the first balanced {...}
// substring, respecting string literals and escapes so braces inside
// quoted text don't throw off the count, and returns it unparsed.
// Spec.md §4.6 calls this "the first {...} JSON object substring".
func extractFirstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// parseDecomposition applies spec.md §4.6 step 1's fallback rule:
// any parse failure (missing JSON, malformed JSON, empty subtasks)
// yields a single general-purpose subtask over the whole task.
func parseDecomposition(responseText, task string) decomposition {
	fallback := decomposition{Subtasks: []subtask{{
		Title:          "Complete task",
		Description:    task,
		Specialization: string(domain.SpecializationGeneral),
	}}}

	raw, ok := extractFirstJSONObject(responseText)
	if !ok {
		return fallback
	}
	var parsed decomposition
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fallback
	}
	if len(parsed.Subtasks) == 0 {
		return fallback
	}
	return parsed
}
