package runtime

import (
	"strings"

	"github.com/squadlite/squad-lite/internal/domain"
)

// ExtractResult implements spec.md §4.6's result-extraction rule: the
// substring between the first matching sentinel pair for the given
// agent type, or the whole trimmed stdout if the pair is absent.
func ExtractResult(stdout string, agentType domain.AgentType) string {
	start := SpecialistOutputStart
	if agentType == domain.AgentTypeDirector {
		start = DirectorOutputStart
	}

	trimmed := strings.TrimSpace(stdout)
	startIdx := strings.Index(trimmed, start)
	if startIdx == -1 {
		return trimmed
	}
	rest := trimmed[startIdx+len(start):]
	endIdx := strings.Index(rest, OutputEnd)
	if endIdx == -1 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:endIdx])
}
