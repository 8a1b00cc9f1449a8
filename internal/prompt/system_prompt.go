// Package prompt holds the system prompts of the director and
// specialist runtime loops (spec.md §4.6), in the teacher's style of
// a single exported constant per role plus small builder functions
// for the pieces that vary per invocation (resume context, decompose
// instructions).
package prompt

// DirectorSystemPrompt is the system prompt for the director's
// decompose call (spec.md §4.6 step 1): a single-shot, tool-free
// request that must yield JSON and nothing else, so the model sees no
// tool catalogue here — the director's spawn/wait/aggregate phases run
// as deterministic host code, not further LLM turns.
const DirectorSystemPrompt = `You are the director agent's task-decomposition step in a multi-agent coordination runtime.

Break the user's task into independent subtasks that specialist agents can execute without depending on each other's output.

Respond with only a JSON object of the exact shape {"subtasks":[{"title":string,"description":string,"specialization":"researcher"|"writer"|"analyst"|"general"}]}, no other text, no markdown fences.`

// DirectorSummarySystemPrompt is the system prompt for the director's
// final summarize call (spec.md §4.6 step 5).
const DirectorSummarySystemPrompt = `You are the director agent's summarization step in a multi-agent coordination runtime.

Write a concise executive summary of the specialist results you are given, for the person who originally requested the task. Do not mention agents, tools, or the coordination process itself.`

const SpecialistSystemPrompt = `You are a specialist agent in a multi-agent coordination runtime.

You receive one task from a director and must produce a result for it.

Tools available: checkInbox, readMessage, sendMessage, checkpoint, createTask, assignTask, completeTask, getTaskStatus, listAgents.

Rules:
- Record one checkpoint when your task is complete.
- If you were given a parent agent id, your final result should be sent back to it via sendMessage with type "result".
- Stay focused on the assigned task; do not spawn further agents.`

// DecomposeInstruction is the director's decompose user message: the
// model sees only the task text, per spec.md §4.6 step 1 ("the model
// sees only the user task"). The JSON-only-output instruction lives in
// DirectorSystemPrompt instead.
func DecomposeInstruction(task string) string {
	return task
}

// SummarizeInstruction is the director's final-phase user message: the
// original task plus the aggregated specialist results (spec.md §4.6
// step 5). The executive-summary instruction lives in
// DirectorSummarySystemPrompt instead.
func SummarizeInstruction(task, aggregated string) string {
	return "Original task:\n" + task +
		"\n\nSpecialist results:\n" + aggregated
}

// ResumePreamble prefixes a restarted agent's first user message with
// the rendered checkpoint context, when one exists.
func ResumePreamble(resumeContext, task string) string {
	if resumeContext == "" {
		return task
	}
	return "Resuming from a previous checkpoint:\n" + resumeContext + "\n\nOriginal task:\n" + task
}
