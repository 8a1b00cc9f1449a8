package runtime

import (
	"context"

	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/llm"
	"github.com/squadlite/squad-lite/internal/prompt"
)

// RunSpecialist executes the specialist execution loop of spec.md
// §4.6: a single agentic run over the assigned task, one completion
// checkpoint, and a result message back to the parent if present.
func (r *Runner) RunSpecialist(ctx context.Context, agentID, taskID string, parentID *string, task string) (string, error) {
	if _, err := r.Agents.UpdateStatus(ctx, agentID, domain.AgentStatusWorking, taskIDPtr(taskID)); err != nil {
		return "", err
	}

	resumeContext, err := r.Checkpoints.BuildResumeContext(ctx, agentID)
	if err != nil {
		return "", err
	}
	userTask := prompt.ResumePreamble(resumeContext, task)

	tools := llm.BuildToolCatalogue(agentID, domain.AgentTypeSpecialist, r.toolDeps())
	maxTurns := r.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 50
	}

	result, err := llm.RunLoop(ctx, r.LLM, r.Model, prompt.SpecialistSystemPrompt, userTask, tools, maxTurns, nil, func(in, out int64) {
		r.addTokens(ctx, agentID, in, out)
	})
	if err != nil {
		_, _ = r.Agents.UpdateStatus(ctx, agentID, domain.AgentStatusError, nil)
		return "", err
	}

	if _, err := r.Checkpoints.CreateCheckpoint(ctx, agentID,
		domain.CheckpointSummary{Goal: task, Completed: []string{"produced result"}},
		domain.ResumePointer{NextAction: "none", Phase: "complete"}, 0); err != nil {
		return "", err
	}

	if parentID != nil {
		if _, err := r.Bus.SendMessage(ctx, agentID, *parentID, result.FinalText, domain.MessageTypeResult, "", string(domain.PriorityNormal)); err != nil {
			return "", err
		}
	}

	if _, err := r.Agents.UpdateStatus(ctx, agentID, domain.AgentStatusCompleted, nil); err != nil {
		return "", err
	}

	r.print(SpecialistOutputStart)
	r.print(result.FinalText)
	r.print(OutputEnd)
	return result.FinalText, nil
}
