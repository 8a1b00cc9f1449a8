package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/llm"
	"github.com/squadlite/squad-lite/internal/prompt"
)

const pollInterval = 2 * time.Second

// RunDirector executes the director orchestration loop of spec.md
// §4.6: decompose, spawn+assign, wait, aggregate, summarize.
func (r *Runner) RunDirector(ctx context.Context, agentID, taskID, task string) (string, error) {
	if _, err := r.Agents.UpdateStatus(ctx, agentID, domain.AgentStatusWorking, taskIDPtr(taskID)); err != nil {
		return "", err
	}

	decomp, err := r.decompose(ctx, agentID, task)
	if err != nil {
		return "", err
	}
	if _, err := r.Checkpoints.CreateCheckpoint(ctx, agentID,
		domain.CheckpointSummary{Goal: task, Pending: subtaskTitles(decomp)},
		domain.ResumePointer{NextAction: "spawn specialists", Phase: "spawning"}, 0); err != nil {
		return "", err
	}

	spawned, err := r.spawnAndAssign(ctx, agentID, decomp)
	if err != nil {
		return "", err
	}
	if _, err := r.Checkpoints.CreateCheckpoint(ctx, agentID,
		domain.CheckpointSummary{Goal: task, Completed: []string{"spawned specialists"}},
		domain.ResumePointer{NextAction: "wait for specialists", Phase: "waiting", CurrentContext: strings.Join(spawnedTaskIDs(spawned), ",")}, 0); err != nil {
		return "", err
	}

	completed := r.waitForSpawned(ctx, spawned)
	aggregated := aggregate(completed)

	summaryText, err := r.summarize(ctx, agentID, task, aggregated)
	if err != nil {
		return "", err
	}

	if _, err := r.Checkpoints.CreateCheckpoint(ctx, agentID,
		domain.CheckpointSummary{Goal: task, Completed: []string{"aggregated results", "produced summary"}},
		domain.ResumePointer{NextAction: "none", Phase: "complete"}, 0); err != nil {
		return "", err
	}

	if _, err := r.Agents.UpdateStatus(ctx, agentID, domain.AgentStatusCompleted, nil); err != nil {
		return "", err
	}

	r.print(DirectorOutputStart)
	r.print(summaryText)
	r.print(OutputEnd)
	return summaryText, nil
}

func (r *Runner) decompose(ctx context.Context, agentID, task string) (decomposition, error) {
	resp, err := r.LLM.Complete(ctx, llm.Request{
		Model:     r.Model,
		MaxTokens: defaultDecomposeTokens,
		System:    prompt.DirectorSystemPrompt,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(prompt.DecomposeInstruction(task))}}},
	})
	if err != nil {
		return decomposition{}, err
	}
	r.addTokens(ctx, agentID, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var text string
	for _, b := range resp.Content {
		if b.Type == llm.ContentText {
			text += b.Text
		}
	}
	return parseDecomposition(text, task), nil
}

type spawnedSpecialist struct {
	agentID string
	taskID  string
	title   string
}

type subtaskResult struct {
	title  string
	status domain.TaskStatus
	result string
}

func (r *Runner) spawnAndAssign(ctx context.Context, directorID string, decomp decomposition) ([]spawnedSpecialist, error) {
	out := make([]spawnedSpecialist, 0, len(decomp.Subtasks))
	for _, st := range decomp.Subtasks {
		spec := domain.Specialization(st.Specialization)
		if spec == "" {
			spec = domain.SpecializationGeneral
		}
		agent, err := r.Agents.RegisterAgent(ctx, domain.AgentTypeSpecialist, &spec, &directorID, nil)
		if err != nil {
			return nil, err
		}
		task, err := r.Tasks.CreateTask(ctx, nil, st.Title, st.Description)
		if err != nil {
			return nil, err
		}
		if _, err := r.Tasks.AssignTask(ctx, task.TaskID, agent.AgentID); err != nil {
			return nil, err
		}
		if _, err := r.Bus.SendMessage(ctx, directorID, agent.AgentID, st.Title+"\n\n"+st.Description, domain.MessageTypeTask, "", string(domain.PriorityNormal)); err != nil {
			return nil, err
		}
		out = append(out, spawnedSpecialist{agentID: agent.AgentID, taskID: task.TaskID, title: st.Title})
	}
	return out, nil
}

// waitForSpawned polls every pollInterval until every spawned task is
// terminal or WaitTimeout elapses; partial completion on timeout is
// acceptable (spec.md §4.6 step 3).
func (r *Runner) waitForSpawned(ctx context.Context, spawned []spawnedSpecialist) []subtaskResult {
	timeout := r.WaitTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	deadline := time.Now().Add(timeout)
	pending := make(map[string]spawnedSpecialist, len(spawned))
	for _, s := range spawned {
		pending[s.taskID] = s
	}
	var results []subtaskResult

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for len(pending) > 0 && time.Now().Before(deadline) {
		for taskID, s := range pending {
			task, err := r.Tasks.GetTask(ctx, taskID)
			if err != nil {
				continue
			}
			if task.Status.IsTerminal() {
				result := ""
				if task.Result != nil {
					result = *task.Result
				}
				results = append(results, subtaskResult{title: s.title, status: task.Status, result: result})
				delete(pending, taskID)
			}
		}
		if len(pending) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return results
		case <-ticker.C:
		case <-time.After(time.Until(deadline)):
			return results
		}
	}
	return results
}

// aggregate concatenates successful subtask results into a Markdown
// document with one level-2 heading per subtask title (spec.md §4.6
// step 4). Failed subtasks are omitted from the body.
func aggregate(results []subtaskResult) string {
	var b strings.Builder
	for _, res := range results {
		if res.status != domain.TaskStatusCompleted {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", res.title, res.result)
	}
	return b.String()
}

func (r *Runner) summarize(ctx context.Context, agentID, task, aggregated string) (string, error) {
	resp, err := r.LLM.Complete(ctx, llm.Request{
		Model:     r.Model,
		MaxTokens: defaultDecomposeTokens,
		System:    prompt.DirectorSummarySystemPrompt,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(prompt.SummarizeInstruction(task, aggregated))}}},
	})
	if err != nil {
		return "", err
	}
	r.addTokens(ctx, agentID, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var text string
	for _, b := range resp.Content {
		if b.Type == llm.ContentText {
			text += b.Text
		}
	}
	if text == "" {
		return "", coorderrors.New(coorderrors.KindLLMFailure, "summary response had no text content")
	}
	return text, nil
}

func subtaskTitles(d decomposition) []string {
	out := make([]string, 0, len(d.Subtasks))
	for _, s := range d.Subtasks {
		out = append(out, s.Title)
	}
	return out
}

func spawnedTaskIDs(spawned []spawnedSpecialist) []string {
	out := make([]string, 0, len(spawned))
	for _, s := range spawned {
		out = append(out, s.taskID)
	}
	return out
}
