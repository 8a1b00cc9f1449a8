package llm

import (
	"context"
	"encoding/json"

	"github.com/squadlite/squad-lite/internal/agentregistry"
	"github.com/squadlite/squad-lite/internal/checkpoint"
	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/messagebus"
	"github.com/squadlite/squad-lite/internal/taskstore"
)

// Deps are the storage-layer collaborators the fixed tool catalogue
// of spec.md §4.7 is wired against.
type Deps struct {
	Bus         messagebus.Bus
	Checkpoints checkpoint.Store
	Tasks       taskstore.Store
	Agents      agentregistry.Registry
}

// BuildToolCatalogue returns the ten fixed tools exposed to every
// agentic loop invocation, scoped to the calling agent's identity.
// spawnSpecialist is restricted to directors; calling it as a
// specialist returns a tool_result error rather than panicking, since
// handler failures are surfaced to the model, not to the process.
func BuildToolCatalogue(agentID string, agentType domain.AgentType, deps Deps) []Tool {
	return []Tool{
		checkInboxTool(agentID, deps),
		readMessageTool(deps),
		sendMessageTool(agentID, deps),
		checkpointTool(agentID, deps),
		createTaskTool(deps),
		assignTaskTool(deps),
		completeTaskTool(deps),
		getTaskStatusTool(deps),
		listAgentsTool(deps),
		spawnSpecialistTool(agentID, agentType, deps),
	}
}

func mustResult(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", coorderrors.Wrap(coorderrors.KindParseFailure, "marshal tool result", err)
	}
	return string(data), nil
}

func checkInboxTool(agentID string, deps Deps) Tool {
	return Tool{
		Name:        "checkInbox",
		Description: "List unread inbox message previews for the calling agent, highest priority and oldest first.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer"}}}`),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Limit int `json:"limit"`
			}
			_ = json.Unmarshal(input, &args)
			previews, err := deps.Bus.CheckInboxPreviews(ctx, agentID, args.Limit)
			if err != nil {
				return "", err
			}
			return mustResult(previews)
		},
	}
}

func readMessageTool(deps Deps) Tool {
	return Tool{
		Name:        "readMessage",
		Description: "Read the full content of a message by id and mark it read.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"messageId":{"type":"string"}},"required":["messageId"]}`),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				MessageID string `json:"messageId"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", coorderrors.Wrap(coorderrors.KindParseFailure, "parse readMessage input", err)
			}
			msg, err := deps.Bus.ReadMessage(ctx, args.MessageID)
			if err != nil {
				return "", err
			}
			return mustResult(msg)
		},
	}
}

func sendMessageTool(agentID string, deps Deps) Tool {
	return Tool{
		Name:        "sendMessage",
		Description: "Send a message to another agent.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"toAgentId":{"type":"string"},"content":{"type":"string"},"type":{"type":"string","enum":["task","result","status","error"]}},"required":["toAgentId","content","type"]}`),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				ToAgentID string `json:"toAgentId"`
				Content   string `json:"content"`
				Type      string `json:"type"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", coorderrors.Wrap(coorderrors.KindParseFailure, "parse sendMessage input", err)
			}
			msg, err := deps.Bus.SendMessage(ctx, agentID, args.ToAgentID, args.Content, domain.MessageType(args.Type), "", string(domain.PriorityNormal))
			if err != nil {
				return "", err
			}
			return mustResult(map[string]string{"messageId": msg.MessageID, "threadId": msg.ThreadID})
		},
	}
}

func checkpointTool(agentID string, deps Deps) Tool {
	return Tool{
		Name:        "checkpoint",
		Description: "Record a durable checkpoint of progress and how to resume.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"summary":{"type":"object"},"resumePointer":{"type":"object"}},"required":["summary","resumePointer"]}`),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Summary       domain.CheckpointSummary `json:"summary"`
				ResumePointer domain.ResumePointer     `json:"resumePointer"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", coorderrors.Wrap(coorderrors.KindParseFailure, "parse checkpoint input", err)
			}
			agent, err := deps.Agents.GetAgent(ctx, agentID)
			if err != nil {
				return "", err
			}
			cp, err := deps.Checkpoints.CreateCheckpoint(ctx, agentID, args.Summary, args.ResumePointer, agent.TokenUsage.TotalInputTokens+agent.TokenUsage.TotalOutputTokens)
			if err != nil {
				return "", err
			}
			return mustResult(map[string]string{"checkpointId": cp.CheckpointID, "phase": cp.ResumePointer.Phase})
		},
	}
}

func createTaskTool(deps Deps) Tool {
	return Tool{
		Name:        "createTask",
		Description: "Create a new task, optionally as a subtask of an existing one.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"},"description":{"type":"string"},"parentTaskId":{"type":"string"}},"required":["title","description"]}`),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Title        string `json:"title"`
				Description  string `json:"description"`
				ParentTaskID string `json:"parentTaskId"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", coorderrors.Wrap(coorderrors.KindParseFailure, "parse createTask input", err)
			}
			var parent *string
			if args.ParentTaskID != "" {
				parent = &args.ParentTaskID
			}
			task, err := deps.Tasks.CreateTask(ctx, parent, args.Title, args.Description)
			if err != nil {
				return "", err
			}
			return mustResult(map[string]string{"taskId": task.TaskID, "status": string(task.Status)})
		},
	}
}

func assignTaskTool(deps Deps) Tool {
	return Tool{
		Name:        "assignTask",
		Description: "Assign a pending task to an agent.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"taskId":{"type":"string"},"agentId":{"type":"string"}},"required":["taskId","agentId"]}`),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				TaskID  string `json:"taskId"`
				AgentID string `json:"agentId"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", coorderrors.Wrap(coorderrors.KindParseFailure, "parse assignTask input", err)
			}
			task, err := deps.Tasks.AssignTask(ctx, args.TaskID, args.AgentID)
			if err != nil {
				return "", err
			}
			return mustResult(map[string]string{"taskId": task.TaskID, "status": string(task.Status), "assignedTo": args.AgentID})
		},
	}
}

func completeTaskTool(deps Deps) Tool {
	return Tool{
		Name:        "completeTask",
		Description: "Mark a task completed with its result text.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"taskId":{"type":"string"},"result":{"type":"string"}},"required":["taskId","result"]}`),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				TaskID string `json:"taskId"`
				Result string `json:"result"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", coorderrors.Wrap(coorderrors.KindParseFailure, "parse completeTask input", err)
			}
			task, err := deps.Tasks.CompleteTask(ctx, args.TaskID, args.Result)
			if err != nil {
				return "", err
			}
			return mustResult(map[string]string{"taskId": task.TaskID, "status": string(task.Status)})
		},
	}
}

func getTaskStatusTool(deps Deps) Tool {
	return Tool{
		Name:        "getTaskStatus",
		Description: "Fetch the current snapshot of a task.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"taskId":{"type":"string"}},"required":["taskId"]}`),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				TaskID string `json:"taskId"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", coorderrors.Wrap(coorderrors.KindParseFailure, "parse getTaskStatus input", err)
			}
			task, err := deps.Tasks.GetTask(ctx, args.TaskID)
			if err != nil {
				return "", err
			}
			return mustResult(task)
		},
	}
}

func listAgentsTool(deps Deps) Tool {
	return Tool{
		Name:        "listAgents",
		Description: "List agent records, optionally filtered by type or status.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"type":{"type":"string"},"status":{"type":"string"}}}`),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Type   string `json:"type"`
				Status string `json:"status"`
			}
			_ = json.Unmarshal(input, &args)
			all, err := deps.Agents.ListAgents(ctx)
			if err != nil {
				return "", err
			}
			addressable := map[domain.AgentStatus]bool{
				domain.AgentStatusIdle: true, domain.AgentStatusWorking: true, domain.AgentStatusWaiting: true,
			}
			var out []domain.Agent
			for _, a := range all {
				if !addressable[a.Status] {
					continue
				}
				if args.Type != "" && string(a.Type) != args.Type {
					continue
				}
				if args.Status != "" && string(a.Status) != args.Status {
					continue
				}
				out = append(out, a)
			}
			return mustResult(out)
		},
	}
}

func spawnSpecialistTool(agentID string, agentType domain.AgentType, deps Deps) Tool {
	return Tool{
		Name:        "spawnSpecialist",
		Description: "Create a new specialist agent record under this director. Directors only; does not start the specialist's process — the control plane's change-stream watcher does once a task is assigned to it.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"specialization":{"type":"string","enum":["researcher","writer","analyst","general"]}},"required":["specialization"]}`),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			if agentType != domain.AgentTypeDirector {
				return "", coorderrors.New(coorderrors.KindValidation, "only directors may spawn specialists")
			}
			var args struct {
				Specialization string `json:"specialization"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", coorderrors.Wrap(coorderrors.KindParseFailure, "parse spawnSpecialist input", err)
			}
			spec := domain.Specialization(args.Specialization)
			parent := agentID
			agent, err := deps.Agents.RegisterAgent(ctx, domain.AgentTypeSpecialist, &spec, &parent, nil)
			if err != nil {
				return "", err
			}
			return mustResult(map[string]string{"agentId": agent.AgentID})
		},
	}
}
