// Package domain holds the shared enums and document shapes of the
// five MongoDB collections described in spec.md §3. Types here carry
// bson tags for storage and json tags for the REST/WebSocket surface.
package domain

import "time"

type AgentType string

const (
	AgentTypeDirector   AgentType = "director"
	AgentTypeSpecialist AgentType = "specialist"
)

type Specialization string

const (
	SpecializationResearcher Specialization = "researcher"
	SpecializationWriter     Specialization = "writer"
	SpecializationAnalyst    Specialization = "analyst"
	SpecializationGeneral    Specialization = "general"
)

type AgentStatus string

const (
	AgentStatusIdle      AgentStatus = "idle"
	AgentStatusWorking   AgentStatus = "working"
	AgentStatusWaiting   AgentStatus = "waiting"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusError     AgentStatus = "error"
)

type SandboxStatus string

const (
	SandboxStatusNone   SandboxStatus = "none"
	SandboxStatusActive SandboxStatus = "active"
	SandboxStatusPaused SandboxStatus = "paused"
	SandboxStatusKilled SandboxStatus = "killed"
)

type TokenUsage struct {
	TotalInputTokens  int64      `bson:"totalInputTokens" json:"total_input_tokens"`
	TotalOutputTokens int64      `bson:"totalOutputTokens" json:"total_output_tokens"`
	LastUpdated       *time.Time `bson:"lastUpdated,omitempty" json:"last_updated,omitempty"`
}

type Agent struct {
	AgentID        string          `bson:"agentId" json:"agentId"`
	Type           AgentType       `bson:"type" json:"type"`
	Specialization *Specialization `bson:"specialization,omitempty" json:"specialization,omitempty"`
	Status         AgentStatus     `bson:"status" json:"status"`
	SandboxID      *string         `bson:"sandboxId,omitempty" json:"sandboxId,omitempty"`
	SandboxStatus  SandboxStatus   `bson:"sandboxStatus" json:"sandboxStatus"`
	ParentID       *string         `bson:"parentId,omitempty" json:"parentId,omitempty"`
	TaskID         *string         `bson:"taskId,omitempty" json:"taskId,omitempty"`
	SessionID      *string         `bson:"sessionId,omitempty" json:"sessionId,omitempty"`
	TokenUsage     TokenUsage      `bson:"tokenUsage" json:"tokenUsage"`
	CreatedAt      time.Time       `bson:"createdAt" json:"createdAt"`
	LastHeartbeat  time.Time       `bson:"lastHeartbeat" json:"lastHeartbeat"`
}

type MessageType string

const (
	MessageTypeTask   MessageType = "task"
	MessageTypeResult MessageType = "result"
	MessageTypeStatus MessageType = "status"
	MessageTypeError  MessageType = "error"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for inbox retrieval: high first, then
// normal, then low. Equal priority ties break on createdAt (FIFO).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

type Message struct {
	MessageID string      `bson:"messageId" json:"messageId"`
	FromAgent string      `bson:"fromAgent" json:"fromAgent"`
	ToAgent   string      `bson:"toAgent" json:"toAgent"`
	Content   string      `bson:"content" json:"content"`
	Type      MessageType `bson:"type" json:"type"`
	ThreadID  string      `bson:"threadId" json:"threadId"`
	Priority  Priority    `bson:"priority" json:"priority"`
	ReadAt    *time.Time  `bson:"readAt,omitempty" json:"readAt,omitempty"`
	CreatedAt time.Time   `bson:"createdAt" json:"createdAt"`
}

// MessagePreview is the notification-injection contract of
// checkInboxPreviews: a lightweight projection the LLM-facing tool
// may see instead of full message content.
type MessagePreview struct {
	MessageID string      `json:"messageId"`
	FromAgent string      `json:"fromAgent"`
	Type      MessageType `json:"type"`
	Priority  Priority    `json:"priority"`
	Preview   string      `json:"preview"`
	CreatedAt time.Time   `json:"createdAt"`
}

type CheckpointSummary struct {
	Goal       string   `bson:"goal" json:"goal"`
	Completed  []string `bson:"completed" json:"completed"`
	Pending    []string `bson:"pending" json:"pending"`
	Decisions  []string `bson:"decisions" json:"decisions"`
}

type ResumePointer struct {
	NextAction     string `bson:"nextAction" json:"nextAction"`
	Phase          string `bson:"phase" json:"phase"`
	CurrentContext string `bson:"currentContext,omitempty" json:"currentContext,omitempty"`
}

type Checkpoint struct {
	CheckpointID  string            `bson:"checkpointId" json:"checkpointId"`
	AgentID       string            `bson:"agentId" json:"agentId"`
	Summary       CheckpointSummary `bson:"summary" json:"summary"`
	ResumePointer ResumePointer     `bson:"resumePointer" json:"resumePointer"`
	TokensUsed    int64             `bson:"tokensUsed" json:"tokensUsed"`
	CreatedAt     time.Time         `bson:"createdAt" json:"createdAt"`
}

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether the status is a DAG sink.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

type Task struct {
	TaskID       string     `bson:"taskId" json:"taskId"`
	ParentTaskID *string    `bson:"parentTaskId,omitempty" json:"parentTaskId,omitempty"`
	AssignedTo   *string    `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	Title        string     `bson:"title" json:"title"`
	Description  string     `bson:"description" json:"description"`
	Status       TaskStatus `bson:"status" json:"status"`
	Result       *string    `bson:"result,omitempty" json:"result,omitempty"`
	CreatedAt    time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time  `bson:"updatedAt" json:"updatedAt"`
}

type SandboxRecordStatus string

const (
	SandboxRecordCreating SandboxRecordStatus = "creating"
	SandboxRecordActive   SandboxRecordStatus = "active"
	SandboxRecordPaused   SandboxRecordStatus = "paused"
	SandboxRecordResuming SandboxRecordStatus = "resuming"
	SandboxRecordKilled   SandboxRecordStatus = "killed"
)

type SandboxMetadata struct {
	AgentType      AgentType       `bson:"agentType" json:"agentType"`
	Specialization *Specialization `bson:"specialization,omitempty" json:"specialization,omitempty"`
	CreatedBy      *string         `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
}

type SandboxLifecycle struct {
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	PausedAt      *time.Time `bson:"pausedAt,omitempty" json:"pausedAt,omitempty"`
	ResumedAt     *time.Time `bson:"resumedAt,omitempty" json:"resumedAt,omitempty"`
	KilledAt      *time.Time `bson:"killedAt,omitempty" json:"killedAt,omitempty"`
	LastHeartbeat time.Time  `bson:"lastHeartbeat" json:"lastHeartbeat"`
}

type SandboxResources struct {
	CPUCount  int `bson:"cpuCount" json:"cpuCount"`
	MemoryMB  int `bson:"memoryMB" json:"memoryMB"`
	TimeoutMs int `bson:"timeoutMs" json:"timeoutMs"`
}

type SandboxCosts struct {
	EstimatedCost  float64 `bson:"estimatedCost" json:"estimatedCost"`
	RuntimeSeconds float64 `bson:"runtimeSeconds" json:"runtimeSeconds"`
}

type SandboxRecord struct {
	SandboxID string              `bson:"sandboxId" json:"sandboxId"`
	AgentID   string              `bson:"agentId" json:"agentId"`
	Status    SandboxRecordStatus `bson:"status" json:"status"`
	Metadata  SandboxMetadata     `bson:"metadata" json:"metadata"`
	Lifecycle SandboxLifecycle    `bson:"lifecycle" json:"lifecycle"`
	Resources SandboxResources    `bson:"resources" json:"resources"`
	Costs     SandboxCosts        `bson:"costs" json:"costs"`
}
