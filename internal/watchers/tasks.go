package watchers

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/eventbus"
	"github.com/squadlite/squad-lite/internal/runtime"
	"github.com/squadlite/squad-lite/internal/sandbox"
)

type taskChangeEvent struct {
	FullDocument domain.Task `bson:"fullDocument"`
}

// openTaskStream watches for the condition of spec.md §4.8: a task
// that has been assigned to someone and has not yet moved past
// assigned.
func (w *Watcher) openTaskStream(ctx context.Context) (*mongo.ChangeStream, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace"}}}},
			{Key: "fullDocument.assignedTo", Value: bson.D{{Key: "$ne", Value: nil}}},
			{Key: "fullDocument.status", Value: bson.D{{Key: "$in", Value: bson.A{
				domain.TaskStatusPending, domain.TaskStatusAssigned,
			}}}},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	return w.TaskColl.Watch(ctx, pipeline, opts)
}

func (w *Watcher) consumeTaskStream(ctx context.Context, stream *mongo.ChangeStream) {
	defer stream.Close(ctx)
	for stream.Next(ctx) {
		var event taskChangeEvent
		if err := stream.Decode(&event); err != nil {
			log.Printf("watchers: decode task event: %v", err)
			continue
		}
		go w.handleTaskAssigned(ctx, event.FullDocument)
	}
}

// handleTaskAssigned is the mechanism by which a director's
// spawnSpecialist + assignTask calls produce actual work: the
// director never starts specialist processes directly (spec.md §4.8).
func (w *Watcher) handleTaskAssigned(ctx context.Context, task domain.Task) {
	if task.AssignedTo == nil {
		return
	}
	agentID := *task.AssignedTo

	release, ok := w.tryStart(agentID)
	if !ok {
		return
	}
	defer release()

	agent, err := w.Agents.GetAgent(ctx, agentID)
	if err != nil {
		log.Printf("watchers: lookup assignee %s: %v", agentID, err)
		return
	}
	if agent.Type != domain.AgentTypeSpecialist || agent.ParentID == nil {
		return
	}
	if status, running := w.Orchestrator.Status(agentID); running && status == sandbox.ProcessRunning {
		return
	}

	if _, err := w.Tasks.UpdateStatus(ctx, task.TaskID, domain.TaskStatusInProgress); err != nil {
		// Lost the race to another watcher instance or a concurrent
		// reassignment; whoever won owns the run.
		return
	}

	if w.Events != nil {
		w.Events.Publish(eventbus.EventAgentStatus, map[string]string{
			"agentId": agentID,
			"status":  string(domain.AgentStatusWorking),
		})
	}

	if _, err := w.Orchestrator.Register(ctx, agentID, agent.Type, agent.Specialization); err != nil {
		w.failTask(ctx, task.TaskID, err)
		return
	}

	stdout, runErr := w.Orchestrator.RunAgent(ctx, agentID, task.TaskID, task.Description, agent.ParentID, w.RuntimeEnv)
	if runErr != nil {
		w.failTask(ctx, task.TaskID, runErr)
		return
	}

	result := runtime.ExtractResult(stdout, agent.Type)
	if _, err := w.Tasks.CompleteTask(ctx, task.TaskID, result); err != nil {
		logErr("complete task "+task.TaskID, err)
	}
	if w.Events != nil {
		w.Events.Publish(eventbus.EventTaskStatus, map[string]string{
			"taskId": task.TaskID,
			"status": string(domain.TaskStatusCompleted),
		})
	}
}

func (w *Watcher) failTask(ctx context.Context, taskID string, cause error) {
	if _, err := w.Tasks.FailTask(ctx, taskID, "Error: "+cause.Error()); err != nil {
		logErr("fail task "+taskID, err)
		return
	}
	if w.Events != nil {
		w.Events.Publish(eventbus.EventTaskStatus, map[string]string{
			"taskId": taskID,
			"status": string(domain.TaskStatusFailed),
		})
	}
}
