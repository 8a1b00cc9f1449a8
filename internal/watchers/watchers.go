// Package watchers implements the three MongoDB change-stream
// watchers of spec.md §4.8: tasks (auto-starts specialist processes
// on assignment), messages, and checkpoints (both just fan out to the
// event bus). A single control-plane process runs one of each; the
// in-memory "starting" set is the double-start guard spec.md §4.8
// calls for, since a restarted watcher finds the task already past
// the pending/assigned filter once a run begins.
package watchers

import (
	"context"
	"log"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/squadlite/squad-lite/internal/agentregistry"
	"github.com/squadlite/squad-lite/internal/eventbus"
	"github.com/squadlite/squad-lite/internal/sandbox"
	"github.com/squadlite/squad-lite/internal/taskstore"
)

// Watcher owns the three change streams and the dependencies needed
// to react to what they report.
type Watcher struct {
	TaskColl       *mongo.Collection
	MessageColl    *mongo.Collection
	CheckpointColl *mongo.Collection

	Tasks        taskstore.Store
	Agents       agentregistry.Registry
	Orchestrator *sandbox.Orchestrator
	Events       *eventbus.Bus

	// RuntimeEnv is passed to every agent process the task watcher
	// launches: MongoDB connection info and the LLM API key. The task
	// body itself never goes here (spec.md §7); it travels through
	// Orchestrator.RunAgent's own AGENT_TASK injection.
	RuntimeEnv map[string]string

	mu       sync.Mutex
	starting map[string]bool
}

func New(taskColl, messageColl, checkpointColl *mongo.Collection, tasks taskstore.Store, agents agentregistry.Registry, orchestrator *sandbox.Orchestrator, events *eventbus.Bus, runtimeEnv map[string]string) *Watcher {
	return &Watcher{
		TaskColl:       taskColl,
		MessageColl:    messageColl,
		CheckpointColl: checkpointColl,
		Tasks:          tasks,
		Agents:         agents,
		Orchestrator:   orchestrator,
		Events:         events,
		RuntimeEnv:     runtimeEnv,
		starting:       make(map[string]bool),
	}
}

// Start opens all three change streams and begins consuming them in
// their own goroutines. It returns once every stream is open, or the
// first error encountered opening one.
func (w *Watcher) Start(ctx context.Context) error {
	taskStream, err := w.openTaskStream(ctx)
	if err != nil {
		return err
	}
	messageStream, err := w.openMessageStream(ctx)
	if err != nil {
		return err
	}
	checkpointStream, err := w.openCheckpointStream(ctx)
	if err != nil {
		return err
	}

	go w.consumeTaskStream(ctx, taskStream)
	go w.consumeMessageStream(ctx, messageStream)
	go w.consumeCheckpointStream(ctx, checkpointStream)
	return nil
}

// tryStart marks agentID as being launched, returning false if it is
// already running or already being started by a concurrent change
// event. release must be called once the run (or the attempt to
// start it) is finished.
func (w *Watcher) tryStart(agentID string) (release func(), ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.starting[agentID] {
		return nil, false
	}
	w.starting[agentID] = true
	return func() {
		w.mu.Lock()
		delete(w.starting, agentID)
		w.mu.Unlock()
	}, true
}

func logErr(action string, err error) {
	if err != nil {
		log.Printf("watchers: %s: %v", action, err)
	}
}
