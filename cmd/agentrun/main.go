// Command agentrun is the agent runtime CLI invoked inside the shared
// sandbox (spec.md §6). It resolves its identity from command-line
// flags, reads its task body from AGENT_TASK, runs the director or
// specialist loop, and exits 0 on success or 1 on fatal error.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/squadlite/squad-lite/internal/agentregistry"
	"github.com/squadlite/squad-lite/internal/checkpoint"
	"github.com/squadlite/squad-lite/internal/config"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/llm"
	"github.com/squadlite/squad-lite/internal/messagebus"
	"github.com/squadlite/squad-lite/internal/runtime"
	"github.com/squadlite/squad-lite/internal/storage"
	"github.com/squadlite/squad-lite/internal/taskstore"
)

func main() {
	var agentID, agentType, specialization, parentID, taskID string
	flag.StringVar(&agentID, "agentId", "", "UUID of this agent")
	flag.StringVar(&agentType, "agentType", "", "director|specialist")
	flag.StringVar(&specialization, "specialization", "", "researcher|writer|analyst|general")
	flag.StringVar(&parentID, "parentId", "", "UUID of the parent director, if any")
	flag.StringVar(&taskID, "taskId", "", "UUID of the task this agent is working, if any")
	flag.Parse()

	if agentID == "" || (agentType != string(domain.AgentTypeDirector) && agentType != string(domain.AgentTypeSpecialist)) {
		log.Fatal("agentrun: --agentId and a valid --agentType are required")
	}

	env := config.LoadAgentRuntimeEnv()
	if env.Task == "" {
		log.Fatal("agentrun: AGENT_TASK is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	store, err := storage.Connect(ctx, env.MongoURI, env.MongoDBName)
	if err != nil {
		log.Fatalf("agentrun: connect storage: %v", err)
	}
	defer store.Close(context.Background())

	agents := agentregistry.NewMongoRegistry(store.Agents)
	tasks := taskstore.NewMongoStore(store.Tasks)
	bus := messagebus.NewMongoBus(store.Messages)
	checkpoints := checkpoint.NewMongoStore(store.Checkpoints)
	client := llm.NewAnthropicClient(env.AnthropicAPIKey)

	r := &runtime.Runner{
		Agents:      agents,
		Tasks:       tasks,
		Bus:         bus,
		Checkpoints: checkpoints,
		LLM:         client,
		Model:       "claude-sonnet-4-5",
		MaxTurns:    50,
		WaitTimeout: 120 * time.Second,
		Print:       func(line string) { fmt.Println(line) },
	}

	if _, err := agents.GetOrCreateSession(ctx, agentID); err != nil {
		log.Fatalf("agentrun: resolve session: %v", err)
	}

	var runErr error
	if agentType == string(domain.AgentTypeDirector) {
		_, runErr = r.RunDirector(ctx, agentID, taskID, env.Task)
	} else {
		var parent *string
		if parentID != "" {
			parent = &parentID
		}
		_, runErr = r.RunSpecialist(ctx, agentID, taskID, parent, env.Task)
	}

	if runErr != nil {
		_, _ = agents.UpdateStatus(context.Background(), agentID, domain.AgentStatusError, nil)
		log.Printf("agentrun: %v", runErr)
		os.Exit(1)
	}
	os.Exit(0)
}
