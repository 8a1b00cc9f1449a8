// Command controlplaned is the control-plane server of spec.md §4.9:
// it exposes the REST/WebSocket surface, runs the three change-stream
// watchers, and owns the shared sandbox orchestrator that every agent
// process runs inside.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/squadlite/squad-lite/internal/agentregistry"
	"github.com/squadlite/squad-lite/internal/api"
	"github.com/squadlite/squad-lite/internal/checkpoint"
	"github.com/squadlite/squad-lite/internal/config"
	"github.com/squadlite/squad-lite/internal/eventbus"
	"github.com/squadlite/squad-lite/internal/messagebus"
	"github.com/squadlite/squad-lite/internal/sandbox"
	"github.com/squadlite/squad-lite/internal/sandboxstore"
	"github.com/squadlite/squad-lite/internal/storage"
	"github.com/squadlite/squad-lite/internal/taskstore"
	"github.com/squadlite/squad-lite/internal/watchers"
)

func main() {
	sweep := flag.Bool("sweep", false, "run the liveness sweep once, print stale agents, and exit")
	staleAfter := flag.Duration("stale-after", 60*time.Second, "heartbeat age past which a working/waiting agent is reported stale (used with -sweep)")
	flag.Parse()

	cfg := config.Load()

	if *sweep {
		runSweep(cfg, *staleAfter)
		return
	}
	runServer(cfg)
}

// runSweep is the CLI half of the ambient liveness-sweep addition of
// SPEC_FULL.md §2 (C5/C9): a one-shot check for agents claiming
// working/waiting whose process likely died without updating status.
// It shares api.StaleAgents with the REST endpoint so both report the
// same thing.
func runSweep(cfg config.Config, staleAfter time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("controlplaned sweep: connect storage: %v", err)
	}
	defer store.Close(context.Background())

	agents := agentregistry.NewMongoRegistry(store.Agents)
	all, err := agents.ListAgents(ctx)
	if err != nil {
		log.Fatalf("controlplaned sweep: list agents: %v", err)
	}
	stale := api.StaleAgents(all, time.Now().UTC(), staleAfter)
	if len(stale) == 0 {
		fmt.Println("no stale agents")
		return
	}
	for _, a := range stale {
		fmt.Printf("%s\ttype=%s\tstatus=%s\tlastHeartbeat=%s\n", a.AgentID, a.Type, a.Status, a.LastHeartbeat.Format(time.RFC3339))
	}
}

func runServer(cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("controlplaned: connect storage: %v", err)
	}
	defer store.Close(context.Background())

	agents := agentregistry.NewMongoRegistry(store.Agents)
	tasks := taskstore.NewMongoStore(store.Tasks)
	bus := messagebus.NewMongoBus(store.Messages)
	checkpoints := checkpoint.NewMongoStore(store.Checkpoints)
	_ = checkpoints
	sandboxes := sandboxstore.NewMongoStore(store.Sandboxes)
	events := eventbus.NewBus()

	provider := sandbox.NewLocalProvider(resolveRuntimeBinary(cfg.RuntimeBinary))
	orchestrator := sandbox.NewOrchestrator(provider, sandboxes, agents, func(agentID string, stream sandbox.OutputStream, data string) {
		events.Publish(eventbus.EventAgentOutput, map[string]any{
			"agentId": agentID,
			"stream":  stream,
			"content": data,
		})
	})

	runtimeEnv := map[string]string{
		"ANTHROPIC_API_KEY": cfg.AnthropicAPIKey,
		"MONGODB_URI":       cfg.MongoURI,
		"MONGODB_DB_NAME":   cfg.MongoDBName,
	}

	watcher := watchers.New(store.Tasks, store.Messages, store.Checkpoints, tasks, agents, orchestrator, events, runtimeEnv)
	if err := watcher.Start(ctx); err != nil {
		log.Fatalf("controlplaned: start watchers: %v", err)
	}

	apiServer := &api.Server{
		Agents:       agents,
		Tasks:        tasks,
		Messages:     bus,
		Sandboxes:    sandboxes,
		Orchestrator: orchestrator,
		Events:       events,
		RuntimeEnv:   runtimeEnv,
		StartedAt:    time.Now().UTC(),
	}

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatalf("controlplaned: listen: %v", err)
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Handler:           loggingMiddleware(recoverMiddleware(apiServer.Handler())),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return serverCtx
		},
	}

	go func() {
		log.Printf("controlplaned listening on %s", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("controlplaned: http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	serverCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("controlplaned: shutdown error: %v", err)
	}
	_ = httpServer.Close()
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// recoverMiddleware turns a panicking handler into a 500 response
// instead of taking down the whole process; one bad request must not
// kill every other agent's WebSocket subscription.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("controlplaned: recovered panic in %s %s: %v", r.Method, r.URL.Path, rec)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// resolveRuntimeBinary defaults to the agentrun binary installed next
// to this one, so a single release directory works without extra
// configuration.
func resolveRuntimeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	exe, err := os.Executable()
	if err != nil {
		return "agentrun"
	}
	return filepath.Join(filepath.Dir(exe), "agentrun")
}
