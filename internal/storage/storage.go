// Package storage owns the MongoDB connection lifecycle and the five
// collections of spec.md §3: agents, messages, checkpoints, tasks, and
// sandboxes. The mongo.go file of each store package and the
// internal/watchers change streams use the driver against the
// collection handles opened here; every other component depends on
// the narrower per-collection interfaces defined alongside their store
// types.
package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionAgents      = "agents"
	CollectionMessages    = "messages"
	CollectionCheckpoints = "checkpoints"
	CollectionTasks       = "tasks"
	CollectionSandboxes   = "sandboxes"
)

// Store wraps a connected mongo.Database and exposes the five
// collection handles. Connection lifecycle is explicit: Connect opens
// it, Close tears it down, following the teacher's internal/state.Open
// pattern of owning setup/teardown in one place.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	Agents      *mongo.Collection
	Messages    *mongo.Collection
	Checkpoints *mongo.Collection
	Tasks       *mongo.Collection
	Sandboxes   *mongo.Collection
}

// Connect dials MongoDB, pings it, creates the five collections with
// their $jsonSchema validators if they don't exist yet, and ensures
// indexes exist. The returned Store is safe for concurrent use by
// every other component;
// the mongo driver pools connections internally, so a single Store is
// shared process-wide (spec.md §5: "MongoDB connections are pooled by
// a singleton").
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	clientOpts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	db := client.Database(dbName)
	if err := ensureCollections(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	store := &Store{
		client:      client,
		db:          db,
		Agents:      db.Collection(CollectionAgents),
		Messages:    db.Collection(CollectionMessages),
		Checkpoints: db.Collection(CollectionCheckpoints),
		Tasks:       db.Collection(CollectionTasks),
		Sandboxes:   db.Collection(CollectionSandboxes),
	}

	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return store, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Database exposes the underlying *mongo.Database for components that
// need to open additional cursors, notably the change-stream
// watchers in internal/watchers.
func (s *Store) Database() *mongo.Database { return s.db }

// ensureIndexes creates the indexes required by spec.md §3. Index
// creation is idempotent: mongo silently no-ops when an identical
// index already exists.
func (s *Store) ensureIndexes(ctx context.Context) error {
	indexSets := []struct {
		coll    *mongo.Collection
		indexes []mongo.IndexModel
	}{
		{s.Agents, agentIndexes()},
		{s.Messages, messageIndexes()},
		{s.Checkpoints, checkpointIndexes()},
		{s.Tasks, taskIndexes()},
		{s.Sandboxes, sandboxIndexes()},
	}
	for _, set := range indexSets {
		if len(set.indexes) == 0 {
			continue
		}
		if _, err := set.coll.Indexes().CreateMany(ctx, set.indexes); err != nil {
			return fmt.Errorf("storage: create indexes on %s: %w", set.coll.Name(), err)
		}
	}
	return nil
}
