package watchers

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/eventbus"
)

type checkpointChangeEvent struct {
	FullDocument domain.Checkpoint `bson:"fullDocument"`
}

func (w *Watcher) openCheckpointStream(ctx context.Context) (*mongo.ChangeStream, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: "insert"},
		}}},
	}
	return w.CheckpointColl.Watch(ctx, pipeline)
}

func (w *Watcher) consumeCheckpointStream(ctx context.Context, stream *mongo.ChangeStream) {
	defer stream.Close(ctx)
	for stream.Next(ctx) {
		var event checkpointChangeEvent
		if err := stream.Decode(&event); err != nil {
			log.Printf("watchers: decode checkpoint event: %v", err)
			continue
		}
		cp := event.FullDocument
		if w.Events == nil {
			continue
		}
		w.Events.Publish(eventbus.EventCheckpointNew, map[string]interface{}{
			"checkpointId": cp.CheckpointID,
			"agentId":      cp.AgentID,
			"phase":        cp.ResumePointer.Phase,
			"timestamp":    cp.CreatedAt,
		})
	}
}
