package watchers

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/eventbus"
	"github.com/squadlite/squad-lite/internal/messagebus"
)

type messageChangeEvent struct {
	FullDocument domain.Message `bson:"fullDocument"`
}

func (w *Watcher) openMessageStream(ctx context.Context) (*mongo.ChangeStream, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: "insert"},
		}}},
	}
	return w.MessageColl.Watch(ctx, pipeline)
}

func (w *Watcher) consumeMessageStream(ctx context.Context, stream *mongo.ChangeStream) {
	defer stream.Close(ctx)
	for stream.Next(ctx) {
		var event messageChangeEvent
		if err := stream.Decode(&event); err != nil {
			log.Printf("watchers: decode message event: %v", err)
			continue
		}
		msg := event.FullDocument
		if w.Events == nil {
			continue
		}
		w.Events.Publish(eventbus.EventMessageNew, map[string]interface{}{
			"messageId":   msg.MessageID,
			"fromAgent":   msg.FromAgent,
			"toAgent":     msg.ToAgent,
			"messageType": msg.Type,
			"preview":     messagebus.BuildPreview(msg.Content),
		})
	}
}
