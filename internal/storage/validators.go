package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// namespaceExistsCode is the MongoDB server error code returned by
// create when the collection is already there. Validator creation is
// idempotent the same way ensureIndexes is: a second run against an
// already-bootstrapped database is a no-op, not a failure.
const namespaceExistsCode = 48

// ensureCollections creates the five collections of spec.md §3 with
// $jsonSchema validators attached, so malformed documents (wrong
// status enum, missing agentId, etc.) are rejected by the server
// itself rather than relying solely on the application-level Create*
// checks in each store package.
func ensureCollections(ctx context.Context, db *mongo.Database) error {
	for _, name := range []string{CollectionAgents, CollectionMessages, CollectionCheckpoints, CollectionTasks, CollectionSandboxes} {
		opts := options.CreateCollection().SetValidator(bson.M{"$jsonSchema": jsonSchemaFor(name)})
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			var cmdErr mongo.CommandError
			if errors.As(err, &cmdErr) && cmdErr.Code == namespaceExistsCode {
				continue
			}
			return fmt.Errorf("storage: create collection %s: %w", name, err)
		}
	}
	return nil
}

// jsonSchemaFor returns the $jsonSchema validator document for one of
// the five collections of spec.md §3, enforcing the enum and
// required-field shape those documents must have. Index creation
// alone (indexes.go) only speeds up queries; it never rejects a
// malformed document, so schema enforcement lives here.
func jsonSchemaFor(collection string) bson.M {
	switch collection {
	case CollectionAgents:
		return bson.M{
			"bsonType": "object",
			"required": bson.A{"agentId", "type", "status", "sandboxStatus", "createdAt", "lastHeartbeat"},
			"properties": bson.M{
				"agentId":       bson.M{"bsonType": "string"},
				"type":          bson.M{"enum": bson.A{"director", "specialist"}},
				"status":        bson.M{"enum": bson.A{"idle", "working", "waiting", "completed", "error"}},
				"sandboxStatus": bson.M{"enum": bson.A{"none", "active", "paused", "killed"}},
			},
		}
	case CollectionMessages:
		return bson.M{
			"bsonType": "object",
			"required": bson.A{"messageId", "fromAgent", "toAgent", "content", "type", "threadId", "priority", "createdAt"},
			"properties": bson.M{
				"messageId": bson.M{"bsonType": "string"},
				"fromAgent": bson.M{"bsonType": "string"},
				"toAgent":   bson.M{"bsonType": "string"},
				"content":   bson.M{"bsonType": "string"},
				"type":      bson.M{"enum": bson.A{"task", "result", "status", "error"}},
				"priority":  bson.M{"enum": bson.A{"high", "normal", "low"}},
			},
		}
	case CollectionCheckpoints:
		return bson.M{
			"bsonType": "object",
			"required": bson.A{"checkpointId", "agentId", "summary", "resumePointer", "tokensUsed", "createdAt"},
			"properties": bson.M{
				"checkpointId": bson.M{"bsonType": "string"},
				"agentId":      bson.M{"bsonType": "string"},
				"summary":      bson.M{"bsonType": "object"},
				"tokensUsed":   bson.M{"bsonType": "long"},
			},
		}
	case CollectionTasks:
		return bson.M{
			"bsonType": "object",
			"required": bson.A{"taskId", "title", "description", "status", "createdAt", "updatedAt"},
			"properties": bson.M{
				"taskId": bson.M{"bsonType": "string"},
				"title":  bson.M{"bsonType": "string"},
				"status": bson.M{"enum": bson.A{"pending", "assigned", "in_progress", "completed", "failed"}},
			},
		}
	case CollectionSandboxes:
		return bson.M{
			"bsonType": "object",
			"required": bson.A{"sandboxId", "agentId", "status", "metadata", "lifecycle", "resources", "costs"},
			"properties": bson.M{
				"sandboxId": bson.M{"bsonType": "string"},
				"agentId":   bson.M{"bsonType": "string"},
				"status":    bson.M{"enum": bson.A{"creating", "active", "paused", "resuming", "killed"}},
			},
		}
	default:
		return nil
	}
}
