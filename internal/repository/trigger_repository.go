package repository

import (
	"context"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/shared/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const triggersCollection = "triggers"

// TriggerRepository reads trigger definitions. Triggers are managed elsewhere.
type TriggerRepository struct {
	collection *mongo.Collection
}

// NewTriggerRepository creates a new trigger repository
func NewTriggerRepository(client *mongodb.MongoClient) *TriggerRepository {
	return &TriggerRepository{collection: client.Collection(triggersCollection)}
}

// EnsureIndexes creates the event type lookup and unique name indexes
func (r *TriggerRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "eventType", Value: 1}, {Key: "isActive", Value: 1}},
			Options: options.Index().SetName("event_type_active_idx"),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name_idx").SetUnique(true),
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// FindActiveByEventType returns active triggers for the event type in creation order
func (r *TriggerRepository) FindActiveByEventType(ctx context.Context, eventType domain.EventType) ([]*domain.Trigger, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"eventType": eventType, "isActive": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	triggers := []*domain.Trigger{}
	if err := cursor.All(ctx, &triggers); err != nil {
		return nil, err
	}
	return triggers, nil
}
