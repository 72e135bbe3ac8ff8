package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/shared/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const preferencesCollection = "notification_preferences"

// PreferencesRepository handles notification preferences data operations
type PreferencesRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewPreferencesRepository creates a new preferences repository
func NewPreferencesRepository(client *mongodb.MongoClient) *PreferencesRepository {
	return &PreferencesRepository{
		collection: client.Collection(preferencesCollection),
		now:        time.Now,
	}
}

// EnsureIndexes enforces one preference per (user, trigger type)
func (r *PreferencesRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "triggerType", Value: 1}},
		Options: options.Index().SetName("user_trigger_type_idx").SetUnique(true),
	})
	return err
}

// Get returns the stored preference, or nil with no error when none exists
func (r *PreferencesRepository) Get(ctx context.Context, userID string, triggerType domain.EventType) (*domain.NotificationPreference, error) {
	var pref domain.NotificationPreference
	err := r.collection.FindOne(ctx, bson.M{"userId": userID, "triggerType": triggerType}).Decode(&pref)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

// ChannelState resolves the three-state preference for one channel
func (r *PreferencesRepository) ChannelState(ctx context.Context, userID string, triggerType domain.EventType, channel domain.Channel) (domain.PreferenceState, error) {
	pref, err := r.Get(ctx, userID, triggerType)
	if err != nil {
		return domain.PreferenceUnset, err
	}
	return domain.StateFor(pref, channel), nil
}

// ListByUser returns every stored preference of the user
func (r *PreferencesRepository) ListByUser(ctx context.Context, userID string) ([]*domain.NotificationPreference, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "triggerType", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	prefs := []*domain.NotificationPreference{}
	if err := cursor.All(ctx, &prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// Upsert creates or replaces the preference keyed by (userId, triggerType)
func (r *PreferencesRepository) Upsert(ctx context.Context, pref *domain.NotificationPreference) error {
	now := r.now().UTC()
	pref.UpdatedAt = now

	filter := bson.M{"userId": pref.UserID, "triggerType": pref.TriggerType}
	update := bson.M{
		"$set": bson.M{
			"deliveryMethods": pref.DeliveryMethods,
			"timing":          pref.Timing,
			"quietHoursStart": pref.QuietHoursStart,
			"quietHoursEnd":   pref.QuietHoursEnd,
			"weekendDelivery": pref.WeekendDelivery,
			"updatedAt":       now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	return r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(pref)
}
