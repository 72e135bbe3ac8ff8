package repository

import (
	"context"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/shared/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const failedEmailsCollection = "failed_emails"

// FailedEmailRepository stores emails awaiting retry
type FailedEmailRepository struct {
	collection *mongo.Collection
}

// NewFailedEmailRepository creates a new failed email repository
func NewFailedEmailRepository(client *mongodb.MongoClient) *FailedEmailRepository {
	return &FailedEmailRepository{collection: client.Collection(failedEmailsCollection)}
}

// EnsureIndexes creates the index backing the retry scan
func (r *FailedEmailRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "exhausted", Value: 1}, {Key: "nextAttemptAt", Value: 1}},
			Options: options.Index().SetName("retry_due_idx"),
		},
		{
			Keys:    bson.D{{Key: "failedAt", Value: -1}},
			Options: options.Index().SetName("failed_at_idx"),
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create stores a failed email
func (r *FailedEmailRepository) Create(ctx context.Context, failed *domain.FailedEmail) error {
	failed.ID = primitive.NewObjectID()
	failed.CreatedAt = time.Now().UTC()

	_, err := r.collection.InsertOne(ctx, failed)
	return err
}

// FindDue returns up to limit retryable emails whose next attempt is due, oldest first
func (r *FailedEmailRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.FailedEmail, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "nextAttemptAt", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, dueFilter(now), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var due []*domain.FailedEmail
	if err := cursor.All(ctx, &due); err != nil {
		return nil, err
	}
	return due, nil
}

// RecordAttempt stores the outcome of a failed retry
func (r *FailedEmailRepository) RecordAttempt(ctx context.Context, id primitive.ObjectID, attemptErr string, next time.Time, exhausted bool) error {
	update := bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{
			"error":         attemptErr,
			"failedAt":      time.Now().UTC(),
			"nextAttemptAt": next,
			"exhausted":     exhausted,
		},
	}
	res, err := r.collection.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes an email after a successful retry
func (r *FailedEmailRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// Stats counts pending and exhausted entries in one round trip
func (r *FailedEmailRepository) Stats(ctx context.Context) (pending, exhausted int64, err error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$exhausted",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, err
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Exhausted bool  `bson:"_id"`
		Count     int64 `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return 0, 0, err
	}
	for _, g := range groups {
		if g.Exhausted {
			exhausted += g.Count
		} else {
			pending += g.Count
		}
	}
	return pending, exhausted, nil
}

func dueFilter(now time.Time) bson.M {
	return bson.M{
		"exhausted":     false,
		"nextAttemptAt": bson.M{"$lte": now},
	}
}
