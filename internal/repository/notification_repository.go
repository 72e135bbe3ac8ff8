package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/shared/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const notificationsCollection = "notifications"

// Pagination bounds for feed queries
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListFilter narrows a user's feed
type ListFilter struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}

// normalize clamps page and page size into range
func (f ListFilter) normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// NotificationRepository handles notification data operations
type NotificationRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(client *mongodb.MongoClient) *NotificationRepository {
	return &NotificationRepository{
		collection: client.Collection(notificationsCollection),
		now:        time.Now,
	}
}

// EnsureIndexes creates indexes backing the feed and the expiry sweep
func (r *NotificationRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "isRead", Value: 1}},
			Options: options.Index().SetName("user_unread_idx"),
		},
		{
			Keys:    bson.D{{Key: "groupingKey", Value: 1}},
			Options: options.Index().SetName("grouping_key_idx"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("expires_at_idx").SetSparse(true),
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// CreateMany inserts one row per notification in a single batch.
// IDs and createdAt are assigned when missing.
func (r *NotificationRepository) CreateMany(ctx context.Context, notifications []*domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	now := r.now().UTC()
	docs := make([]interface{}, 0, len(notifications))
	for _, n := range notifications {
		if n.ID.IsZero() {
			n.ID = primitive.NewObjectID()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		docs = append(docs, n)
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert %d notifications: %w", len(docs), err)
	}
	return nil
}

// ListByUser returns a page of the user's unexpired notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, f ListFilter) ([]*domain.Notification, int64, error) {
	f = f.normalize()
	filter := feedFilter(userID, f.UnreadOnly, r.now())

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSkip(int64((f.Page - 1) * f.PageSize)).
		SetLimit(int64(f.PageSize)).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	notifications := make([]*domain.Notification, 0, f.PageSize)
	if err = cursor.All(ctx, &notifications); err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

// CountUnread counts the user's unread, unexpired notifications
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	return r.collection.CountDocuments(ctx, feedFilter(userID, true, r.now()))
}

// MarkRead marks one of the user's notifications read.
// Already-read rows are left untouched; unknown or foreign ids return ErrNotFound.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrInvalidID
	}

	filter := bson.M{"_id": objectID, "userId": userID, "isRead": false}
	result, err := r.collection.UpdateOne(ctx, filter, markReadUpdate(r.now()))
	if err != nil {
		return err
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// distinguish "already read" from "not yours / not there"
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID, "userId": userID},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return err
}

// MarkAllRead marks every unread notification of the user read
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.collection.UpdateMany(ctx, bson.M{"userId": userID, "isRead": false}, markReadUpdate(r.now()))
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// Delete removes one of the user's notifications
func (r *NotificationRepository) Delete(ctx context.Context, id, userID string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrInvalidID
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID, "userId": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteExpired removes every notification whose expiresAt is set and before now
func (r *NotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, expiredFilter(now))
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func feedFilter(userID string, unreadOnly bool, now time.Time) bson.M {
	filter := bson.M{
		"userId": userID,
		"$or": bson.A{
			bson.M{"expiresAt": nil},
			bson.M{"expiresAt": bson.M{"$gt": now}},
		},
	}
	if unreadOnly {
		filter["isRead"] = false
	}
	return filter
}

func expiredFilter(now time.Time) bson.M {
	return bson.M{"expiresAt": bson.M{"$ne": nil, "$lt": now}}
}

func markReadUpdate(now time.Time) bson.M {
	return bson.M{"$set": bson.M{"isRead": true, "readAt": now}}
}
