package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/cache"
	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/shared/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const templatesCollection = "notification_templates"

// maxTemplateSize caps cached subject+body
const maxTemplateSize = 1024 * 1024

// TemplateRepository reads notification templates through a TTL cache
type TemplateRepository struct {
	collection *mongo.Collection
	cache      *cache.TTLCache[*domain.Template]
}

// NewTemplateRepository creates a new template repository with caching
func NewTemplateRepository(client *mongodb.MongoClient, ttl time.Duration) *TemplateRepository {
	return &TemplateRepository{
		collection: client.Collection(templatesCollection),
		cache:      newTemplateCache(ttl),
	}
}

func newTemplateCache(ttl time.Duration) *cache.TTLCache[*domain.Template] {
	return cache.New(ttl,
		cache.WithMaxValueSize(maxTemplateSize, func(t *domain.Template) int {
			if t == nil {
				return 0
			}
			return len(t.Subject) + len(t.Body)
		}),
	)
}

// FindByID returns the template, ErrInvalidID for a malformed id, ErrNotFound when absent
func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*domain.Template, error) {
	cacheKey := "id:" + id
	if tmpl, found := r.cache.Get(cacheKey); found {
		return tmpl, nil
	}

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	var tmpl domain.Template
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&tmpl)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// caching is best effort
	_ = r.cache.Set(cacheKey, &tmpl)
	return &tmpl, nil
}

// Purge drops every cached template so edits show up on the next render
func (r *TemplateRepository) Purge() {
	r.cache.Purge()
}
