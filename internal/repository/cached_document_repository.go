package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/doc-history/internal/domain"
)

type cachedDocument struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Version    int             `json:"version"`
	Fields     json.RawMessage `json:"fields"`
	History    json.RawMessage `json:"history"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type cachedDocumentRepository struct {
	next   DocumentRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedDocumentRepository decorates next with a Redis read-through cache on
// GetByID. Every write invalidates the cached entry. A nil client returns next.
func NewCachedDocumentRepository(next DocumentRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) DocumentRepository {
	if client == nil {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedDocumentRepository{next: next, client: client, ttl: ttl, logger: logger}
}

func cacheKey(collection, id string) string {
	return "dochistory:doc:" + collection + ":" + id
}

func (r *cachedDocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if err := r.next.Create(ctx, doc); err != nil {
		return err
	}
	r.invalidate(ctx, doc.Collection, doc.ID)
	return nil
}

func (r *cachedDocumentRepository) Update(ctx context.Context, doc *domain.Document, expectedVersion int) error {
	err := r.next.Update(ctx, doc, expectedVersion)
	r.invalidate(ctx, doc.Collection, doc.ID)
	return err
}

func (r *cachedDocumentRepository) GetByID(ctx context.Context, collection, id string) (*domain.Document, error) {
	key := cacheKey(collection, id)
	payload, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		doc, decodeErr := fromCache(payload)
		if decodeErr == nil {
			return doc, nil
		}
		r.logger.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(decodeErr))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	doc, err := r.next.GetByID(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if payload, err := toCache(doc); err != nil {
		r.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
	} else if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		r.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return doc, nil
}

func (r *cachedDocumentRepository) Find(ctx context.Context, filter DocumentFilter) ([]*domain.Document, error) {
	return r.next.Find(ctx, filter)
}

func (r *cachedDocumentRepository) Delete(ctx context.Context, collection, id string) error {
	err := r.next.Delete(ctx, collection, id)
	r.invalidate(ctx, collection, id)
	return err
}

func (r *cachedDocumentRepository) invalidate(ctx context.Context, collection, id string) {
	if err := r.client.Del(ctx, cacheKey(collection, id)).Err(); err != nil {
		r.logger.Warn("cache invalidation failed", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
	}
}

func toCache(doc *domain.Document) ([]byte, error) {
	fields, history, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cachedDocument{
		ID:         doc.ID,
		Collection: doc.Collection,
		Version:    doc.Version,
		Fields:     fields,
		History:    history,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	})
}

func fromCache(payload []byte) (*domain.Document, error) {
	var entry cachedDocument
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, errors.Wrap(err, "decode cache entry")
	}
	doc := &domain.Document{
		ID:         entry.ID,
		Collection: entry.Collection,
		Version:    entry.Version,
		CreatedAt:  entry.CreatedAt,
		UpdatedAt:  entry.UpdatedAt,
	}
	if err := decodeDocument(doc, entry.Fields, entry.History); err != nil {
		return nil, err
	}
	return doc, nil
}
