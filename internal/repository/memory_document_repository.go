package repository

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spec-kit/doc-history/internal/domain"
)

type storedDocument struct {
	id         string
	collection string
	version    int
	fields     []byte
	history    []byte
	createdAt  time.Time
	updatedAt  time.Time
}

type memoryDocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]storedDocument
	now  func() time.Time
}

// NewMemoryDocumentRepository returns a process-local store with the same
// encoding, versioning and containment semantics as the Postgres repository.
// It backs the service when no database is configured.
func NewMemoryDocumentRepository() DocumentRepository {
	return &memoryDocumentRepository{docs: make(map[string]storedDocument), now: time.Now}
}

func memoryKey(collection, id string) string {
	return collection + "\x00" + id
}

func (r *memoryDocumentRepository) Create(_ context.Context, doc *domain.Document) error {
	fields, history, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := memoryKey(doc.Collection, doc.ID)
	if _, exists := r.docs[key]; exists {
		return errors.Newf("document %s already exists", doc.ID)
	}
	now := r.now()
	r.docs[key] = storedDocument{
		id:         doc.ID,
		collection: doc.Collection,
		version:    doc.Version,
		fields:     fields,
		history:    history,
		createdAt:  now,
		updatedAt:  now,
	}
	doc.CreatedAt, doc.UpdatedAt = now, now
	return nil
}

func (r *memoryDocumentRepository) Update(_ context.Context, doc *domain.Document, expectedVersion int) error {
	fields, history, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := memoryKey(doc.Collection, doc.ID)
	stored, ok := r.docs[key]
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s/%s", doc.Collection, doc.ID)
	}
	if stored.version != expectedVersion {
		return errors.Wrapf(ErrVersionConflict, "document %s expected version %d", doc.ID, expectedVersion)
	}
	stored.version = doc.Version
	stored.fields = fields
	stored.history = history
	stored.updatedAt = r.now()
	r.docs[key] = stored
	doc.UpdatedAt = stored.updatedAt
	return nil
}

func (r *memoryDocumentRepository) GetByID(_ context.Context, collection, id string) (*domain.Document, error) {
	r.mu.RLock()
	stored, ok := r.docs[memoryKey(collection, id)]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	return stored.decode()
}

func (r *memoryDocumentRepository) Find(_ context.Context, filter DocumentFilter) ([]*domain.Document, error) {
	var match any
	if len(filter.Match) > 0 {
		if err := json.Unmarshal(filter.Match, &match); err != nil {
			return nil, errors.Wrap(err, "decode filter")
		}
	}

	r.mu.RLock()
	candidates := make([]storedDocument, 0, len(r.docs))
	for _, stored := range r.docs {
		if stored.collection == filter.Collection {
			candidates = append(candidates, stored)
		}
	}
	r.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].updatedAt.Equal(candidates[j].updatedAt) {
			return candidates[i].updatedAt.After(candidates[j].updatedAt)
		}
		return candidates[i].id < candidates[j].id
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	skipped := 0
	var result []*domain.Document
	for _, stored := range candidates {
		if match != nil {
			var fields any
			if err := json.Unmarshal(stored.fields, &fields); err != nil {
				return nil, errors.Wrapf(err, "decode fields of %s", stored.id)
			}
			if !jsonContains(fields, match) {
				continue
			}
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		doc, err := stored.decode()
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r *memoryDocumentRepository) Delete(_ context.Context, collection, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memoryKey(collection, id)
	if _, ok := r.docs[key]; !ok {
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	delete(r.docs, key)
	return nil
}

func (s storedDocument) decode() (*domain.Document, error) {
	doc := &domain.Document{
		ID:         s.id,
		Collection: s.collection,
		Version:    s.version,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
	if err := decodeDocument(doc, s.fields, s.history); err != nil {
		return nil, err
	}
	return doc, nil
}

// jsonContains mirrors the jsonb @> operator on decoded JSON values.
func jsonContains(value, match any) bool {
	switch m := match.(type) {
	case map[string]any:
		v, ok := value.(map[string]any)
		if !ok {
			return false
		}
		for key, want := range m {
			got, ok := v[key]
			if !ok || !jsonContains(got, want) {
				return false
			}
		}
		return true
	case []any:
		v, ok := value.([]any)
		if !ok {
			return false
		}
		for _, want := range m {
			found := false
			for _, got := range v {
				if jsonContains(got, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(value, match)
	}
}
