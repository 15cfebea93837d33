package repository

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/doc-history/internal/domain"
)

func seed(t *testing.T, repo DocumentRepository, collection, id string, fields map[string]any) *domain.Document {
	t.Helper()
	doc := domain.NewDocument(collection, id, fields)
	doc.History = []domain.HistoryEvent{{
		ID:      "event-" + id,
		Changes: []domain.Change{{ID: "change-" + id, Path: domain.Path{"name"}, Type: domain.ChangeCreated, After: fields["name"]}},
	}}
	require.NoError(t, repo.Create(context.Background(), doc))
	return doc
}

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()
	seed(t, repo, "fruits", "a", map[string]any{"name": "Banana", "color": map[string]any{"primary": "yellow"}})

	doc, err := repo.GetByID(ctx, "fruits", "a")
	require.NoError(t, err)
	assert.Equal(t, "Banana", doc.Fields["name"])
	assert.Equal(t, map[string]any{"primary": "yellow"}, doc.Fields["color"])
	require.Len(t, doc.History, 1)
	assert.Equal(t, domain.Path{"name"}, doc.History[0].Changes[0].Path)
	require.NotNil(t, doc.Baseline(), "loaded documents are marked recorded")
	assert.Equal(t, "a", doc.Baseline()[domain.FieldID])

	doc.Fields["name"] = "Apple"
	assert.Equal(t, "Banana", doc.Baseline()["name"])

	again, err := repo.GetByID(ctx, "fruits", "a")
	require.NoError(t, err)
	assert.Equal(t, "Banana", again.Fields["name"], "stored state is detached from loaded copies")
}

func TestMemoryRepositoryVersioning(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()
	doc := seed(t, repo, "fruits", "a", map[string]any{"name": "Banana"})

	doc.Version = 1
	require.NoError(t, repo.Update(ctx, doc, 0))

	doc.Version = 2
	err := repo.Update(ctx, doc, 0)
	assert.True(t, errors.Is(err, ErrVersionConflict))

	err = repo.Update(ctx, domain.NewDocument("fruits", "missing", nil), 0)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = repo.GetByID(ctx, "vegetables", "a")
	assert.True(t, errors.Is(err, ErrNotFound), "ids are scoped by collection")
}

func TestMemoryRepositoryFind(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()
	seed(t, repo, "fruits", "a", map[string]any{"name": "Banana", "tags": []any{"sweet", "soft"}, "stock": 3})
	seed(t, repo, "fruits", "b", map[string]any{"name": "Apple", "tags": []any{"crisp"}, "stock": 3})
	seed(t, repo, "vegetables", "c", map[string]any{"name": "Carrot", "stock": 3})

	tts := []struct {
		name  string
		match string
		want  int
	}{
		{"whole collection", "", 2},
		{"scalar", `{"name":"Apple"}`, 1},
		{"number", `{"stock":3}`, 2},
		{"array subset", `{"tags":["soft"]}`, 1},
		{"no match", `{"name":"Durian"}`, 0},
	}
	for _, tt := range tts {
		t.Run(tt.name, func(t *testing.T) {
			var match []byte
			if tt.match != "" {
				match = []byte(tt.match)
			}
			docs, err := repo.Find(ctx, DocumentFilter{Collection: "fruits", Match: match})
			require.NoError(t, err)
			assert.Len(t, docs, tt.want)
		})
	}

	page, err := repo.Find(ctx, DocumentFilter{Collection: "fruits", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestMemoryRepositoryDelete(t *testing.T) {
	repo := NewMemoryDocumentRepository()
	ctx := context.Background()
	seed(t, repo, "fruits", "a", map[string]any{"name": "Banana"})

	require.NoError(t, repo.Delete(ctx, "fruits", "a"))
	assert.True(t, errors.Is(repo.Delete(ctx, "fruits", "a"), ErrNotFound))
}

func TestCacheEntryRoundTrip(t *testing.T) {
	doc := domain.NewDocument("fruits", "a", map[string]any{"name": "Banana"})
	doc.Version = 4

	payload, err := toCache(doc)
	require.NoError(t, err)
	decoded, err := fromCache(payload)
	require.NoError(t, err)

	assert.Equal(t, 4, decoded.Version)
	assert.Equal(t, "Banana", decoded.Fields["name"])
	assert.NotNil(t, decoded.Baseline())

	_, err = fromCache([]byte("not json"))
	assert.Error(t, err)
}
