package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/doc-history/internal/config"
	"github.com/spec-kit/doc-history/internal/domain"
	"github.com/spec-kit/doc-history/internal/events"
	"github.com/spec-kit/doc-history/internal/history"
	"github.com/spec-kit/doc-history/internal/observability"
	"github.com/spec-kit/doc-history/internal/repository"
	"github.com/spec-kit/doc-history/internal/schema"
	apperrors "github.com/spec-kit/doc-history/pkg/util"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingDispatcher struct {
	published []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	out := make([]events.EventType, 0, len(d.published))
	for _, event := range d.published {
		out = append(out, event.Type)
	}
	return out
}

type fixture struct {
	svc        *DocumentService
	dispatcher *recordingDispatcher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	calls := 0
	clock := func() time.Time {
		calls++
		return baseTime.Add(time.Duration(calls) * time.Minute)
	}
	ids := 0
	newID := func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}

	cfg := &config.HistoryConfig{
		Options: map[string]any{"author": map[string]any{"enable": true}},
		Collections: map[string]config.CollectionConfig{
			"fruits": {Schema: schema.Definition{Fields: map[string]schema.Field{
				"notes": {IgnoreHistory: true},
			}}},
			"users": {Options: map[string]any{"author": map[string]any{"enable": false}}},
		},
	}

	dispatcher := &recordingDispatcher{}
	svc := NewDocumentService(DocumentDependencies{
		Documents:     repository.NewMemoryDocumentRepository(),
		History:       cfg,
		Dispatcher:    dispatcher,
		Metrics:       observability.NewMetrics(),
		EngineOptions: []history.Option{history.WithClock(clock), history.WithIDGenerator(newID)},
	})
	return fixture{svc: svc, dispatcher: dispatcher}
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, status, apperrors.ToDomainError(err).HTTPStatus, err.Error())
}

func changeByPath(event domain.HistoryEvent, path string) (domain.Change, bool) {
	for _, change := range event.Changes {
		if change.Path.String() == path {
			return change, true
		}
	}
	return domain.Change{}, false
}

func TestCreateRecordsEveryField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Create(ctx, "fruits", map[string]any{"name": "Banana", "notes": "ripe"}, "user-1")
	require.NoError(t, err)

	require.Len(t, doc.History, 1)
	event := doc.History[0]
	assert.Equal(t, "user-1", event.Author)
	require.Len(t, event.Changes, 1, "ignored field is not recorded")
	assert.Equal(t, domain.ChangeCreated, event.Changes[0].Type)
	assert.Equal(t, "Banana", event.Changes[0].After)
	assert.Equal(t, []events.EventType{events.EventDocumentCreated, events.EventHistoryRecorded}, f.dispatcher.types())

	stored, err := f.svc.Get(ctx, "fruits", doc.ID)
	require.NoError(t, err)
	require.Len(t, stored.History, 1)
	assert.Equal(t, event.ID, stored.History[0].ID)
	assert.Equal(t, domain.Path{"name"}, stored.History[0].Changes[0].Path)
	assert.True(t, event.Date.Equal(stored.History[0].Date))
}

func TestCreateRejectsReservedFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "fruits", map[string]any{"history": []any{}}, "")
	requireStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.Create(context.Background(), " ", map[string]any{"name": "x"}, "")
	requireStatus(t, err, http.StatusBadRequest)
}

func TestUpdateRecordsDifference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, "fruits", map[string]any{"name": "Banana", "tags": []any{"sweet"}}, "user-1")
	require.NoError(t, err)

	updated, event, err := f.svc.Update(ctx, "fruits", doc.ID, map[string]any{"name": "Apple", "tags": []any{"sweet", "crisp"}}, "user-2", "")
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, 1, updated.Version)
	assert.Equal(t, "user-2", event.Author)
	require.Len(t, updated.History, 2)
	assert.Equal(t, event.ID, updated.History[0].ID)

	name, ok := changeByPath(*event, "name")
	require.True(t, ok)
	assert.Equal(t, domain.ChangeEdited, name.Type)
	assert.Equal(t, "Banana", name.Before)
	assert.Equal(t, "Apple", name.After)

	tags, ok := changeByPath(*event, "tags")
	require.True(t, ok)
	assert.Equal(t, domain.ChangeArrayChanged, tags.Type)
	assert.Equal(t, []any{"sweet", "crisp"}, tags.After)
}

func TestUpdateWithoutChangesStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, "fruits", map[string]any{"name": "Banana"}, "")
	require.NoError(t, err)

	updated, event, err := f.svc.Update(ctx, "fruits", doc.ID, map[string]any{"name": "Banana", "notes": "only ignored"}, "", "")
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Equal(t, 0, updated.Version)

	stored, err := f.svc.Get(ctx, "fruits", doc.ID)
	require.NoError(t, err)
	assert.Len(t, stored.History, 1)
	assert.NotContains(t, stored.Fields, "notes")
}

func TestUpdateHonorsIfMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, "fruits", map[string]any{"name": "Banana"}, "")
	require.NoError(t, err)
	etag, err := doc.Fingerprint()
	require.NoError(t, err)

	_, _, err = f.svc.Update(ctx, "fruits", doc.ID, map[string]any{"name": "Apple"}, "", `"stale"`)
	requireStatus(t, err, http.StatusPreconditionFailed)

	_, _, err = f.svc.Update(ctx, "fruits", doc.ID, map[string]any{"name": "Apple"}, "", `"`+etag+`"`)
	require.NoError(t, err)
}

func TestSaveDetectsConcurrentWriters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, "fruits", map[string]any{"count": 1}, "")
	require.NoError(t, err)

	first, err := f.svc.Get(ctx, "fruits", doc.ID)
	require.NoError(t, err)
	second, err := f.svc.Get(ctx, "fruits", doc.ID)
	require.NoError(t, err)

	first.Fields["count"] = 2
	_, err = f.svc.Save(ctx, first, "")
	require.NoError(t, err)

	second.Fields["count"] = 3
	_, err = f.svc.Save(ctx, second, "")
	requireStatus(t, err, http.StatusConflict)
	assert.Equal(t, 0, second.Version)
}

func TestAuthorOverridePerCollection(t *testing.T) {
	f := newFixture(t)
	doc, err := f.svc.Create(context.Background(), "users", map[string]any{"name": "Ada"}, "user-1")
	require.NoError(t, err)
	assert.Nil(t, doc.History[0].Author)
	assert.Nil(t, doc.Author, "transient author is cleared after the cycle")
}

func TestGetUnknownDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "fruits", "missing")
	requireStatus(t, err, http.StatusNotFound)
}

func TestFindWithRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, "fruits", map[string]any{"name": "Banana", "kind": "fruit"}, "")
	require.NoError(t, err)
	_, _, err = f.svc.Update(ctx, "fruits", doc.ID, map[string]any{"name": "Apple", "kind": "fruit"}, "", "")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "fruits", map[string]any{"name": "Carrot", "kind": "vegetable"}, "")
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, "fruits", doc.ID)
	require.NoError(t, err)
	created := stored.History[1].Date

	query, err := ParseFindQuery([]byte(fmt.Sprintf(`{"kind":"fruit","$revision":%q,"$deepRevision":true}`, created.Format(time.RFC3339Nano))))
	require.NoError(t, err)

	docs, err := f.svc.Find(ctx, "fruits", query, 10, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Banana", docs[0].Fields["name"])

	current, err := f.svc.FindOne(ctx, "fruits", FindQuery{Filter: []byte(`{"kind":"fruit"}`)})
	require.NoError(t, err)
	assert.Equal(t, "Apple", current.Fields["name"], "stored document is untouched")

	_, err = f.svc.FindOne(ctx, "fruits", FindQuery{Filter: []byte(`{"kind":"mineral"}`)})
	requireStatus(t, err, http.StatusNotFound)
}

func TestRevise(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, "fruits", map[string]any{"name": "Banana"}, "")
	require.NoError(t, err)
	_, _, err = f.svc.Update(ctx, "fruits", doc.ID, map[string]any{"name": "Apple"}, "", "")
	require.NoError(t, err)
	stored, err := f.svc.Get(ctx, "fruits", doc.ID)
	require.NoError(t, err)
	firstEvent := stored.History[1].ID

	preview, event, err := f.svc.Revise(ctx, "fruits", doc.ID, ReviseInput{Selector: history.ByID(firstEvent)}, "user-1")
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Equal(t, "Banana", preview.Fields["name"])

	unchanged, err := f.svc.Get(ctx, "fruits", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Apple", unchanged.Fields["name"])

	reverted, event, err := f.svc.Revise(ctx, "fruits", doc.ID, ReviseInput{Selector: history.ByID(firstEvent), Persist: true}, "user-1")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "Banana", reverted.Fields["name"])
	assert.Len(t, reverted.History, 3, "the revert is audited")
	assert.Contains(t, f.dispatcher.types(), events.EventDocumentRevised)

	_, _, err = f.svc.Revise(ctx, "fruits", doc.ID, ReviseInput{Selector: history.ByID("missing")}, "")
	requireStatus(t, err, http.StatusNotFound)
}

func TestForget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, "fruits", map[string]any{"count": 0}, "")
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, _, err = f.svc.Update(ctx, "fruits", doc.ID, map[string]any{"count": i}, "", "")
		require.NoError(t, err)
	}
	stored, err := f.svc.Get(ctx, "fruits", doc.ID)
	require.NoError(t, err)
	require.Len(t, stored.History, 4)
	ids := []string{stored.History[0].ID, stored.History[1].ID, stored.History[2].ID, stored.History[3].ID}

	pruned, removed, err := f.svc.Forget(ctx, "fruits", doc.ID, ids[1], true, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	require.Len(t, pruned.History, 3)
	assert.Equal(t, []string{ids[0], ids[2], ids[3]}, []string{pruned.History[0].ID, pruned.History[1].ID, pruned.History[2].ID})

	pruned, removed, err = f.svc.Forget(ctx, "fruits", doc.ID, ids[2], false, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	require.Len(t, pruned.History, 1)
	assert.Equal(t, ids[0], pruned.History[0].ID)
	assert.EqualValues(t, 3, pruned.Fields["count"])

	_, _, err = f.svc.Forget(ctx, "fruits", doc.ID, "missing", true, "")
	requireStatus(t, err, http.StatusNotFound)
	assert.Contains(t, f.dispatcher.types(), events.EventHistoryForgotten)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc, err := f.svc.Create(ctx, "fruits", map[string]any{"name": "Banana"}, "")
	require.NoError(t, err)

	err = f.svc.Delete(ctx, "fruits", doc.ID, "admin-1", `"stale"`)
	requireStatus(t, err, http.StatusPreconditionFailed)

	require.NoError(t, f.svc.Delete(ctx, "fruits", doc.ID, "admin-1", ""))
	_, err = f.svc.Get(ctx, "fruits", doc.ID)
	requireStatus(t, err, http.StatusNotFound)

	err = f.svc.Delete(ctx, "fruits", doc.ID, "admin-1", "")
	requireStatus(t, err, http.StatusNotFound)

	last := f.dispatcher.published[len(f.dispatcher.published)-1]
	assert.Equal(t, events.EventDocumentDeleted, last.Type)
	assert.Equal(t, "admin-1", last.Author)
	assert.Equal(t, events.DocumentDeletedPayload{Version: doc.Version, Events: 1}, last.Payload)
}

func TestEnginesAreBuiltOncePerCollection(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.Engine("fruits")
	require.NoError(t, err)
	second, err := f.svc.Engine("fruits")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.True(t, first.Options().Author.Enable)

	users, err := f.svc.Engine("users")
	require.NoError(t, err)
	assert.False(t, users.Options().Author.Enable)
}
