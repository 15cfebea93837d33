package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/doc-history/internal/config"
	"github.com/spec-kit/doc-history/internal/domain"
	"github.com/spec-kit/doc-history/internal/events"
	"github.com/spec-kit/doc-history/internal/history"
	"github.com/spec-kit/doc-history/internal/observability"
	"github.com/spec-kit/doc-history/internal/repository"
	"github.com/spec-kit/doc-history/internal/schema"
	apperrors "github.com/spec-kit/doc-history/pkg/util"
)

// DocumentService runs the record cycle around the document store.
type DocumentService struct {
	documents  repository.DocumentRepository
	history    *config.HistoryConfig
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	engineOpts []history.Option

	mu      sync.Mutex
	engines map[string]*history.Engine
}

// DocumentDependencies bundles collaborators for the document service.
type DocumentDependencies struct {
	Documents  repository.DocumentRepository
	History    *config.HistoryConfig
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	// EngineOptions are applied to every per-collection engine.
	EngineOptions []history.Option
}

// ReviseInput selects what to rewind and whether to save the result.
type ReviseInput struct {
	Selector history.Selector
	Deep     bool
	// Persist saves the reconstructed state through the record cycle, so the
	// revert is itself audited.
	Persist bool
}

// NewDocumentService constructs the service.
func NewDocumentService(deps DocumentDependencies) *DocumentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		documents:  deps.Documents,
		history:    deps.History,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		engineOpts: deps.EngineOptions,
		engines:    make(map[string]*history.Engine),
	}
}

// Engine returns the history engine of a collection, building it on first use
// from the schema and the resolved option tiers.
func (s *DocumentService) Engine(collection string) (*history.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if engine, ok := s.engines[collection]; ok {
		return engine, nil
	}

	opts, err := s.history.Tracking(collection)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve tracking options for %s", collection)
	}
	var def schema.Definition
	if s.history != nil {
		def = s.history.Collections[collection].Schema
	}

	engineOpts := append([]history.Option{history.WithLogger(s.logger.With(zap.String("collection", collection)))}, s.engineOpts...)
	engine := history.NewEngine(schema.NewRegistry(def), opts, engineOpts...)
	s.engines[collection] = engine
	return engine, nil
}

// Create stores a new document. Its first history event lists every field as created.
func (s *DocumentService) Create(ctx context.Context, collection string, fields map[string]any, author string) (*domain.Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	engine, err := s.Engine(collection)
	if err != nil {
		return nil, err
	}

	doc := domain.NewDocument(collection, uuid.NewString(), fields)
	doc.Author = authorRef(author)
	event, err := engine.Track(doc)
	if err != nil {
		return nil, apperrors.NewUnprocessable("document cannot be tracked", err)
	}

	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, mapRepositoryError(err, doc)
	}
	doc.MarkRecorded()

	s.publishEvent(ctx, events.Event{
		Type:       events.EventDocumentCreated,
		Collection: collection,
		DocumentID: doc.ID,
		Author:     author,
		Payload:    events.DocumentCreatedPayload{Version: doc.Version},
	})
	s.recorded(ctx, doc, event, author)
	return doc, nil
}

// Get loads a document.
func (s *DocumentService) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	doc, err := s.documents.GetByID(ctx, collection, id)
	if err != nil {
		return nil, mapRepositoryError(err, &domain.Document{Collection: collection, ID: id})
	}
	return doc, nil
}

// Update replaces the fields of a document and records the difference. When
// ifMatch is non-empty it must equal the current fingerprint.
func (s *DocumentService) Update(ctx context.Context, collection, id string, fields map[string]any, author, ifMatch string) (*domain.Document, *domain.HistoryEvent, error) {
	if err := validateFields(fields); err != nil {
		return nil, nil, err
	}
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, nil, err
	}
	if err := checkFingerprint(doc, ifMatch); err != nil {
		return nil, nil, err
	}

	doc.Fields = fields
	event, err := s.Save(ctx, doc, author)
	if err != nil {
		return nil, nil, err
	}
	return doc, event, nil
}

// Save runs one record cycle on a loaded document and persists it when
// something was recorded. The stored version must still match doc.Version.
func (s *DocumentService) Save(ctx context.Context, doc *domain.Document, author string) (*domain.HistoryEvent, error) {
	engine, err := s.Engine(doc.Collection)
	if err != nil {
		return nil, err
	}

	doc.Author = authorRef(author)
	event, err := engine.Track(doc)
	if err != nil {
		return nil, apperrors.NewUnprocessable("document cannot be tracked", err)
	}
	if event == nil {
		s.logger.Debug("nothing to record",
			zap.String("collection", doc.Collection),
			zap.String("document_id", doc.ID))
		return nil, nil
	}

	if err := s.persist(ctx, doc); err != nil {
		return nil, err
	}
	s.recorded(ctx, doc, event, author)
	return event, nil
}

// Find returns documents whose fields contain the query filter. With a
// $revision modifier every result is rewound to that instant before it is
// returned; the stored documents are not modified.
func (s *DocumentService) Find(ctx context.Context, collection string, query FindQuery, limit, offset int) ([]*domain.Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	docs, err := s.documents.Find(ctx, repository.DocumentFilter{
		Collection: collection,
		Match:      query.Filter,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "find in %s", collection)
	}
	if query.Revision != nil {
		for _, doc := range docs {
			history.Revise(doc, history.AtTime(*query.Revision), query.Deep)
		}
		s.metrics.RecordRevision(query.Deep)
	}
	return docs, nil
}

// FindOne returns the first match of Find.
func (s *DocumentService) FindOne(ctx context.Context, collection string, query FindQuery) (*domain.Document, error) {
	docs, err := s.Find(ctx, collection, query, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.NewNotFound("document", map[string]any{"collection": collection})
	}
	return docs[0], nil
}

// ListHistory returns the audit trail of a document, newest first.
func (s *DocumentService) ListHistory(ctx context.Context, collection, id string) ([]domain.HistoryEvent, error) {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	return doc.History, nil
}

// Revise rewinds a document to the selected point of its history. Without
// Persist the reconstructed document is returned and nothing is stored.
func (s *DocumentService) Revise(ctx context.Context, collection, id string, input ReviseInput, author string) (*domain.Document, *domain.HistoryEvent, error) {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, nil, err
	}
	if !input.Selector.IsTime() && !selectorMatches(doc, input.Selector) {
		return nil, nil, apperrors.NewNotFound("history entry", map[string]any{"id": input.Selector.ID()})
	}

	history.Revise(doc, input.Selector, input.Deep)
	s.metrics.RecordRevision(input.Deep)

	var event *domain.HistoryEvent
	if input.Persist {
		if event, err = s.Save(ctx, doc, author); err != nil {
			return nil, nil, err
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:       events.EventDocumentRevised,
		Collection: collection,
		DocumentID: doc.ID,
		Author:     author,
		Payload: events.DocumentRevisedPayload{
			Selector:  input.Selector.String(),
			Deep:      input.Deep,
			Persisted: input.Persist,
		},
	})
	return doc, event, nil
}

// Forget prunes history: the given event alone when single is set, otherwise
// the event and every older one. Field values stay as they are.
func (s *DocumentService) Forget(ctx context.Context, collection, id, eventID string, single bool, author string) (*domain.Document, int, error) {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, 0, err
	}
	if doc.EventIndex(eventID) < 0 {
		return nil, 0, apperrors.NewNotFound("history event", map[string]any{"event_id": eventID})
	}

	before := len(doc.History)
	history.Forget(doc, eventID, single)
	removed := before - len(doc.History)

	if err := s.persist(ctx, doc); err != nil {
		return nil, 0, err
	}
	s.metrics.RecordForget(single)

	s.publishEvent(ctx, events.Event{
		Type:       events.EventHistoryForgotten,
		Collection: collection,
		DocumentID: doc.ID,
		Author:     author,
		Payload: events.HistoryForgottenPayload{
			EventID: eventID,
			Single:  single,
			Removed: removed,
		},
	})
	return doc, removed, nil
}

// Delete removes a document together with its history. A non-empty ifMatch
// must match the stored fingerprint.
func (s *DocumentService) Delete(ctx context.Context, collection, id, author, ifMatch string) error {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if err := checkFingerprint(doc, ifMatch); err != nil {
		return err
	}
	if err := s.documents.Delete(ctx, collection, id); err != nil {
		return mapRepositoryError(err, doc)
	}

	s.publishEvent(ctx, events.Event{
		Type:       events.EventDocumentDeleted,
		Collection: collection,
		DocumentID: doc.ID,
		Author:     author,
		Payload: events.DocumentDeletedPayload{
			Version: doc.Version,
			Events:  len(doc.History),
		},
	})
	return nil
}

// persist bumps the version and writes doc, failing if another writer got there first.
func (s *DocumentService) persist(ctx context.Context, doc *domain.Document) error {
	expected := doc.Version
	doc.Version = expected + 1
	if err := s.documents.Update(ctx, doc, expected); err != nil {
		doc.Version = expected
		return mapRepositoryError(err, doc)
	}
	doc.MarkRecorded()
	return nil
}

func (s *DocumentService) recorded(ctx context.Context, doc *domain.Document, event *domain.HistoryEvent, author string) {
	if event == nil {
		return
	}
	s.metrics.RecordEvent(doc.Collection, event)

	kinds := make([]domain.ChangeType, 0, len(event.Changes))
	for _, change := range event.Changes {
		kinds = append(kinds, change.Type)
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventHistoryRecorded,
		Collection: doc.Collection,
		DocumentID: doc.ID,
		Author:     author,
		Payload: events.HistoryRecordedPayload{
			EventID: event.ID,
			Version: doc.Version,
			Changes: kinds,
		},
	})
}

func (s *DocumentService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func checkFingerprint(doc *domain.Document, ifMatch string) error {
	ifMatch = strings.Trim(strings.TrimSpace(ifMatch), `"`)
	if ifMatch == "" || ifMatch == "*" {
		return nil
	}
	current, err := doc.Fingerprint()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if current != ifMatch {
		return apperrors.NewPreconditionFailed("document changed since it was read", map[string]any{"etag": current})
	}
	return nil
}

func selectorMatches(doc *domain.Document, selector history.Selector) bool {
	if doc.EventIndex(selector.ID()) >= 0 {
		return true
	}
	for _, event := range doc.History {
		for _, change := range event.Changes {
			if change.ID == selector.ID() {
				return true
			}
		}
	}
	return false
}

func mapRepositoryError(err error, doc *domain.Document) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("document", map[string]any{"collection": doc.Collection, "id": doc.ID})
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict("document was modified concurrently", map[string]any{"id": doc.ID})
	default:
		return errors.Wrapf(err, "store document %s", doc.ID)
	}
}

func validateCollection(collection string) error {
	if strings.TrimSpace(collection) == "" {
		return apperrors.NewValidationError("collection is required", nil)
	}
	return nil
}

func validateFields(fields map[string]any) error {
	if fields == nil {
		return apperrors.NewValidationError("fields are required", nil)
	}
	var reserved []string
	for key := range fields {
		if domain.IsReservedField(key) {
			reserved = append(reserved, key)
		}
	}
	if len(reserved) > 0 {
		return apperrors.NewValidationError("reserved fields cannot be written", map[string]any{"fields": reserved})
	}
	return nil
}

// authorRef converts an empty subject to no author at all.
func authorRef(author string) any {
	if author == "" {
		return nil
	}
	return author
}
