package history

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/doc-history/internal/config"
	"github.com/spec-kit/doc-history/internal/domain"
	"github.com/spec-kit/doc-history/internal/schema"
)

// Engine turns snapshot pairs into history events for one collection.
// It holds no mutable state and can be shared between goroutines.
type Engine struct {
	resolver schema.Resolver
	opts     config.TrackingConfig
	clock    func() time.Time
	newID    func() string
	logger   *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the timestamp source for recorded events.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithIDGenerator overrides how event and change identifiers are minted.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithLogger sets the logger used to report dropped diffs.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine builds an engine for the given schema metadata and resolved options.
func NewEngine(resolver schema.Resolver, opts config.TrackingConfig, options ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		opts:     opts,
		clock:    time.Now,
		newID:    uuid.NewString,
		logger:   zap.NewNop(),
	}
	for _, option := range options {
		option(e)
	}
	if e.resolver == nil {
		e.resolver = schema.NewRegistry(schema.Definition{})
	}
	return e
}

// Options returns the tracking configuration the engine was built with.
func (e *Engine) Options() config.TrackingConfig {
	return e.opts
}

// Track runs one record cycle on doc: it diffs the recorded baseline against
// the current state, filters the result, and prepends the new event to the
// document history. The transient author is cleared afterwards.
//
// The baseline is not refreshed; call doc.MarkRecorded once the caller has
// persisted the document successfully. A nil event means nothing was tracked.
func (e *Engine) Track(doc *domain.Document) (*domain.HistoryEvent, error) {
	if err := Validate(doc.Fields); err != nil {
		return nil, errors.Wrapf(err, "document %s", doc.ID)
	}
	before := doc.Baseline()
	after := doc.Snapshot()

	raw, err := Diff(before, after)
	if err != nil {
		return nil, errors.Wrapf(err, "diff document %s", doc.ID)
	}

	event := e.Record(e.Filter(raw, before, after), doc.Author)
	doc.Author = nil
	if event == nil {
		return nil, nil
	}

	doc.History = append([]domain.HistoryEvent{*event}, doc.History...)
	return event, nil
}
