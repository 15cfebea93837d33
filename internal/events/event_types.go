package events

import (
	"time"

	"github.com/spec-kit/doc-history/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventDocumentCreated  EventType = "document_created"
	EventHistoryRecorded  EventType = "history_recorded"
	EventHistoryForgotten EventType = "history_forgotten"
	EventDocumentRevised  EventType = "document_revised"
	EventDocumentDeleted  EventType = "document_deleted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Collection string    `json:"collection"`
	DocumentID string    `json:"document_id"`
	// Author is the subject that triggered the event, when known.
	Author    string    `json:"author,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// DocumentCreatedPayload payload.
type DocumentCreatedPayload struct {
	Version int `json:"version"`
}

// HistoryRecordedPayload payload.
type HistoryRecordedPayload struct {
	EventID string              `json:"event_id"`
	Version int                 `json:"version"`
	Changes []domain.ChangeType `json:"changes"`
}

// HistoryForgottenPayload payload.
type HistoryForgottenPayload struct {
	EventID string `json:"event_id"`
	Single  bool   `json:"single"`
	Removed int    `json:"removed"`
}

// DocumentDeletedPayload records what was discarded with the document.
type DocumentDeletedPayload struct {
	Version int `json:"version"`
	Events  int `json:"events"`
}

// DocumentRevisedPayload payload.
type DocumentRevisedPayload struct {
	Selector  string `json:"selector"`
	Deep      bool   `json:"deep"`
	Persisted bool   `json:"persisted"`
}
