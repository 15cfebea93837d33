package dto

import (
	"time"

	"github.com/spec-kit/doc-history/internal/domain"
)

// WriteDocumentRequest is the body of create and replace calls.
type WriteDocumentRequest struct {
	Fields map[string]any `json:"fields"`
}

// ReviseRequest selects a point in history. Exactly one of EventID, ChangeID
// and At must be set.
type ReviseRequest struct {
	EventID  string     `json:"event_id"`
	ChangeID string     `json:"change_id"`
	At       *time.Time `json:"at"`
	Deep     bool       `json:"deep"`
	Persist  bool       `json:"persist"`
}

// DocumentResponse renders a document. History is omitted from list responses.
type DocumentResponse struct {
	ID         string                 `json:"id"`
	Collection string                 `json:"collection"`
	Version    int                    `json:"version"`
	Fields     map[string]any         `json:"fields"`
	History    []HistoryEventResponse `json:"history,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// HistoryEventResponse renders one audit entry.
type HistoryEventResponse struct {
	ID      string           `json:"id"`
	Date    time.Time        `json:"date"`
	Author  any              `json:"author,omitempty"`
	Changes []ChangeResponse `json:"changes"`
}

// ChangeResponse renders one field change.
type ChangeResponse struct {
	ID     string            `json:"id"`
	Path   string            `json:"path"`
	Type   domain.ChangeType `json:"type"`
	Kind   string            `json:"kind"`
	Before any               `json:"before,omitempty"`
	After  any               `json:"after,omitempty"`
	Item   *domain.ArrayItem `json:"item,omitempty"`
}

// ForgetResponse reports a pruning result.
type ForgetResponse struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// NewDocumentResponse maps a document; withHistory controls whether the trail is embedded.
func NewDocumentResponse(doc *domain.Document, withHistory bool) DocumentResponse {
	resp := DocumentResponse{
		ID:         doc.ID,
		Collection: doc.Collection,
		Version:    doc.Version,
		Fields:     doc.Fields,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	if withHistory {
		resp.History = NewHistoryResponse(doc.History)
	}
	return resp
}

// NewHistoryResponse maps a newest-first history list.
func NewHistoryResponse(events []domain.HistoryEvent) []HistoryEventResponse {
	out := make([]HistoryEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, NewHistoryEventResponse(event))
	}
	return out
}

// NewHistoryEventResponse maps one event.
func NewHistoryEventResponse(event domain.HistoryEvent) HistoryEventResponse {
	changes := make([]ChangeResponse, 0, len(event.Changes))
	for _, change := range event.Changes {
		changes = append(changes, ChangeResponse{
			ID:     change.ID,
			Path:   change.Path.String(),
			Type:   change.Type,
			Kind:   change.Type.String(),
			Before: change.Before,
			After:  change.After,
			Item:   change.Item,
		})
	}
	return HistoryEventResponse{
		ID:      event.ID,
		Date:    event.Date,
		Author:  event.Author,
		Changes: changes,
	}
}
