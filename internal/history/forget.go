package history

import (
	"github.com/spec-kit/doc-history/internal/domain"
)

// Forget prunes the history event with the given id. With single set only that
// entry is removed; otherwise it and every older entry are removed. Field
// values are never touched, and an unknown id leaves doc unchanged.
func Forget(doc *domain.Document, eventID string, single bool) *domain.Document {
	if doc == nil {
		return doc
	}
	idx := doc.EventIndex(eventID)
	if idx < 0 {
		return doc
	}

	if single {
		pruned := make([]domain.HistoryEvent, 0, len(doc.History)-1)
		pruned = append(pruned, doc.History[:idx]...)
		doc.History = append(pruned, doc.History[idx+1:]...)
		return doc
	}

	kept := make([]domain.HistoryEvent, idx)
	copy(kept, doc.History[:idx])
	doc.History = kept
	return doc
}
