package history

import (
	"github.com/spec-kit/doc-history/internal/domain"
)

// Record assembles filtered changes into a history event. It returns nil when
// there is nothing to record. The author is attached only when author
// tracking is enabled.
func (e *Engine) Record(changes []domain.Change, author any) *domain.HistoryEvent {
	if len(changes) == 0 {
		return nil
	}
	event := &domain.HistoryEvent{
		ID:      e.newID(),
		Date:    e.clock(),
		Changes: changes,
	}
	if e.opts.Author.Enable && author != nil {
		event.Author = author
	}
	return event
}
