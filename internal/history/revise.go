package history

import (
	"time"

	"github.com/mohae/deepcopy"

	"github.com/spec-kit/doc-history/internal/domain"
)

// Selector picks the point in history a revision targets.
type Selector struct {
	id     string
	at     time.Time
	byTime bool
}

// ByID selects a history event, or failing that a single change, by identifier.
func ByID(id string) Selector {
	return Selector{id: id}
}

// AtTime selects every event recorded at or before t.
func AtTime(t time.Time) Selector {
	return Selector{at: t, byTime: true}
}

// IsTime reports whether the selector targets a timestamp.
func (s Selector) IsTime() bool {
	return s.byTime
}

// ID returns the selected identifier, or "" for a timestamp selector.
func (s Selector) ID() string {
	return s.id
}

func (s Selector) String() string {
	if s.byTime {
		return "at:" + s.at.UTC().Format(time.RFC3339Nano)
	}
	return "id:" + s.id
}

// Revise replays recorded changes onto doc's fields so they hold the values
// current at the selected point. Shallow mode replays only the most recent
// selected event; deep mode replays every selected event, oldest first. The
// history itself is never modified. An unmatched selector leaves doc unchanged.
func Revise(doc *domain.Document, selector Selector, deep bool) *domain.Document {
	if doc == nil {
		return doc
	}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}

	if selector.byTime {
		var selected []domain.HistoryEvent
		for _, event := range doc.History {
			if !event.Date.After(selector.at) {
				selected = append(selected, event)
			}
		}
		applyEvents(doc, selected, deep)
		return doc
	}

	if idx := doc.EventIndex(selector.id); idx >= 0 {
		applyEvents(doc, doc.History[idx:], deep)
		return doc
	}

	if change, ok := findChange(doc.History, selector.id); ok {
		applyChange(doc.Fields, change)
	}
	return doc
}

// applyEvents replays newest-first candidates in chronological order.
func applyEvents(doc *domain.Document, candidates []domain.HistoryEvent, deep bool) {
	if len(candidates) == 0 {
		return
	}
	if !deep {
		candidates = candidates[:1]
	}
	for i := len(candidates) - 1; i >= 0; i-- {
		for _, change := range candidates[i].Changes {
			applyChange(doc.Fields, change)
		}
	}
}

func applyChange(fields map[string]any, change domain.Change) {
	if change.Type == domain.ChangeDeleted {
		unsetPath(fields, change.Path)
		return
	}
	setPath(fields, change.Path, deepcopy.Copy(change.After))
}

func findChange(events []domain.HistoryEvent, id string) (domain.Change, bool) {
	for _, event := range events {
		for _, change := range event.Changes {
			if change.ID == id {
				return change, true
			}
		}
	}
	return domain.Change{}, false
}
