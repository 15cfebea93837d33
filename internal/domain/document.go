package domain

import (
	"strconv"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/mohae/deepcopy"
)

// Reserved top-level field names. They never appear as the root of a change path.
const (
	FieldID      = "_id"
	FieldVersion = "__v"
	FieldHistory = "history"
	FieldAuthor  = "historyAuthor"
)

// IsReservedField reports whether name is an administrative field excluded from history.
func IsReservedField(name string) bool {
	switch name {
	case FieldID, FieldVersion, FieldHistory, FieldAuthor:
		return true
	default:
		return false
	}
}

// Document is the tracked entity: free-form fields plus their audit trail.
type Document struct {
	ID         string
	Collection string
	Version    int
	Fields     map[string]any
	History    []HistoryEvent
	// Author is the transient reference attached to the next recorded event.
	Author    any
	CreatedAt time.Time
	UpdatedAt time.Time

	baseline map[string]any
}

// NewDocument builds an unsaved document with no recorded baseline.
func NewDocument(collection, id string, fields map[string]any) *Document {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Document{
		ID:         id,
		Collection: collection,
		Fields:     fields,
		History:    []HistoryEvent{},
	}
}

// Snapshot returns a deep copy of the tracked state plus the id and version a
// stored record carries. The author is an opaque reference and never diffed.
func (d *Document) Snapshot() map[string]any {
	out := make(map[string]any, len(d.Fields)+2)
	for key, value := range d.Fields {
		out[key] = deepcopy.Copy(value)
	}
	out[FieldID] = d.ID
	out[FieldVersion] = d.Version
	return out
}

// Baseline returns the state as of the last successful record, or nil if the
// document was never recorded.
func (d *Document) Baseline() map[string]any {
	return d.baseline
}

// MarkRecorded captures the current state as the diff baseline for the next cycle.
// Call it after loading a document and after every successful persist.
func (d *Document) MarkRecorded() {
	d.baseline = d.Snapshot()
}

// Fingerprint hashes the current field values.
func (d *Document) Fingerprint() (string, error) {
	hash, err := hashstructure.Hash(d.Fields, hashstructure.FormatV2, nil)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(hash, 16), nil
}

// EventIndex returns the position of the history event with the given id, or -1.
func (d *Document) EventIndex(eventID string) int {
	for i := range d.History {
		if d.History[i].ID == eventID {
			return i
		}
	}
	return -1
}
