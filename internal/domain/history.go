package domain

import (
	"strings"
	"time"
)

// ChangeType captures what kind of difference a change records.
type ChangeType string

const (
	ChangeCreated      ChangeType = "N"
	ChangeEdited       ChangeType = "E"
	ChangeDeleted      ChangeType = "D"
	ChangeArrayChanged ChangeType = "A"
)

// String returns a readable name, used as a metrics label.
func (t ChangeType) String() string {
	switch t {
	case ChangeCreated:
		return "created"
	case ChangeEdited:
		return "edited"
	case ChangeDeleted:
		return "deleted"
	case ChangeArrayChanged:
		return "array_changed"
	default:
		return string(t)
	}
}

// Path locates a value inside a document by field names.
type Path []string

// String joins the segments with dots.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Root returns the top-level segment, or "" for an empty path.
func (p Path) Root() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Clone returns a copy that does not share the backing array.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// ArrayItem is the element-level payload of an array change.
type ArrayItem struct {
	Index  int        `json:"index"`
	Kind   ChangeType `json:"kind"`
	Before any        `json:"before,omitempty"`
	After  any        `json:"after,omitempty"`
}

// Change is one field-level difference within a history event.
type Change struct {
	ID     string     `json:"id"`
	Path   Path       `json:"path"`
	Type   ChangeType `json:"type"`
	Before any        `json:"before,omitempty"`
	After  any        `json:"after,omitempty"`
	Item   *ArrayItem `json:"item,omitempty"`
}

// HistoryEvent is an immutable audit entry produced by one record cycle.
type HistoryEvent struct {
	ID      string    `json:"id"`
	Date    time.Time `json:"date"`
	Author  any       `json:"author,omitempty"`
	Changes []Change  `json:"changes"`
}
