package service

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	apperrors "github.com/spec-kit/doc-history/pkg/util"
)

// Query modifiers recognized by Find. They are removed from the filter before
// it reaches the store.
const (
	modifierRevision     = "$revision"
	modifierDeepRevision = "$deepRevision"
)

// FindQuery is a parsed find request.
type FindQuery struct {
	// Filter is a JSON object matched against stored fields; nil matches everything.
	Filter []byte
	// Revision, when set, rewinds every result to its state at that instant.
	Revision *time.Time
	Deep     bool
}

// ParseFindQuery reads the revision modifiers out of a JSON query and returns
// the remaining object as the field filter. An empty body matches everything.
func ParseFindQuery(raw []byte) (FindQuery, error) {
	var query FindQuery
	if len(strings.TrimSpace(string(raw))) == 0 {
		return query, nil
	}
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return query, apperrors.NewValidationError("query must be a JSON object", nil)
	}

	if rev := gjson.GetBytes(raw, modifierRevision); rev.Exists() {
		at, err := parseRevision(rev)
		if err != nil {
			return query, err
		}
		query.Revision = &at
	}
	if deep := gjson.GetBytes(raw, modifierDeepRevision); deep.Exists() {
		if deep.Type != gjson.True && deep.Type != gjson.False {
			return query, apperrors.NewValidationError("$deepRevision must be a boolean", nil)
		}
		query.Deep = deep.Bool()
	}

	filter := raw
	for _, modifier := range []string{modifierRevision, modifierDeepRevision} {
		var err error
		if filter, err = sjson.DeleteBytes(filter, modifier); err != nil {
			return query, apperrors.NewValidationError("invalid query", map[string]any{"modifier": modifier})
		}
	}
	if object := gjson.ParseBytes(filter); len(object.Map()) > 0 {
		query.Filter = []byte(object.Raw)
	}
	return query, nil
}

// parseRevision accepts an RFC 3339 timestamp or Unix milliseconds.
func parseRevision(value gjson.Result) (time.Time, error) {
	switch value.Type {
	case gjson.String:
		at, err := time.Parse(time.RFC3339Nano, value.String())
		if err != nil {
			return time.Time{}, apperrors.NewValidationError("$revision must be an RFC 3339 timestamp", map[string]any{"value": value.String()})
		}
		return at, nil
	case gjson.Number:
		return time.UnixMilli(value.Int()).UTC(), nil
	default:
		return time.Time{}, apperrors.NewValidationError("$revision must be a timestamp or Unix milliseconds", nil)
	}
}
