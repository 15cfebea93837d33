package history

import (
	"github.com/mohae/deepcopy"
	"go.uber.org/zap"

	"github.com/spec-kit/doc-history/internal/domain"
)

// Filter drops untracked diffs and converts the rest into changes, keeping the
// order Diff emitted them in. before and after are the snapshots the diffs were
// computed from; array changes record the whole array values read from them.
func (e *Engine) Filter(raw []RawDiff, before, after map[string]any) []domain.Change {
	changes := make([]domain.Change, 0, len(raw))
	claimedArrays := map[string]struct{}{}

	for _, diff := range raw {
		if len(diff.Path) == 0 {
			continue
		}
		root := diff.Path.Root()
		if domain.IsReservedField(root) {
			continue
		}
		if _, claimed := claimedArrays[root]; claimed {
			continue
		}
		if diff.Kind == domain.ChangeArrayChanged {
			claimedArrays[root] = struct{}{}
		}

		change, ok := e.convert(diff, before, after)
		if ok {
			changes = append(changes, change)
		}
	}
	return changes
}

func (e *Engine) convert(diff RawDiff, before, after map[string]any) (domain.Change, bool) {
	if !e.opts.Track.Enabled(diff.Kind) {
		return domain.Change{}, false
	}

	meta, err := e.resolver.Lookup(diff.Path)
	if err != nil {
		e.logger.Debug("dropping diff with unresolvable path",
			zap.Strings("path", diff.Path),
			zap.String("kind", string(diff.Kind)),
			zap.Error(err))
		return domain.Change{}, false
	}
	if meta.IgnoreHistory {
		return domain.Change{}, false
	}

	change := domain.Change{
		ID:   e.newID(),
		Path: diff.Path.Clone(),
		Type: diff.Kind,
	}
	switch diff.Kind {
	case domain.ChangeCreated:
		change.After = stripAdministrative(diff.RHS)
	case domain.ChangeEdited:
		change.Before = diff.LHS
		change.After = diff.RHS
	case domain.ChangeDeleted:
		change.Before = diff.LHS
	case domain.ChangeArrayChanged:
		change.Before, _ = lookupPath(before, diff.Path)
		change.After, _ = lookupPath(after, diff.Path)
		change.Item = diff.Item
	}
	return change, true
}

// stripAdministrative removes a nested document's own id, author and history
// from a created value.
func stripAdministrative(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	out := deepcopy.Copy(m).(map[string]any)
	delete(out, domain.FieldID)
	delete(out, domain.FieldAuthor)
	delete(out, domain.FieldHistory)
	return out
}
