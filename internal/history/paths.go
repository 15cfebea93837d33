package history

import (
	"github.com/spec-kit/doc-history/internal/domain"
)

func lookupPath(root map[string]any, path domain.Path) (any, bool) {
	if len(path) == 0 || root == nil {
		return nil, false
	}
	current := root
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	value, ok := current[path[len(path)-1]]
	return value, ok
}

// setPath writes value at path, replacing anything in the way with mappings.
func setPath(root map[string]any, path domain.Path, value any) {
	if len(path) == 0 {
		return
	}
	current := root
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

// unsetPath removes the value at path. Missing intermediates are left alone.
func unsetPath(root map[string]any, path domain.Path) {
	if len(path) == 0 {
		return
	}
	current := root
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, path[len(path)-1])
}
