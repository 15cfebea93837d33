package schema

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/spec-kit/doc-history/internal/domain"
)

// ErrMalformedPath is returned when a path cannot be resolved against a schema.
var ErrMalformedPath = errors.New("malformed schema path")

// Field declares one schema field and, for nested objects, its children.
type Field struct {
	IgnoreHistory bool             `yaml:"ignoreHistory"`
	Fields        map[string]Field `yaml:"fields"`
}

// Definition is the declared field tree of a collection.
type Definition struct {
	Fields map[string]Field `yaml:"fields"`
}

// FieldMeta is the per-field metadata consulted by the change filter.
type FieldMeta struct {
	IgnoreHistory bool
}

// Resolver resolves metadata for a document path.
type Resolver interface {
	Lookup(path domain.Path) (FieldMeta, error)
}

type node struct {
	meta     FieldMeta
	children map[string]*node
}

// Registry is a per-collection metadata tree keyed by path segment, so field
// names may contain any character, dots included.
type Registry struct {
	root *node
}

// NewRegistry builds the lookup tree for def. The author reference field is
// always registered as ignored.
func NewRegistry(def Definition) *Registry {
	root := &node{children: build(def.Fields)}
	root.children[domain.FieldAuthor] = &node{meta: FieldMeta{IgnoreHistory: true}}
	return &Registry{root: root}
}

func build(fields map[string]Field) map[string]*node {
	out := make(map[string]*node, len(fields))
	for name, field := range fields {
		out[name] = &node{
			meta:     FieldMeta{IgnoreHistory: field.IgnoreHistory},
			children: build(field.Fields),
		}
	}
	return out
}

// Lookup returns the metadata for path. Unknown paths resolve to zero
// metadata; an ignored ancestor makes every descendant ignored.
func (r *Registry) Lookup(path domain.Path) (FieldMeta, error) {
	if len(path) == 0 {
		return FieldMeta{}, errors.Wrap(ErrMalformedPath, "empty path")
	}
	current := r.root
	for _, segment := range path {
		next, ok := current.children[segment]
		if !ok {
			return FieldMeta{}, nil
		}
		if next.meta.IgnoreHistory {
			return next.meta, nil
		}
		current = next
	}
	return current.meta, nil
}

// Paths lists every registered path, segments joined with ".", in sorted order.
func (r *Registry) Paths() []string {
	var out []string
	var walk func(prefix []string, n *node)
	walk = func(prefix []string, n *node) {
		for name, child := range n.children {
			path := append(append([]string(nil), prefix...), name)
			out = append(out, strings.Join(path, "."))
			walk(path, child)
		}
	}
	walk(nil, r.root)
	sort.Strings(out)
	return out
}
