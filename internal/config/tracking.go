package config

import (
	"github.com/TwiN/deepmerge"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/doc-history/internal/domain"
)

// TrackingConfig is the resolved, immutable history configuration of a collection.
type TrackingConfig struct {
	Track  TrackToggles `yaml:"track"`
	Author AuthorConfig `yaml:"author"`
}

// TrackToggles enables or disables each change kind.
type TrackToggles struct {
	New     bool `yaml:"new"`
	Edited  bool `yaml:"edited"`
	Deleted bool `yaml:"deleted"`
	Array   bool `yaml:"array"`
}

// AuthorConfig controls author attribution. Type and Ref are opaque
// descriptors forwarded to the storage layer.
type AuthorConfig struct {
	Enable bool   `yaml:"enable"`
	Type   string `yaml:"type"`
	Ref    string `yaml:"ref"`
}

// Enabled reports whether changes of the given kind are tracked.
func (t TrackToggles) Enabled(kind domain.ChangeType) bool {
	switch kind {
	case domain.ChangeCreated:
		return t.New
	case domain.ChangeEdited:
		return t.Edited
	case domain.ChangeDeleted:
		return t.Deleted
	case domain.ChangeArrayChanged:
		return t.Array
	default:
		return false
	}
}

const defaultTrackingYAML = `
track:
  new: true
  edited: true
  deleted: true
  array: true
author:
  enable: false
  type: ""
  ref: ""
`

// DefaultTracking returns the built-in tracking configuration.
func DefaultTracking() TrackingConfig {
	cfg, _ := ResolveTracking()
	return cfg
}

// ResolveTracking layers option tiers over the built-in defaults, later tiers
// winning, and decodes the result once. Typical tiers are the attach-time
// options from history.yaml followed by a per-collection override.
func ResolveTracking(tiers ...map[string]any) (TrackingConfig, error) {
	merged := []byte(defaultTrackingYAML)
	for i, tier := range tiers {
		if len(tier) == 0 {
			continue
		}
		fragment, err := yaml.Marshal(tier)
		if err != nil {
			return TrackingConfig{}, errors.Wrapf(err, "encode option tier %d", i)
		}
		merged, err = deepmerge.YAML(merged, fragment, deepmerge.Config{PreventMultipleDefinitionsOfKeysWithPrimitiveValue: false})
		if err != nil {
			return TrackingConfig{}, errors.Wrapf(err, "merge option tier %d", i)
		}
	}

	var cfg TrackingConfig
	if err := yaml.Unmarshal(merged, &cfg); err != nil {
		return TrackingConfig{}, errors.Wrap(err, "decode tracking options")
	}
	return cfg, nil
}
