package config

import (
	"io/fs"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/doc-history/internal/schema"
)

// CollectionConfig declares one tracked collection.
type CollectionConfig struct {
	Schema schema.Definition
	// Options overrides the global options for this collection only.
	Options map[string]any
}

// HistoryConfig is the attach-time configuration read from history.yaml.
type HistoryConfig struct {
	// Options is the global option tier applied to every collection.
	Options     map[string]any
	Collections map[string]CollectionConfig
}

var trackingKeys = []string{
	"track.new",
	"track.edited",
	"track.deleted",
	"track.array",
	"author.enable",
	"author.type",
	"author.ref",
}

// LoadHistory reads the attach-time history configuration. A missing file
// yields an empty configuration; global options can also be set through
// HISTORY_OPTIONS_* environment variables.
func LoadHistory(path string) (*HistoryConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HISTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range trackingKeys {
		_ = v.BindEnv("options." + key)
	}

	cfg := &HistoryConfig{Options: map[string]any{}, Collections: map[string]CollectionConfig{}}

	fileFound := false
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrapf(err, "read history config %s", path)
			}
			fileFound = true
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, "stat history config %s", path)
		}
	}

	for _, key := range trackingKeys {
		full := "options." + key
		if !v.IsSet(full) {
			continue
		}
		section, field, _ := strings.Cut(key, ".")
		group, ok := cfg.Options[section].(map[string]any)
		if !ok {
			group = map[string]any{}
			cfg.Options[section] = group
		}
		if section == "author" && field != "enable" {
			group[field] = v.GetString(full)
		} else {
			group[field] = v.GetBool(full)
		}
	}

	if !fileFound {
		return cfg, nil
	}

	// viper folds keys to lower case; field names are case sensitive, so the
	// collection trees are decoded from the raw file.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read history config %s", path)
	}
	var file struct {
		Collections map[string]struct {
			Fields  map[string]schema.Field `yaml:"fields"`
			Options map[string]any          `yaml:"options"`
		} `yaml:"collections"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, "decode history collections")
	}
	for name, collection := range file.Collections {
		cfg.Collections[name] = CollectionConfig{
			Schema:  schema.Definition{Fields: collection.Fields},
			Options: collection.Options,
		}
	}
	return cfg, nil
}

// Tracking resolves the options of a collection: defaults, then global
// options, then the collection override.
func (h *HistoryConfig) Tracking(collection string) (TrackingConfig, error) {
	if h == nil {
		return ResolveTracking()
	}
	return ResolveTracking(h.Options, h.Collections[collection].Options)
}
