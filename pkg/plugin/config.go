package plugin

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ManagerConfig is the YAML manifest driving the plugin manager: where plugin
// binaries live, the default isolation policy, and the per-plugin blocks.
type ManagerConfig struct {
	PluginDir string                  `yaml:"plugin_dir"`
	Defaults  IsolationPolicy         `yaml:"defaults"`
	Plugins   map[string]PluginConfig `yaml:"plugins"`
}

// PluginConfig configures one plugin entry in the manifest.
type PluginConfig struct {
	Enabled bool             `yaml:"enabled"`
	Path    string           `yaml:"path"`
	Config  map[string]any   `yaml:"config"`
	Policy  *IsolationPolicy `yaml:"policy"`
}

// LoadManagerConfig parses the manifest at path. Unknown YAML keys are
// rejected so typos in a manifest surface at startup rather than as silently
// ignored settings.
func LoadManagerConfig(path string) (ManagerConfig, error) {
	var cfg ManagerConfig
	if path == "" {
		return cfg, errors.New("plugin manifest path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read plugin manifest: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse plugin manifest %s: %w", path, err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the manifest for problems the manager cannot recover from.
func (c ManagerConfig) Validate() error {
	if err := c.Defaults.validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	for _, id := range c.EnabledIDs() {
		entry := c.Plugins[id]
		if entry.Path == "" {
			return fmt.Errorf("plugin %s: path is required when enabled", id)
		}
		if entry.Policy != nil {
			if err := entry.Policy.validate(); err != nil {
				return fmt.Errorf("plugin %s: %w", id, err)
			}
		}
	}
	for id := range c.Plugins {
		if id == "" {
			return errors.New("plugin id cannot be empty")
		}
	}
	return nil
}

// EnabledIDs returns the ids of enabled plugins in sorted order.
func (c ManagerConfig) EnabledIDs() []string {
	ids := make([]string, 0, len(c.Plugins))
	for id, entry := range c.Plugins {
		if entry.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
