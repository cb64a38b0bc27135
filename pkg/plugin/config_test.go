package plugin

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plugins.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadManagerConfig(t *testing.T) {
	path := writeManifest(t, `
plugin_dir: plugins
defaults:
  allowed_capabilities: [network]
plugins:
  alpha:
    enabled: true
    path: alpha.so
    config:
      keywords: billing
  beta:
    enabled: false
    path: beta.so
`)
	cfg, err := LoadManagerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PluginDir != "plugins" {
		t.Fatalf("plugin_dir = %q", cfg.PluginDir)
	}
	ids := cfg.EnabledIDs()
	if len(ids) != 1 || ids[0] != "alpha" {
		t.Fatalf("enabled ids = %v", ids)
	}
}

func TestLoadManagerConfigRejectsUnknownKeys(t *testing.T) {
	path := writeManifest(t, `
plugin_drr: plugins
plugins: {}
`)
	if _, err := LoadManagerConfig(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLoadManagerConfigRejectsUnknownCapability(t *testing.T) {
	path := writeManifest(t, `
defaults:
  allowed_capabilities: [teleport]
plugins: {}
`)
	if _, err := LoadManagerConfig(path); err == nil {
		t.Fatal("expected unknown capability to be rejected")
	}
}

func TestLoadManagerConfigRequiresPathWhenEnabled(t *testing.T) {
	path := writeManifest(t, `
plugins:
  alpha:
    enabled: true
`)
	if _, err := LoadManagerConfig(path); err == nil {
		t.Fatal("expected enabled plugin without path to be rejected")
	}
}
