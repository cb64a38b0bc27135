package plugin

import (
	"errors"
	"fmt"
	goplugin "plugin"
)

// Loader resolves plugin binaries into Plugin implementations.
type Loader interface {
	Load(path string) (Plugin, error)
}

// exported symbol names probed by the loader, in order.
var pluginSymbols = []string{"Plugin", "NewPlugin"}

// GoPluginLoader loads shared objects built with `go build -buildmode=plugin`.
type GoPluginLoader struct{}

// Load opens the shared object and probes the well-known symbols for a
// Plugin implementation. The symbol may be a Plugin value, a pointer to one,
// or a constructor func() Plugin.
func (GoPluginLoader) Load(path string) (Plugin, error) {
	if path == "" {
		return nil, errors.New("plugin path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	for _, name := range pluginSymbols {
		symbol, err := so.Lookup(name)
		if err != nil {
			continue
		}
		plugin, err := asPlugin(symbol)
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", name, err)
		}
		return plugin, nil
	}
	return nil, fmt.Errorf("no plugin symbol found in %s", path)
}

func asPlugin(symbol any) (Plugin, error) {
	switch p := symbol.(type) {
	case Plugin:
		return p, nil
	case *Plugin:
		if p == nil {
			return nil, errors.New("plugin symbol is nil")
		}
		return *p, nil
	case func() Plugin:
		return p(), nil
	default:
		return nil, errors.New("symbol does not implement plugin.Plugin")
	}
}
