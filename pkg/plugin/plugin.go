package plugin

import "context"

// Plugin is the contract every hub plugin implements. The manager calls the
// lifecycle hooks in order: Configure once at registration, Init once before
// the first Start, then Start/Stop as the host demands.
type Plugin interface {
	// Info reports the plugin's static metadata.
	Info() Info
	// Configure hands the plugin its configuration block before any other
	// hook runs. The plugin may write defaults back into the map.
	Configure(cfg map[string]any) error
	// Init performs one-time setup.
	Init(ctx *ExecutionContext) error
	// Start activates the plugin; long-running work belongs in goroutines
	// spawned here.
	Start(ctx *ExecutionContext) error
	// Stop shuts the plugin down and releases whatever Start acquired.
	Stop(ctx *ExecutionContext) error
}

// ExecutionContext carries per-call state into each lifecycle hook. The
// manager hands every hook its own clone, so plugins may mutate the maps
// freely.
type ExecutionContext struct {
	// C carries cancellation and deadlines from the host.
	C context.Context
	// Config is the plugin's configuration block.
	Config map[string]any
	// Resources holds callbacks the hub exposes to plugins, keyed by
	// well-known names such as "hub:register_agent" and "hub:routing_hints".
	Resources map[string]any
}

// Clone returns a copy whose maps are detached from the original.
func (c *ExecutionContext) Clone() *ExecutionContext {
	if c == nil {
		return nil
	}
	return &ExecutionContext{
		C:         c.C,
		Config:    cloneMap(c.Config),
		Resources: cloneMap(c.Resources),
	}
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
