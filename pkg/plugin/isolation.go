package plugin

import (
	"errors"
	"fmt"
	"slices"
)

// IsolationPolicy constrains which capabilities a plugin may exercise.
type IsolationPolicy struct {
	AllowedCapabilities []Capability `yaml:"allowed_capabilities"`
	DeniedCapabilities  []Capability `yaml:"denied_capabilities"`
}

// Merge overlays the policy on top of fallback: an empty allow list inherits
// the fallback's, while deny lists accumulate so a default deny can never be
// lifted by a per-plugin block.
func (p IsolationPolicy) Merge(fallback IsolationPolicy) IsolationPolicy {
	if len(p.AllowedCapabilities) == 0 {
		p.AllowedCapabilities = fallback.AllowedCapabilities
	}
	for _, capability := range fallback.DeniedCapabilities {
		if !slices.Contains(p.DeniedCapabilities, capability) {
			p.DeniedCapabilities = append(p.DeniedCapabilities, capability)
		}
	}
	return p
}

func (p IsolationPolicy) validate() error {
	for _, capability := range p.AllowedCapabilities {
		if !capability.known() {
			return fmt.Errorf("unknown capability %q in allow list", capability)
		}
	}
	for _, capability := range p.DeniedCapabilities {
		if !capability.known() {
			return fmt.Errorf("unknown capability %q in deny list", capability)
		}
	}
	return nil
}

func (p IsolationPolicy) empty() bool {
	return len(p.AllowedCapabilities) == 0 && len(p.DeniedCapabilities) == 0
}

// IsolationStrategy enforces security restrictions for plugins at runtime.
type IsolationStrategy interface {
	Validate(info Info, policy IsolationPolicy) error
	Prepare(info Info) error
	Cleanup(info Info) error
}

// CapabilityIsolation performs capability allow/deny validation without any
// runtime sandboxing. It is the default strategy.
type CapabilityIsolation struct{}

// Validate ensures the plugin requested capabilities are allowed by the policy.
// Deny entries win over allow entries. An empty allow list permits everything
// not explicitly denied.
func (CapabilityIsolation) Validate(info Info, policy IsolationPolicy) error {
	for _, capability := range info.Capabilities {
		if slices.Contains(policy.DeniedCapabilities, capability) {
			return fmt.Errorf("capability %s is explicitly denied", capability)
		}
	}
	if len(policy.AllowedCapabilities) == 0 {
		return nil
	}
	for _, capability := range info.Capabilities {
		if !slices.Contains(policy.AllowedCapabilities, capability) {
			return fmt.Errorf("capability %s not permitted", capability)
		}
	}
	return nil
}

// Prepare implements IsolationStrategy.
func (CapabilityIsolation) Prepare(Info) error { return nil }

// Cleanup implements IsolationStrategy.
func (CapabilityIsolation) Cleanup(Info) error { return nil }

// NewIsolationStrategy returns the default strategy when none is supplied.
func NewIsolationStrategy(strategy IsolationStrategy) IsolationStrategy {
	if strategy == nil {
		return CapabilityIsolation{}
	}
	return strategy
}

// MergePolicies combines the default and plugin specific isolation policies.
func MergePolicies(defaults IsolationPolicy, plugin *IsolationPolicy) IsolationPolicy {
	if plugin == nil {
		return defaults
	}
	merged := plugin.Merge(defaults)
	if merged.empty() {
		return defaults
	}
	return merged
}

// EnsurePolicy rejects plugins that declare capabilities without any policy
// to constrain them.
func EnsurePolicy(info Info, policy IsolationPolicy) error {
	if len(info.Capabilities) == 0 {
		return nil
	}
	if policy.empty() {
		return errors.New("plugins declaring capabilities require an isolation policy")
	}
	return nil
}
