package plugin

// Type identifies what a plugin contributes to the routing hub.
type Type string

const (
	// TypeAgent plugins add responders to the agent registry.
	TypeAgent Type = "agent"
	// TypeKnowledge plugins feed routing hints to the classifier.
	TypeKnowledge Type = "knowledge"
)

// Capability names a host facility a plugin asks to use.
type Capability string

const (
	CapabilityFilesystem Capability = "filesystem"
	CapabilityNetwork    Capability = "network"
	CapabilityExecution  Capability = "execution"
)

// known reports whether the capability is one the hub understands.
func (c Capability) known() bool {
	switch c {
	case CapabilityFilesystem, CapabilityNetwork, CapabilityExecution:
		return true
	}
	return false
}

// Info is the static metadata a plugin reports about itself.
type Info struct {
	ID           string
	Name         string
	Description  string
	Author       string
	Version      string
	Category     Type
	Capabilities []Capability
}

// State marks where a plugin instance sits in its lifecycle.
type State string

const (
	StateRegistered  State = "registered"
	StateInitialised State = "initialised"
	StateStarted     State = "started"
	StateStopped     State = "stopped"
)
