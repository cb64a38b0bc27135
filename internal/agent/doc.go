// Package agent defines the agent abstraction and its model-backed
// implementation. Agents are declared in a YAML manifest and built into
// a registry that the classifier routes against.
package agent
