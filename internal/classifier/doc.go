// Package classifier decides which agent should handle a request. The
// model-backed implementation presents the agent roster to the model and
// forces a select_agent tool call, so the selection comes back as
// structured arguments instead of free text.
package classifier
