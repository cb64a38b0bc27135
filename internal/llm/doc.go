// Package llm contains adapters for invoking chat-completion models. It
// abstracts away provider-specific wire formats and normalizes messages,
// tool declarations and tool-call results so the classifier and the agents
// can run against a locally-hosted Ollama daemon or any OpenAI-compatible
// endpoint without caring which one is configured.
package llm
