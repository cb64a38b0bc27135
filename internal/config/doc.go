// Package config provides centralized configuration management for the
// AgentHub runtime. The daemon loads a single JSON file at startup and
// downstream services consume typed sections; relative paths inside the
// file are resolved against the file's own directory.
package config
