// Package config handles configuration loading for debug-agent.
//
// # Overview
//
// Configuration is loaded from a YAML file, or a TOML file when the path ends
// in .toml. Keys left out of the file keep the values from Default.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path given with --config
//  2. Path from DEBUG_AGENT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/debug-agent/config.yaml
//  4. ~/.config/debug-agent/config.yaml
//
// # Example
//
//	agent:
//	  name: node
//	  host: 127.0.0.1
//	  port: 5858
//	  embedding_host: node
//	  bind_retry_interval: 1s
//	engine:
//	  version: "3.14.5.9"
//	http:
//	  addr: 127.0.0.1:5859
//	database:
//	  path: ~/.local/share/debug-agent/sessions.db
//	logging:
//	  level: info
//	  format: text
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}. Unset
// variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax ("500ms", "1s", "2m").
package config
