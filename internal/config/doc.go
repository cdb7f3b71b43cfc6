// Package config handles configuration loading for turtle-gateway.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from TURTLE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/turtle-gateway/gateway.yaml
//  3. ~/.config/turtle-gateway/gateway.yaml
//
// Files ending in .toml are decoded with BurntSushi/toml; every other
// extension is treated as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${TURTLE_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agents:
//	  command_timeout: "30s"
//	  idle_poll_interval: "1s"
//	dashboard:
//	  broadcast_interval: "100ms"
//
// # Sections
//
//   - server: HTTP listen address for turtles, dashboards and the API
//   - tailscale: optional tsnet listener replacing server.http_addr
//   - database: SQLite ledger path
//   - auth: JWT secret protecting the operator API
//   - agents: command timeout, idle poll, history size, move retries, fuel items
//   - dashboard: snapshot broadcast interval
//   - recorder: optional compressed frame recording
//   - logging: level and format
//
// # Validation
//
// Load validates after parsing. A failure names the offending key.
package config
