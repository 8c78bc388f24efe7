// Package config handles configuration loading for mcp-router.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${MCP_ROUTER_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	approvals:
//	  ttl: "5m"
//	  sweep_interval: "60s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:9450"   # MCP facade and admin API
//
// Database:
//
//	database:
//	  path: "/var/lib/mcp-router/router.db"
//
// Authentication (admin API):
//
//	auth:
//	  jwt_secret: "${MCP_ROUTER_JWT_SECRET}"
//	  admin_password_hash: "$2a$10$..."   # bcrypt
//
// Bearer token policy:
//
//	tokens:
//	  default_ttl: "24h"
//	  max_ttl: "720h"
//
// Approval queue:
//
//	approvals:
//	  ttl: "5m"
//	  sweep_interval: "60s"
//
// Backend supervision:
//
//	backends:
//	  start_timeout: "30s"
//	  stop_grace: "5s"
//	  call_timeout: "60s"
//	  health_interval: "30s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
