// Package config provides configuration loading, merging, and path
// management for the daemon.
//
// # Configuration Loading
//
// Load implements a hierarchical loading strategy that merges configuration
// from multiple sources in priority order:
//
//  1. Global config (GlobalConfigPath, typically ~/.config/shannon-mcp/config.json)
//  2. Project config (<directory>/.shannon-mcp/config.json and config.jsonc)
//  3. SHANNON_MCP_CONFIG, an extra file loaded last before env overrides
//  4. Environment variable overrides
//
// Later sources override earlier ones field by field; maps are merged key
// by key rather than replaced wholesale.
//
// # Supported Formats
//
// Both config.json and config.jsonc are accepted. JSONC files may contain
// // line comments and /* block */ comments, stripped before parsing.
//
// # Variable Interpolation
//
// Configuration files support two placeholder forms, expanded before JSON
// parsing:
//   - {env:VAR_NAME} expands to an environment variable's value (empty
//     string if unset)
//   - {file:path} expands to a file's contents; relative paths resolve
//     against the config file's directory, and a leading ~/ expands to
//     the user's home directory. An unreadable file leaves the
//     placeholder untouched.
//
// # Path Management
//
// Paths (see paths.go) locates daemon state under a single data root,
// default ~/.shannon-mcp, overridable via SHANNON_MCP_HOME: sessions.db,
// process_registry.db, checkpoints/, pids/, session_cache/, and logs/.
package config
