// Package config provides configuration loading and path management.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for shannon-mcp's on-disk state. Unlike
// the XDG four-way split, everything lives under a single data root so a
// daemon instance can be relocated or wiped by removing one directory.
type Paths struct {
	Root string // ~/.shannon-mcp (or $SHANNON_MCP_HOME)
}

// GetPaths returns the standard paths for shannon-mcp data.
func GetPaths() *Paths {
	return &Paths{
		Root: getEnvOrDefault("SHANNON_MCP_HOME", defaultRootHome()),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Root, p.CheckpointsDir(), p.PIDsDir(), p.SessionCacheDir(), p.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// SessionsDBPath returns the path to the sessions sqlite database.
func (p *Paths) SessionsDBPath() string {
	return filepath.Join(p.Root, "sessions.db")
}

// ProcessRegistryDBPath returns the path to the process registry sqlite database.
func (p *Paths) ProcessRegistryDBPath() string {
	return filepath.Join(p.Root, "process_registry.db")
}

// CheckpointsDir returns the directory holding CAS checkpoint blobs.
func (p *Paths) CheckpointsDir() string {
	return filepath.Join(p.Root, "checkpoints")
}

// PIDsDir returns the directory holding per-process PID sidecar files.
func (p *Paths) PIDsDir() string {
	return filepath.Join(p.Root, "pids")
}

// PIDFilePath returns the sidecar file path for one process ID.
func (p *Paths) PIDFilePath(processID string) string {
	return filepath.Join(p.PIDsDir(), processID+".pid")
}

// SessionCacheDir returns the directory holding persisted session cache entries.
func (p *Paths) SessionCacheDir() string {
	return filepath.Join(p.Root, "session_cache")
}

// LogsDir returns the directory for rotated daemon log files.
func (p *Paths) LogsDir() string {
	return filepath.Join(p.Root, "logs")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultRootHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "shannon-mcp")
	}
	return filepath.Join(os.Getenv("HOME"), ".shannon-mcp")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", os.Getenv("APPDATA")), "shannon-mcp", "config.json")
	}
	return filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", filepath.Join(os.Getenv("HOME"), ".config")), "shannon-mcp", "config.json")
}

// ProjectConfigPath returns the path to the project-local config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, ".shannon-mcp", "config.json")
}
