package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the daemon's merged configuration.
type Config struct {
	Schema string `json:"$schema,omitempty"`

	DefaultModel string                 `json:"defaultModel,omitempty"`
	DataRoot     string                 `json:"dataRoot,omitempty"`
	Binary       BinaryConfig           `json:"binary,omitempty"`
	Concurrency  ConcurrencyConfig      `json:"concurrency,omitempty"`
	Checkpoint   CheckpointConfig       `json:"checkpoint,omitempty"`
	Registry     RegistryConfig         `json:"registry,omitempty"`
	Decoder      DecoderConfig          `json:"decoder,omitempty"`
	Agent        map[string]AgentConfig `json:"agent,omitempty"`
	Logging      LoggingConfig          `json:"logging,omitempty"`
	Instructions []string               `json:"instructions,omitempty"`
}

// BinaryConfig configures the Binary Resolver's search strategy.
type BinaryConfig struct {
	Names             []string `json:"names,omitempty"`
	ExtraSearchPaths  []string `json:"extraSearchPaths,omitempty"`
	VersionConstraint string   `json:"versionConstraint,omitempty"`
	RefreshInterval   int64    `json:"refreshIntervalSeconds,omitempty"`
}

// ConcurrencyConfig bounds how many sessions the Supervisor runs at once.
type ConcurrencyConfig struct {
	MaxConcurrentSessions int   `json:"maxConcurrentSessions,omitempty"`
	SessionTimeoutSeconds int64 `json:"sessionTimeoutSeconds,omitempty"`
	GracefulStopSeconds   int64 `json:"gracefulStopSeconds,omitempty"`
}

// CheckpointConfig tunes the Checkpoint Store's auto-checkpoint timers and
// retention policy.
type CheckpointConfig struct {
	AutoIntervalSeconds int64 `json:"autoIntervalSeconds,omitempty"`
	RetentionDays       int   `json:"retentionDays,omitempty"`
	MaxPerSession       int   `json:"maxPerSession,omitempty"`
}

// RegistryConfig tunes the Process Registry's background tasks and
// validation constraints.
type RegistryConfig struct {
	HeartbeatIntervalSeconds   int64 `json:"heartbeatIntervalSeconds,omitempty"`
	MaintenanceIntervalSeconds int64 `json:"maintenanceIntervalSeconds,omitempty"`
	MaxRSSBytes                int64 `json:"maxRssBytes,omitempty"`
	MaxFDCount                 int   `json:"maxFdCount,omitempty"`
	MaxUptimeSeconds           int64 `json:"maxUptimeSeconds,omitempty"`
}

// DecoderConfig tunes the Stream Decoder's partial-JSON reassembly
// buffer and line-length limits.
type DecoderConfig struct {
	MaxPartialAgeSeconds int64 `json:"maxPartialAgeSeconds,omitempty"`
	MaxLineBytes         int   `json:"maxLineBytes,omitempty"`
}

// AgentConfig describes one named agent launch profile (spec §4.5).
type AgentConfig struct {
	Model      string            `json:"model,omitempty"`
	ExtraArgs  []string          `json:"extraArgs,omitempty"`
	Permission map[string]string `json:"permission,omitempty"`
}

// LoggingConfig selects the logger's verbosity and sinks.
type LoggingConfig struct {
	Level     string `json:"level,omitempty"`
	Pretty    bool   `json:"pretty,omitempty"`
	LogToFile bool   `json:"logToFile,omitempty"`
}

// DefaultConfig returns the configuration used when no file and no
// environment override is present.
func DefaultConfig() *Config {
	return &Config{
		DefaultModel: "claude-sonnet-4",
		Binary: BinaryConfig{
			Names:           []string{"claude", "claude-code"},
			RefreshInterval: 3600,
		},
		Concurrency: ConcurrencyConfig{
			MaxConcurrentSessions: 8,
			SessionTimeoutSeconds: 1800,
			GracefulStopSeconds:   10,
		},
		Checkpoint: CheckpointConfig{
			AutoIntervalSeconds: 300,
			RetentionDays:       30,
			MaxPerSession:       100,
		},
		Registry: RegistryConfig{
			HeartbeatIntervalSeconds:   30,
			MaintenanceIntervalSeconds: 3600,
			MaxRSSBytes:                2 << 30,
			MaxFDCount:                 1024,
			MaxUptimeSeconds:           86400,
		},
		Decoder: DecoderConfig{
			MaxPartialAgeSeconds: 5,
			MaxLineBytes:         1 << 20,
		},
		Agent:   make(map[string]AgentConfig),
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load loads configuration from multiple sources, in priority order:
//  1. Global config (GlobalConfigPath)
//  2. Project config (directory/.shannon-mcp/config.json and config.jsonc)
//  3. SHANNON_MCP_CONFIG, a path to an additional file loaded last
//  4. Environment variable overrides
func Load(directory string) (*Config, error) {
	cfg := DefaultConfig()

	globalDir := filepath.Dir(GlobalConfigPath())
	loadConfigFile(filepath.Join(globalDir, "config.json"), cfg)
	loadConfigFile(filepath.Join(globalDir, "config.jsonc"), cfg)

	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".shannon-mcp", "config.json"), cfg)
		loadConfigFile(filepath.Join(directory, ".shannon-mcp", "config.jsonc"), cfg)
	}

	if extra := os.Getenv("SHANNON_MCP_CONFIG"); extra != "" {
		loadConfigFile(extra, cfg)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadConfigFile loads and merges a single config file. Missing files are
// silently skipped; malformed files return their parse error.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	data = stripJSONComments(data)
	data = interpolate(data, filepath.Dir(path))

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(cfg, &fileConfig)
	return nil
}

var jsonCommentOrString = regexp.MustCompile(`"(?:\\.|[^"\\])*"|//[^\n]*|/\*[\s\S]*?\*/`)

// stripJSONComments removes // and /* */ comments from JSONC. String
// literals are matched first and kept, so "//" inside a string survives.
func stripJSONComments(data []byte) []byte {
	return jsonCommentOrString.ReplaceAllFunc(data, func(m []byte) []byte {
		if m[0] == '"' {
			return m
		}
		return nil
	})
}

var envPlaceholder = regexp.MustCompile(`\{env:([A-Za-z0-9_]+)\}`)
var filePlaceholder = regexp.MustCompile(`\{file:([^}]+)\}`)

// interpolate expands {env:VAR} and {file:path} placeholders. File paths
// are resolved relative to baseDir when not absolute.
func interpolate(data []byte, baseDir string) []byte {
	data = envPlaceholder.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPlaceholder.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})

	data = filePlaceholder.ReplaceAllFunc(data, func(match []byte) []byte {
		ref := string(filePlaceholder.FindSubmatch(match)[1])
		path := ref
		if strings.HasPrefix(path, "~/") {
			path = filepath.Join(os.Getenv("HOME"), path[2:])
		} else if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return match
		}
		return content
	})

	return data
}

// mergeConfig merges source into target, source taking precedence.
func mergeConfig(target, source *Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.DefaultModel != "" {
		target.DefaultModel = source.DefaultModel
	}
	if source.DataRoot != "" {
		target.DataRoot = source.DataRoot
	}
	if len(source.Binary.Names) > 0 {
		target.Binary.Names = source.Binary.Names
	}
	if len(source.Binary.ExtraSearchPaths) > 0 {
		target.Binary.ExtraSearchPaths = source.Binary.ExtraSearchPaths
	}
	if source.Binary.VersionConstraint != "" {
		target.Binary.VersionConstraint = source.Binary.VersionConstraint
	}
	if source.Binary.RefreshInterval != 0 {
		target.Binary.RefreshInterval = source.Binary.RefreshInterval
	}
	if source.Concurrency.MaxConcurrentSessions != 0 {
		target.Concurrency.MaxConcurrentSessions = source.Concurrency.MaxConcurrentSessions
	}
	if source.Concurrency.SessionTimeoutSeconds != 0 {
		target.Concurrency.SessionTimeoutSeconds = source.Concurrency.SessionTimeoutSeconds
	}
	if source.Concurrency.GracefulStopSeconds != 0 {
		target.Concurrency.GracefulStopSeconds = source.Concurrency.GracefulStopSeconds
	}
	if source.Checkpoint.AutoIntervalSeconds != 0 {
		target.Checkpoint.AutoIntervalSeconds = source.Checkpoint.AutoIntervalSeconds
	}
	if source.Checkpoint.RetentionDays != 0 {
		target.Checkpoint.RetentionDays = source.Checkpoint.RetentionDays
	}
	if source.Checkpoint.MaxPerSession != 0 {
		target.Checkpoint.MaxPerSession = source.Checkpoint.MaxPerSession
	}
	if source.Registry.HeartbeatIntervalSeconds != 0 {
		target.Registry.HeartbeatIntervalSeconds = source.Registry.HeartbeatIntervalSeconds
	}
	if source.Registry.MaintenanceIntervalSeconds != 0 {
		target.Registry.MaintenanceIntervalSeconds = source.Registry.MaintenanceIntervalSeconds
	}
	if source.Registry.MaxRSSBytes != 0 {
		target.Registry.MaxRSSBytes = source.Registry.MaxRSSBytes
	}
	if source.Registry.MaxFDCount != 0 {
		target.Registry.MaxFDCount = source.Registry.MaxFDCount
	}
	if source.Registry.MaxUptimeSeconds != 0 {
		target.Registry.MaxUptimeSeconds = source.Registry.MaxUptimeSeconds
	}
	if source.Decoder.MaxPartialAgeSeconds != 0 {
		target.Decoder.MaxPartialAgeSeconds = source.Decoder.MaxPartialAgeSeconds
	}
	if source.Decoder.MaxLineBytes != 0 {
		target.Decoder.MaxLineBytes = source.Decoder.MaxLineBytes
	}
	if source.Agent != nil {
		if target.Agent == nil {
			target.Agent = make(map[string]AgentConfig)
		}
		for k, v := range source.Agent {
			target.Agent[k] = v
		}
	}
	if source.Logging.Level != "" {
		target.Logging.Level = source.Logging.Level
	}
	if source.Logging.Pretty {
		target.Logging.Pretty = true
	}
	if source.Logging.LogToFile {
		target.Logging.LogToFile = true
	}
	if len(source.Instructions) > 0 {
		target.Instructions = append(target.Instructions, source.Instructions...)
	}
}

// applyEnvOverrides applies the highest-precedence environment overrides.
func applyEnvOverrides(cfg *Config) {
	if model := os.Getenv("SHANNON_MCP_MODEL"); model != "" {
		cfg.DefaultModel = model
	}
	if root := os.Getenv("SHANNON_MCP_HOME"); root != "" {
		cfg.DataRoot = root
	}
	if level := os.Getenv("SHANNON_MCP_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Save writes the configuration to path as indented JSON, creating parent
// directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
