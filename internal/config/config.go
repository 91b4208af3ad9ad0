// Package config provides configuration types and defaults for the workflow
// service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration options for the service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Liveness   LivenessConfig   `mapstructure:"liveness"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Security   SecurityConfig   `mapstructure:"security"`
	Approval   ApprovalConfig   `mapstructure:"approval"`
	Session    SessionConfig    `mapstructure:"session"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Token      TokenConfig      `mapstructure:"token"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Debug      bool             `mapstructure:"debug"`
}

// ServerConfig holds the HTTP/websocket listener options.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxMessageBytes bounds a single stream message. Matches the original
	// contract's 4 MiB message limit.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
}

// LivenessConfig controls heartbeat-based liveness detection.
type LivenessConfig struct {
	// HeartbeatInterval is the cadence clients are expected to heartbeat at.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// MissTolerance is how many consecutive intervals may elapse without a
	// heartbeat before the session is declared dead. One missed interval
	// marks the session suspected.
	MissTolerance int `mapstructure:"miss_tolerance"`
	// CheckInterval is how often the monitor scans tracked sessions.
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// CheckpointConfig holds checkpoint storage options.
type CheckpointConfig struct {
	// DBPath is the SQLite database file. Empty selects the in-memory store.
	DBPath string `mapstructure:"db_path"`
	// RetryMaxElapsed bounds the total time spent retrying a failed write.
	RetryMaxElapsed time.Duration `mapstructure:"retry_max_elapsed"`
}

// SecurityConfig holds the tool security policy location.
type SecurityConfig struct {
	// PolicyPath points at the YAML override table. Empty applies the
	// default maximal chain to every tool.
	PolicyPath string `mapstructure:"policy_path"`
}

// ApprovalConfig holds the privilege classification table.
type ApprovalConfig struct {
	// PrivilegedVariants lists action variants that require approval before
	// emission. Variants not listed are auto-approved.
	PrivilegedVariants []string `mapstructure:"privileged_variants"`
	// ContextCategories is the allow-list of additionalContext categories
	// accepted on a start request.
	ContextCategories []string `mapstructure:"context_categories"`
}

// SessionConfig holds per-session tuning.
type SessionConfig struct {
	// ArchiveTTL is how long a terminal session stays queryable.
	ArchiveTTL time.Duration `mapstructure:"archive_ttl"`
	// OutboxBuffer is the emission queue depth per session.
	OutboxBuffer int `mapstructure:"outbox_buffer"`
}

// WorkflowConfig holds workflow definition sources beyond the built-ins.
type WorkflowConfig struct {
	// CommunityEnabled opts in individual community definitions by ID.
	// Community definitions never load without an explicit opt-in.
	CommunityEnabled []string `mapstructure:"community_enabled"`
	// UserDir holds user-defined definition YAML files. User definitions
	// override built-in and community definitions with the same ID.
	UserDir string `mapstructure:"user_dir"`
}

// TokenConfig holds execution-token issuance options.
type TokenConfig struct {
	// SigningKey signs issued tokens. Required in production; tests and
	// local runs fall back to an ephemeral key when empty.
	SigningKey string        `mapstructure:"signing_key"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// TelemetryConfig holds tracing options.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// OTLPEndpoint is the gRPC collector target. Empty with Enabled=true
	// falls back to the stdout exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// Default returns the configuration used when no file or env overrides are
// present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8700",
			ShutdownTimeout: 10 * time.Second,
			MaxMessageBytes: 4 * 1024 * 1024,
		},
		Liveness: LivenessConfig{
			HeartbeatInterval: 30 * time.Second,
			MissTolerance:     2,
			CheckInterval:     5 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			DBPath:          defaultDBPath(),
			RetryMaxElapsed: 15 * time.Second,
		},
		Approval: ApprovalConfig{
			PrivilegedVariants: []string{
				"runCommand",
				"runGitCommand",
				"runWriteFile",
				"runEditFile",
				"runHTTPRequest",
				"runMCPTool",
				"mkdir",
			},
			ContextCategories: []string{
				"file", "snippet", "merge_request", "issue",
				"dependency", "local_git", "terminal", "repository", "directory",
			},
		},
		Session: SessionConfig{
			ArchiveTTL:   30 * time.Minute,
			OutboxBuffer: 64,
		},
		Workflow: WorkflowConfig{
			UserDir: defaultUserWorkflowDir(),
		},
		Token: TokenConfig{
			TTL: 15 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "neopilot-workflow-service",
		},
	}
}

// Validate checks cross-field constraints that file parsing cannot express.
func (c *Config) Validate() error {
	if c.Liveness.HeartbeatInterval <= 0 {
		return fmt.Errorf("liveness.heartbeat_interval must be positive: %v", c.Liveness.HeartbeatInterval)
	}
	if c.Liveness.MissTolerance < 1 {
		return fmt.Errorf("liveness.miss_tolerance must be at least 1: %d", c.Liveness.MissTolerance)
	}
	if c.Liveness.CheckInterval <= 0 {
		return fmt.Errorf("liveness.check_interval must be positive: %v", c.Liveness.CheckInterval)
	}
	if c.Session.OutboxBuffer < 1 {
		return fmt.Errorf("session.outbox_buffer must be at least 1: %d", c.Session.OutboxBuffer)
	}
	if c.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("server.max_message_bytes must be positive: %d", c.Server.MaxMessageBytes)
	}
	return nil
}

func defaultUserWorkflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "workflows"
	}
	return filepath.Join(home, ".neopilot", "workflows")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "neopilot.db"
	}
	return filepath.Join(home, ".neopilot", "neopilot.db")
}
