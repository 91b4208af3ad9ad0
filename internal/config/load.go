package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the given file (optional), the default
// search path (~/.neopilot/config.yaml), and NEOPILOT_* environment
// variables, layered over Default().
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("$HOME/.neopilot")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("NEOPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing default config file is fine; an explicit path must exist.
		if path != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers Default() values with viper so partial config files
// inherit the rest.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.max_message_bytes", cfg.Server.MaxMessageBytes)
	v.SetDefault("liveness.heartbeat_interval", cfg.Liveness.HeartbeatInterval)
	v.SetDefault("liveness.miss_tolerance", cfg.Liveness.MissTolerance)
	v.SetDefault("liveness.check_interval", cfg.Liveness.CheckInterval)
	v.SetDefault("checkpoint.db_path", cfg.Checkpoint.DBPath)
	v.SetDefault("checkpoint.retry_max_elapsed", cfg.Checkpoint.RetryMaxElapsed)
	v.SetDefault("security.policy_path", cfg.Security.PolicyPath)
	v.SetDefault("approval.privileged_variants", cfg.Approval.PrivilegedVariants)
	v.SetDefault("approval.context_categories", cfg.Approval.ContextCategories)
	v.SetDefault("session.archive_ttl", cfg.Session.ArchiveTTL)
	v.SetDefault("session.outbox_buffer", cfg.Session.OutboxBuffer)
	v.SetDefault("workflow.community_enabled", cfg.Workflow.CommunityEnabled)
	v.SetDefault("workflow.user_dir", cfg.Workflow.UserDir)
	v.SetDefault("token.signing_key", cfg.Token.SigningKey)
	v.SetDefault("token.ttl", cfg.Token.TTL)
	v.SetDefault("telemetry.enabled", cfg.Telemetry.Enabled)
	v.SetDefault("telemetry.otlp_endpoint", cfg.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.service_name", cfg.Telemetry.ServiceName)
	v.SetDefault("debug", cfg.Debug)
}
