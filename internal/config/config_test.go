package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadLiveness(t *testing.T) {
	cfg := Default()
	cfg.Liveness.HeartbeatInterval = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Liveness.MissTolerance = 0
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadServerLimits(t *testing.T) {
	cfg := Default()
	cfg.Server.MaxMessageBytes = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Session.OutboxBuffer = 0
	require.Error(t, cfg.Validate())
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_FileOverridesLayerOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
server:
  addr: ":9999"
liveness:
  heartbeat_interval: 10s
workflow:
  community_enabled:
    - convert_to_ci
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9999", cfg.Server.Addr)
	require.Equal(t, 10*time.Second, cfg.Liveness.HeartbeatInterval)
	require.Equal(t, []string{"convert_to_ci"}, cfg.Workflow.CommunityEnabled)

	// Untouched sections keep their defaults.
	require.Equal(t, Default().Liveness.MissTolerance, cfg.Liveness.MissTolerance)
	require.Equal(t, Default().Session.ArchiveTTL, cfg.Session.ArchiveTTL)
}

func TestLoad_InvalidFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("liveness:\n  miss_tolerance: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
