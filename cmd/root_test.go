package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neopilot-ai/neopilot/internal/config"
)

func TestBuildStore_EmptyPathUsesMemory(t *testing.T) {
	store, closeStore, err := buildStore(config.CheckpointConfig{DBPath: ""})
	require.NoError(t, err)
	defer closeStore()
	require.NotNil(t, store)
}

func TestBuildStore_OpensSqliteDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	store, closeStore, err := buildStore(config.CheckpointConfig{DBPath: path})
	require.NoError(t, err)
	defer closeStore()
	require.NotNil(t, store)
	require.FileExists(t, path)
}

func TestBuildPipeline_DefaultsWithoutPolicyFile(t *testing.T) {
	pipeline, err := buildPipeline(config.SecurityConfig{})
	require.NoError(t, err)
	require.NotNil(t, pipeline)
}

func TestBuildPipeline_MissingPolicyFileFails(t *testing.T) {
	_, err := buildPipeline(config.SecurityConfig{PolicyPath: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
}

func TestBuildRegistry_LoadsBuiltins(t *testing.T) {
	c := config.Default()
	c.Workflow.UserDir = t.TempDir()

	registry, err := buildRegistry(c)
	require.NoError(t, err)

	_, err = registry.Resolve("software_development")
	require.NoError(t, err)
}
