package communityworkflows

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryFS_ConvertToCIExists(t *testing.T) {
	fsys := RegistryFS()

	data, err := fs.ReadFile(fsys, "workflows/convert_to_ci.yaml")
	require.NoError(t, err, "should be able to read convert_to_ci.yaml via RegistryFS")
	require.NotEmpty(t, data, "convert_to_ci.yaml should not be empty")
}

func TestRegistryFS_ReadmeExists(t *testing.T) {
	fsys := RegistryFS()

	data, err := fs.ReadFile(fsys, "workflows/README.md")
	require.NoError(t, err, "workflows/README.md should exist")
	require.NotEmpty(t, data, "workflows/README.md should not be empty")
}

func TestRegistryFS_OnlyYAMLDefinitions(t *testing.T) {
	fsys := RegistryFS()

	entries, err := fs.ReadDir(fsys, "workflows")
	require.NoError(t, err)

	for _, entry := range entries {
		require.False(t, entry.IsDir(), "definitions are flat files, got directory %s", entry.Name())
		if entry.Name() == "README.md" {
			continue
		}
		require.True(t, strings.HasSuffix(entry.Name(), ".yaml"),
			"unexpected file %s in workflows directory", entry.Name())
	}
}
