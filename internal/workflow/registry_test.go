package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neopilot-ai/neopilot/communityworkflows"
)

func TestNewRegistry_LoadsBuiltins(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	def, err := r.Resolve("software_development")
	require.NoError(t, err)
	require.Equal(t, "Software Development", def.Name)
	require.Equal(t, SourceBuiltIn, def.Source)
	require.Contains(t, def.PreapprovedTools, "read_file")

	_, err = r.Resolve("chat")
	require.NoError(t, err)
}

func TestRegistry_UnknownDefinition(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	_, err = r.Resolve("does-not-exist")
	require.ErrorIs(t, err, ErrUnknownDefinition)
	require.Contains(t, err.Error(), "software_development", "error should list available IDs")
}

func TestRegistry_List_SortedByID(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	defs := r.List()
	require.NotEmpty(t, defs)
	for i := 1; i < len(defs); i++ {
		require.Less(t, defs[i-1].ID, defs[i].ID)
	}
}

func TestRegistry_LoadCommunity_OptIn(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	// No opt-in: community definitions stay unloaded.
	r.LoadCommunity(&CommunitySource{FS: communityworkflows.RegistryFS()})
	_, err = r.Resolve("convert_to_ci")
	require.ErrorIs(t, err, ErrUnknownDefinition)

	r.LoadCommunity(&CommunitySource{
		FS:         communityworkflows.RegistryFS(),
		EnabledIDs: []string{"convert_to_ci"},
	})
	def, err := r.Resolve("convert_to_ci")
	require.NoError(t, err)
	require.Equal(t, SourceCommunity, def.Source)
}

func TestRegistry_LoadCommunity_UnknownIDIsNotFatal(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	r.LoadCommunity(&CommunitySource{
		FS:         communityworkflows.RegistryFS(),
		EnabledIDs: []string{"no-such-definition"},
	})
	// Built-ins still resolve.
	_, err = r.Resolve("chat")
	require.NoError(t, err)
}

func TestRegistry_LoadUserDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.yaml"), []byte(
		"name: Code Review\ndescription: review only\npreapproved_tools: [read_file]\n"), 0600))

	r, err := NewRegistry()
	require.NoError(t, err)
	require.NoError(t, r.LoadUserDir(dir))

	def, err := r.Resolve("review")
	require.NoError(t, err)
	require.Equal(t, "Code Review", def.Name)
	require.Equal(t, SourceUser, def.Source)
	require.Equal(t, filepath.Join(dir, "review.yaml"), def.FilePath)
}

func TestRegistry_LoadUserDir_OverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat.yaml"), []byte(
		"name: Custom Chat\n"), 0600))

	r, err := NewRegistry()
	require.NoError(t, err)
	require.NoError(t, r.LoadUserDir(dir))

	def, err := r.Resolve("chat")
	require.NoError(t, err)
	require.Equal(t, "Custom Chat", def.Name)
	require.Equal(t, SourceUser, def.Source)
}

func TestRegistry_LoadUserDir_Missing(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	require.NoError(t, r.LoadUserDir(filepath.Join(t.TempDir(), "nope")))
}

func TestRegistry_LoadUserDir_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("{not yaml"), 0600))

	r, err := NewRegistry()
	require.NoError(t, err)
	require.Error(t, r.LoadUserDir(dir))
}

func TestRegistry_DefinitionRequiresName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "anon.yaml"), []byte("description: nameless\n"), 0600))

	r, err := NewRegistry()
	require.NoError(t, err)
	err = r.LoadUserDir(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no name")
}

func TestSourceString(t *testing.T) {
	require.Equal(t, "built-in", SourceBuiltIn.String())
	require.Equal(t, "community", SourceCommunity.String())
	require.Equal(t, "user", SourceUser.String())
	require.Equal(t, "unknown", Source(42).String())
}
