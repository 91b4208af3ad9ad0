package workflow

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/neopilot-ai/neopilot/internal/log"
)

//go:embed definitions/*.yaml
var builtinFS embed.FS

// ErrUnknownDefinition is returned when a start request references a
// definition the registry does not hold.
var ErrUnknownDefinition = errors.New("unknown workflow definition")

// CommunitySource holds the filesystem and opt-in filter for community
// definitions. A nil CommunitySource or empty EnabledIDs means no community
// definitions are loaded.
type CommunitySource struct {
	FS         fs.FS
	EnabledIDs []string
}

// Registry resolves workflow definition references. Built-ins load first,
// then opted-in community definitions, then user definitions; later sources
// override earlier ones on ID collision.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry builds a registry from the embedded built-in definitions.
func NewRegistry() (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition)}
	if err := r.loadFS(builtinFS, "definitions", SourceBuiltIn); err != nil {
		return nil, fmt.Errorf("failed to load built-in definitions: %w", err)
	}
	return r, nil
}

// LoadCommunity merges opted-in community definitions. Loading errors are
// logged, never fatal: a bad community file must not break startup.
func (r *Registry) LoadCommunity(source *CommunitySource) {
	if source == nil || len(source.EnabledIDs) == 0 {
		return
	}

	available := make(map[string]Definition)
	entries, err := fs.ReadDir(source.FS, "workflows")
	if err != nil {
		log.Warn(log.CatConfig, "reading community definitions", "error", err.Error())
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		def, err := parseDefinition(source.FS, "workflows/"+entry.Name(), SourceCommunity)
		if err != nil {
			log.Warn(log.CatConfig, "parsing community definition", "file", entry.Name(), "error", err.Error())
			continue
		}
		available[def.ID] = def
	}

	for _, id := range source.EnabledIDs {
		def, ok := available[id]
		if !ok {
			log.Warn(log.CatConfig, "enabled community definition not found",
				"id", id, "available", availableIDs(available))
			continue
		}
		r.defs[def.ID] = def
	}
}

// LoadUserDir merges user definitions from a directory of YAML files.
// A missing directory is not an error. User definitions override built-ins
// with the same ID.
func (r *Registry) LoadUserDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read user definitions directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := parseDefinition(os.DirFS(dir), entry.Name(), SourceUser)
		if err != nil {
			return fmt.Errorf("failed to parse user definition %s: %w", path, err)
		}
		def.FilePath = path
		if prev, ok := r.defs[def.ID]; ok {
			log.Info(log.CatConfig, "user definition overrides existing",
				"id", def.ID, "previous", prev.Source.String())
		}
		r.defs[def.ID] = def
	}
	return nil
}

// Resolve returns the definition for id, or ErrUnknownDefinition.
func (r *Registry) Resolve(id string) (Definition, error) {
	def, ok := r.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q (available: %s)",
			ErrUnknownDefinition, id, availableIDs(r.defs))
	}
	return def, nil
}

// List returns all definitions sorted by ID.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func parseDefinition(fsys fs.FS, path string, source Source) (Definition, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return Definition{}, err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, err
	}
	if def.ID == "" {
		def.ID = strings.TrimSuffix(filepath.Base(path), ".yaml")
	}
	if def.Name == "" {
		return Definition{}, fmt.Errorf("definition %s has no name", def.ID)
	}
	def.Source = source
	return def, nil
}

func (r *Registry) loadFS(fsys fs.FS, dir string, source Source) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		def, err := parseDefinition(fsys, dir+"/"+entry.Name(), source)
		if err != nil {
			return err
		}
		r.defs[def.ID] = def
	}
	return nil
}

// availableIDs returns a comma-separated sorted ID list for logging.
func availableIDs(defs map[string]Definition) string {
	if len(defs) == 0 {
		return "(none)"
	}
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ", ")
}
