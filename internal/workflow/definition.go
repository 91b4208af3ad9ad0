// Package workflow provides the workflow definition registry. Definitions
// name the agent behavior a session runs under; clients reference them by ID
// in the start request, and unknown references fail validation.
package workflow

// Source indicates where a workflow definition originated from.
type Source int

const (
	// SourceBuiltIn indicates a definition bundled with the service.
	SourceBuiltIn Source = iota
	// SourceCommunity indicates a community-contributed definition.
	SourceCommunity
	// SourceUser indicates a definition from the user's configuration directory.
	SourceUser
)

// String returns a human-readable representation of the Source.
func (s Source) String() string {
	switch s {
	case SourceBuiltIn:
		return "built-in"
	case SourceCommunity:
		return "community"
	case SourceUser:
		return "user"
	default:
		return "unknown"
	}
}

// Definition is a named workflow configuration a session runs under.
type Definition struct {
	// ID is the identifier clients reference. Defaults to the filename stem
	// when the YAML omits it.
	ID string `yaml:"id"`

	// Name is the human-readable display name.
	Name string `yaml:"name"`

	// Description is a brief description of what the workflow does.
	Description string `yaml:"description"`

	// Category is an optional grouping category.
	Category string `yaml:"category"`

	// PreapprovedTools are tool names that skip the approval gate for every
	// session running this definition. Merged with the per-session list from
	// the start request.
	PreapprovedTools []string `yaml:"preapproved_tools"`

	// Source indicates whether this is a built-in, community, or user definition.
	Source Source `yaml:"-"`

	// FilePath is the absolute path for user definitions (empty otherwise).
	FilePath string `yaml:"-"`
}
