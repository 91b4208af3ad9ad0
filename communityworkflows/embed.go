// Package communityworkflows embeds community-contributed workflow
// definitions.
//
// Community definitions are contributed via PRs, embedded at compile time
// alongside built-in definitions, but kept in a separate package to
// distinguish governance and origin. Users opt in to specific community
// definitions through the workflow.community_enabled config field.
package communityworkflows

import (
	"embed"
	"io/fs"
)

// definitions embeds all community workflow definitions from the workflows
// directory, one YAML file per definition.
//
//go:embed workflows
var definitions embed.FS

// RegistryFS returns the embedded filesystem containing community workflow
// definitions. The workflow registry loads opted-in definitions from it
// alongside built-in and user definitions.
func RegistryFS() fs.FS {
	return definitions
}
