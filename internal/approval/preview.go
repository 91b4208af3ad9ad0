package approval

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/neopilot-ai/neopilot/internal/contract"
)

// previewLimit caps the rendered preview so a large write cannot flood the
// approval surface.
const previewLimit = 4000

// Preview renders a human-readable description of what a held action will
// do, shown to whoever decides the approval. File mutations include a diff;
// other variants get a one-line summary in the display format clients
// already render.
func Preview(action contract.Action) string {
	switch p := action.Payload.(type) {
	case *contract.RunCommand:
		return truncate(fmt.Sprintf("Run command: %s %s", p.Program, strings.Join(p.Arguments, " ")))
	case *contract.RunGitCommand:
		return truncate(fmt.Sprintf("Run git command: git %s %s in repository", p.Command, p.Arguments))
	case *contract.WriteFile:
		return truncate(fmt.Sprintf("Create file `%s`:\n%s", p.Filepath, diffText("", p.Contents)))
	case *contract.EditFile:
		return truncate(fmt.Sprintf("Edit file `%s`:\n%s", p.Filepath, diffText(p.OldString, p.NewString)))
	case *contract.RunHTTPRequest:
		return truncate(fmt.Sprintf("HTTP %s %s", p.Method, p.Path))
	case *contract.RunMCPTool:
		return truncate(fmt.Sprintf("Run MCP tool %s: %s", p.Name, p.Args))
	case *contract.Mkdir:
		return truncate(fmt.Sprintf("Create directory `%s`", p.DirectoryPath))
	case nil:
		return ""
	default:
		return truncate(fmt.Sprintf("Run %s", p.ActionVariant()))
	}
}

// diffText renders an inline diff between old and new content, with removed
// spans wrapped in [-...-] and added spans in {+...+}.
func diffText(oldText, newText string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-")
			b.WriteString(d.Text)
			b.WriteString("-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+")
			b.WriteString(d.Text)
			b.WriteString("+}")
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

func truncate(s string) string {
	if len(s) <= previewLimit {
		return s
	}
	return s[:previewLimit] + "\n… (truncated)"
}
