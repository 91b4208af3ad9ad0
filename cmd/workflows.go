package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neopilot-ai/neopilot/internal/workflow"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List available workflow definitions",
	Long:  `Display all workflow definitions a start request may reference, including built-in, community, and user-defined definitions.`,
	RunE:  runWorkflows,
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
}

func runWorkflows(cmd *cobra.Command, args []string) error {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	bySource := map[workflow.Source][]workflow.Definition{}
	for _, def := range registry.List() {
		bySource[def.Source] = append(bySource[def.Source], def)
	}

	printGroup("Built-in Definitions:", bySource[workflow.SourceBuiltIn],
		"  (none)")
	fmt.Println()
	printGroup("Community Definitions:", bySource[workflow.SourceCommunity],
		"  (none enabled — configure in workflow.community_enabled)")
	fmt.Println()
	printGroup(fmt.Sprintf("User Definitions (%s):", cfg.Workflow.UserDir), bySource[workflow.SourceUser],
		"  (none)")

	return nil
}

func printGroup(header string, defs []workflow.Definition, empty string) {
	fmt.Println(header)
	if len(defs) == 0 {
		fmt.Println(empty)
		return
	}
	maxLen := maxIDLen(defs)
	for _, def := range defs {
		fmt.Printf("  %-*s  %s\n", maxLen, def.ID, def.Description)
	}
}

// maxIDLen returns the length of the longest definition ID in the slice.
func maxIDLen(defs []workflow.Definition) int {
	maxLen := 0
	for _, def := range defs {
		if len(def.ID) > maxLen {
			maxLen = len(def.ID)
		}
	}
	return maxLen
}
