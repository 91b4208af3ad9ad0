package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show the effective response sanitization policy",
	Long:  `Display the sanitization chain applied to tool responses, including per-tool overrides from the configured policy file.`,
	RunE:  runPolicy,
}

func init() {
	rootCmd.AddCommand(policyCmd)
}

func runPolicy(cmd *cobra.Command, args []string) error {
	pipeline, err := buildPipeline(cfg.Security)
	if err != nil {
		return err
	}
	policy := pipeline.Policy()

	if cfg.Security.PolicyPath == "" {
		fmt.Println("Policy file: (none — defaults apply)")
	} else {
		fmt.Printf("Policy file: %s\n", cfg.Security.PolicyPath)
	}
	fmt.Println()

	fmt.Println("Default chain (applied to every tool):")
	fmt.Printf("  %s\n", strings.Join(policy.ChainFor(""), " -> "))
	fmt.Println()

	overridden := policy.OverriddenTools()
	fmt.Println("Per-tool overrides:")
	if len(overridden) == 0 {
		fmt.Println("  (none)")
		return nil
	}
	for _, tool := range overridden {
		fmt.Printf("  %-28s %s\n", tool, strings.Join(policy.ChainFor(tool), " -> "))
	}
	return nil
}
