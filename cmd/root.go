// Package cmd wires the CLI surface of the workflow service.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/neopilot-ai/neopilot/internal/config"
	"github.com/neopilot-ai/neopilot/internal/log"
)

var (
	cfgFile string
	debug   bool
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "neopilot",
	Short: "Workflow execution service for AI agents",
	Long: `Neopilot hosts long-lived workflow sessions over a bidirectional
stream: clients execute tool actions locally and the service gates,
sanitizes, and checkpoints every step.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		if debug {
			cfg.Debug = true
		}
		log.Init(cfg.Debug)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.neopilot/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// Execute runs the CLI.
func Execute() error {
	defer log.Sync()
	return rootCmd.Execute()
}
