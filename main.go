package main

import (
	"os"

	"github.com/neopilot-ai/neopilot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
