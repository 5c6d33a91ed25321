// Package cli implements the FleetGate command-line interface using Cobra:
// starting the daemon, and talking to an already-running one to manage
// models, tail logs, and configure billing.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fleetgate",
	Short: "FleetGate — a local LLM fleet orchestrator and OpenAI-compatible gateway",
	Long: `FleetGate runs a fleet of local model backends behind one
OpenAI-compatible API, starting and stopping them on demand and routing
chat, completion, embedding, and rerank requests to whichever is catalogued
for that model name.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
