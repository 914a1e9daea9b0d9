package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "outreachd",
		Short: "Outreach Orchestrator - automated outbound messaging engine",
		Long: `Outreach Orchestrator runs the outbound messaging pipeline: it scans
accepted connections, classifies prospects against the ideal customer
profile, plans and sends the follow-up ladder under daily quotas and
provider rate limits, and answers replies through the conversation
pipeline. Messages the pipeline is unsure about wait in a validation
queue for a human decision.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
