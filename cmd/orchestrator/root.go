package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Transcription orchestrator: batch intake API, queue worker and schema migrations.",
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workerCmd)
}
