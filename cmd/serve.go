package cmd

import "github.com/spf13/cobra"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API and the worker pool in one process",
	Long:  "Run both roles side by side. Required when QUEUE_DRIVER is memory.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(true, true)
	},
}
