package cmd

import "github.com/spf13/cobra"

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the HTTP API",
	Long:  "Serve the notify, subscribe and unsubscribe endpoints. Delivery is left to worker processes.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(true, false)
	},
}
