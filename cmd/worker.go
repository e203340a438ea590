package cmd

import "github.com/spf13/cobra"

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the delivery worker pool",
	Long:  "Drain the work queue and hand each task to its channel transport.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(false, true)
	},
}
