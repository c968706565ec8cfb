package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show engine counters",
	RunE:  runMetrics,
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	m, err := newClient().metrics()
	if err != nil {
		return err
	}

	fmt.Printf("Total tasks:      %d\n", m.TotalTasks)
	fmt.Printf("Completed:        %d\n", m.CompletedTasks)
	fmt.Printf("Failed:           %d\n", m.FailedTasks)
	fmt.Printf("Dropped messages: %d\n", m.DroppedSinkDeliveries)
	if m.LastDispatchAt != nil {
		fmt.Printf("Last dispatch:    %s\n", m.LastDispatchAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
