package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Re-schedule processing for a persisted task",
	Long: `Ask the engine to re-queue an already-persisted task, typically after
a crash or a missed delivery. Resuming a task that already finished is a
no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	if err := newClient().resume(args[0]); err != nil {
		return err
	}
	fmt.Printf("Task %s: scheduled\n", args[0])
	return nil
}
