package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/orchid-dev/orchid/internal/task"
)

var submitCmd = &cobra.Command{
	Use:   "submit <definition.json>",
	Short: "Submit a task definition to the engine",
	Long: `Submit a task definition to a running engine. Pass "-" to read the
definition from stdin. The engine accepts the task and executes it
asynchronously; use status to observe the outcome.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read definition: %w", err)
	}

	var def task.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("invalid definition: %w", err)
	}

	acc, err := newClient().submit(&def)
	if err != nil {
		return err
	}

	fmt.Printf("Task %s: %s\n", acc.TaskID, acc.Status)
	return nil
}
