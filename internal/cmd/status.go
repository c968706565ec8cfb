package cmd

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/orchid-dev/orchid/internal/state"
	"github.com/orchid-dev/orchid/internal/task"
)

var statusTypeFilter string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine state",
	Long:  `Display every tracked task, workflow instance, and the engine counters.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusTypeFilter, "type", "t", "*", "glob filter on task type")
	rootCmd.AddCommand(statusCmd)
}

var (
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Faint(true)
)

func statusDot(status task.Status) string {
	switch status {
	case task.StatusPending:
		return pendingStyle.Render("●")
	case task.StatusRunning:
		return runningStyle.Render("●")
	case task.StatusCompleted:
		return completedStyle.Render("●")
	case task.StatusFailed:
		return failedStyle.Render("●")
	}
	return "●"
}

func runStatus(cmd *cobra.Command, args []string) error {
	filter, err := glob.Compile(statusTypeFilter)
	if err != nil {
		return fmt.Errorf("invalid type filter: %w", err)
	}

	snap, err := newClient().status()
	if err != nil {
		return err
	}

	tasks := make([]*task.Stored, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		if filter.Match(string(t.Type)) {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	if len(tasks) == 0 {
		fmt.Println("No tasks")
	}
	for _, t := range tasks {
		fmt.Printf("%s %s  %s (%s)\n", statusDot(t.Status), t.ID, t.Type, t.Status)
		fmt.Printf("    %s\n", dimStyle.Render("updated "+t.UpdatedAt.Format("2006-01-02 15:04:05")))
		if t.Error != nil {
			fmt.Printf("    %s\n", failedStyle.Render(t.Error.Message))
		}
		if t.Workflow != nil {
			fmt.Printf("    workflow: %s\n", t.Workflow.Name)
		}
	}

	if len(snap.WorkflowInstances) > 0 {
		fmt.Printf("\nWorkflow instances: %d\n", len(snap.WorkflowInstances))
		for _, inst := range sortedInstances(snap) {
			fmt.Printf("  %s  %s (%s) task=%s\n", inst.ID, inst.WorkflowBinding, inst.Status, inst.TaskID)
		}
	}

	m := snap.Metrics
	fmt.Printf("\nTasks: %d total, %d completed, %d failed\n",
		m.TotalTasks, m.CompletedTasks, m.FailedTasks)
	if len(snap.Subscribers) > 0 {
		fmt.Printf("Subscribers: %d\n", len(snap.Subscribers))
	}
	return nil
}

func sortedInstances(snap *state.Snapshot) []*state.WorkflowInstance {
	out := make([]*state.WorkflowInstance, 0, len(snap.WorkflowInstances))
	for _, inst := range snap.WorkflowInstances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
