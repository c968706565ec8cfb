package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/orchid-dev/orchid/internal/state"
	"github.com/orchid-dev/orchid/internal/task"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of engine state",
	Long:  `Poll the engine and render tasks, workflow instances, and counters as they change.`,
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// watchTickMsg drives the poll loop.
type watchTickMsg time.Time

// snapshotMsg carries a freshly fetched engine snapshot.
type snapshotMsg struct {
	snap *state.Snapshot
}

// watchErrMsg wraps a fetch error for display.
type watchErrMsg struct {
	err error
}

type watchModel struct {
	client    *apiClient
	snap      *state.Snapshot
	fetchErr  error
	filter    textinput.Model
	filtering bool
	width     int
	height    int
	quitting  bool
}

func newWatchModel() watchModel {
	ti := textinput.New()
	ti.Placeholder = "task type glob"
	ti.CharLimit = 64
	ti.Width = 30

	return watchModel{
		client: newClient(),
		filter: ti,
	}
}

func watchTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) fetch() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		snap, err := client.status()
		if err != nil {
			return watchErrMsg{err: err}
		}
		return snapshotMsg{snap: snap}
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), watchTick())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case watchTickMsg:
		return m, tea.Batch(m.fetch(), watchTick())

	case snapshotMsg:
		m.snap = msg.snap
		m.fetchErr = nil
		return m, nil

	case watchErrMsg:
		m.fetchErr = msg.err
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			switch msg.String() {
			case "enter", "esc":
				m.filtering = false
				m.filter.Blur()
				return m, nil
			default:
				var cmd tea.Cmd
				m.filter, cmd = m.filter.Update(msg)
				return m, cmd
			}
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "/":
			m.filtering = true
			m.filter.Focus()
			return m, textinput.Blink
		}
	}
	return m, nil
}

var (
	watchTitleStyle  = lipgloss.NewStyle().Bold(true)
	watchHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	watchHelpStyle   = lipgloss.NewStyle().Faint(true)
)

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("orchid"))
	b.WriteString("\n\n")

	if m.fetchErr != nil {
		b.WriteString(failedStyle.Render("error: " + m.fetchErr.Error()))
		b.WriteString("\n\n")
	}
	if m.snap == nil {
		b.WriteString("connecting...\n")
		return b.String()
	}

	b.WriteString(watchHeaderStyle.Render("Tasks"))
	b.WriteString("\n")
	tasks := m.visibleTasks()
	if len(tasks) == 0 {
		b.WriteString(watchHelpStyle.Render("  none"))
		b.WriteString("\n")
	}
	for _, t := range tasks {
		b.WriteString(fmt.Sprintf("  %s %s  %s (%s)\n", statusDot(t.Status), t.ID, t.Type, t.Status))
	}

	if len(m.snap.WorkflowInstances) > 0 {
		b.WriteString("\n")
		b.WriteString(watchHeaderStyle.Render("Workflows"))
		b.WriteString("\n")
		for _, inst := range sortedInstances(m.snap) {
			b.WriteString(fmt.Sprintf("  %s  %s (%s)\n", inst.ID, inst.WorkflowBinding, inst.Status))
		}
	}

	mt := m.snap.Metrics
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("total %d  completed %d  failed %d  subscribers %d\n",
		mt.TotalTasks, mt.CompletedTasks, mt.FailedTasks, len(m.snap.Subscribers)))

	b.WriteString("\n")
	if m.filtering {
		b.WriteString("filter: " + m.filter.View())
	} else {
		help := "q: quit • /: filter"
		if v := m.filter.Value(); v != "" {
			help += "  (filter: " + v + ")"
		}
		b.WriteString(watchHelpStyle.Render(help))
	}
	b.WriteString("\n")
	return b.String()
}

// visibleTasks applies the type filter and orders tasks by creation time.
func (m watchModel) visibleTasks() []*task.Stored {
	var matcher glob.Glob
	if v := m.filter.Value(); v != "" {
		if g, err := glob.Compile(v); err == nil {
			matcher = g
		}
	}

	tasks := make([]*task.Stored, 0, len(m.snap.Tasks))
	for _, t := range m.snap.Tasks {
		if matcher != nil && !matcher.Match(string(t.Type)) {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

func runWatch(cmd *cobra.Command, args []string) error {
	p := tea.NewProgram(newWatchModel(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
