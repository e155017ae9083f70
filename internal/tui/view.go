package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/existflow/irontrack/internal/model"
	isync "github.com/existflow/irontrack/internal/sync"
)

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := HeaderStyle.Render("IronTrack")
	panel := m.renderSyncPanel()
	taskList := m.renderTaskList()
	statusBar := m.renderStatusBar()

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, panel, taskList)
	if m.showHelp {
		mainContent = lipgloss.Place(
			m.width, m.height-4,
			lipgloss.Center, lipgloss.Center,
			m.help.FullHelpView(keys.FullHelp()),
			lipgloss.WithWhitespaceChars(" "),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, mainContent, statusBar)
}

func (m Model) renderSyncPanel() string {
	var b strings.Builder
	label := HelpStyle.Render

	state := string(m.sync.State)
	if m.busy() {
		state = m.spinner.View() + " syncing"
	}
	fmt.Fprintf(&b, "%s %s\n", label("Network "), FormatOnline(m.queue.Online))
	fmt.Fprintf(&b, "%s %s\n", label("Queue   "), FormatPending(m.queue.Pending))
	fmt.Fprintf(&b, "%s %s\n", label("State   "), state)
	fmt.Fprintf(&b, "%s %s\n", label("Result  "), formatResult(m.sync.LastResult))
	fmt.Fprintf(&b, "%s %s\n", label("Last    "), formatSince(m.sync.LastSyncTime))
	fmt.Fprintf(&b, "%s %s\n", label("Failures"), FormatFailures(m.sync.ConsecutiveFailures))

	cfg := m.sync.Config
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", label("Role    "), cfg.Role)
	if cfg.Active() {
		fmt.Fprintf(&b, "%s every %dm\n", label("Auto    "), cfg.IntervalMinutes)
	} else {
		fmt.Fprintf(&b, "%s off\n", label("Auto    "))
	}
	if cfg.RemoteURL != "" {
		fmt.Fprintf(&b, "%s %s\n", label("Remote  "), truncate(cfg.RemoteURL, 24))
	}
	if m.sync.LastSyncError != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(SyncError).Render(truncate(m.sync.LastSyncError, 30)))
	}

	return PanelStyle.Height(max(m.height-4, 1)).Render(b.String())
}

func (m Model) renderTaskList() string {
	var b strings.Builder
	width := max(m.width-PanelStyle.GetWidth()-6, 10)

	if len(m.tasks) == 0 {
		b.WriteString(HelpStyle.Render("No tasks. Add one with: irontrack add \"...\""))
		return TaskListStyle.Render(b.String())
	}

	visible := max(m.height-6, 1)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(start+visible, len(m.tasks))

	for i := start; i < end; i++ {
		b.WriteString(m.renderTask(m.tasks[i], i == m.cursor, width))
		b.WriteString("\n")
	}
	return TaskListStyle.Render(b.String())
}

func (m Model) renderTask(t model.Task, selected bool, width int) string {
	checkbox := "[ ]"
	if t.Done {
		checkbox = "[x]"
	}
	title := truncate(t.Title, width-12)
	line := fmt.Sprintf("%s %s %s", checkbox, FormatPriority(t.Priority), title)
	if t.DueDate != nil {
		line += HelpStyle.Render(" " + t.DueDate.Format("Jan 02"))
	}

	switch {
	case selected:
		return TaskItemSelectedStyle.Render(line)
	case t.Done:
		return TaskDoneStyle.Render(fmt.Sprintf("%s P%d %s", checkbox, t.Priority, title))
	default:
		return TaskItemStyle.Render(line)
	}
}

func (m Model) renderStatusBar() string {
	left := m.message
	if left == "" {
		left = m.help.ShortHelpView(keys.ShortHelp())
	}
	return StatusBarStyle.Width(max(m.width, 1)).Render(left)
}

func formatResult(s isync.State) string {
	switch s {
	case isync.StateSuccess:
		return lipgloss.NewStyle().Foreground(SyncOK).Render("ok")
	case isync.StateFailed:
		return lipgloss.NewStyle().Foreground(SyncError).Render("failed")
	default:
		return "-"
	}
}

func formatSince(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t).Round(time.Second)
	if d < time.Minute {
		return "just now"
	}
	return d.String() + " ago"
}

// truncate shortens s to at most n runes, adding an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
