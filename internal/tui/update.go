package tui

import (
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/existflow/irontrack/internal/apperr"
	"github.com/existflow/irontrack/internal/logger"
)

// tickMsg is sent every second to refresh engine state
type tickMsg time.Time

// syncDoneMsg reports the end of a manual sync
type syncDoneMsg struct{ err error }

// actionDoneMsg reports the end of a task edit
type actionDoneMsg struct {
	verb string
	err  error
}

// Init initializes the model with a tick command
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spinner.Tick)
}

func tickCmd() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.loadData()
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case syncDoneMsg:
		m.syncing = false
		m.loadData()
		m.message = syncMessage(msg.err)
		return m, nil

	case actionDoneMsg:
		m.loadData()
		if msg.err != nil {
			logger.Warn("TUI action failed", logger.F("action", msg.verb), logger.F("error", msg.err))
			m.message = "Error: " + msg.err.Error()
		} else {
			m.message = msg.verb
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Help):
		m.showHelp = true

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}

	case key.Matches(msg, keys.Done):
		if t := m.currentTask(); t != nil {
			id, verb := t.ID, "Completed: "+t.Title
			if t.Done {
				verb = "Reopened: " + t.Title
			}
			return m, m.action(verb, func() error { return m.engine.ToggleDone(m.ctx, id) })
		}

	case key.Matches(msg, keys.Delete):
		if t := m.currentTask(); t != nil {
			id := t.ID
			return m, m.action("Deleted: "+t.Title, func() error { return m.engine.DeleteTask(m.ctx, id) })
		}

	case key.Matches(msg, keys.Sync):
		if m.busy() {
			m.message = "Sync already in progress"
			return m, nil
		}
		m.syncing = true
		m.message = ""
		return m, m.syncCmd()
	}
	return m, nil
}

func (m Model) syncCmd() tea.Cmd {
	return func() tea.Msg {
		return syncDoneMsg{err: m.engine.SyncNow(m.ctx)}
	}
}

func (m Model) action(verb string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{verb: verb, err: fn()}
	}
}

func syncMessage(err error) string {
	switch {
	case err == nil:
		return "Synced"
	case errors.Is(err, apperr.ErrDisabled):
		return "Sync is disabled (config set sync.enabled true)"
	case errors.Is(err, apperr.ErrNotClient):
		return "Sync runs only in the client role"
	case errors.Is(err, apperr.ErrSyncInProgress):
		return "Sync already in progress"
	default:
		return "Sync failed: " + err.Error()
	}
}
