package tui

import (
	"context"
	"sort"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/existflow/irontrack/internal/logger"
	"github.com/existflow/irontrack/internal/model"
	"github.com/existflow/irontrack/internal/queue"
	isync "github.com/existflow/irontrack/internal/sync"
)

// Engine is what the monitor reads from and acts on.
type Engine interface {
	Tasks() []model.Task
	SyncStatus() isync.Status
	QueueStatus() queue.Status
	SyncNow(ctx context.Context) error
	ToggleDone(ctx context.Context, id string) error
	DeleteTask(ctx context.Context, id string) error
}

// Model is the main TUI model
type Model struct {
	ctx    context.Context
	engine Engine

	tasks []model.Task
	sync  isync.Status
	queue queue.Status

	// UI state
	width    int
	height   int
	cursor   int
	showHelp bool
	syncing  bool // manual sync in flight

	spinner spinner.Model
	help    help.Model

	message string
}

// NewModel creates a new TUI model
func NewModel(ctx context.Context, engine Engine) Model {
	logger.Info("Initializing TUI model")

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sp.Style.Foreground(SyncPending)

	m := Model{
		ctx:     ctx,
		engine:  engine,
		spinner: sp,
		help:    help.New(),
	}
	m.loadData()
	logger.Debug("TUI model initialized", logger.F("tasks", len(m.tasks)))
	return m
}

func (m *Model) loadData() {
	m.tasks = m.engine.Tasks()
	m.sync = m.engine.SyncStatus()
	m.queue = m.engine.QueueStatus()

	// Active first, then priority (1 is high), then newest
	sort.SliceStable(m.tasks, func(i, j int) bool {
		t1, t2 := m.tasks[i], m.tasks[j]
		if t1.Done != t2.Done {
			return !t1.Done
		}
		if t1.Priority != t2.Priority {
			return t1.Priority < t2.Priority
		}
		return t1.CreatedAt.After(t2.CreatedAt)
	})

	if m.cursor >= len(m.tasks) {
		m.cursor = max(len(m.tasks)-1, 0)
	}
}

func (m *Model) currentTask() *model.Task {
	if m.cursor < len(m.tasks) {
		return &m.tasks[m.cursor]
	}
	return nil
}

func (m Model) busy() bool {
	return m.syncing || m.sync.State == isync.StateSyncing || m.queue.Processing
}
