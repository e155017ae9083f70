package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	// Priority colors
	PriorityUrgent = lipgloss.Color("#FF6B6B") // P1 - Red
	PriorityHigh   = lipgloss.Color("#FFB347") // P2 - Orange
	PriorityMedium = lipgloss.Color("#FFE66D") // P3 - Yellow
	PriorityLow    = lipgloss.Color("#4ECDC4") // P4 - Blue

	// Status colors
	SyncOK      = lipgloss.Color("#95E1A3") // Green
	SyncPending = lipgloss.Color("#FFE66D") // Yellow
	SyncError   = lipgloss.Color("#FF6B6B") // Red
	Offline     = lipgloss.Color("#6C757D") // Gray

	// UI colors
	Primary   = lipgloss.Color("#4ECDC4")
	Surface   = lipgloss.Color("#16213e")
	TextMuted = lipgloss.Color("#888888")
	Border    = lipgloss.Color("#333333")
)

// Styles
var (
	// Header
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			Padding(0, 1)

	// Sync panel
	PanelStyle = lipgloss.NewStyle().
			Width(34).
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(Border).
			Padding(1, 1)

	// Task list
	TaskListStyle = lipgloss.NewStyle().
			Padding(1, 2)

	TaskItemStyle = lipgloss.NewStyle().
			Padding(0, 1)

	TaskItemSelectedStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(Surface).
				Bold(true)

	TaskDoneStyle = lipgloss.NewStyle().
			Foreground(TextMuted).
			Strikethrough(true).
			Padding(0, 1)

	// Priority badges
	PriorityP1Style = lipgloss.NewStyle().Foreground(PriorityUrgent).Bold(true)
	PriorityP2Style = lipgloss.NewStyle().Foreground(PriorityHigh).Bold(true)
	PriorityP3Style = lipgloss.NewStyle().Foreground(PriorityMedium)
	PriorityP4Style = lipgloss.NewStyle().Foreground(PriorityLow)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextMuted).
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(Border)

	// Help text
	HelpStyle = lipgloss.NewStyle().
			Foreground(TextMuted)
)

// GetPriorityStyle returns the style for a given priority
func GetPriorityStyle(priority int) lipgloss.Style {
	switch priority {
	case 1:
		return PriorityP1Style
	case 2:
		return PriorityP2Style
	case 3:
		return PriorityP3Style
	default:
		return PriorityP4Style
	}
}

// FormatPriority returns a formatted priority string
func FormatPriority(priority int) string {
	if priority < 1 || priority > 4 {
		priority = 4
	}
	return GetPriorityStyle(priority).Render(fmt.Sprintf("P%d", priority))
}

// FormatOnline renders the network indicator.
func FormatOnline(online bool) string {
	if online {
		return lipgloss.NewStyle().Foreground(SyncOK).Render("● online")
	}
	return lipgloss.NewStyle().Foreground(Offline).Render("○ offline")
}

// FormatPending renders the queue length, highlighted when non-zero.
func FormatPending(n int) string {
	switch n {
	case 0:
		return lipgloss.NewStyle().Foreground(SyncOK).Render("nothing pending")
	case 1:
		return lipgloss.NewStyle().Foreground(SyncPending).Render("1 operation pending")
	default:
		return lipgloss.NewStyle().Foreground(SyncPending).Render(fmt.Sprintf("%d operations pending", n))
	}
}

// FormatFailures renders the consecutive failure count.
func FormatFailures(n int) string {
	if n == 0 {
		return lipgloss.NewStyle().Foreground(SyncOK).Render("0")
	}
	return lipgloss.NewStyle().Foreground(SyncError).Bold(true).Render(fmt.Sprintf("%d", n))
}
