package model

import "time"

// Priority levels for tasks
const (
	PriorityUrgent = 1 // Red - Urgent
	PriorityHigh   = 2 // Orange - High
	PriorityMedium = 3 // Yellow - Medium
	PriorityLow    = 4 // Blue - Low (default)
)

// DefaultCategoryID is the category tasks fall back to.
const DefaultCategoryID = "inbox"

// Task represents a single todo item
type Task struct {
	Meta
	CategoryID string     `json:"categoryId"`
	Title      string     `json:"title"`
	Done       bool       `json:"done"`
	Priority   int        `json:"priority"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	CreatedAt  time.Time  `json:"createdAt,omitzero"`
}

// NewTask creates a new task with defaults
func NewTask(id, categoryID, title string, now time.Time) Task {
	if categoryID == "" {
		categoryID = DefaultCategoryID
	}
	t := Task{
		Meta:       Meta{ID: id},
		CategoryID: categoryID,
		Title:      title,
		Priority:   PriorityLow,
		CreatedAt:  now.UTC(),
	}
	t.Touch(now)
	return t
}

// IsDue returns true if the task is due today or overdue
func (t *Task) IsDue(now time.Time) bool {
	if t.DueDate == nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return t.DueDate.Before(today.Add(24 * time.Hour))
}

// IsOverdue returns true if the task is past its due date
func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return t.DueDate.Before(today)
}

// Category groups tasks.
type Category struct {
	Meta
	Name     string `json:"name"`
	Color    string `json:"color"`
	Archived bool   `json:"archived"`
}

// DefaultCategory returns the Inbox category every replica starts with.
func DefaultCategory() Category {
	return Category{
		Meta:  Meta{ID: DefaultCategoryID},
		Name:  "Inbox",
		Color: "#6C757D",
	}
}
