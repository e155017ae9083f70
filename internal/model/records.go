package model

import "time"

type Note struct {
	Meta
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Pinned  bool     `json:"pinned"`
	Tags    []string `json:"tags,omitempty"`
}

type Habit struct {
	Meta
	Name        string   `json:"name"`
	Frequency   string   `json:"frequency"`
	Completions []string `json:"completions,omitempty"` // ISO dates
	Archived    bool     `json:"archived"`
}

// Flashcard carries spaced-repetition state. Its UpdatedAt is not
// maintained reliably by clients, so merges let the remote copy win.
type Flashcard struct {
	Meta
	DeckID     string     `json:"deckId"`
	Front      string     `json:"front"`
	Back       string     `json:"back"`
	Interval   int        `json:"interval"`
	EaseFactor float64    `json:"easeFactor"`
	Repetition int        `json:"repetition"`
	DueAt      *time.Time `json:"dueAt,omitempty"`
}

type Deck struct {
	Meta
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Timer struct {
	Meta
	Label     string     `json:"label"`
	TaskID    string     `json:"taskId,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`
	Seconds   int64      `json:"seconds"`
}

type Trip struct {
	Meta
	Destination string     `json:"destination"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type WorkDay struct {
	Meta
	Date    string  `json:"date"` // YYYY-MM-DD
	Hours   float64 `json:"hours"`
	Summary string  `json:"summary,omitempty"`
}

type InventoryItem struct {
	Meta
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Location string `json:"location,omitempty"`
}
