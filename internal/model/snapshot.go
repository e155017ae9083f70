package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Snapshot is the full replica state exchanged between client and server.
type Snapshot struct {
	Tasks      []Task          `json:"tasks"`
	Categories []Category      `json:"categories"`
	Notes      []Note          `json:"notes"`
	Habits     []Habit         `json:"habits"`
	Flashcards []Flashcard     `json:"flashcards"`
	Decks      []Deck          `json:"decks"`
	Timers     []Timer         `json:"timers"`
	Trips      []Trip          `json:"trips"`
	WorkDays   []WorkDay       `json:"workDays"`
	Inventory  []InventoryItem `json:"inventory"`
	Tombstones []Tombstone     `json:"tombstones"`
	Settings   Settings        `json:"settings"`
}

// Settings are user preferences. Sync is device-local and never leaves
// the replica.
type Settings struct {
	Theme             string           `json:"theme,omitempty"`
	Locale            string           `json:"locale,omitempty"`
	WeekStartsOn      int              `json:"weekStartsOn"`
	DefaultCategoryID string           `json:"defaultCategoryId,omitempty"`
	UpdatedAt         time.Time        `json:"updatedAt,omitzero"`
	Sync              *SyncPreferences `json:"sync,omitempty"`
}

// SyncPreferences mirrors the active sync configuration of this device.
type SyncPreferences struct {
	Role            string `json:"role"`
	RemoteURL       string `json:"remoteUrl"`
	IntervalMinutes int    `json:"intervalMinutes"`
	Enabled         bool   `json:"enabled"`
}

// NewSnapshot returns the state of a fresh replica.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Categories: []Category{DefaultCategory()},
		Settings:   Settings{DefaultCategoryID: DefaultCategoryID},
	}
}

// ErrMissingID is returned when an entity without an id is written.
var ErrMissingID = errors.New("entity id is required")

// Clone copies every collection. Entity values are shared.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		Tasks:      slices.Clone(s.Tasks),
		Categories: slices.Clone(s.Categories),
		Notes:      slices.Clone(s.Notes),
		Habits:     slices.Clone(s.Habits),
		Flashcards: slices.Clone(s.Flashcards),
		Decks:      slices.Clone(s.Decks),
		Timers:     slices.Clone(s.Timers),
		Trips:      slices.Clone(s.Trips),
		WorkDays:   slices.Clone(s.WorkDays),
		Inventory:  slices.Clone(s.Inventory),
		Tombstones: slices.Clone(s.Tombstones),
		Settings:   s.Settings,
	}
	if s.Settings.Sync != nil {
		p := *s.Settings.Sync
		c.Settings.Sync = &p
	}
	return c
}

// Outbound returns a copy safe to send to the remote: device-local
// settings are stripped.
func (s *Snapshot) Outbound() *Snapshot {
	c := s.Clone()
	c.Settings.Sync = nil
	return c
}

// Count returns the number of entities in the collection of kind.
func (s *Snapshot) Count(kind Kind) int {
	switch kind {
	case KindTask:
		return len(s.Tasks)
	case KindCategory:
		return len(s.Categories)
	case KindNote:
		return len(s.Notes)
	case KindHabit:
		return len(s.Habits)
	case KindFlashcard:
		return len(s.Flashcards)
	case KindDeck:
		return len(s.Decks)
	case KindTimer:
		return len(s.Timers)
	case KindTrip:
		return len(s.Trips)
	case KindWorkDay:
		return len(s.WorkDays)
	case KindInventory:
		return len(s.Inventory)
	}
	return 0
}

// UpsertJSON decodes raw as an entity of kind and inserts or replaces it.
// It returns the entity id.
func (s *Snapshot) UpsertJSON(kind Kind, raw []byte) (string, error) {
	switch kind {
	case KindTask:
		return upsertRaw(&s.Tasks, raw)
	case KindCategory:
		return upsertRaw(&s.Categories, raw)
	case KindNote:
		return upsertRaw(&s.Notes, raw)
	case KindHabit:
		return upsertRaw(&s.Habits, raw)
	case KindFlashcard:
		return upsertRaw(&s.Flashcards, raw)
	case KindDeck:
		return upsertRaw(&s.Decks, raw)
	case KindTimer:
		return upsertRaw(&s.Timers, raw)
	case KindTrip:
		return upsertRaw(&s.Trips, raw)
	case KindWorkDay:
		return upsertRaw(&s.WorkDays, raw)
	case KindInventory:
		return upsertRaw(&s.Inventory, raw)
	}
	return "", fmt.Errorf("unknown entity kind %q", kind)
}

// Remove deletes the entity kind/id and reports whether it existed.
// It does not record a tombstone.
func (s *Snapshot) Remove(kind Kind, id string) bool {
	switch kind {
	case KindTask:
		return removeKey(&s.Tasks, id)
	case KindCategory:
		return removeKey(&s.Categories, id)
	case KindNote:
		return removeKey(&s.Notes, id)
	case KindHabit:
		return removeKey(&s.Habits, id)
	case KindFlashcard:
		return removeKey(&s.Flashcards, id)
	case KindDeck:
		return removeKey(&s.Decks, id)
	case KindTimer:
		return removeKey(&s.Timers, id)
	case KindTrip:
		return removeKey(&s.Trips, id)
	case KindWorkDay:
		return removeKey(&s.WorkDays, id)
	case KindInventory:
		return removeKey(&s.Inventory, id)
	}
	return false
}

// Delete removes kind/id and appends a tombstone dated now.
func (s *Snapshot) Delete(kind Kind, id string, now time.Time) bool {
	found := s.Remove(kind, id)
	s.Tombstones = append(s.Tombstones, NewTombstone(kind, id, now))
	return found
}

// Upsert inserts v or replaces the entity with the same key.
func Upsert[T Entity](items []T, v T) []T {
	for i := range items {
		if items[i].Key() == v.Key() {
			items[i] = v
			return items
		}
	}
	return append(items, v)
}

// Find returns the entity with key id.
func Find[T Entity](items []T, id string) (T, bool) {
	for _, it := range items {
		if it.Key() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func upsertRaw[T Entity](items *[]T, raw []byte) (string, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("decode entity: %w", err)
	}
	if v.Key() == "" {
		return "", ErrMissingID
	}
	*items = Upsert(*items, v)
	return v.Key(), nil
}

func removeKey[T Entity](items *[]T, id string) bool {
	n := len(*items)
	*items = slices.DeleteFunc(*items, func(it T) bool { return it.Key() == id })
	return len(*items) != n
}
