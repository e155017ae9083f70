package model

import "time"

// Entity is a record that can be merged across replicas.
type Entity interface {
	// Key is the stable identity of the record.
	Key() string
	// Timestamp is the last modification time; ok is false when unknown.
	Timestamp() (t time.Time, ok bool)
}

// Meta carries the identity and modification time shared by all entities.
type Meta struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Key returns the entity id.
func (m Meta) Key() string { return m.ID }

// Timestamp returns UpdatedAt, reporting false for the zero time.
func (m Meta) Timestamp() (time.Time, bool) {
	return m.UpdatedAt, !m.UpdatedAt.IsZero()
}

// Touch refreshes UpdatedAt. Every mutation that must win a merge calls it.
func (m *Meta) Touch(now time.Time) {
	m.UpdatedAt = now.UTC()
}

// Kind names an entity collection. It is also the tombstone entityType.
type Kind string

const (
	KindTask      Kind = "task"
	KindCategory  Kind = "category"
	KindNote      Kind = "note"
	KindHabit     Kind = "habit"
	KindFlashcard Kind = "flashcard"
	KindDeck      Kind = "deck"
	KindTimer     Kind = "timer"
	KindTrip      Kind = "trip"
	KindWorkDay   Kind = "workday"
	KindInventory Kind = "inventory"
)

// Kinds lists every collection in snapshot order.
var Kinds = []Kind{
	KindTask,
	KindCategory,
	KindNote,
	KindHabit,
	KindFlashcard,
	KindDeck,
	KindTimer,
	KindTrip,
	KindWorkDay,
	KindInventory,
}

var resources = map[Kind]string{
	KindTask:      "tasks",
	KindCategory:  "categories",
	KindNote:      "notes",
	KindHabit:     "habits",
	KindFlashcard: "flashcards",
	KindDeck:      "decks",
	KindTimer:     "timers",
	KindTrip:      "trips",
	KindWorkDay:   "workdays",
	KindInventory: "inventory",
}

// Resource returns the REST resource name of the collection.
func (k Kind) Resource() string {
	return resources[k]
}

// Valid reports whether k names a known collection.
func (k Kind) Valid() bool {
	_, ok := resources[k]
	return ok
}

// KindForResource maps a REST resource name (or a kind name) back to its Kind.
func KindForResource(name string) (Kind, bool) {
	for k, r := range resources {
		if r == name || string(k) == name {
			return k, true
		}
	}
	return "", false
}
