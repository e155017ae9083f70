package model

import "time"

// Tombstone records that an entity was deleted so merges do not bring it back.
type Tombstone struct {
	EntityType Kind      `json:"entityType"`
	ID         string    `json:"id"`
	DeletedAt  time.Time `json:"deletedAt"`
}

// NewTombstone creates a tombstone for kind/id deleted at now.
func NewTombstone(kind Kind, id string, now time.Time) Tombstone {
	return Tombstone{EntityType: kind, ID: id, DeletedAt: now.UTC()}
}

// Key identifies the deleted entity across collections.
func (t Tombstone) Key() string {
	return TombstoneKey(t.EntityType, t.ID)
}

// Timestamp returns DeletedAt.
func (t Tombstone) Timestamp() (time.Time, bool) {
	return t.DeletedAt, !t.DeletedAt.IsZero()
}

// TombstoneKey builds the key used to index tombstones.
func TombstoneKey(kind Kind, id string) string {
	return string(kind) + "/" + id
}
