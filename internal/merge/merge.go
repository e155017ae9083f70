// Package merge reconciles two replicas of the tracker state using
// timestamp last-write-wins and tombstones.
package merge

import (
	"time"

	"github.com/existflow/irontrack/internal/model"
)

// Policy decides which copy of an entity survives when both replicas have it.
type Policy int

const (
	// ByTimestamp keeps the copy with the strictly later timestamp; ties keep local.
	ByTimestamp Policy = iota
	// RemoteWins always takes the remote copy. Merges under this policy are
	// not commutative: the last applied side wins.
	RemoteWins
)

func (p Policy) String() string {
	if p == RemoteWins {
		return "remote-wins"
	}
	return "by-timestamp"
}

// PolicyFor returns the merge policy configured for a collection.
func PolicyFor(kind model.Kind) Policy {
	switch kind {
	case model.KindFlashcard:
		return RemoteWins
	default:
		return ByTimestamp
	}
}

// MergeCollection combines local and remote into a new slice. Local order is
// preserved and remote-only entities are appended in remote order.
func MergeCollection[T model.Entity](local, remote []T, policy Policy) []T {
	out := make([]T, 0, len(local)+len(remote))
	index := make(map[string]int, len(local)+len(remote))

	for _, v := range local {
		if i, ok := index[v.Key()]; ok {
			out[i] = v
			continue
		}
		index[v.Key()] = len(out)
		out = append(out, v)
	}

	for _, r := range remote {
		i, ok := index[r.Key()]
		if !ok {
			index[r.Key()] = len(out)
			out = append(out, r)
			continue
		}
		if policy == RemoteWins || newer(r, out[i]) {
			out[i] = r
		}
	}
	return out
}

// newer reports whether remote should replace local. A remote copy without
// a timestamp never wins; a local copy without one always loses to a
// timestamped remote.
func newer(remote, local model.Entity) bool {
	rt, ok := remote.Timestamp()
	if !ok {
		return false
	}
	lt, ok := local.Timestamp()
	return !ok || rt.After(lt)
}

// MergeAll merges every collection of the two snapshots with its configured
// policy. Neither input is modified.
func MergeAll(local, remote *model.Snapshot) *model.Snapshot {
	return &model.Snapshot{
		Tasks:      MergeCollection(local.Tasks, remote.Tasks, PolicyFor(model.KindTask)),
		Categories: MergeCollection(local.Categories, remote.Categories, PolicyFor(model.KindCategory)),
		Notes:      MergeCollection(local.Notes, remote.Notes, PolicyFor(model.KindNote)),
		Habits:     MergeCollection(local.Habits, remote.Habits, PolicyFor(model.KindHabit)),
		Flashcards: MergeCollection(local.Flashcards, remote.Flashcards, PolicyFor(model.KindFlashcard)),
		Decks:      MergeCollection(local.Decks, remote.Decks, PolicyFor(model.KindDeck)),
		Timers:     MergeCollection(local.Timers, remote.Timers, PolicyFor(model.KindTimer)),
		Trips:      MergeCollection(local.Trips, remote.Trips, PolicyFor(model.KindTrip)),
		WorkDays:   MergeCollection(local.WorkDays, remote.WorkDays, PolicyFor(model.KindWorkDay)),
		Inventory:  MergeCollection(local.Inventory, remote.Inventory, PolicyFor(model.KindInventory)),
		Tombstones: MergeCollection(local.Tombstones, remote.Tombstones, ByTimestamp),
		Settings:   mergeSettings(local.Settings, remote.Settings),
	}
}

// mergeSettings applies last-write-wins to the shared preferences. The
// device-local sync block always comes from local.
func mergeSettings(local, remote model.Settings) model.Settings {
	out := local
	if remote.UpdatedAt.After(local.UpdatedAt) {
		out = remote
	}
	out.Sync = nil
	if local.Sync != nil {
		p := *local.Sync
		out.Sync = &p
	}
	return out
}

// Reconcile merges remote into local and then prunes deleted entities.
func Reconcile(local, remote *model.Snapshot) *model.Snapshot {
	return ApplyTombstones(MergeAll(local, remote))
}

// CollapseTombstones keeps only the latest tombstone per (entityType, id),
// in order of first appearance.
func CollapseTombstones(ts []model.Tombstone) []model.Tombstone {
	return MergeCollection(nil, ts, ByTimestamp)
}

// ApplyTombstones returns a copy of s without the entities its tombstones
// delete. An entity edited after its deletion (updatedAt strictly later
// than deletedAt) survives; one without updatedAt never does.
//
// Run it after MergeAll: the merge is what can reintroduce an entity the
// other side already deleted.
func ApplyTombstones(s *model.Snapshot) *model.Snapshot {
	out := s.Clone()
	out.Tombstones = CollapseTombstones(s.Tombstones)

	deleted := make(map[string]time.Time, len(out.Tombstones))
	for _, t := range out.Tombstones {
		deleted[t.Key()] = t.DeletedAt
	}

	out.Tasks = prune(out.Tasks, model.KindTask, deleted)
	out.Categories = prune(out.Categories, model.KindCategory, deleted)
	out.Notes = prune(out.Notes, model.KindNote, deleted)
	out.Habits = prune(out.Habits, model.KindHabit, deleted)
	out.Flashcards = prune(out.Flashcards, model.KindFlashcard, deleted)
	out.Decks = prune(out.Decks, model.KindDeck, deleted)
	out.Timers = prune(out.Timers, model.KindTimer, deleted)
	out.Trips = prune(out.Trips, model.KindTrip, deleted)
	out.WorkDays = prune(out.WorkDays, model.KindWorkDay, deleted)
	out.Inventory = prune(out.Inventory, model.KindInventory, deleted)
	return out
}

func prune[T model.Entity](items []T, kind model.Kind, deleted map[string]time.Time) []T {
	if len(deleted) == 0 {
		return items
	}
	kept := items[:0]
	for _, v := range items {
		if survives(v, kind, deleted) {
			kept = append(kept, v)
		}
	}
	return kept
}

func survives(v model.Entity, kind model.Kind, deleted map[string]time.Time) bool {
	deletedAt, ok := deleted[model.TombstoneKey(kind, v.Key())]
	if !ok {
		return true
	}
	updatedAt, ok := v.Timestamp()
	return ok && updatedAt.After(deletedAt)
}
