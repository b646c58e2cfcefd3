// Package detector diffs two monitoring snapshots into change events.
package detector

import (
	"sort"

	"tablowatch/internal/models"
	"tablowatch/internal/tracker"
)

// Compare returns the changes between previous and current. The watch list
// of current is authoritative. Tables are visited in ascending id order so
// the result is stable for identical inputs; neither snapshot is modified.
func Compare(previous, current models.Snapshot) []models.ChangeEvent {
	watched := current.WatchedUsers
	changes := make([]models.ChangeEvent, 0)

	for _, tableID := range sortedIDs(current.Tables) {
		currentTable := current.Tables[tableID]
		var previousTable *models.TableState
		if t, ok := previous.Tables[tableID]; ok {
			previousTable = &t
		}
		changes = append(changes, tracker.DetectChanges(previousTable, currentTable, watched)...)
	}

	for _, tableID := range sortedIDs(previous.Tables) {
		if _, ok := current.Tables[tableID]; ok {
			continue
		}
		changes = append(changes, dropped(previous.Tables[tableID], watched)...)
	}

	return changes
}

// dropped reports every watched user of a table that disappeared from the
// snapshot as having left it.
func dropped(table models.TableState, watched []int64) []models.ChangeEvent {
	set := models.NewWatchSet(watched)
	ref := models.TableRef{ID: table.TableID, Name: table.VenueName}
	seen := make(map[string]struct{})
	changes := make([]models.ChangeEvent, 0)

	for _, p := range table.Participants {
		if _, dup := seen[p.UserID]; dup || !set.Has(p.UserID) {
			continue
		}
		seen[p.UserID] = struct{}{}
		id, _ := models.ParseUserID(p.UserID)
		changes = append(changes, models.UserLeft{
			TableRef:      ref,
			WatchedUserID: id,
			Participant:   p,
		})
	}
	return changes
}

func sortedIDs(tables map[string]models.TableState) []string {
	ids := make([]string, 0, len(tables))
	for id := range tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	return ids
}
