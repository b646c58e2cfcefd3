// Package tracker classifies a single table's membership against the watch
// list and detects changes between two versions of the same table.
package tracker

import (
	"tablowatch/internal/models"
)

// FindWatchedUsers returns the watched ids present in participants, in
// participant order.
func FindWatchedUsers(participants []models.Participant, watched []int64) []int64 {
	set := models.NewWatchSet(watched)
	found := make([]int64, 0)
	for _, p := range participants {
		id, ok := models.ParseUserID(p.UserID)
		if !ok {
			continue
		}
		if _, hit := set[id]; hit {
			found = append(found, id)
		}
	}
	return found
}

// ContainsWatched reports whether any participant id is watched.
func ContainsWatched(participantIDs []string, set models.WatchSet) bool {
	for _, id := range participantIDs {
		if set.Has(id) {
			return true
		}
	}
	return false
}

func hasWatched(t models.TableState, set models.WatchSet) bool {
	for _, p := range t.Participants {
		if set.Has(p.UserID) {
			return true
		}
	}
	return false
}

// DetectChanges compares oldTable (nil when the table is new) with newTable
// and returns the resulting events. Joins come before leaves; each group
// follows participant order.
func DetectChanges(oldTable *models.TableState, newTable models.TableState, watched []int64) []models.ChangeEvent {
	set := models.NewWatchSet(watched)
	changes := make([]models.ChangeEvent, 0)
	ref := models.TableRef{ID: newTable.TableID, Name: newTable.VenueName}

	if oldTable == nil {
		for _, p := range uniqueParticipants(newTable.Participants) {
			id, ok := models.ParseUserID(p.UserID)
			if !ok || !set.Has(p.UserID) {
				continue
			}
			changes = append(changes, models.UserJoined{
				TableRef:      ref,
				WatchedUserID: id,
				Participant:   p,
				Table:         newTable,
			})
		}
		return changes
	}

	oldRef := models.TableRef{ID: oldTable.TableID, Name: oldTable.VenueName}
	oldByID := indexParticipants(oldTable.Participants)
	newByID := indexParticipants(newTable.Participants)
	newHasWatched := hasWatched(newTable, set)
	oldHasWatched := hasWatched(*oldTable, set)

	for _, p := range uniqueParticipants(newTable.Participants) {
		if _, existed := oldByID[p.UserID]; existed {
			continue
		}
		if set.Has(p.UserID) {
			id, _ := models.ParseUserID(p.UserID)
			changes = append(changes, models.UserJoined{
				TableRef:      ref,
				WatchedUserID: id,
				Participant:   p,
				Table:         newTable,
			})
		} else if newHasWatched {
			changes = append(changes, models.ParticipantJoined{
				TableRef:    ref,
				Participant: p,
				Table:       newTable,
			})
		}
	}

	for _, p := range uniqueParticipants(oldTable.Participants) {
		if _, still := newByID[p.UserID]; still {
			continue
		}
		if set.Has(p.UserID) {
			id, _ := models.ParseUserID(p.UserID)
			changes = append(changes, models.UserLeft{
				TableRef:      oldRef,
				WatchedUserID: id,
				Participant:   p,
			})
		} else if oldHasWatched {
			changes = append(changes, models.ParticipantLeft{
				TableRef:    oldRef,
				Participant: p,
				Table:       newTable,
			})
		}
	}

	if newHasWatched && sameMembers(oldByID, newByID) && HasTableDataChanged(*oldTable, newTable) {
		changes = append(changes, models.TableUpdated{
			TableRef: ref,
			Previous: *oldTable,
			Current:  newTable,
		})
	}

	return changes
}

// HasTableDataChanged reports whether anything observable differs between
// two versions of a table: the venue name or any participant field. The
// capture timestamp is ignored.
func HasTableDataChanged(previous, current models.TableState) bool {
	if previous.VenueName != current.VenueName {
		return true
	}
	if len(previous.Participants) != len(current.Participants) {
		return true
	}

	prevByID := indexParticipants(previous.Participants)
	for _, cur := range current.Participants {
		prev, ok := prevByID[cur.UserID]
		if !ok {
			return true
		}
		if prev != cur {
			return true
		}
	}
	return false
}

// indexParticipants keys participants by user id. A repeated id keeps its
// last occurrence.
func indexParticipants(participants []models.Participant) map[string]models.Participant {
	byID := make(map[string]models.Participant, len(participants))
	for _, p := range participants {
		byID[p.UserID] = p
	}
	return byID
}

// uniqueParticipants returns participants in first-seen order with the
// field values of the last occurrence of each id.
func uniqueParticipants(participants []models.Participant) []models.Participant {
	byID := indexParticipants(participants)
	seen := make(map[string]struct{}, len(byID))
	out := make([]models.Participant, 0, len(byID))
	for _, p := range participants {
		if _, dup := seen[p.UserID]; dup {
			continue
		}
		seen[p.UserID] = struct{}{}
		out = append(out, byID[p.UserID])
	}
	return out
}

func sameMembers(a, b map[string]models.Participant) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range b {
		if _, ok := a[id]; !ok {
			return false
		}
	}
	return true
}
