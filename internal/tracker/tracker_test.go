package tracker

import (
	"reflect"
	"testing"
	"time"

	"tablowatch/internal/models"
)

func participant(id, given string, male bool) models.Participant {
	return models.Participant{
		UserID:      id,
		GivenName:   given,
		FamilyName:  "Rossi",
		IsMale:      male,
		BirthDate:   "1990-05-01",
		IsConfirmed: true,
	}
}

func table(id string, participants ...models.Participant) models.TableState {
	return models.TableState{
		TableID:      id,
		VenueName:    "Osteria " + id,
		Participants: participants,
		LastUpdated:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// TestFindWatchedUsers verifies that only watched ids are returned, in table order.
func TestFindWatchedUsers(t *testing.T) {
	participants := []models.Participant{
		participant("7", "Anna", false),
		participant("abc", "Bad", true),
		participant("3", "Marco", true),
		participant("9", "Luca", true),
	}

	got := FindWatchedUsers(participants, []int64{3, 7, 42})
	want := []int64{7, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FindWatchedUsers() = %v, want %v", got, want)
	}

	if got := FindWatchedUsers(participants, nil); len(got) != 0 {
		t.Errorf("FindWatchedUsers(nil) = %v, want empty", got)
	}
}

// TestContainsWatched verifies summary pre-filtering on raw id strings.
func TestContainsWatched(t *testing.T) {
	set := models.NewWatchSet([]int64{5})
	if !ContainsWatched([]string{"1", " 5 "}, set) {
		t.Error("expected padded id to match")
	}
	if ContainsWatched([]string{"1", "55", "x"}, set) {
		t.Error("expected no match")
	}
}

// TestDetectChanges_NewTable verifies that a new table yields one join per watched user.
func TestDetectChanges_NewTable(t *testing.T) {
	newTable := table("10", participant("1", "Anna", false), participant("2", "Bruno", true), participant("3", "Carla", false))

	changes := DetectChanges(nil, newTable, []int64{1, 3})
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(changes), changes)
	}
	for i, wantID := range []int64{1, 3} {
		joined, ok := changes[i].(models.UserJoined)
		if !ok {
			t.Fatalf("change %d is %T, want UserJoined", i, changes[i])
		}
		if joined.WatchedUserID != wantID {
			t.Errorf("change %d watched user = %d, want %d", i, joined.WatchedUserID, wantID)
		}
		if joined.TableID() != "10" || joined.TableName() != "Osteria 10" {
			t.Errorf("change %d table ref = %+v", i, joined.TableRef)
		}
		if len(joined.Table.Participants) != 3 {
			t.Errorf("change %d should carry the table snapshot", i)
		}
	}
}

// TestDetectChanges_Membership covers joins and leaves of watched and unwatched users.
func TestDetectChanges_Membership(t *testing.T) {
	watched := []int64{1}

	tests := []struct {
		name     string
		old      models.TableState
		new      models.TableState
		expected []models.ChangeKind
	}{
		{
			name:     "watched user joins",
			old:      table("10", participant("2", "Bruno", true)),
			new:      table("10", participant("2", "Bruno", true), participant("1", "Anna", false)),
			expected: []models.ChangeKind{models.KindUserJoined},
		},
		{
			name:     "watched user leaves",
			old:      table("10", participant("1", "Anna", false), participant("2", "Bruno", true)),
			new:      table("10", participant("2", "Bruno", true)),
			expected: []models.ChangeKind{models.KindUserLeft},
		},
		{
			name:     "participant joins watched table",
			old:      table("10", participant("1", "Anna", false)),
			new:      table("10", participant("1", "Anna", false), participant("2", "Bruno", true)),
			expected: []models.ChangeKind{models.KindParticipantJoined},
		},
		{
			name:     "participant leaves watched table",
			old:      table("10", participant("1", "Anna", false), participant("2", "Bruno", true)),
			new:      table("10", participant("1", "Anna", false)),
			expected: []models.ChangeKind{models.KindParticipantLeft},
		},
		{
			name:     "unwatched churn on unwatched table",
			old:      table("10", participant("2", "Bruno", true)),
			new:      table("10", participant("3", "Carla", false)),
			expected: []models.ChangeKind{},
		},
		{
			name: "swap watched for unwatched",
			old:  table("10", participant("1", "Anna", false), participant("2", "Bruno", true)),
			new:  table("10", participant("2", "Bruno", true), participant("3", "Carla", false)),
			// Carla arrives at a table with no watched user left: not newsworthy.
			expected: []models.ChangeKind{models.KindUserLeft},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := tt.old
			changes := DetectChanges(&old, tt.new, watched)
			got := make([]models.ChangeKind, 0, len(changes))
			for _, c := range changes {
				got = append(got, c.Kind())
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("kinds = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestDetectChanges_ParticipantLeftCarriesCurrentTable verifies render context on departures.
func TestDetectChanges_ParticipantLeftCarriesCurrentTable(t *testing.T) {
	old := table("10", participant("1", "Anna", false), participant("2", "Bruno", true))
	cur := table("10", participant("1", "Anna", false))

	changes := DetectChanges(&old, cur, []int64{1})
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	left := changes[0].(models.ParticipantLeft)
	if left.Participant.UserID != "2" {
		t.Errorf("participant = %q, want 2", left.Participant.UserID)
	}
	if !reflect.DeepEqual(left.Table, cur) {
		t.Errorf("table context = %+v, want current table", left.Table)
	}
}

// TestDetectChanges_TableUpdated verifies the field-level update check.
func TestDetectChanges_TableUpdated(t *testing.T) {
	old := table("10", participant("1", "Anna", false), participant("2", "Bruno", true))

	t.Run("timestamp only", func(t *testing.T) {
		cur := old
		cur.LastUpdated = old.LastUpdated.Add(time.Hour)
		if changes := DetectChanges(&old, cur, []int64{1}); len(changes) != 0 {
			t.Errorf("expected no changes, got %+v", changes)
		}
	})

	t.Run("confirmation flips", func(t *testing.T) {
		bruno := participant("2", "Bruno", true)
		bruno.IsConfirmed = false
		cur := table("10", participant("1", "Anna", false), bruno)

		changes := DetectChanges(&old, cur, []int64{1})
		if len(changes) != 1 {
			t.Fatalf("expected 1 change, got %d", len(changes))
		}
		updated, ok := changes[0].(models.TableUpdated)
		if !ok {
			t.Fatalf("change is %T, want TableUpdated", changes[0])
		}
		if !updated.Previous.Participants[1].IsConfirmed || !reflect.DeepEqual(updated.Current, cur) {
			t.Errorf("unexpected payload: %+v", updated)
		}
	})

	t.Run("venue renamed", func(t *testing.T) {
		cur := old
		cur.VenueName = "Trattoria"
		changes := DetectChanges(&old, cur, []int64{1})
		if len(changes) != 1 || changes[0].Kind() != models.KindTableUpdated {
			t.Fatalf("expected one table_updated, got %+v", changes)
		}
	})

	t.Run("no watched user", func(t *testing.T) {
		cur := old
		cur.VenueName = "Trattoria"
		if changes := DetectChanges(&old, cur, []int64{99}); len(changes) != 0 {
			t.Errorf("expected no changes, got %+v", changes)
		}
	})
}

// TestDetectChanges_Ordering verifies joins precede leaves in participant order.
func TestDetectChanges_Ordering(t *testing.T) {
	old := table("10", participant("1", "Anna", false), participant("4", "Dario", true), participant("5", "Elena", false))
	cur := table("10", participant("1", "Anna", false), participant("3", "Carla", false), participant("2", "Bruno", true))

	changes := DetectChanges(&old, cur, []int64{1, 2})
	var got []string
	for _, c := range changes {
		switch e := c.(type) {
		case models.UserJoined:
			got = append(got, "join:"+e.Participant.UserID)
		case models.ParticipantJoined:
			got = append(got, "pjoin:"+e.Participant.UserID)
		case models.ParticipantLeft:
			got = append(got, "pleft:"+e.Participant.UserID)
		default:
			got = append(got, string(c.Kind()))
		}
	}
	want := []string{"pjoin:3", "join:2", "pleft:4", "pleft:5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

// TestHasTableDataChanged checks the authoritative change predicate.
func TestHasTableDataChanged(t *testing.T) {
	base := table("10", participant("1", "Anna", false))

	if HasTableDataChanged(base, base) {
		t.Error("identical tables reported as changed")
	}

	renamed := base
	renamed.Participants = []models.Participant{participant("1", "Annalisa", false)}
	if !HasTableDataChanged(base, renamed) {
		t.Error("name change not detected")
	}

	extra := base
	extra.Participants = append([]models.Participant{}, base.Participants...)
	extra.Participants = append(extra.Participants, participant("2", "Bruno", true))
	if !HasTableDataChanged(base, extra) {
		t.Error("added participant not detected")
	}
}
