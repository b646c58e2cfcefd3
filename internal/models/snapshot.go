package models

import (
	"strconv"
	"strings"
	"time"
)

// Participant is one member of a table as captured during a scan.
type Participant struct {
	UserID      string `json:"userId"`
	GivenName   string `json:"givenName"`
	FamilyName  string `json:"familyName"`
	IsMale      bool   `json:"isMale"`
	BirthDate   string `json:"birthDate"`
	IsConfirmed bool   `json:"isConfirmed"`
}

// FullName returns "given family".
func (p Participant) FullName() string {
	return strings.TrimSpace(p.GivenName + " " + p.FamilyName)
}

// TableState is the captured composition of a single table.
type TableState struct {
	TableID      string        `json:"tableId"`
	VenueName    string        `json:"venueName"`
	Participants []Participant `json:"participants"`
	LastUpdated  time.Time     `json:"lastUpdated"`
}

// Participant looks up a participant by user id.
func (t TableState) Participant(userID string) (Participant, bool) {
	for _, p := range t.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// Snapshot is the full monitoring state persisted between scans.
type Snapshot struct {
	Tables       map[string]TableState `json:"tables"`
	WatchedUsers []int64               `json:"monitoredUsers"`
	LastScanTime time.Time             `json:"lastScanTime"`
}

// NewSnapshot returns an empty snapshot stamped with now.
func NewSnapshot(now time.Time) Snapshot {
	return Snapshot{
		Tables:       make(map[string]TableState),
		WatchedUsers: []int64{},
		LastScanTime: now,
	}
}

// ParseUserID converts a remote user id into the numeric form used by the
// watch list. Ids that are not positive integers never match.
func ParseUserID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// WatchSet is a lookup set of watched user ids.
type WatchSet map[int64]struct{}

// NewWatchSet builds a set from a watch list.
func NewWatchSet(ids []int64) WatchSet {
	set := make(WatchSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether the remote user id is watched.
func (s WatchSet) Has(userID string) bool {
	id, ok := ParseUserID(userID)
	if !ok {
		return false
	}
	_, watched := s[id]
	return watched
}
