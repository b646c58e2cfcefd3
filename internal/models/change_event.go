package models

import "time"

// ChangeKind names the kind of a change event.
type ChangeKind string

const (
	KindUserJoined        ChangeKind = "user_joined"
	KindUserLeft          ChangeKind = "user_left"
	KindTableUpdated      ChangeKind = "table_updated"
	KindParticipantJoined ChangeKind = "participant_joined"
	KindParticipantLeft   ChangeKind = "participant_left"
)

// ChangeEvent is one classified difference between two snapshots. The
// concrete types carry enough context to render a notification without
// fetching the table again.
type ChangeEvent interface {
	Kind() ChangeKind
	TableID() string
	TableName() string
}

// TableRef identifies the table an event belongs to.
type TableRef struct {
	ID   string
	Name string
}

func (r TableRef) TableID() string   { return r.ID }
func (r TableRef) TableName() string { return r.Name }

// UserJoined is emitted when a watched user appears in a table.
type UserJoined struct {
	TableRef
	WatchedUserID int64
	Participant   Participant
	Table         TableState
}

func (UserJoined) Kind() ChangeKind { return KindUserJoined }

// UserLeft is emitted when a watched user is no longer in a table, either
// because they left or because the table dropped out of the snapshot.
type UserLeft struct {
	TableRef
	WatchedUserID int64
	Participant   Participant
}

func (UserLeft) Kind() ChangeKind { return KindUserLeft }

// ParticipantJoined is emitted when an unwatched user joins a table that
// holds a watched user.
type ParticipantJoined struct {
	TableRef
	Participant Participant
	Table       TableState
}

func (ParticipantJoined) Kind() ChangeKind { return KindParticipantJoined }

// ParticipantLeft is emitted when an unwatched user leaves a table that held
// a watched user. Table is the composition after the departure.
type ParticipantLeft struct {
	TableRef
	Participant Participant
	Table       TableState
}

func (ParticipantLeft) Kind() ChangeKind { return KindParticipantLeft }

// TableUpdated is emitted when membership is unchanged but observable table
// data differs.
type TableUpdated struct {
	TableRef
	Previous TableState
	Current  TableState
}

func (TableUpdated) Kind() ChangeKind { return KindTableUpdated }

// Record is the flat wire form of a change event used by publishers and the
// journal.
type Record struct {
	Type            ChangeKind        `json:"type"`
	TableID         string            `json:"table_id"`
	TableName       string            `json:"table_name"`
	WatchedUserID   int64             `json:"watched_user_id,omitempty"`
	ParticipantID   string            `json:"participant_id,omitempty"`
	ParticipantName string            `json:"participant_name,omitempty"`
	ScanID          string            `json:"scan_id,omitempty"`
	Timestamp       int64             `json:"timestamp"`
	Payload         map[string]any    `json:"payload,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
}

// NewRecord flattens ev into its wire form.
func NewRecord(ev ChangeEvent, scanID string, at time.Time) *Record {
	rec := &Record{
		Type:      ev.Kind(),
		TableID:   ev.TableID(),
		TableName: ev.TableName(),
		ScanID:    scanID,
		Timestamp: at.Unix(),
		Payload:   make(map[string]any),
	}

	switch e := ev.(type) {
	case UserJoined:
		rec.WatchedUserID = e.WatchedUserID
		rec.ParticipantID = e.Participant.UserID
		rec.ParticipantName = e.Participant.FullName()
		rec.Payload["table"] = e.Table
	case UserLeft:
		rec.WatchedUserID = e.WatchedUserID
		rec.ParticipantID = e.Participant.UserID
		rec.ParticipantName = e.Participant.FullName()
		rec.Payload["participant"] = e.Participant
	case ParticipantJoined:
		rec.ParticipantID = e.Participant.UserID
		rec.ParticipantName = e.Participant.FullName()
		rec.Payload["table"] = e.Table
	case ParticipantLeft:
		rec.ParticipantID = e.Participant.UserID
		rec.ParticipantName = e.Participant.FullName()
		rec.Payload["participant"] = e.Participant
		rec.Payload["table"] = e.Table
	case TableUpdated:
		rec.Payload["previous"] = e.Previous
		rec.Payload["current"] = e.Current
	}

	return rec
}
