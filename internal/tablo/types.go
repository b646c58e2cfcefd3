package tablo

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"tablowatch/internal/models"
)

// ListResponse is the body of getTavoliNewOrder.
type ListResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message,omitempty"`
	Tables  []TableSummary `json:"tavoli"`
}

// TableSummary is one entry of a table listing.
type TableSummary struct {
	ParticipantIDs []string `json:"idPartecipanti"`
	TableID        string   `json:"idTavolo"`
	Distance       string   `json:"distanza,omitempty"`
	VenueName      string   `json:"nomeRistorante,omitempty"`
}

// DistanceKm parses the reported distance; ok is false when absent or
// malformed.
func (s TableSummary) DistanceKm() (float64, bool) {
	if s.Distance == "" {
		return 0, false
	}
	d, err := strconv.ParseFloat(s.Distance, 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

// TableResponse is the body of getTavolo.
type TableResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message,omitempty"`
	Table   *TableDetail `json:"tavolo"`
}

// OK reports whether the response carries a table.
func (r *TableResponse) OK() bool {
	return r != nil && r.Code == SuccessCode && r.Table != nil
}

// TableDetail is the authoritative view of a table.
type TableDetail struct {
	VenueName    string        `json:"nomeRistorante"`
	Participants []Participant `json:"partecipanti"`
}

// Participant is one member of a table as reported by the API.
type Participant struct {
	UserID      string `json:"idUtente"`
	IsMale      bool   `json:"sessoMaschile"`
	GivenName   string `json:"nome"`
	FamilyName  string `json:"cognome"`
	BirthDate   string `json:"dataDiNascita"`
	IsConfirmed bool   `json:"partecipante"`
	Avatar      string `json:"avatar,omitempty"`
	IsBrand     bool   `json:"isBrand,omitempty"`
}

// State converts the detail into the snapshot form.
func (d TableDetail) State(tableID string, capturedAt time.Time) models.TableState {
	participants := make([]models.Participant, 0, len(d.Participants))
	for _, p := range d.Participants {
		participants = append(participants, models.Participant{
			UserID:      p.UserID,
			GivenName:   p.GivenName,
			FamilyName:  p.FamilyName,
			IsMale:      p.IsMale,
			BirthDate:   p.BirthDate,
			IsConfirmed: p.IsConfirmed,
		})
	}
	return models.TableState{
		TableID:      tableID,
		VenueName:    d.VenueName,
		Participants: participants,
		LastUpdated:  capturedAt,
	}
}

// UsersResponse is the body of getNewUtentiInvitoRistorante.
type UsersResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message,omitempty"`
	People  []Person `json:"persone"`
}

// Person is a user suggested for a restaurant. Numbers arrive as strings.
type Person struct {
	UserID         string `json:"idUtente"`
	GivenName      string `json:"nome"`
	FamilyName     string `json:"cognome"`
	Male           string `json:"sessoMaschile,omitempty"`
	BirthDate      string `json:"dataDiNascita,omitempty"`
	Distance       string `json:"distanza,omitempty"`
	City           string `json:"posizioneCitta,omitempty"`
	Participations string `json:"numPartecipazioni,omitempty"`
	Invitations    string `json:"numInviti,omitempty"`
}

// DistanceKm parses the reported distance.
func (p Person) DistanceKm() (float64, bool) {
	return parseNumber(p.Distance)
}

// ParticipationCount parses the number of tables the person joined.
func (p Person) ParticipationCount() (int, bool) {
	n, ok := parseNumber(p.Participations)
	return int(n), ok
}

// BirthYear is the year part of the birth date, or "????".
func (p Person) BirthYear() string {
	if len(p.BirthDate) < 4 {
		return "????"
	}
	return p.BirthDate[:4]
}

// WithMinParticipations keeps the people with at least min participations.
// Unknown counts are treated as zero; min <= 0 keeps everyone.
func WithMinParticipations(people []Person, min int) []Person {
	if min <= 0 {
		return people
	}
	kept := make([]Person, 0, len(people))
	for _, p := range people {
		if n, _ := p.ParticipationCount(); n >= min {
			kept = append(kept, p)
		}
	}
	return kept
}

func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// CheckStatus returns an error wrapping ErrStatus unless code is SuccessCode.
func CheckStatus(code int, message string) error {
	if code == SuccessCode {
		return nil
	}
	if message != "" {
		return fmt.Errorf("%w %d: %s", ErrStatus, code, message)
	}
	return fmt.Errorf("%w %d", ErrStatus, code)
}
