package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tablowatch/internal/models"
)

func TestInsertArgs(t *testing.T) {
	at := time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)
	rec := models.NewRecord(models.UserLeft{
		TableRef:      models.TableRef{ID: "77", Name: "Trattoria"},
		WatchedUserID: 10,
		Participant:   models.Participant{UserID: "10", GivenName: "Anna"},
	}, "scan-1", at)

	args, err := insertArgs(rec)
	if err != nil {
		t.Fatalf("insertArgs() failed: %v", err)
	}
	if len(args) != 8 {
		t.Fatalf("got %d args, want 8", len(args))
	}
	if args[0] != "scan-1" || args[1] != "user_left" || args[2] != "77" || args[3] != "Trattoria" {
		t.Errorf("unexpected leading args: %v", args[:4])
	}
	if w := args[4].(sql.NullInt64); !w.Valid || w.Int64 != 10 {
		t.Errorf("watched_user_id = %+v", w)
	}
	if p := args[5].(sql.NullString); !p.Valid || p.String != "10" {
		t.Errorf("participant_id = %+v", p)
	}
	if got := args[6].(time.Time); !got.Equal(at) {
		t.Errorf("occurred_at = %v, want %v", got, at)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(args[7].(string)), &body); err != nil {
		t.Fatalf("record column is not JSON: %v", err)
	}
	if body["table_id"] != "77" {
		t.Errorf("record body = %v", body)
	}
}

func TestInsertArgs_TableUpdated(t *testing.T) {
	rec := models.NewRecord(models.TableUpdated{TableRef: models.TableRef{ID: "1", Name: "Bar"}}, "scan", time.Now())
	args, err := insertArgs(rec)
	if err != nil {
		t.Fatalf("insertArgs() failed: %v", err)
	}
	if args[4].(sql.NullInt64).Valid || args[5].(sql.NullString).Valid {
		t.Errorf("table updates carry no user, got %v %v", args[4], args[5])
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if _, err := Open(context.Background(), "not a dsn", logger); err == nil {
		t.Fatal("expected error for invalid DSN")
	}
}
