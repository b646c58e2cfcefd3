package state

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tablowatch/internal/models"
)

func newTestStore() *Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewStore(nil, logger)
}

func sampleSnapshot() models.Snapshot {
	at := time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)
	return models.Snapshot{
		Tables: map[string]models.TableState{
			"4411": {
				TableID:   "4411",
				VenueName: "Pizzeria Al Santo",
				Participants: []models.Participant{
					{UserID: "12", GivenName: "Giulia", FamilyName: "Bianchi", BirthDate: "1994-07-21", IsConfirmed: true},
					{UserID: "98", GivenName: "Paolo", FamilyName: "Verdi", IsMale: true, BirthDate: "1991-02-03"},
				},
				LastUpdated: at,
			},
		},
		WatchedUsers: []int64{12, 40},
		LastScanTime: at,
	}
}

// TestLoad_MissingFile verifies a missing file yields an empty snapshot.
func TestLoad_MissingFile(t *testing.T) {
	snap := newTestStore().Load(filepath.Join(t.TempDir(), "nope.json"))
	if snap.Tables == nil || len(snap.Tables) != 0 {
		t.Errorf("expected empty tables, got %+v", snap.Tables)
	}
	if len(snap.WatchedUsers) != 0 {
		t.Errorf("expected no watched users, got %v", snap.WatchedUsers)
	}
	if snap.LastScanTime.IsZero() {
		t.Error("expected last scan time to be stamped")
	}
}

// TestLoad_Corrupt verifies unparsable or structurally invalid files degrade to empty.
func TestLoad_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{tables: oops"},
		{"missing tables", `{"monitoredUsers": [], "lastScanTime": "2026-01-01T00:00:00Z"}`},
		{"null tables", `{"tables": null, "monitoredUsers": [], "lastScanTime": "2026-01-01T00:00:00Z"}`},
		{"users not a list", `{"tables": {}, "monitoredUsers": 5, "lastScanTime": "2026-01-01T00:00:00Z"}`},
		{"missing users", `{"tables": {}, "lastScanTime": "2026-01-01T00:00:00Z"}`},
		{"missing scan time", `{"tables": {}, "monitoredUsers": [1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}
			snap := newTestStore().Load(path)
			if len(snap.Tables) != 0 || len(snap.WatchedUsers) != 0 {
				t.Errorf("expected empty snapshot, got %+v", snap)
			}
		})
	}
}

// TestSaveLoad_RoundTrip verifies a saved snapshot loads back equal.
func TestSaveLoad_RoundTrip(t *testing.T) {
	store := newTestStore()
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	want := sampleSnapshot()

	if err := store.Save(want, path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file should not remain, stat err = %v", err)
	}

	got := store.Load(path)
	if !reflect.DeepEqual(got.Tables, want.Tables) {
		t.Errorf("tables = %+v, want %+v", got.Tables, want.Tables)
	}
	if !reflect.DeepEqual(got.WatchedUsers, want.WatchedUsers) {
		t.Errorf("watched = %v, want %v", got.WatchedUsers, want.WatchedUsers)
	}
	if !got.LastScanTime.Equal(want.LastScanTime) {
		t.Errorf("last scan = %v, want %v", got.LastScanTime, want.LastScanTime)
	}
}

// TestSave_WireFormat verifies the persisted key names.
func TestSave_WireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	snap := sampleSnapshot()
	snap.WatchedUsers = nil

	if err := newTestStore().Save(snap, path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	for _, key := range []string{`"tables"`, `"monitoredUsers": []`, `"lastScanTime"`, `"venueName"`, `"isConfirmed"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("state file missing %s:\n%s", key, data)
		}
	}
}

// TestSave_Invalid verifies structural validation fails hard.
func TestSave_Invalid(t *testing.T) {
	store := newTestStore()
	dir := t.TempDir()

	noTables := sampleSnapshot()
	noTables.Tables = nil

	noTime := sampleSnapshot()
	noTime.LastScanTime = time.Time{}

	badTable := sampleSnapshot()
	badTable.Tables["4411"] = models.TableState{TableID: "4411", Participants: []models.Participant{}}

	for name, snap := range map[string]models.Snapshot{"no tables": noTables, "no time": noTime, "bad table": badTable} {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".json")
		if err := store.Save(snap, path); err == nil {
			t.Errorf("%s: expected Save() to fail", name)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s: nothing should be written", name)
		}
	}
}

// TestSave_BackupOnFailure verifies a failed write leaves a timestamped backup.
func TestSave_BackupOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	// A non-empty directory at the target path makes the final rename fail.
	if err := os.MkdirAll(filepath.Join(path, "occupied"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	if err := newTestStore().Save(sampleSnapshot(), path); err == nil {
		t.Fatal("expected Save() to fail")
	}

	matches, err := filepath.Glob(path + ".backup.*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one backup file, got %v", matches)
	}
	restored := newTestStore().Load(matches[0])
	if len(restored.Tables) != 1 {
		t.Errorf("backup should hold the snapshot, got %+v", restored)
	}
}
