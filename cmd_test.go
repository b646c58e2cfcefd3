package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"tablowatch/internal/tablo"
)

// TestSearchFlags verifies only the flags given on the command line
// override the loaded configuration.
func TestSearchFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "scan"}
	addAPIFlags(cmd)
	addSearchFlags(cmd)
	err := cmd.ParseFlags([]string{
		"--latitude", "45.4642",
		"--search-radius=8",
		"--telegram.bot.token", "bot",
		"--telegram.chat.id", "-100",
		"--auth-token", "flag-token",
	})
	if err != nil {
		t.Fatalf("ParseFlags() failed: %v", err)
	}

	cfg := DefaultConfig()
	wantLongitude := cfg.Search.Longitude
	applyAPIFlags(cmd, cfg)
	applySearchFlags(cmd, cfg)

	if cfg.Search.Latitude != "45.4642" || cfg.Search.Radius != "8" {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Search.Longitude != wantLongitude {
		t.Errorf("longitude = %q, want default %q", cfg.Search.Longitude, wantLongitude)
	}
	if !cfg.TelegramEnabled() || cfg.Telegram.ChatID != "-100" {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.API.AuthToken != "flag-token" || cfg.API.BaseURL != "https://api.tabloapp.com" {
		t.Errorf("api = %+v", cfg.API)
	}
}

// TestCommandsCarrySearchFlags verifies scan and watch accept the same overrides.
func TestCommandsCarrySearchFlags(t *testing.T) {
	for _, cmd := range []*cobra.Command{scanCmd, watchCmd} {
		for _, name := range []string{"latitude", "longitude", "search-radius", "telegram.bot.token", "telegram.chat.id", "auth-token", "base-url"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("%s is missing --%s", cmd.Name(), name)
			}
		}
	}
	for _, name := range []string{"id-ristorante", "min-partecipazioni", "auth-token", "base-url"} {
		if usersCmd.Flags().Lookup(name) == nil {
			t.Errorf("users is missing --%s", name)
		}
	}
}

type fakeUsersLister struct {
	resp *tablo.UsersResponse
	err  error
	id   string
}

func (f *fakeUsersLister) ListRestaurantUsers(_ context.Context, restaurantID string) (*tablo.UsersResponse, error) {
	f.id = restaurantID
	return f.resp, f.err
}

func TestListRestaurantUsers(t *testing.T) {
	lister := &fakeUsersLister{resp: &tablo.UsersResponse{People: []tablo.Person{
		{GivenName: "Anna", FamilyName: "Rossi", BirthDate: "1994-02-11", Distance: "0.5", Participations: "9"},
		{GivenName: "Luca", FamilyName: "Bianchi", Participations: "1"},
	}}}

	var out bytes.Buffer
	if err := listRestaurantUsers(context.Background(), lister, "315", 2, &out); err != nil {
		t.Fatalf("listRestaurantUsers() failed: %v", err)
	}
	if lister.id != "315" {
		t.Errorf("restaurant id = %q", lister.id)
	}
	got := out.String()
	if !strings.Contains(got, "Anna Rossi (1994) | part=9 | dist=0.50km") || strings.Contains(got, "Luca") {
		t.Errorf("unexpected listing:\n%s", got)
	}
	if !strings.HasSuffix(got, "Users found: 2 (filtered=1)\n") {
		t.Errorf("missing summary:\n%s", got)
	}
}

func TestListRestaurantUsers_Errors(t *testing.T) {
	var out bytes.Buffer
	if err := listRestaurantUsers(context.Background(), &fakeUsersLister{}, "", 0, &out); err == nil {
		t.Error("expected error for empty restaurant id")
	}
	failing := &fakeUsersLister{err: errors.New("API status 502")}
	if err := listRestaurantUsers(context.Background(), failing, "1", 0, &out); err == nil {
		t.Error("expected transport error")
	}
	rejected := &fakeUsersLister{resp: &tablo.UsersResponse{Code: 3, Message: "forbidden"}}
	if err := listRestaurantUsers(context.Background(), rejected, "1", 0, &out); !errors.Is(err, tablo.ErrStatus) {
		t.Errorf("error = %v, want ErrStatus", err)
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be written on error, got %q", out.String())
	}
}
