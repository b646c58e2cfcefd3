package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tablowatch/internal/notifier"
	"tablowatch/internal/retrier"
	"tablowatch/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List upcoming tables and report the gender-balanced ones",
	Long: `Scan the next N days (starting tomorrow) for tables in the search area
with enough participants and within the distance limit. Every matching table
is logged; a message is sent for each gender-balanced table, followed by a
summary.

Example usage:
  tablowatch scan --days 5 --min-participants 4 --max-distance 3
  tablowatch scan --latitude 45.4642 --longitude 9.19 --search-radius 8`,
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.Int("days", 0, "Number of days to scan, starting tomorrow")
	f.Int("min-participants", 0, "Minimum number of participants")
	f.Float64("max-distance", 0, "Maximum distance in km")
	addAPIFlags(scanCmd)
	addSearchFlags(scanCmd)
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	if f.Changed("days") {
		config.Survey.Days, _ = f.GetInt("days")
	}
	if f.Changed("min-participants") {
		config.Survey.MinParticipants, _ = f.GetInt("min-participants")
	}
	if f.Changed("max-distance") {
		config.Survey.MaxDistanceKm, _ = f.GetFloat64("max-distance")
	}
	applyAPIFlags(cmd, config)
	applySearchFlags(cmd, config)
	if config.API.AuthToken == "" {
		return fmt.Errorf("auth token is required (--auth-token, api.auth_token or TABLO_AUTH_TOKEN)")
	}
	if config.Survey.Days < 1 {
		return fmt.Errorf("days must be at least 1, got %d", config.Survey.Days)
	}

	client, err := newTabloClient(config)
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}
	sender, err := newSender(config)
	if err != nil {
		return fmt.Errorf("failed to create message sender: %w", err)
	}

	s := scanner.New(client, retrier.New(config.Retry.Scan, nil, logger), scanner.Config{
		Latitude:  config.Search.Latitude,
		Longitude: config.Search.Longitude,
		Radius:    config.Search.Radius,
		CallPause: config.API.CallPause,
	}, nil, logger)

	logger.Infof("Scanning tables for the next %d days", config.Survey.Days)
	result, err := s.Survey(cmd.Context(), scanner.SurveyConfig{
		Days:            config.Survey.Days,
		MinParticipants: config.Survey.MinParticipants,
		MaxDistanceKm:   config.Survey.MaxDistanceKm,
		AgeMin:          config.Survey.AgeMin,
		AgeMax:          config.Survey.AgeMax,
	})
	if err != nil {
		return fmt.Errorf("survey failed: %w", err)
	}

	for _, t := range result.Tables {
		logger.Infof("%s: %s (%.1fkm, %d participants, balanced: %t)",
			t.Date, t.Table.VenueName, t.DistanceKm, len(t.Table.Participants), t.Balanced)
		if !t.Balanced {
			continue
		}
		if err := sender.Send(cmd.Context(), notifier.FormatSurveyTable(t.Table, t.Date, t.DistanceKm)); err != nil {
			logger.Errorf("Failed to send table %s: %v", t.Table.TableID, err)
		}
	}

	summary := notifier.FormatSurveySummary(result.Total, result.Balanced, config.Survey.Days)
	if err := sender.Send(cmd.Context(), summary); err != nil {
		logger.Errorf("Failed to send summary: %v", err)
	}
	logger.Infof("Survey complete: %d tables, %d kept, %d balanced", result.Total, len(result.Tables), result.Balanced)
	return nil
}
