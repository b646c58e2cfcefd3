package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tablowatch/internal/notifier"
	"tablowatch/internal/tablo"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the people suggested for a restaurant",
	Long: `List the people the Tablo API suggests inviting to a table at a
restaurant, with their birth year, number of participations and distance.

Example usage:
  tablowatch users --id-ristorante 315 --min-partecipazioni 5`,
	RunE: runUsers,
}

func init() {
	f := usersCmd.Flags()
	f.String("id-ristorante", "", "Restaurant ID")
	f.Int("min-partecipazioni", 0, "Minimum number of participations")
	usersCmd.MarkFlagRequired("id-ristorante")
	addAPIFlags(usersCmd)
	rootCmd.AddCommand(usersCmd)
}

type restaurantUsersLister interface {
	ListRestaurantUsers(ctx context.Context, restaurantID string) (*tablo.UsersResponse, error)
}

func runUsers(cmd *cobra.Command, args []string) error {
	applyAPIFlags(cmd, config)
	if config.API.AuthToken == "" {
		return fmt.Errorf("auth token is required (--auth-token, api.auth_token or TABLO_AUTH_TOKEN)")
	}
	restaurantID, _ := cmd.Flags().GetString("id-ristorante")
	minParticipations, _ := cmd.Flags().GetInt("min-partecipazioni")

	client, err := newTabloClient(config)
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}
	return listRestaurantUsers(cmd.Context(), client, restaurantID, minParticipations, cmd.OutOrStdout())
}

// listRestaurantUsers writes one line per person with at least
// minParticipations, followed by a count line.
func listRestaurantUsers(ctx context.Context, lister restaurantUsersLister, restaurantID string, minParticipations int, w io.Writer) error {
	if restaurantID == "" {
		return fmt.Errorf("restaurant id is required")
	}
	resp, err := lister.ListRestaurantUsers(ctx, restaurantID)
	if err != nil {
		return fmt.Errorf("failed to list users for restaurant %s: %w", restaurantID, err)
	}
	if err := tablo.CheckStatus(resp.Code, resp.Message); err != nil {
		return fmt.Errorf("failed to list users for restaurant %s: %w", restaurantID, err)
	}

	kept := tablo.WithMinParticipations(resp.People, minParticipations)
	for _, p := range kept {
		fmt.Fprintln(w, notifier.FormatRestaurantUser(p))
	}
	fmt.Fprintln(w, notifier.FormatRestaurantUsersSummary(len(resp.People), len(kept)))
	logger.Debugf("Listed %d of %d users for restaurant %s", len(kept), len(resp.People), restaurantID)
	return nil
}
