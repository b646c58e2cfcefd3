package main

import "github.com/spf13/cobra"

// addAPIFlags registers the API connection overrides.
func addAPIFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("auth-token", "", "Tablo API auth token")
	f.String("base-url", "", "Tablo API base URL")
}

func applyAPIFlags(cmd *cobra.Command, cfg *Config) {
	f := cmd.Flags()
	if f.Changed("auth-token") {
		cfg.API.AuthToken, _ = f.GetString("auth-token")
	}
	if f.Changed("base-url") {
		cfg.API.BaseURL, _ = f.GetString("base-url")
	}
}

// addSearchFlags registers the search area and Telegram overrides shared by
// scan and watch.
func addSearchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("latitude", "", "Search latitude")
	f.String("longitude", "", "Search longitude")
	f.String("search-radius", "", "Search radius in km")
	f.String("telegram.bot.token", "", "Telegram bot token")
	f.String("telegram.chat.id", "", "Telegram chat id")
}

func applySearchFlags(cmd *cobra.Command, cfg *Config) {
	f := cmd.Flags()
	if f.Changed("latitude") {
		cfg.Search.Latitude, _ = f.GetString("latitude")
	}
	if f.Changed("longitude") {
		cfg.Search.Longitude, _ = f.GetString("longitude")
	}
	if f.Changed("search-radius") {
		cfg.Search.Radius, _ = f.GetString("search-radius")
	}
	if f.Changed("telegram.bot.token") {
		cfg.Telegram.BotToken, _ = f.GetString("telegram.bot.token")
	}
	if f.Changed("telegram.chat.id") {
		cfg.Telegram.ChatID, _ = f.GetString("telegram.chat.id")
	}
}
