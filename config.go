package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tablowatch/internal/processor"
	"tablowatch/internal/retrier"
)

type Config struct {
	API       APIConfig        `yaml:"api"`
	Search    SearchConfig     `yaml:"search"`
	Monitor   MonitorConfig    `yaml:"monitor"`
	Retry     RetryConfig      `yaml:"retry"`
	Telegram  TelegramConfig   `yaml:"telegram"`
	NATS      NATSConfig       `yaml:"nats"`
	Journal   JournalConfig    `yaml:"journal"`
	Processor processor.Config `yaml:"processor"`
	Logging   LoggingConfig    `yaml:"logging"`
	Survey    SurveyConfig     `yaml:"survey"`
}

type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	AuthToken string        `yaml:"auth_token"`
	Timeout   time.Duration `yaml:"timeout"`
	CallPause time.Duration `yaml:"call_pause"`
}

type SearchConfig struct {
	Latitude  string `yaml:"latitude"`
	Longitude string `yaml:"longitude"`
	Radius    string `yaml:"radius"`
}

type MonitorConfig struct {
	UserIDsFile  string        `yaml:"user_ids_file"`
	StateFile    string        `yaml:"state_file"`
	Interval     time.Duration `yaml:"interval"`
	DaysToScan   int           `yaml:"days_to_scan"`
	WatchUserIDs bool          `yaml:"watch_user_ids"`
}

type RetryConfig struct {
	Scan   retrier.Policy `yaml:"scan"`
	Notify retrier.Policy `yaml:"notify"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	Subject       string        `yaml:"subject"`
	MaxReconnect  int           `yaml:"max_reconnect"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

type JournalConfig struct {
	DSN string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type SurveyConfig struct {
	Days            int     `yaml:"days"`
	MinParticipants int     `yaml:"min_participants"`
	MaxDistanceKm   float64 `yaml:"max_distance_km"`
	AgeMin          string  `yaml:"age_min"`
	AgeMax          string  `yaml:"age_max"`
}

// minSafeInterval is the scan interval below which the remote API may start
// rate limiting.
const minSafeInterval = 10 * time.Second

// DefaultConfig returns the settings used when nothing else is given.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "https://api.tabloapp.com",
			Timeout:   30 * time.Second,
			CallPause: 200 * time.Millisecond,
		},
		Search: SearchConfig{
			Latitude:  "45.408153",
			Longitude: "11.875273",
			Radius:    "4",
		},
		Monitor: MonitorConfig{
			UserIDsFile: "monitored-users.txt",
			StateFile:   "monitoring-state.json",
			Interval:    60 * time.Second,
			DaysToScan:  3,
		},
		Retry: RetryConfig{
			Scan:   retrier.ScanPolicy(),
			Notify: retrier.NotifyPolicy(),
		},
		NATS: NATSConfig{
			Subject:       "tablowatch.changes",
			MaxReconnect:  10,
			ReconnectWait: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Survey: SurveyConfig{
			Days:            3,
			MinParticipants: 2,
			MaxDistanceKm:   10,
			AgeMin:          "18",
			AgeMax:          "37",
		},
	}
}

// LoadConfig reads path over the defaults, then applies environment
// overrides. A missing file is only an error when required is set.
func LoadConfig(path string, required bool) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	config.Retry.Scan = config.Retry.Scan.WithDefaults(retrier.ScanPolicy())
	config.Retry.Notify = config.Retry.Notify.WithDefaults(retrier.NotifyPolicy())
	if config.NATS.ReconnectWait == 0 {
		config.NATS.ReconnectWait = 2 * time.Second
	}

	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"API_BASE_URL":       &c.API.BaseURL,
		"TABLO_AUTH_TOKEN":   &c.API.AuthToken,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"USER_IDS_FILE_PATH": &c.Monitor.UserIDsFile,
		"STATE_FILE_PATH":    &c.Monitor.StateFile,
		"SEARCH_LATITUDE":    &c.Search.Latitude,
		"SEARCH_LONGITUDE":   &c.Search.Longitude,
		"SEARCH_RADIUS":      &c.Search.Radius,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("DAYS_TO_SCAN"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DAYS_TO_SCAN %q: %w", v, err)
		}
		c.Monitor.DaysToScan = n
		c.Survey.Days = n
	}
	if v, ok := lookup("MIN_PARTICIPANTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MIN_PARTICIPANTS %q: %w", v, err)
		}
		c.Survey.MinParticipants = n
	}
	if v, ok := lookup("MONITORING_INTERVAL_SECONDS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MONITORING_INTERVAL_SECONDS %q: %w", v, err)
		}
		c.Monitor.Interval = time.Duration(n) * time.Second
	}
	if v, ok := lookup("MAX_DISTANCE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_DISTANCE %q: %w", v, err)
		}
		c.Survey.MaxDistanceKm = f
	}
	return nil
}

// Validate checks the settings needed to talk to the API. It returns
// warnings for settings that work but are probably unintended.
func (c *Config) Validate() (warnings []string, err error) {
	if c.API.AuthToken == "" {
		return nil, fmt.Errorf("auth token is required (api.auth_token or TABLO_AUTH_TOKEN)")
	}
	if c.API.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required (api.base_url or API_BASE_URL)")
	}
	if c.Monitor.DaysToScan < 1 {
		return nil, fmt.Errorf("days to scan must be at least 1, got %d", c.Monitor.DaysToScan)
	}
	if c.Monitor.Interval <= 0 {
		return nil, fmt.Errorf("monitoring interval must be positive, got %s", c.Monitor.Interval)
	}
	if err := processor.ValidateConfig(c.Processor); err != nil {
		return nil, fmt.Errorf("invalid processor config: %w", err)
	}

	if c.Monitor.Interval < minSafeInterval {
		warnings = append(warnings, fmt.Sprintf("monitoring interval %s is below %s and may trigger API rate limits", c.Monitor.Interval, minSafeInterval))
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		warnings = append(warnings, "telegram needs both bot_token and chat_id; falling back to console output")
	}
	return warnings, nil
}

// TelegramEnabled reports whether messages go to Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
