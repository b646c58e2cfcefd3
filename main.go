package main

import (
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"tablowatch/internal/notifier"
	"tablowatch/internal/tablo"
)

var (
	configPath string
	config     *Config
	logger     = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "tablowatch",
	Short: "Watch Tablo tables for monitored users",
	Long: `tablowatch polls the Tablo API for tables in the configured area and
reports when monitored users join or leave a table, or when a table they are
part of changes.

Configuration is read from a YAML file (default config.yaml), then from the
environment (TABLO_AUTH_TOKEN, TELEGRAM_BOT_TOKEN, DAYS_TO_SCAN, ...), then
from command-line flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = LoadConfig(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		setupLogger(config.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
}

func setupLogger(cfg LoggingConfig) {
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	} else if cfg.Level != "" {
		logger.Warnf("Unknown log level %q, using info", cfg.Level)
	}

	if cfg.File != "" {
		logger.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}))
	}
}

func newTabloClient(cfg *Config) (*tablo.Client, error) {
	return tablo.NewClient(cfg.API.BaseURL, cfg.API.AuthToken, &http.Client{Timeout: cfg.API.Timeout}, logger)
}

func newSender(cfg *Config) (notifier.Sender, error) {
	if !cfg.TelegramEnabled() {
		logger.Info("Telegram not configured, notifications go to the console")
		return notifier.NewConsoleSender(nil), nil
	}
	sender, err := notifier.NewTelegramSender(cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, nil, logger)
	if err != nil {
		return nil, err
	}
	logger.Infof("Sending notifications to Telegram chat %s", cfg.Telegram.ChatID)
	return sender, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
