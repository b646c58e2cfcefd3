package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tablowatch/internal/journal"
	"tablowatch/internal/monitor"
	"tablowatch/internal/nats"
	"tablowatch/internal/notifier"
	"tablowatch/internal/processor"
	"tablowatch/internal/retrier"
	"tablowatch/internal/scanner"
	"tablowatch/internal/state"
	"tablowatch/internal/userlist"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor tables for watched users until interrupted",
	Long: `Scan the configured day window every interval, compare the result with
the saved state and notify about every change: monitored users joining or
leaving a table, other participants joining or leaving a monitored table,
and updates to a monitored table.

State is saved after every scan and once more on SIGINT/SIGTERM.`,
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.String("user-ids-file", "", "File with monitored user ids, one per line")
	f.String("state-file", "", "Path of the saved monitoring state")
	f.Duration("scan-interval", 0, "Time between scans")
	f.Int("days", 0, "Number of days to scan, starting today")
	f.Bool("reload-users", false, "Reload the user ids file when it changes")
	addAPIFlags(watchCmd)
	addSearchFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func applyWatchFlags(cmd *cobra.Command, cfg *Config) {
	f := cmd.Flags()
	if f.Changed("user-ids-file") {
		cfg.Monitor.UserIDsFile, _ = f.GetString("user-ids-file")
	}
	if f.Changed("state-file") {
		cfg.Monitor.StateFile, _ = f.GetString("state-file")
	}
	if f.Changed("scan-interval") {
		cfg.Monitor.Interval, _ = f.GetDuration("scan-interval")
	}
	if f.Changed("days") {
		cfg.Monitor.DaysToScan, _ = f.GetInt("days")
	}
	if f.Changed("reload-users") {
		cfg.Monitor.WatchUserIDs, _ = f.GetBool("reload-users")
	}
	applyAPIFlags(cmd, cfg)
	applySearchFlags(cmd, cfg)
}

func runWatch(cmd *cobra.Command, args []string) error {
	applyWatchFlags(cmd, config)
	warnings, err := config.Validate()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	logger.Info("Starting table monitor...")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newTabloClient(config)
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}
	sender, err := newSender(config)
	if err != nil {
		return fmt.Errorf("failed to create message sender: %w", err)
	}

	publishers, natsPub, closeSinks, err := openSinks(ctx, config)
	if err != nil {
		return err
	}
	defer closeSinks()

	var transformer *processor.Transformer
	if natsPub != nil {
		transformer, err = processor.NewTransformer(config.Processor, logger, natsPub.Conn())
	} else {
		transformer, err = processor.NewTransformer(config.Processor, logger, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create transformer: %w", err)
	}

	notify := notifier.New(sender, client, retrier.New(config.Retry.Notify, nil, logger), nil, logger)
	scan := scanner.New(client, retrier.New(config.Retry.Scan, nil, logger), scanner.Config{
		DaysToScan: config.Monitor.DaysToScan,
		Latitude:   config.Search.Latitude,
		Longitude:  config.Search.Longitude,
		Radius:     config.Search.Radius,
		CallPause:  config.API.CallPause,
	}, nil, logger)

	deps := monitor.Deps{
		Scanner:     scan,
		Dispatcher:  processor.NewProcessor(transformer, publishers, notify, nil, logger),
		Store:       state.NewStore(nil, logger),
		Loader:      userlist.NewLoader(logger),
		OnWatchList: notify.SetWatched,
		Logger:      logger,
	}
	if config.Monitor.WatchUserIDs {
		watcher, err := userlist.NewWatcher(config.Monitor.UserIDsFile, logger)
		if err != nil {
			logger.Warnf("User ids file will not be reloaded: %v", err)
		} else {
			defer watcher.Close()
			deps.Reload = watcher.Changed()
		}
	}

	m, err := monitor.New(monitor.Config{
		UserIDsPath: config.Monitor.UserIDsFile,
		StatePath:   config.Monitor.StateFile,
		Interval:    config.Monitor.Interval,
		DaysToScan:  config.Monitor.DaysToScan,
	}, deps)
	if err != nil {
		return err
	}

	err = m.Run(ctx)
	logger.Info("Table monitor stopped")
	return err
}

// openSinks connects the configured record publishers. The returned func
// closes them.
func openSinks(ctx context.Context, cfg *Config) ([]processor.Publisher, *nats.Publisher, func(), error) {
	var (
		publishers []processor.Publisher
		closers    []func()
		natsPub    *nats.Publisher
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.NATS.URL != "" {
		pub, err := nats.NewPublisher(cfg.NATS.URL, cfg.NATS.Subject, cfg.NATS.MaxReconnect, cfg.NATS.ReconnectWait, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		natsPub = pub
		publishers = append(publishers, pub)
		closers = append(closers, pub.Close)
	}

	if cfg.Journal.DSN != "" {
		openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		j, err := journal.Open(openCtx, cfg.Journal.DSN, logger)
		cancel()
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("failed to open event journal: %w", err)
		}
		publishers = append(publishers, j)
		closers = append(closers, func() {
			if err := j.Close(); err != nil {
				logger.Warnf("Failed to close event journal: %v", err)
			}
		})
	}

	return publishers, natsPub, closeAll, nil
}
