// Package monitor runs scan cycles until cancelled and owns the snapshot held
// between them.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"tablowatch/internal/detector"
	"tablowatch/internal/models"
	"tablowatch/internal/processor"
)

// ErrInvalidConfig is returned by New for unusable settings.
var ErrInvalidConfig = errors.New("invalid monitor configuration")

// Phase is the lifecycle position of a Monitor.
type Phase int32

const (
	Initializing Phase = iota
	Running
	ShuttingDown
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting down"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Scanner builds the next snapshot.
type Scanner interface {
	Scan(ctx context.Context, watched []int64, previous models.Snapshot) (models.Snapshot, error)
}

// Dispatcher handles the events of one cycle.
type Dispatcher interface {
	Process(ctx context.Context, scanID string, events []models.ChangeEvent) processor.Stats
}

// SnapshotStore persists snapshots.
type SnapshotStore interface {
	Load(path string) models.Snapshot
	Save(snap models.Snapshot, path string) error
}

// WatchListLoader reads the watch list.
type WatchListLoader interface {
	Load(path string) []int64
}

// Config holds the loop settings.
type Config struct {
	UserIDsPath string
	StatePath   string
	Interval    time.Duration
	DaysToScan  int
}

// Deps are the collaborators of a Monitor. Reload and OnWatchList are
// optional.
type Deps struct {
	Scanner    Scanner
	Dispatcher Dispatcher
	Store      SnapshotStore
	Loader     WatchListLoader
	// Reload signals that the watch list file changed.
	Reload <-chan struct{}
	// OnWatchList is called every time the watch list is (re)loaded.
	OnWatchList func(ids []int64)
	Clock       clock.Clock
	Logger      *logrus.Logger
}

// Monitor is the long-running scan loop.
type Monitor struct {
	cfg    Config
	deps   Deps
	clock  clock.Clock
	logger *logrus.Logger
	phase  atomic.Int32

	watched  []int64
	previous models.Snapshot
}

// New validates cfg and builds a Monitor.
func New(cfg Config, deps Deps) (*Monitor, error) {
	if cfg.DaysToScan < 1 {
		return nil, fmt.Errorf("%w: days to scan must be at least 1, got %d", ErrInvalidConfig, cfg.DaysToScan)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, cfg.Interval)
	}
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("%w: state file path is required", ErrInvalidConfig)
	}
	if deps.Scanner == nil || deps.Dispatcher == nil || deps.Store == nil || deps.Loader == nil {
		return nil, fmt.Errorf("%w: scanner, dispatcher, store and loader are required", ErrInvalidConfig)
	}

	clk := deps.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Monitor{cfg: cfg, deps: deps, clock: clk, logger: logger}, nil
}

// Phase reports the current lifecycle phase.
func (m *Monitor) Phase() Phase {
	return Phase(m.phase.Load())
}

func (m *Monitor) setPhase(p Phase) {
	m.phase.Store(int32(p))
	m.logger.Debugf("Monitor %s", p)
}

// Run loads the watch list and previous snapshot, then scans every interval
// until ctx is cancelled. A failed cycle is logged and the loop continues. On
// exit the held snapshot is saved once more; that save error is returned.
func (m *Monitor) Run(ctx context.Context) error {
	m.setPhase(Initializing)
	m.loadWatchList()
	m.previous = m.deps.Store.Load(m.cfg.StatePath)
	m.logger.Infof("Monitoring %d users across %d days, scanning every %s (%d tables in previous state)",
		len(m.watched), m.cfg.DaysToScan, m.cfg.Interval, len(m.previous.Tables))

	m.setPhase(Running)
	for ctx.Err() == nil {
		if err := m.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			m.logger.Errorf("Scan cycle failed: %v", err)
		}

		select {
		case <-ctx.Done():
		case <-m.clock.After(m.cfg.Interval):
		}
	}

	m.setPhase(ShuttingDown)
	m.logger.Info("Shutting down monitor, saving state")
	err := m.deps.Store.Save(m.previous, m.cfg.StatePath)
	if err != nil {
		m.logger.Errorf("Failed to save state on shutdown: %v", err)
	}
	m.setPhase(Stopped)
	return err
}

// RunCycle performs one scan, diff, dispatch and save. The held snapshot is
// replaced only when the save succeeds.
func (m *Monitor) RunCycle(ctx context.Context) error {
	scanID := uuid.NewString()
	log := m.logger.WithField("scan_id", scanID)
	started := m.clock.Now()

	m.maybeReload(log)
	if len(m.watched) == 0 {
		log.Warn("No monitored users configured")
	}

	current, err := m.deps.Scanner.Scan(ctx, m.watched, m.previous)
	if err != nil {
		return fmt.Errorf("failed to scan tables: %w", err)
	}

	// Once a scan has been taken the cycle runs to completion: its changes are
	// dispatched and saved even if shutdown was requested meanwhile.
	detached := context.WithoutCancel(ctx)

	events := detector.Compare(m.previous, current)
	if len(events) > 0 {
		log.Infof("Detected %d changes", len(events))
		m.deps.Dispatcher.Process(detached, scanID, events)
	} else {
		log.Info("No changes detected")
	}

	if err := m.deps.Store.Save(current, m.cfg.StatePath); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	m.previous = current

	log.Infof("Scan completed in %s: %d tables with monitored users", m.clock.Now().Sub(started).Round(time.Millisecond), len(current.Tables))
	return nil
}

// Previous returns the snapshot currently held.
func (m *Monitor) Previous() models.Snapshot {
	return m.previous
}

func (m *Monitor) maybeReload(log *logrus.Entry) {
	if m.deps.Reload == nil {
		return
	}
	select {
	case <-m.deps.Reload:
		before := len(m.watched)
		m.loadWatchList()
		log.Infof("Reloaded watch list: %d users (was %d)", len(m.watched), before)
	default:
	}
}

func (m *Monitor) loadWatchList() {
	m.watched = m.deps.Loader.Load(m.cfg.UserIDsPath)
	if m.deps.OnWatchList != nil {
		m.deps.OnWatchList(m.watched)
	}
}
