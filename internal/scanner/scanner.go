// Package scanner builds monitoring snapshots from the remote table listing.
package scanner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"tablowatch/internal/models"
	"tablowatch/internal/retrier"
	"tablowatch/internal/tablo"
	"tablowatch/internal/tracker"
)

// Fetcher is the remote side of a scan.
type Fetcher interface {
	ListTables(ctx context.Context, filters tablo.ListFilters) (*tablo.ListResponse, error)
	GetTable(ctx context.Context, tableID string) (*tablo.TableResponse, error)
}

// Config controls the scan window and search area.
type Config struct {
	DaysToScan   int
	Latitude     string
	Longitude    string
	Radius       string
	ItemsPerPage int
	// CallPause is waited after every remote call.
	CallPause time.Duration
}

// Scanner runs scan cycles against a Fetcher.
type Scanner struct {
	fetcher Fetcher
	retrier *retrier.Retrier
	config  Config
	clock   clock.Clock
	logger  *logrus.Logger
}

// New creates a Scanner. A nil clock means the wall clock.
func New(fetcher Fetcher, r *retrier.Retrier, cfg Config, clk clock.Clock, logger *logrus.Logger) *Scanner {
	if clk == nil {
		clk = clock.WallClock
	}
	if cfg.ItemsPerPage <= 0 {
		cfg.ItemsPerPage = 50
	}
	return &Scanner{
		fetcher: fetcher,
		retrier: r,
		config:  cfg,
		clock:   clk,
		logger:  logger,
	}
}

// Scan builds a snapshot of every table in the day window that contains a
// watched user. A failed day listing fails the whole scan. A failed detail
// fetch keeps that table's entry from previous, if any.
func (s *Scanner) Scan(ctx context.Context, watched []int64, previous models.Snapshot) (models.Snapshot, error) {
	set := models.NewWatchSet(watched)
	snap := models.NewSnapshot(s.clock.Now())
	snap.WatchedUsers = append(snap.WatchedUsers, watched...)

	for offset := 0; offset < s.config.DaysToScan; offset++ {
		if err := ctx.Err(); err != nil {
			return models.Snapshot{}, err
		}

		day := s.clock.Now().AddDate(0, 0, offset)
		date := day.Format("2006-01-02")
		s.logger.Infof("Scanning tables for %s", date)

		list, err := retrier.Do(ctx, s.retrier, "list tables for "+date, func(ctx context.Context) (*tablo.ListResponse, error) {
			resp, err := s.fetcher.ListTables(ctx, s.filters(day))
			if err != nil {
				return nil, err
			}
			if err := tablo.CheckStatus(resp.Code, resp.Message); err != nil {
				return nil, err
			}
			return resp, nil
		})
		s.pause()
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("failed to list tables for %s: %w", date, err)
		}

		candidates := make([]tablo.TableSummary, 0)
		for _, summary := range list.Tables {
			if tracker.ContainsWatched(summary.ParticipantIDs, set) {
				candidates = append(candidates, summary)
			}
		}
		s.logger.Infof("Found %d tables with monitored users out of %d for %s", len(candidates), len(list.Tables), date)

		for _, summary := range candidates {
			if _, done := snap.Tables[summary.TableID]; done {
				continue
			}
			s.scanTable(ctx, summary, watched, previous, &snap)
		}
	}

	snap.LastScanTime = s.clock.Now()
	return snap, nil
}

func (s *Scanner) scanTable(ctx context.Context, summary tablo.TableSummary, watched []int64, previous models.Snapshot, snap *models.Snapshot) {
	resp, err := retrier.Do(ctx, s.retrier, "get table "+summary.TableID, func(ctx context.Context) (*tablo.TableResponse, error) {
		resp, err := s.fetcher.GetTable(ctx, summary.TableID)
		if err != nil {
			return nil, err
		}
		if err := tablo.CheckStatus(resp.Code, resp.Message); err != nil {
			return nil, err
		}
		if resp.Table == nil {
			return nil, fmt.Errorf("table %s missing from response", summary.TableID)
		}
		return resp, nil
	})
	s.pause()
	if err != nil {
		if prev, ok := previous.Tables[summary.TableID]; ok {
			s.logger.Warnf("Could not get details for table %s, keeping previous state: %v", summary.TableID, err)
			snap.Tables[summary.TableID] = prev
		} else {
			s.logger.Warnf("Could not get details for table %s: %v", summary.TableID, err)
		}
		return
	}

	state := resp.Table.State(summary.TableID, s.clock.Now())
	if state.VenueName == "" {
		state.VenueName = summary.VenueName
	}
	if state.VenueName == "" {
		state.VenueName = "Table " + summary.TableID
	}

	found := tracker.FindWatchedUsers(state.Participants, watched)
	if len(found) == 0 {
		s.logger.Debugf("Table %s no longer contains monitored users", summary.TableID)
		return
	}
	s.logger.Infof("Found %d monitored users in table %s (%s)", len(found), summary.TableID, state.VenueName)
	snap.Tables[summary.TableID] = state
}

func (s *Scanner) filters(day time.Time) tablo.ListFilters {
	return tablo.ListFilters{
		Dates:       tablo.DateFilter(day),
		Radius:      s.config.Radius,
		Latitude:    s.config.Latitude,
		Longitude:   s.config.Longitude,
		Map:         "0",
		Page:        "0",
		OrderType:   "filtering",
		ItemPerPage: strconv.Itoa(s.config.ItemsPerPage),
	}
}

func (s *Scanner) pause() {
	if s.config.CallPause > 0 {
		<-s.clock.After(s.config.CallPause)
	}
}
