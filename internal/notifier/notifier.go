// Package notifier turns change events into human-readable messages and
// delivers them through a Sender.
package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"tablowatch/internal/models"
	"tablowatch/internal/retrier"
	"tablowatch/internal/tablo"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// TableFetcher refreshes a table before rendering.
type TableFetcher interface {
	GetTable(ctx context.Context, tableID string) (*tablo.TableResponse, error)
}

// Notifier renders change events, preferring fresh table data and falling
// back to the context captured in the event.
type Notifier struct {
	sender  Sender
	fetcher TableFetcher
	retrier *retrier.Retrier
	clock   clock.Clock
	logger  *logrus.Logger

	mu      sync.RWMutex
	watched models.WatchSet
}

// New creates a Notifier. fetcher may be nil, in which case events are
// always rendered from their own context.
func New(sender Sender, fetcher TableFetcher, r *retrier.Retrier, clk clock.Clock, logger *logrus.Logger) *Notifier {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Notifier{
		sender:  sender,
		fetcher: fetcher,
		retrier: r,
		clock:   clk,
		logger:  logger,
		watched: models.WatchSet{},
	}
}

// SetWatched replaces the watch list used to highlight watched users.
func (n *Notifier) SetWatched(ids []int64) {
	set := models.NewWatchSet(ids)
	n.mu.Lock()
	n.watched = set
	n.mu.Unlock()
}

func (n *Notifier) watchSet() models.WatchSet {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.watched
}

// Notify renders ev and sends it. It returns the send error, if any, so the
// caller can log it; it never panics on missing context.
func (n *Notifier) Notify(ctx context.Context, ev models.ChangeEvent) error {
	text, ok := n.render(ctx, ev)
	if !ok {
		return nil
	}
	if err := n.sender.Send(ctx, text); err != nil {
		return fmt.Errorf("failed to send %s notification for table %s: %w", ev.Kind(), ev.TableID(), err)
	}
	n.logger.Infof("Sent %s notification for table %s", ev.Kind(), ev.TableID())
	return nil
}

func (n *Notifier) render(ctx context.Context, ev models.ChangeEvent) (string, bool) {
	now := n.clock.Now()

	switch e := ev.(type) {
	case models.UserJoined:
		table := e.Table
		user := e.Participant
		if fresh, ok := n.refresh(ctx, e.TableID()); ok {
			if p, found := fresh.Participant(e.Participant.UserID); found {
				table, user = fresh, p
			} else {
				n.logger.Warnf("Monitored user %d not in fresh details for table %s, using cached details", e.WatchedUserID, e.TableID())
			}
		}
		return formatUserJoined(e, table, user, now), true

	case models.UserLeft:
		return formatUserLeft(e, now), true

	case models.ParticipantJoined:
		table := n.freshOr(ctx, e.TableID(), e.Table)
		return formatParticipantChange(true, e.TableRef, e.Participant, table, n.watchSet(), now), true

	case models.ParticipantLeft:
		table := n.freshOr(ctx, e.TableID(), e.Table)
		return formatParticipantChange(false, e.TableRef, e.Participant, table, n.watchSet(), now), true

	case models.TableUpdated:
		table := n.freshOr(ctx, e.TableID(), e.Current)
		return formatTableUpdated(e, table, n.watchSet(), now), true

	default:
		n.logger.Warnf("Unknown change type: %s", ev.Kind())
		return "", false
	}
}

func (n *Notifier) freshOr(ctx context.Context, tableID string, cached models.TableState) models.TableState {
	if fresh, ok := n.refresh(ctx, tableID); ok {
		return fresh
	}
	return cached
}

// refresh fetches the current table. Failures and non-success codes are
// logged and reported as !ok.
func (n *Notifier) refresh(ctx context.Context, tableID string) (models.TableState, bool) {
	if n.fetcher == nil {
		return models.TableState{}, false
	}

	resp, err := retrier.Do(ctx, n.retrier, "refresh table "+tableID, func(ctx context.Context) (*tablo.TableResponse, error) {
		return n.fetcher.GetTable(ctx, tableID)
	})
	if err != nil {
		n.logger.Warnf("Could not refresh table %s for notification, using cached details: %v", tableID, err)
		return models.TableState{}, false
	}
	if !resp.OK() {
		n.logger.Warnf("Could not get fresh details for table %s (code: %d), using cached details", tableID, resp.Code)
		return models.TableState{}, false
	}
	return resp.Table.State(tableID, n.clock.Now()), true
}
