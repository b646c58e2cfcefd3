// Package processor dispatches detected changes: each event is flattened to
// a record, shaped by the transformer, handed to the publishers and finally
// rendered as a notification.
package processor

import (
	"context"
	"errors"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"tablowatch/internal/models"
)

// Publisher receives every record that survives the transformer.
type Publisher interface {
	Publish(ctx context.Context, rec *models.Record) error
}

// Notifier renders an event for humans.
type Notifier interface {
	Notify(ctx context.Context, ev models.ChangeEvent) error
}

// Stats counts what happened to one batch of events.
type Stats struct {
	Processed int
	Rejected  int
	Published int
	Notified  int
	Failures  int
}

// Processor pushes events through the transformer, publishers and notifier.
type Processor struct {
	transformer *Transformer
	publishers  []Publisher
	notifier    Notifier
	clock       clock.Clock
	logger      *logrus.Logger
}

// NewProcessor creates a processor. transformer and notifier may be nil.
func NewProcessor(transformer *Transformer, publishers []Publisher, notifier Notifier, clk clock.Clock, logger *logrus.Logger) *Processor {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Processor{
		transformer: transformer,
		publishers:  publishers,
		notifier:    notifier,
		clock:       clk,
		logger:      logger,
	}
}

// Process handles events in order. Sink and notification failures are logged
// and counted; they never stop the batch.
func (p *Processor) Process(ctx context.Context, scanID string, events []models.ChangeEvent) Stats {
	var stats Stats
	for _, ev := range events {
		stats.Processed++

		rec := models.NewRecord(ev, scanID, p.clock.Now())
		if p.transformer != nil {
			var err error
			rec, err = p.transformer.Transform(rec)
			if errors.Is(err, ErrEventRejected) {
				p.logger.Debugf("Event rejected by transformer: %s on table %s", ev.Kind(), ev.TableID())
				stats.Rejected++
				continue
			}
			if err != nil {
				p.logger.Errorf("Error transforming %s event for table %s: %v", ev.Kind(), ev.TableID(), err)
				stats.Failures++
				continue
			}
		}

		for _, pub := range p.publishers {
			if err := pub.Publish(ctx, rec); err != nil {
				p.logger.Errorf("Error publishing %s event for table %s: %v", ev.Kind(), ev.TableID(), err)
				stats.Failures++
				continue
			}
			stats.Published++
		}

		if p.notifier != nil {
			if err := p.notifier.Notify(ctx, ev); err != nil {
				p.logger.Errorf("Error notifying %s event for table %s: %v", ev.Kind(), ev.TableID(), err)
				stats.Failures++
				continue
			}
			stats.Notified++
		}
	}

	p.logger.Infof("Processed %d events (%d rejected, %d published, %d notified, %d failures)",
		stats.Processed, stats.Rejected, stats.Published, stats.Notified, stats.Failures)
	return stats
}
