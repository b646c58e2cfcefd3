// Package retrier wraps remote calls in a bounded exponential backoff.
package retrier

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/sirupsen/logrus"
)

// Policy configures one class of retried calls.
type Policy struct {
	Attempts   int           `yaml:"attempts"`
	Delay      time.Duration `yaml:"delay"`
	Multiplier float64       `yaml:"multiplier"`
}

// ScanPolicy is used for calls made while building a snapshot.
func ScanPolicy() Policy {
	return Policy{Attempts: 3, Delay: time.Second, Multiplier: 2}
}

// NotifyPolicy is used for table refreshes made while notifying.
func NotifyPolicy() Policy {
	return Policy{Attempts: 2, Delay: 500 * time.Millisecond, Multiplier: 2}
}

// WithDefaults fills zero fields from def.
func (p Policy) WithDefaults(def Policy) Policy {
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Delay <= 0 {
		p.Delay = def.Delay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// backoff returns the wait before attempt+1 given the wait before attempt.
func (p Policy) backoff(delay time.Duration, attempt int) time.Duration {
	if attempt == 1 {
		return delay
	}
	return time.Duration(float64(delay) * p.Multiplier)
}

// Retrier runs calls under a Policy.
type Retrier struct {
	policy Policy
	clock  clock.Clock
	logger *logrus.Logger
}

// New creates a Retrier. A nil clock means the wall clock.
func New(policy Policy, clk clock.Clock, logger *logrus.Logger) *Retrier {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Retrier{
		policy: policy.WithDefaults(ScanPolicy()),
		clock:  clk,
		logger: logger,
	}
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do calls fn until it succeeds or the attempts are exhausted. The error of
// the final attempt is returned unwrapped. Cancelling ctx stops waiting
// between attempts but does not interrupt a call in flight.
func Do[T any](ctx context.Context, r *Retrier, operation string, fn func(context.Context) (T, error)) (T, error) {
	var (
		result   T
		lastErr  error
		attempts int
	)

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempts++
			v, err := fn(ctx)
			if err != nil {
				lastErr = err
				return err
			}
			result = v
			return nil
		},
		NotifyFunc: func(err error, attempt int) {
			if attempt < r.policy.Attempts {
				r.logger.Warnf("%s failed (attempt %d/%d), retrying: %v", operation, attempt, r.policy.Attempts, err)
			}
		},
		Attempts:    r.policy.Attempts,
		Delay:       r.policy.Delay,
		BackoffFunc: r.policy.backoff,
		Clock:       r.clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return result, nil
	}

	var zero T
	if lastErr == nil {
		return zero, fmt.Errorf("%s: %w", operation, err)
	}
	r.logger.Errorf("%s failed after %d attempts: %v", operation, attempts, lastErr)
	return zero, lastErr
}
