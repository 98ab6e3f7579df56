// Package wait implements the blocking wait-for-next-message primitive.
//
// The primitive is stateless: callers own their watermark and advance it
// to the created_at of each message they consume. Polling is bounded by
// the caller's timeout, checked against the monotonic clock on every
// iteration rather than trusted to a single sleep.
package wait

import (
	"context"
	"fmt"
	"time"

	"github.com/heihuo000/message-board-system/internal/models"
	"github.com/heihuo000/message-board-system/internal/store"
)

const (
	// DefaultInterval is the pause between polls.
	DefaultInterval = 2 * time.Second

	// Retry schedule for transient store errors: the delay doubles from
	// retryBase up to retryCap; after maxAttempts the error surfaces.
	retryBase   = 250 * time.Millisecond
	retryCap    = 5 * time.Second
	maxAttempts = 5
)

// Querier is the slice of the message store the waiter needs.
type Querier interface {
	Query(ctx context.Context, f store.Filter) ([]models.Message, error)
}

// Result is the outcome of one WaitForNext call. Found=false means the
// timeout elapsed with nothing new; it is not an error.
type Result struct {
	Message  *models.Message
	Found    bool
	WaitTime time.Duration
}

// Waiter polls a message store for the next message past a watermark.
type Waiter struct {
	store    Querier
	interval time.Duration
}

// New creates a Waiter with the default poll interval.
func New(s Querier) *Waiter {
	return &Waiter{store: s, interval: DefaultInterval}
}

// NewWithInterval creates a Waiter with a custom poll interval.
func NewWithInterval(s Querier, interval time.Duration) *Waiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Waiter{store: s, interval: interval}
}

// WaitForNext blocks until a message with created_at > watermark from a
// sender other than excludeSender appears, the timeout elapses, or ctx is
// cancelled. An urgent message anywhere past the watermark is returned
// ahead of older non-urgent ones; that is the only place priority beats
// created_at order. A timeout of zero checks once and returns.
func (w *Waiter) WaitForNext(ctx context.Context, excludeSender string, watermark int64, timeout time.Duration) (Result, error) {
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		msg, err := w.pollOnce(ctx, excludeSender, watermark)
		if err != nil {
			return Result{WaitTime: time.Since(start)}, err
		}
		if msg != nil {
			return Result{Message: msg, Found: true, WaitTime: time.Since(start)}, nil
		}

		if timeout == 0 || !time.Now().Before(deadline) {
			return Result{WaitTime: time.Since(start)}, nil
		}

		pause := w.interval
		if remaining := time.Until(deadline); remaining < pause {
			pause = remaining
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{WaitTime: time.Since(start)}, ctx.Err()
		case <-timer.C:
		}
	}
}

// pollOnce issues the urgent-first query pair, retrying transient store
// errors with doubling backoff before giving up.
func (w *Waiter) pollOnce(ctx context.Context, excludeSender string, watermark int64) (*models.Message, error) {
	var lastErr error
	delay := retryBase

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
			if delay > retryCap {
				delay = retryCap
			}
		}

		msg, err := w.query(ctx, excludeSender, watermark)
		if err == nil {
			return msg, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	return nil, fmt.Errorf("wait poll failed after %d attempts: %w", maxAttempts, lastErr)
}

func (w *Waiter) query(ctx context.Context, excludeSender string, watermark int64) (*models.Message, error) {
	// Urgent override first.
	urgent, err := w.store.Query(ctx, store.Filter{
		ExcludeSender: excludeSender,
		After:         watermark,
		Priority:      models.PriorityUrgent,
		Limit:         1,
	})
	if err != nil {
		return nil, err
	}
	if len(urgent) > 0 {
		return &urgent[0], nil
	}

	next, err := w.store.Query(ctx, store.Filter{
		ExcludeSender: excludeSender,
		After:         watermark,
		Limit:         1,
	})
	if err != nil {
		return nil, err
	}
	if len(next) > 0 {
		return &next[0], nil
	}
	return nil, nil
}
