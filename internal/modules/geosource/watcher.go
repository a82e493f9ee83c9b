package geosource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PollingWatcher turns a one-shot Provider into a continuous watch. Reads are
// bounded by ReadTimeout; transient failures are tolerated until MaxFailures
// consecutive reads fail. Permission errors are fatal immediately.
type PollingWatcher struct {
	Provider    Provider
	Interval    time.Duration
	ReadTimeout time.Duration
	MaxFailures int
	Logger      zerolog.Logger
}

func (w *PollingWatcher) Watch(ctx context.Context, onFix func(Fix)) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxFailures := w.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 1
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		fix, err := w.read(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err == nil:
			failures = 0
			onFix(fix)
		case errors.Is(err, ErrPermissionDenied):
			return err
		default:
			failures++
			w.Logger.Warn().Err(err).Int("failures", failures).Msg("location read failed")
			if failures >= maxFailures {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *PollingWatcher) read(ctx context.Context) (Fix, error) {
	if w.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.ReadTimeout)
		defer cancel()
	}
	fix, err := w.Provider.Locate(ctx)
	if err == nil {
		return fix, nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrPositionUnavailable) || errors.Is(err, ErrTimeout) {
		return Fix{}, err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Fix{}, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return Fix{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
}
