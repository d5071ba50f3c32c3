package common

import (
	"context"
	"time"
)

// BackoffSchedule describes the exponential backoff used between reward
// dispatch retries. Delays grow by Multiplier per attempt and are capped at Max.
type BackoffSchedule struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff returns the schedule used by the completion workflow:
// 200ms, 400ms, 800ms, ... capped at 5s.
func DefaultBackoff() BackoffSchedule {
	return BackoffSchedule{
		Initial:    200 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2.0,
	}
}

// Delay returns the wait before retry number attempt (0-based).
// Delay(0) is the wait after the first failure.
func (b BackoffSchedule) Delay(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < attempt; i++ {
		d *= b.Multiplier
		if time.Duration(d) >= b.Max {
			return b.Max
		}
	}
	if time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

// Sleep blocks for d or until ctx is done, whichever comes first.
// Returns ctx.Err() when interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
