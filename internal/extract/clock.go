package extract

import (
	"context"
	"time"
)

// Clock abstracts wall-clock waits so the pager state machine can be tested
// without real delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// WallClock is the real-time Clock used outside tests.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

// Sleep waits for the duration or until the context is done, whichever
// comes first.
func (WallClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
