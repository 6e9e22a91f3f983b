package time

import (
	"context"
	"time"
)

// source of time for the mutex protocol
// every suspension point of the protocol goes through Sleep so tests can drive it
type Clock interface {
	Now() time.Time
	// blocks for d or until ctx is done, whichever comes first
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// wall clock backed by the time package
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
