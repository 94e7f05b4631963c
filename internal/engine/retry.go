package engine

import (
	"context"
	"time"
)

// WaitForBackoff sleeps for the given delay or returns early if the context is
// cancelled. Returns the context error when cancelled during the wait.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
