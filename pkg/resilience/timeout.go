package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
)

// WithTimeout runs fn under a deadline and waits at most timeout for it.
// An overrun returns an error naming the operation that wraps both
// apperrors.ErrTimeout and context.DeadlineExceeded. fn keeps running until
// it observes its context; a late failure other than the deadline is logged.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	done := make(chan error, 1)
	go func() {
		defer cancel()
		done <- fn(runCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%s: cancelled: %w", name, ctx.Err())
	}
	go func() {
		if err := <-done; err != nil && !errors.Is(err, context.DeadlineExceeded) {
			slog.Default().With("component", "timeout", "operation", name).
				Warn("abandoned operation failed", "error", err)
		}
	}()
	return fmt.Errorf("%s exceeded %v: %w: %w", name, timeout, apperrors.ErrTimeout, context.DeadlineExceeded)
}
