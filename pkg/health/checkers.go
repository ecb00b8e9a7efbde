package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck flags a goroutine leak: it fails once the number of
// live goroutines exceeds limit.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("goroutine count %d exceeds limit %d", n, limit)
		}
		return nil
	}
}

// PingCheck adapts a Ping-style connectivity probe, such as a database pool,
// into a CheckFunc.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}
