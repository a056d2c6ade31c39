package deviceauth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

// PollLimiter enforces RFC 8628's polling interval using the same
// Redis INCR+EXPIRE shape as a login rate limiter: each poll within
// the interval window after the first increments a counter; once a
// client polls twice within one window it is told to slow down.
type PollLimiter struct {
	rdb      *redis.Client
	interval time.Duration
}

// NewPollLimiter builds a limiter enforcing interval between polls of
// the same device_code. Defaults to PollInterval.
func NewPollLimiter(rdb *redis.Client, interval time.Duration) *PollLimiter {
	if interval <= 0 {
		interval = PollInterval
	}
	return &PollLimiter{rdb: rdb, interval: interval}
}

// Check returns an error satisfying IsSlowDown if the caller polled
// deviceCode again before the interval elapsed. A poll that passes
// the check still counts toward the window.
func (l *PollLimiter) Check(ctx context.Context, deviceCode string) error {
	key := pollRateLimitKey(deviceCode)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return coreerrors.Transport(err, "checking poll rate for device code")
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.interval).Err(); err != nil {
			return coreerrors.Transport(err, "setting poll rate window")
		}
		return nil
	}
	return &PollError{Code: ErrSlowDown}
}

// IsSlowDown reports whether err is the slow_down poll error.
func IsSlowDown(err error) bool {
	var pe *PollError
	if errors.As(err, &pe) {
		return pe.Code == ErrSlowDown
	}
	return false
}
