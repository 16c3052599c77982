package client

import (
	"context"
	"errors"
	"math/rand"
	"time"

	v1 "github.com/sha03112000/autohead/pkg/api/v1"
	"github.com/sha03112000/autohead/pkg/logger"

	"go.uber.org/zap"
)

const maxBackoff = 30 * time.Second

// WatchDashboard polls the dashboard every interval and hands each snapshot
// to fn. Failed polls back off exponentially with jitter. It returns when
// ctx is done or the session expires.
func (c *AdminClient) WatchDashboard(ctx context.Context, interval time.Duration, fn func(*v1.Dashboard)) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	backoff := time.Second

	for {
		d, err := c.Dashboard(ctx)
		wait := interval
		switch {
		case err == nil:
			backoff = time.Second
			fn(d)
		case errors.Is(err, ErrSessionExpired):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			jitter := time.Duration(rand.Int63n(int64(backoff/2) + 1))
			logger.Warn("dashboard poll failed", zap.Error(err), zap.Duration("retry_in", backoff+jitter))
			wait = backoff + jitter
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
