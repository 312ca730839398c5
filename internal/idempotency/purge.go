package idempotency

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Purger is implemented by stores that can drop expired records.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// RunPurger purges store every interval until ctx is done. It returns at once
// when the store cannot purge or interval is not positive.
func RunPurger(ctx context.Context, store Store, interval time.Duration, logger logrus.FieldLogger) {
	p, ok := store.(Purger)
	if !ok || interval <= 0 {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := p.Purge(ctx)
		if err != nil {
			logger.WithError(err).Warn("idempotency purge failed")
			continue
		}
		if n > 0 {
			logger.WithField("purged", n).Debug("expired idempotency records removed")
		}
	}
}
