package supplier

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
)

// stepBackOff waits attempt × step between tries, up to max. Suppliers
// throttle aggressively, so the wait grows arithmetically rather than
// exponentially.
type stepBackOff struct {
	step    time.Duration
	max     time.Duration
	attempt int
}

func (b *stepBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := time.Duration(b.attempt) * b.step
	if d > b.max {
		d = b.max
	}
	return d
}

func (b *stepBackOff) Reset() {
	b.attempt = 0
}

// FetchWithRetry fetches through the connector with bounded retries.
// ErrNotFound is terminal and short-circuits remaining attempts; every
// other error is treated as transient. After maxTries the last transient
// error is returned as-is, never reclassified as ErrNotFound.
func FetchWithRetry(ctx context.Context, c Connector, sku string, maxTries int) (*ProductData, error) {
	if maxTries < 1 {
		maxTries = 1
	}

	operation := func() (*ProductData, error) {
		data, err := c.Fetch(ctx, sku)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return data, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(&stepBackOff{step: time.Second, max: 5 * time.Second}),
		backoff.WithMaxTries(uint(maxTries)),
	)
}
