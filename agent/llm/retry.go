package llm

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

// RetryPolicy retries rate-limited provider calls with capped exponential
// backoff: Backoff, 2*Backoff, 4*Backoff ... up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration

	// after is swapped in tests.
	after func(time.Duration) <-chan time.Time
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff << (attempt - 1)
	if d < p.Backoff || (p.MaxBackoff > 0 && d > p.MaxBackoff) {
		return p.MaxBackoff
	}
	return d
}

// Do runs fn until it succeeds, fails with a non rate-limit error, or the
// attempts run out. The last error is returned as is.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	after := p.after
	if after == nil {
		after = time.After
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := p.delay(attempt)
			log.Warn().
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("model provider rate limited, backing off")
			select {
			case <-ctx.Done():
				return lastErr
			case <-after(backoff):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, contractx.ErrProviderRateLimited) {
			return err
		}
	}
	return lastErr
}
