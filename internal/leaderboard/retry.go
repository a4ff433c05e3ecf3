package leaderboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/telemetry"
)

// write replaces the store snapshot, retrying with exponential backoff and jitter.
// Other players write the same store, so retries are spread out randomly.
func (s *Service) write(ctx context.Context, entries []domain.LeaderboardEntry) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = s.baseDelay << s.maxAttempts
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		return s.store.ReplaceAll(ctx, entries)
	}

	notify := func(err error, next time.Duration) {
		telemetry.LeaderboardWrites.WithLabelValues("retry").Inc()
		slog.WarnContext(ctx, "leaderboard: write failed, retrying",
			"attempt", attempt,
			"next", next,
			"error", err,
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxAttempts-1)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}
