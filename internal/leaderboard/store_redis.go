package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/trivia/internal/domain"
)

// RedisStore keeps the leaderboard as a Redis list of JSON rows, best first.
type RedisStore struct {
	redis    redis.UniversalClient
	prefix   string
	location *time.Location
}

func NewRedisStore(r redis.UniversalClient, prefix string, loc *time.Location) *RedisStore {
	if loc == nil {
		loc = time.Local
	}

	return &RedisStore{
		redis:    r,
		prefix:   prefix,
		location: loc,
	}
}

func (s *RedisStore) ReadAll(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	raw, err := s.redis.LRange(ctx, s.key(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: lrange: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(raw))
	for i, r := range raw {
		var row Row
		if err := json.Unmarshal([]byte(r), &row); err != nil {
			return nil, fmt.Errorf("redis store: row %d: %w", i, err)
		}

		e, err := DecodeRow(row, s.location)
		if err != nil {
			return nil, fmt.Errorf("redis store: row %d: %w", i, err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// ReplaceAll clears the list and writes every entry in one transaction.
func (s *RedisStore) ReplaceAll(ctx context.Context, entries []domain.LeaderboardEntry) error {
	rows := make([]any, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(EncodeRow(e, s.location))
		if err != nil {
			return fmt.Errorf("redis store: marshal row: %w", err)
		}
		rows = append(rows, b)
	}

	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.key())
		if len(rows) > 0 {
			p.RPush(ctx, s.key(), rows...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: replace: %w", err)
	}

	return nil
}

func (s *RedisStore) key() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}
