package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
)

// Store persists game sessions between player actions.
type Store interface {
	Get(ctx context.Context, id string) (*domain.GameSession, error)
	Save(ctx context.Context, s *domain.GameSession) error
	Delete(ctx context.Context, id string) error
}

func errNotFound(id string) error {
	return errors.New(errors.CodeNotFound, errors.WithMessagef("game not found: session=%s", id))
}

// MemoryStore keeps sessions in process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.GameSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.GameSession)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, errNotFound(id)
	}

	return clone(s), nil
}

func (m *MemoryStore) Save(_ context.Context, s *domain.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.SessionID] = *clone(*s)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

func clone(s domain.GameSession) *domain.GameSession {
	if s.Current != nil {
		q := *s.Current
		q.Choices = append([]domain.Choice(nil), q.Choices...)
		s.Current = &q
	}
	return &s
}

// RedisStore keeps sessions as JSON values that expire after ttl of inactivity.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(r redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		redis:  r,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.GameSession, error) {
	b, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, errNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("game store: get %s: %w", id, err)
	}

	var gs domain.GameSession
	if err := json.Unmarshal(b, &gs); err != nil {
		return nil, fmt.Errorf("game store: unmarshal %s: %w", id, err)
	}

	return &gs, nil
}

func (s *RedisStore) Save(ctx context.Context, gs *domain.GameSession) error {
	b, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("game store: marshal %s: %w", gs.SessionID, err)
	}

	if err := s.redis.Set(ctx, s.key(gs.SessionID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("game store: set %s: %w", gs.SessionID, err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.redis.Del(ctx, s.key(id)).Err()
}

func (s *RedisStore) key(id string) string {
	return fmt.Sprintf("%s:game:%s", s.prefix, id)
}
