package leaderboard

import (
	"context"
	"slices"
	"sync"

	"github.com/victornm/trivia/internal/domain"
)

// Store is the shared, remote leaderboard. It has no partial update protocol:
// every write replaces the whole snapshot, and the last writer wins.
type Store interface {
	ReadAll(ctx context.Context) ([]domain.LeaderboardEntry, error)
	ReplaceAll(ctx context.Context, entries []domain.LeaderboardEntry) error
}

// MemoryStore keeps the snapshot in process. Used when no remote store is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []domain.LeaderboardEntry
}

func NewMemoryStore(entries ...domain.LeaderboardEntry) *MemoryStore {
	return &MemoryStore{entries: slices.Clone(entries)}
}

func (m *MemoryStore) ReadAll(_ context.Context) ([]domain.LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.entries), nil
}

func (m *MemoryStore) ReplaceAll(_ context.Context, entries []domain.LeaderboardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = slices.Clone(entries)
	return nil
}
