package game

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/domain"
)

func TestService_LocksAreDroppedWhenIdle(t *testing.T) {
	s := NewService(Config{})

	var ids []string
	for i := 0; i < 3; i++ {
		ss, err := s.Start(context.Background(), StartRequest{PlayerName: "alice", GameLength: domain.ShortGame})
		require.NoError(t, err)
		ids = append(ids, ss.SessionID)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running = make(map[string]int)
		overlap bool
	)
	for i := 0; i < 20; i++ {
		for _, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()

				unlock := s.lock(id)
				defer unlock()

				mu.Lock()
				running[id]++
				if running[id] > 1 {
					overlap = true
				}
				mu.Unlock()

				_, err := s.store.Get(context.Background(), id)
				assert.NoError(t, err)

				mu.Lock()
				running[id]--
				mu.Unlock()
			}()
		}
	}
	wg.Wait()

	assert.False(t, overlap, "operations on one session must not overlap")

	_, err := s.State(context.Background(), "expired")
	require.Error(t, err)
	_, err = s.State(context.Background(), ids[0])
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.locks)
}
