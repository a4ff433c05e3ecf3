package leaderboard_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/leaderboard"
)

var day = time.Date(2024, 11, 22, 0, 0, 0, 0, time.UTC)

func TestService_Update(t *testing.T) {
	type (
		inputs struct {
			seed    []domain.LeaderboardEntry
			updates []update
		}

		outputs struct {
			results []bool
			store   *fakeStore
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a cache-only update never writes the store": {
			arrange: func() inputs {
				return inputs{
					updates: []update{{entry: entry("alice", 150, "space", 9), force: false}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []bool{true}, out.results)
				assert.Zero(t, out.store.writes)
			},
		},

		"a forced update writes the merged cache exactly once": {
			arrange: func() inputs {
				return inputs{
					seed: []domain.LeaderboardEntry{entry("bob", 100, "space", 8)},
					updates: []update{
						{entry: entry("carol", 120, "art", 10), force: false},
						{entry: entry("alice", 150, "space", 9), force: true},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []bool{true, true}, out.results)
				assert.Equal(t, 1, out.store.writes)
				assert.Equal(t, []string{"alice", "carol", "bob"}, names(out.store.last))
			},
		},

		"the same name, topic, score and date is inserted once": {
			arrange: func() inputs {
				return inputs{
					updates: []update{
						{entry: entry("alice", 150, "space", 9), force: true},
						{entry: entry("alice", 150, "space", 15), force: true},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []bool{true, false}, out.results)
				assert.Equal(t, 1, out.store.writes)
				assert.Len(t, out.store.last, 1)
			},
		},

		"an entry already in the store is a duplicate": {
			arrange: func() inputs {
				return inputs{
					seed:    []domain.LeaderboardEntry{entry("alice", 150, "space", 9)},
					updates: []update{{entry: entry("alice", 150, "space", 20), force: true}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []bool{false}, out.results)
				assert.Zero(t, out.store.writes)
			},
		},

		"a forced duplicate of a cache-only entry still writes it": {
			arrange: func() inputs {
				return inputs{
					seed: []domain.LeaderboardEntry{entry("bob", 100, "space", 8)},
					updates: []update{
						{entry: entry("alice", 150, "space", 9), force: false},
						{entry: entry("alice", 150, "space", 12), force: true},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []bool{true, true}, out.results)
				assert.Equal(t, 1, out.store.writes)
				assert.Equal(t, []string{"alice", "bob"}, names(out.store.last))
			},
		},

		"a forced duplicate flushes other cache-only entries": {
			arrange: func() inputs {
				return inputs{
					seed: []domain.LeaderboardEntry{entry("alice", 150, "space", 9)},
					updates: []update{
						{entry: entry("carol", 120, "art", 10), force: false},
						{entry: entry("alice", 150, "space", 20), force: true},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []bool{true, false}, out.results)
				assert.Equal(t, 1, out.store.writes)
				assert.Equal(t, []string{"alice", "carol"}, names(out.store.last))
			},
		},

		"the date of an entry is taken in the leaderboard location": {
			arrange: func() inputs {
				e := entry("alice", 150, "space", 23)
				e.PlayedAt = e.PlayedAt.Add(30 * time.Minute).In(time.FixedZone("UTC+2", 2*60*60))
				return inputs{
					seed:    []domain.LeaderboardEntry{entry("alice", 150, "space", 23)},
					updates: []update{{entry: e, force: true}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []bool{false}, out.results)
				assert.Zero(t, out.store.writes)
			},
		},

		"ties on score are ordered by date and time, latest first": {
			arrange: func() inputs {
				return inputs{
					updates: []update{
						{entry: entry("a", 150, "x", 9), force: false},
						{entry: entry("b", 200, "x", 8), force: false},
						{entry: entry("c", 150, "x", 11), force: true},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []string{"b", "c", "a"}, names(out.store.last))
			},
		},

		"a score above the maximum for the game length is rejected": {
			arrange: func() inputs {
				e := entry("alice", 1001, "space", 9)
				e.GameLength = 5
				return inputs{updates: []update{{entry: e, force: true}}}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []bool{false}, out.results)
				assert.Zero(t, out.store.writes)
			},
		},

		"transient write failures are retried": {
			arrange: func() inputs {
				return inputs{
					updates: []update{{entry: entry("alice", 150, "space", 9), force: true, failWrites: 3}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []bool{true}, out.results)
				assert.Equal(t, 4, out.store.attempts)
				assert.Equal(t, 1, out.store.writes)
			},
		},

		"a write is dropped after five attempts": {
			arrange: func() inputs {
				return inputs{
					updates: []update{{entry: entry("alice", 150, "space", 9), force: true, failWrites: 100}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []bool{false}, out.results)
				assert.Equal(t, 5, out.store.attempts)
				assert.Zero(t, out.store.writes)
			},
		},

		"a write is refused while the store has never been read": {
			arrange: func() inputs {
				return inputs{
					updates: []update{{entry: entry("alice", 150, "space", 9), force: true, failReads: true}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, []bool{false}, out.results)
				assert.Zero(t, out.store.attempts)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			fs := &fakeStore{entries: in.seed}
			s := makeService(t, withStore(fs))

			out := outputs{store: fs}
			for _, u := range in.updates {
				fs.setFailures(u.failWrites, u.failReads)
				out.results = append(out.results, s.Update(context.Background(), u.entry, u.force))
			}

			tt.assert(t, out)
		})
	}
}

func TestService_Load(t *testing.T) {
	now := day.Add(12 * time.Hour)
	clock := func() time.Time { return now }

	fs := &fakeStore{entries: []domain.LeaderboardEntry{entry("bob", 100, "space", 8)}}
	s := makeService(t, withStore(fs), withClock(&clock))

	m := s.Load(context.Background(), false)
	require.Len(t, m, 1)
	assert.Equal(t, "bob", m[0].Name)
	assert.Equal(t, 1, fs.reads)

	// Within the freshness window the cache is served.
	now = now.Add(4 * time.Minute)
	s.Load(context.Background(), false)
	assert.Equal(t, 1, fs.reads)

	// A forced refresh always reads.
	s.Load(context.Background(), true)
	assert.Equal(t, 2, fs.reads)

	// After the window expires the store is read again.
	now = now.Add(5 * time.Minute)
	s.Load(context.Background(), false)
	assert.Equal(t, 3, fs.reads)
}

func TestService_LoadFailureYieldsEmptyMapping(t *testing.T) {
	fs := &fakeStore{entries: []domain.LeaderboardEntry{entry("bob", 100, "space", 8)}}
	fs.setFailures(0, true)

	s := makeService(t, withStore(fs))
	m := s.Load(context.Background(), false)
	assert.NotNil(t, m)
	assert.Empty(t, m)
}

func TestService_RefreshKeepsUnwrittenEntries(t *testing.T) {
	fs := &fakeStore{entries: []domain.LeaderboardEntry{entry("bob", 100, "space", 8)}}
	s := makeService(t, withStore(fs))

	require.True(t, s.Update(context.Background(), entry("alice", 150, "space", 9), false))

	m := s.Load(context.Background(), true)
	assert.Len(t, m, 2)

	require.True(t, s.Update(context.Background(), entry("carol", 50, "space", 10), true))
	assert.Equal(t, []string{"alice", "bob", "carol"}, names(fs.last))
}

func TestService_Rank(t *testing.T) {
	fs := &fakeStore{entries: []domain.LeaderboardEntry{
		entry("A", 150, "Space", 9),
		entry("B", 200, "History", 8),
		entry("C", 150, "space", 11),
		entry("D", 90, "SPACE", 7),
	}}
	s := makeService(t, withStore(fs))

	tests := map[string]struct {
		req  leaderboard.RankRequest
		want leaderboard.RankResponse
	}{
		"highest score is first overall": {
			req:  leaderboard.RankRequest{Name: "B", Score: 200, Topic: "History"},
			want: leaderboard.RankResponse{Overall: 1, Topic: 1, TotalPlayers: 4, TopicPlayers: 1},
		},
		"tie resolved by the later game": {
			req:  leaderboard.RankRequest{Name: "C", Score: 150, Topic: "space"},
			want: leaderboard.RankResponse{Overall: 2, Topic: 1, TotalPlayers: 4, TopicPlayers: 3},
		},
		"tie resolved by the later game, earlier one": {
			req:  leaderboard.RankRequest{Name: "A", Score: 150, Topic: "Space"},
			want: leaderboard.RankResponse{Overall: 3, Topic: 2, TotalPlayers: 4, TopicPlayers: 3},
		},
		"topic matching ignores case": {
			req:  leaderboard.RankRequest{Name: "D", Score: 90, Topic: "space"},
			want: leaderboard.RankResponse{Overall: 4, Topic: 3, TotalPlayers: 4, TopicPlayers: 3},
		},
		"unknown result has no rank": {
			req:  leaderboard.RankRequest{Name: "A", Score: 10, Topic: "Space"},
			want: leaderboard.RankResponse{Overall: 0, Topic: 0, TotalPlayers: 4, TopicPlayers: 3},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Rank(context.Background(), tt.req))
		})
	}
}

func TestService_GetLeaderboard(t *testing.T) {
	var seed []domain.LeaderboardEntry
	for i := 0; i < 15; i++ {
		seed = append(seed, entry(fmt.Sprintf("p%02d", i), i*10, "math", 8))
	}
	seed = append(seed, entry("h", 500, "history", 8))

	s := makeService(t, withStore(&fakeStore{entries: seed}))

	l := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{})
	require.Len(t, l.Entries, 10)
	assert.Equal(t, "h", l.Entries[0].Name)

	l = s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{Topic: "MATH", Limit: 3})
	assert.Equal(t, []string{"p14", "p13", "p12"}, names(l.Entries))
}

func TestService_PublishLeaderboardUpdated(t *testing.T) {
	eb := event.NewBus()

	var (
		mu        sync.Mutex
		published []domain.EventLeaderboardUpdated
	)
	eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		published = append(published, e.(domain.EventLeaderboardUpdated))
		mu.Unlock()
		return nil
	})

	s := makeService(t, withEventBus(eb))
	s.Update(context.Background(), entry("alice", 150, "space", 9), false)
	s.Update(context.Background(), entry("bob", 160, "space", 9), true)
	eb.Stop()

	require.Len(t, published, 1, "only a forced write should publish")
	assert.Equal(t, "bob", published[0].Entry.Name)
	assert.Equal(t, []string{"bob", "alice"}, names(published[0].Leaderboard.Entries))
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	t.Helper()

	c := leaderboard.Config{
		EventBus:  event.NewBus(),
		Store:     leaderboard.NewMemoryStore(),
		BaseDelay: time.Millisecond,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func withStore(s leaderboard.Store) options {
	return func(c *leaderboard.Config) {
		c.Store = s
	}
}

func withClock(now *func() time.Time) options {
	return func(c *leaderboard.Config) {
		c.Now = func() time.Time { return (*now)() }
	}
}

type update struct {
	entry      domain.LeaderboardEntry
	force      bool
	failWrites int
	failReads  bool
}

func entry(name string, score int, topic string, hour int) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		Name:              name,
		Score:             score,
		Topic:             topic,
		PlayedAt:          day.Add(time.Duration(hour) * time.Hour),
		QuestionsAnswered: 10,
		GameLength:        10,
	}
}

func names(entries []domain.LeaderboardEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

// fakeStore counts reads and writes and can fail on demand.
type fakeStore struct {
	mu         sync.Mutex
	entries    []domain.LeaderboardEntry
	last       []domain.LeaderboardEntry
	reads      int
	attempts   int
	writes     int
	failWrites int
	failReads  bool
}

func (f *fakeStore) setFailures(writes int, reads bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failWrites = writes
	f.failReads = reads
}

func (f *fakeStore) ReadAll(_ context.Context) ([]domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failReads {
		return nil, fmt.Errorf("store unreachable")
	}

	f.reads++
	return append([]domain.LeaderboardEntry(nil), f.entries...), nil
}

func (f *fakeStore) ReplaceAll(_ context.Context, entries []domain.LeaderboardEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.failWrites > 0 {
		f.failWrites--
		return fmt.Errorf("quota exceeded")
	}

	f.writes++
	f.entries = append([]domain.LeaderboardEntry(nil), entries...)
	f.last = f.entries
	return nil
}
