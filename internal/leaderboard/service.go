package leaderboard

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/score"
	"github.com/victornm/trivia/internal/telemetry"
)

const (
	defaultTTL         = 5 * time.Minute
	defaultMaxAttempts = 5
	defaultBaseDelay   = 500 * time.Millisecond
	defaultTopN        = 10
)

type Config struct {
	EventBus *event.Bus
	Store    Store

	// TTL is how long a loaded snapshot is served from the cache.
	TTL time.Duration

	// MaxAttempts and BaseDelay drive the retry of store writes.
	MaxAttempts int
	BaseDelay   time.Duration

	// Location is the zone in which the date of an entry is taken. Defaults to UTC.
	Location *time.Location

	Now func() time.Time
}

// Service is a read-through, write-behind cache over the shared leaderboard store.
type Service struct {
	eb          *event.Bus
	store       Store
	ttl         time.Duration
	maxAttempts int
	baseDelay   time.Duration
	location    *time.Location
	now         func() time.Time

	sf singleflight.Group

	mu        sync.RWMutex
	entries   map[int]domain.LeaderboardEntry
	keys      map[string]int
	pending   map[string]struct{}
	next      int
	refreshed time.Time
	synced    bool
}

func NewService(c Config) *Service {
	s := &Service{
		eb:          c.EventBus,
		store:       c.Store,
		ttl:         c.TTL,
		maxAttempts: c.MaxAttempts,
		baseDelay:   c.BaseDelay,
		location:    c.Location,
		now:         c.Now,
		entries:     make(map[int]domain.LeaderboardEntry),
		keys:        make(map[string]int),
		pending:     make(map[string]struct{}),
	}

	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.baseDelay <= 0 {
		s.baseDelay = defaultBaseDelay
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Load returns the cached leaderboard keyed by insertion index. The store is read
// when the cache is older than the TTL or forceRefresh is set. A failed read
// yields an empty mapping.
func (s *Service) Load(ctx context.Context, forceRefresh bool) map[int]domain.LeaderboardEntry {
	if !forceRefresh {
		s.mu.RLock()
		if s.synced && s.now().Sub(s.refreshed) < s.ttl {
			m := maps.Clone(s.entries)
			s.mu.RUnlock()
			telemetry.LeaderboardReads.WithLabelValues("cache").Inc()
			return m
		}
		s.mu.RUnlock()
	}

	res, err, _ := s.sf.Do("load", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		telemetry.LeaderboardReads.WithLabelValues("failed").Inc()
		slog.ErrorContext(ctx, "leaderboard: read store failed", "error", err)
		return map[int]domain.LeaderboardEntry{}
	}

	telemetry.LeaderboardReads.WithLabelValues("store").Inc()
	return maps.Clone(res.(map[int]domain.LeaderboardEntry))
}

// refresh replaces the cache with the store's snapshot. Entries added locally
// but not yet written are carried over.
func (s *Service) refresh(ctx context.Context) (map[int]domain.LeaderboardEntry, error) {
	rows, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var carried []domain.LeaderboardEntry
	for k := range s.pending {
		if i, ok := s.keys[k]; ok {
			carried = append(carried, s.entries[i])
		}
	}
	slices.SortFunc(carried, byRank)

	s.entries = make(map[int]domain.LeaderboardEntry, len(rows)+len(carried))
	s.keys = make(map[string]int, len(rows)+len(carried))
	s.next = 0

	for _, e := range rows {
		s.appendLocked(e)
	}

	for _, e := range carried {
		if _, ok := s.keys[e.Key()]; ok {
			delete(s.pending, e.Key())
			continue
		}
		s.appendLocked(e)
	}

	s.refreshed = s.now()
	s.synced = true

	return maps.Clone(s.entries), nil
}

// Update adds an entry to the leaderboard. Duplicates of an existing entry are
// not added again. With forceWrite the whole cache is written to the store;
// otherwise the entry stays in the cache until the next forced write.
// It reports whether the entry was added and, for a forced write, persisted. A
// duplicate of an entry still waiting to be written counts as added.
func (s *Service) Update(ctx context.Context, e domain.LeaderboardEntry, forceWrite bool) bool {
	if err := validate(e); err != nil {
		slog.WarnContext(ctx, "leaderboard: entry rejected", "name", e.Name, "error", err)
		return false
	}
	e.PlayedAt = e.PlayedAt.In(s.location)

	s.Load(ctx, false)

	s.mu.Lock()
	key := e.Key()
	_, dup := s.keys[key]
	_, waiting := s.pending[key]

	if dup && (!forceWrite || len(s.pending) == 0) {
		s.mu.Unlock()
		return false
	}

	if !dup {
		s.appendLocked(e)
		s.pending[key] = struct{}{}
	}

	if !forceWrite {
		s.mu.Unlock()
		return true
	}

	if !s.synced {
		// Writing a snapshot that was never read would wipe every other player's rows.
		s.mu.Unlock()
		slog.WarnContext(ctx, "leaderboard: store not loaded, write deferred", "name", e.Name)
		return false
	}

	snapshot := s.sortedLocked()
	s.mu.Unlock()

	if err := s.write(ctx, snapshot); err != nil {
		telemetry.LeaderboardWrites.WithLabelValues("dropped").Inc()
		slog.ErrorContext(ctx, "leaderboard: write dropped",
			"name", e.Name,
			"entries", len(snapshot),
			"error", err,
		)
		return false
	}
	telemetry.LeaderboardWrites.WithLabelValues("ok").Inc()

	s.mu.Lock()
	for _, w := range snapshot {
		delete(s.pending, w.Key())
	}
	s.mu.Unlock()

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
			Entry:       e,
			Leaderboard: domain.Leaderboard{Entries: snapshot},
		})
	}

	return !dup || waiting
}

type GetLeaderboardRequest struct {
	// Topic restricts the view, case-insensitively. Empty means all topics.
	Topic string
	Limit int
}

// GetLeaderboard returns the ranked entries, best first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) *domain.Leaderboard {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTopN
	}

	ranked := filterTopic(s.ranked(ctx), req.Topic)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	return &domain.Leaderboard{
		Topic:   req.Topic,
		Entries: ranked,
	}
}

type RankRequest struct {
	Name  string
	Score int
	Topic string
}

type RankResponse struct {
	// Overall and Topic are 1-based; zero means the result is not on the leaderboard.
	Overall      int
	Topic        int
	TotalPlayers int
	TopicPlayers int
}

// Rank finds the position of a result among all entries and among entries of its topic.
func (s *Service) Rank(ctx context.Context, req RankRequest) RankResponse {
	all := s.ranked(ctx)
	inTopic := filterTopic(all, req.Topic)

	match := func(e domain.LeaderboardEntry) bool {
		return e.Name == req.Name && e.Score == req.Score && strings.EqualFold(e.Topic, req.Topic)
	}

	return RankResponse{
		Overall:      slices.IndexFunc(all, match) + 1,
		Topic:        slices.IndexFunc(inTopic, match) + 1,
		TotalPlayers: len(all),
		TopicPlayers: len(inTopic),
	}
}

func (s *Service) ranked(ctx context.Context) []domain.LeaderboardEntry {
	m := s.Load(ctx, false)

	out := make([]domain.LeaderboardEntry, 0, len(m))
	idx := make([]int, 0, len(m))
	for i := range m {
		idx = append(idx, i)
	}
	slices.Sort(idx)

	for _, i := range idx {
		out = append(out, m[i])
	}
	slices.SortStableFunc(out, byRank)

	return out
}

func (s *Service) appendLocked(e domain.LeaderboardEntry) {
	e.PlayedAt = e.PlayedAt.In(s.location)
	s.entries[s.next] = e
	s.keys[e.Key()] = s.next
	s.next++
}

func (s *Service) sortedLocked() []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, 0, len(s.entries))
	for i := 0; i < s.next; i++ {
		if e, ok := s.entries[i]; ok {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, byRank)

	return out
}

// byRank orders by score, then by date and time, both descending.
func byRank(a, b domain.LeaderboardEntry) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}

	return b.PlayedAt.Compare(a.PlayedAt)
}

func filterTopic(entries []domain.LeaderboardEntry, topic string) []domain.LeaderboardEntry {
	if topic == "" {
		return entries
	}

	out := make([]domain.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		if strings.EqualFold(e.Topic, topic) {
			out = append(out, e)
		}
	}

	return out
}

func validate(e domain.LeaderboardEntry) error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("empty name")
	}

	if e.GameLength <= 0 {
		return fmt.Errorf("invalid game length %d", e.GameLength)
	}

	if e.Score < 0 || e.Score > score.MaxTotal(e.GameLength) {
		return fmt.Errorf("score %d out of range for %d questions", e.Score, e.GameLength)
	}

	return nil
}
