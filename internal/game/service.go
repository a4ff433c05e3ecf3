// Package game coordinates one player's trivia game: questions, timed answers
// and the hand-off of the final result to the leaderboard.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/score"
	"github.com/victornm/trivia/internal/telemetry"
)

// Questions hands out new questions for a topic.
type Questions interface {
	Generate(ctx context.Context, topic string) (domain.Question, error)
}

// Leaderboard records finished and provisional results.
type Leaderboard interface {
	Update(ctx context.Context, e domain.LeaderboardEntry, forceWrite bool) bool
}

type Config struct {
	EventBus    *event.Bus
	Store       Store
	Questions   Questions
	Leaderboard Leaderboard
	Now         func() time.Time
}

type Service struct {
	eb          *event.Bus
	store       Store
	questions   Questions
	leaderboard Leaderboard
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock serializes the operations on one session. It is dropped once no
// operation holds or waits for it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(c Config) *Service {
	s := &Service{
		eb:          c.EventBus,
		store:       c.Store,
		questions:   c.Questions,
		leaderboard: c.Leaderboard,
		now:         c.Now,
		locks:       make(map[string]*sessionLock),
	}

	if s.store == nil {
		s.store = NewMemoryStore()
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Snapshot is a session as seen by the player at a point in time.
type Snapshot struct {
	domain.GameSession
	// Remaining is the time left to answer the current question.
	Remaining time.Duration
}

type StartRequest struct {
	PlayerName string
	Topic      string
	GameLength int
}

// Start creates a new session with a zero score.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Snapshot, error) {
	name := strings.TrimSpace(req.PlayerName)
	if name == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessage("player name is required"))
	}

	if req.GameLength != domain.ShortGame && req.GameLength != domain.LongGame {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("game length must be %d or %d, got %d", domain.ShortGame, domain.LongGame, req.GameLength),
		)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	gs := &domain.GameSession{
		SessionID:  id.String(),
		PlayerName: name,
		Topic:      strings.TrimSpace(req.Topic),
		GameLength: req.GameLength,
		Active:     true,
		StartTime:  s.now(),
	}

	if err := s.store.Save(ctx, gs); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "game: started",
		"session_id", gs.SessionID,
		"player", gs.PlayerName,
		"topic", gs.Topic,
		"length", gs.GameLength,
	)

	return s.snapshot(gs), nil
}

// Question returns the current question, generating one when none is pending.
// When generation fails the session is left as it was.
func (s *Service) Question(ctx context.Context, id string) (*Snapshot, error) {
	return s.modify(ctx, id, func(gs *domain.GameSession) error {
		if err := playing(gs); err != nil {
			return err
		}

		if gs.Current != nil {
			s.expire(gs)
			return nil
		}

		q, err := s.questions.Generate(ctx, gs.Topic)
		if err != nil {
			return err
		}

		// The answer window opens when the player sees the question.
		q.CreatedAt = s.now()
		gs.Current = &q
		gs.Outcome = domain.OutcomePending
		gs.Awarded = 0
		gs.Feedback = ""

		return nil
	})
}

// Answer scores the player's choice for the current question. An answer after
// the window has closed is resolved as a timeout.
func (s *Service) Answer(ctx context.Context, id, label string) (*Snapshot, error) {
	label = strings.ToUpper(strings.TrimSpace(label))

	return s.modify(ctx, id, func(gs *domain.GameSession) error {
		if err := playing(gs); err != nil {
			return err
		}

		if gs.Current == nil {
			return errors.New(errors.CodeFailedPrecondition, errors.WithMessage("no question to answer"))
		}

		if gs.Resolved() {
			return errors.New(errors.CodeAlreadyExists, errors.WithMessage("question is already answered"))
		}

		if !slices.Contains(domain.Labels, label) {
			return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid choice %q", label))
		}

		elapsed := s.now().Sub(gs.Current.CreatedAt)
		if score.Remaining(elapsed) == 0 {
			s.timeout(gs)
			return nil
		}

		correct := label == strings.ToUpper(gs.Current.Correct)
		points := score.Points(elapsed, correct)

		gs.Awarded = points
		gs.Score += points
		if correct {
			gs.Outcome = domain.OutcomeCorrect
			gs.Feedback = fmt.Sprintf("Correct! You earned %d points!", points)
		} else {
			gs.Outcome = domain.OutcomeWrong
			gs.Feedback = fmt.Sprintf("Wrong! The correct answer was %s.", answerText(gs.Current))
		}
		gs.Feedback = withFactCheck(gs.Feedback, gs.Current)

		telemetry.AnswersScored.Observe(float64(points))

		return nil
	})
}

// State returns the session, resolving the current question as timed out if
// its window has closed.
func (s *Service) State(ctx context.Context, id string) (*Snapshot, error) {
	return s.modify(ctx, id, func(gs *domain.GameSession) error {
		s.expire(gs)
		return nil
	})
}

// Next moves past a resolved question. The game ends when all questions have
// been played.
func (s *Service) Next(ctx context.Context, id string) (*Snapshot, error) {
	return s.modify(ctx, id, func(gs *domain.GameSession) error {
		if err := playing(gs); err != nil {
			return err
		}

		if gs.Current == nil {
			return errors.New(errors.CodeFailedPrecondition, errors.WithMessage("no question to move past"))
		}

		s.expire(gs)
		if !gs.Resolved() {
			return errors.New(errors.CodeFailedPrecondition, errors.WithMessage("current question is still open"))
		}

		gs.QuestionsAnswered++
		gs.Current = nil
		gs.Outcome = domain.OutcomePending
		gs.Awarded = 0
		gs.Feedback = ""

		if gs.Finished() {
			s.finish(ctx, gs)
		}

		return nil
	})
}

type RenameRequest struct {
	SessionID  string
	PlayerName string
	Topic      string
}

// Rename changes the player name and topic of a running game. The result so far
// is kept in the leaderboard cache without writing the store.
func (s *Service) Rename(ctx context.Context, req RenameRequest) (*Snapshot, error) {
	name := strings.TrimSpace(req.PlayerName)
	if name == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessage("player name is required"))
	}

	return s.modify(ctx, req.SessionID, func(gs *domain.GameSession) error {
		if err := playing(gs); err != nil {
			return err
		}

		gs.PlayerName = name
		gs.Topic = strings.TrimSpace(req.Topic)

		if s.leaderboard != nil {
			s.leaderboard.Update(ctx, s.entry(gs, s.now()), false)
		}

		return nil
	})
}

// End stops a running game and records its result. A resolved current question
// is counted; an unresolved one is not.
func (s *Service) End(ctx context.Context, id string) (*Snapshot, error) {
	return s.modify(ctx, id, func(gs *domain.GameSession) error {
		if err := playing(gs); err != nil {
			return err
		}

		s.expire(gs)
		if gs.Resolved() {
			gs.QuestionsAnswered++
		}

		s.finish(ctx, gs)
		return nil
	})
}

// Reset discards the session.
func (s *Service) Reset(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "game: reset", "session_id", id)
	return nil
}

// modify runs fn on the stored session under the session's lock and saves the
// result. Nothing is saved when fn fails.
func (s *Service) modify(ctx context.Context, id string, fn func(gs *domain.GameSession) error) (*Snapshot, error) {
	unlock := s.lock(id)
	defer unlock()

	gs, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(gs); err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, gs); err != nil {
		return nil, err
	}

	return s.snapshot(gs), nil
}

// lock acquires the session's lock and returns its release.
func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = new(sessionLock)
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		defer s.mu.Unlock()

		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
	}
}

// finish closes the game and hands the result to the leaderboard. A failed
// leaderboard write does not fail the game.
func (s *Service) finish(ctx context.Context, gs *domain.GameSession) {
	gs.Active = false
	gs.EndTime = s.now()

	recorded := false
	if s.leaderboard != nil {
		recorded = s.leaderboard.Update(ctx, s.entry(gs, gs.EndTime), true)
	}

	telemetry.GamesFinished.Inc()
	slog.InfoContext(ctx, "game: finished",
		"session_id", gs.SessionID,
		"player", gs.PlayerName,
		"score", gs.Score,
		"answered", gs.QuestionsAnswered,
		"recorded", recorded,
	)

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventGameEnded{Session: *gs})
	}
}

func (s *Service) expire(gs *domain.GameSession) {
	if gs.Current == nil || gs.Resolved() {
		return
	}

	if score.Remaining(s.now().Sub(gs.Current.CreatedAt)) == 0 {
		s.timeout(gs)
	}
}

func (s *Service) timeout(gs *domain.GameSession) {
	gs.Outcome = domain.OutcomeTimedOut
	gs.Awarded = 0
	gs.Feedback = withFactCheck(fmt.Sprintf("Time's up! The correct answer was %s.", answerText(gs.Current)), gs.Current)

	telemetry.AnswersScored.Observe(0)
}

func (s *Service) snapshot(gs *domain.GameSession) *Snapshot {
	ss := &Snapshot{GameSession: *gs}
	if gs.Current != nil && !gs.Resolved() {
		ss.Remaining = score.Remaining(s.now().Sub(gs.Current.CreatedAt))
	}

	return ss
}

func (s *Service) entry(gs *domain.GameSession, at time.Time) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		Name:              gs.PlayerName,
		Score:             gs.Score,
		Topic:             gs.Topic,
		PlayedAt:          at,
		QuestionsAnswered: gs.QuestionsAnswered,
		GameLength:        gs.GameLength,
	}
}

func playing(gs *domain.GameSession) error {
	if !gs.Active {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessage("game is over"))
	}

	return nil
}

func answerText(q *domain.Question) string {
	if c, ok := q.Choice(q.Correct); ok {
		return fmt.Sprintf("%s) %s", c.Label, c.Text)
	}

	return q.Correct
}

func withFactCheck(feedback string, q *domain.Question) string {
	if q.FactCheck == "" {
		return feedback
	}

	return feedback + "\n\n" + q.FactCheck
}
