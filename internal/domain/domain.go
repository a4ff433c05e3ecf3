package domain

import (
	"strconv"
	"strings"
	"time"
)

// Labels are the choice labels of a question, in display order.
var Labels = []string{"A", "B", "C", "D"}

// Game lengths a player can pick.
const (
	ShortGame = 5
	LongGame  = 10
)

type Choice struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question is a generated multiple-choice question. It is immutable once created.
type Question struct {
	Topic     string    `json:"topic"`
	Prompt    string    `json:"prompt"`
	Choices   []Choice  `json:"choices"`
	Correct   string    `json:"correct"`
	FactCheck string    `json:"fact_check"`
	CreatedAt time.Time `json:"created_at"`
}

// Choice returns the choice with the given label.
func (q Question) Choice(label string) (Choice, bool) {
	for _, c := range q.Choices {
		if strings.EqualFold(c.Label, label) {
			return c, true
		}
	}

	return Choice{}, false
}

type Outcome string

const (
	OutcomePending  Outcome = ""
	OutcomeCorrect  Outcome = "correct"
	OutcomeWrong    Outcome = "wrong"
	OutcomeTimedOut Outcome = "timed_out"
)

// GameSession is the state of one player's game.
type GameSession struct {
	SessionID         string    `json:"session_id"`
	PlayerName        string    `json:"player_name"`
	Topic             string    `json:"topic"`
	GameLength        int       `json:"game_length"`
	Score             int       `json:"score"`
	QuestionsAnswered int       `json:"questions_answered"`
	Active            bool      `json:"active"`
	Current           *Question `json:"current,omitempty"`
	Outcome           Outcome   `json:"outcome,omitempty"`
	Awarded           int       `json:"awarded"`
	Feedback          string    `json:"feedback,omitempty"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time,omitempty"`
}

// Resolved reports whether the current question has been answered or has timed out.
func (s *GameSession) Resolved() bool {
	return s.Current != nil && s.Outcome != OutcomePending
}

// Finished reports whether all questions of the game have been played.
func (s *GameSession) Finished() bool {
	return s.QuestionsAnswered >= s.GameLength
}

// LeaderboardEntry is one row of the shared leaderboard.
type LeaderboardEntry struct {
	Name              string
	Score             int
	Topic             string
	PlayedAt          time.Time
	QuestionsAnswered int
	GameLength        int
}

// Key identifies an entry for duplicate suppression: name, topic, score and date.
func (e LeaderboardEntry) Key() string {
	return strings.Join([]string{
		e.Name,
		e.Topic,
		strconv.Itoa(e.Score),
		e.PlayedAt.Format(DateLayout),
	}, "\x1f")
}

const (
	DateLayout = "Jan 02, 2006"
	TimeLayout = "03:04 PM"
)

// Leaderboard is a ranked view of the leaderboard, optionally restricted to a topic.
type Leaderboard struct {
	Topic   string
	Entries []LeaderboardEntry
}
