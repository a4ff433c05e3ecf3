package domain

const (
	EventNameGameEnded          = "game.ended"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventGameEnded struct {
	Session GameSession
}

func (EventGameEnded) Name() string { return EventNameGameEnded }

// EventLeaderboardUpdated is published after the leaderboard store has been rewritten.
type EventLeaderboardUpdated struct {
	Entry       LeaderboardEntry
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
