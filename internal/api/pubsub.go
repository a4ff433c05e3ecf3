package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/trivia/internal/domain"
)

const maxConcurrent = 100

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type GameResult struct {
	SessionID         string `json:"session_id"`
	PlayerName        string `json:"player_name"`
	Topic             string `json:"topic"`
	Score             int    `json:"score"`
	QuestionsAnswered int    `json:"questions_answered"`
	GameLength        int    `json:"game_length"`
}

// PublishLeaderboardUpdated announces the new top entries on the overall channel
// and on the channel of the updated entry's topic.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	if a.redis == nil {
		return nil
	}

	entries := e.Leaderboard.Entries
	topics := map[string]Leaderboard{
		"": toLeaderboard("", topOf(entries, "", topN)),
	}
	if t := e.Entry.Topic; t != "" {
		topics[strings.ToLower(t)] = toLeaderboard(t, topOf(entries, t, topN))
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for topic, data := range topics {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.leaderboardChannel(topic), e.Name(), data)
		})
	}

	return eg.Wait()
}

// PublishGameEnded announces a finished game on the session's channel.
func (a *API) PublishGameEnded(ctx context.Context, e domain.EventGameEnded) error {
	if a.redis == nil {
		return nil
	}

	s := e.Session
	data := GameResult{
		SessionID:         s.SessionID,
		PlayerName:        s.PlayerName,
		Topic:             s.Topic,
		Score:             s.Score,
		QuestionsAnswered: s.QuestionsAnswered,
		GameLength:        s.GameLength,
	}

	return a.publishNotification(ctx, fmt.Sprintf("%s:game:%s", a.prefix, s.SessionID), e.Name(), data)
}

func (a *API) leaderboardChannel(topic string) string {
	if topic == "" {
		return fmt.Sprintf("%s:leaderboard", a.prefix)
	}

	return fmt.Sprintf("%s:leaderboard:%s", a.prefix, topic)
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
