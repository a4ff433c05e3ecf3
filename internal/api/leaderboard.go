package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/leaderboard"
)

const topN = 10

type (
	Leaderboard struct {
		Topic   string             `json:"topic,omitempty"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Rank              int       `json:"rank"`
		Name              string    `json:"name"`
		Score             int       `json:"score"`
		Topic             string    `json:"topic"`
		Date              string    `json:"date"`
		Time              string    `json:"time"`
		PlayedAt          time.Time `json:"played_at"`
		QuestionsAnswered int       `json:"questions_answered"`
		GameLength        int       `json:"game_length"`
	}

	Rank struct {
		Overall      int `json:"overall"`
		Topic        int `json:"topic"`
		TotalPlayers int `json:"total_players"`
		TopicPlayers int `json:"topic_players"`
	}
)

func (a *API) GetLeaderboard(c *gin.Context) {
	limit := topN
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid limit %q", v)))
			return
		}
		limit = n
	}

	l := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		Topic: c.Query("topic"),
		Limit: limit,
	})

	c.JSON(http.StatusOK, toLeaderboard(l.Topic, l.Entries))
}

func (a *API) GetRank(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessage("name is required")))
		return
	}

	sc, err := strconv.Atoi(c.Query("score"))
	if err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid score %q", c.Query("score"))))
		return
	}

	r := a.ls.Rank(c.Request.Context(), leaderboard.RankRequest{
		Name:  name,
		Score: sc,
		Topic: c.Query("topic"),
	})
	if r.Overall == 0 {
		renderError(c, errors.New(errors.CodeNotFound, errors.WithMessagef("no leaderboard entry for %s with score %d", name, sc)))
		return
	}

	c.JSON(http.StatusOK, toRank(r))
}

func toLeaderboard(topic string, entries []domain.LeaderboardEntry) Leaderboard {
	l := Leaderboard{
		Topic:   topic,
		Entries: make([]LeaderboardEntry, 0, len(entries)),
	}

	for i, e := range entries {
		l.Entries = append(l.Entries, LeaderboardEntry{
			Rank:              i + 1,
			Name:              e.Name,
			Score:             e.Score,
			Topic:             e.Topic,
			Date:              e.PlayedAt.Format(domain.DateLayout),
			Time:              e.PlayedAt.Format(domain.TimeLayout),
			PlayedAt:          e.PlayedAt,
			QuestionsAnswered: e.QuestionsAnswered,
			GameLength:        e.GameLength,
		})
	}

	return l
}

func toRank(r leaderboard.RankResponse) *Rank {
	return &Rank{
		Overall:      r.Overall,
		Topic:        r.Topic,
		TotalPlayers: r.TotalPlayers,
		TopicPlayers: r.TopicPlayers,
	}
}

// topOf restricts a ranked snapshot to topic and keeps the first n entries.
func topOf(entries []domain.LeaderboardEntry, topic string, n int) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, 0, n)
	for _, e := range entries {
		if len(out) == n {
			break
		}
		if topic == "" || strings.EqualFold(e.Topic, topic) {
			out = append(out, e)
		}
	}

	return out
}
