package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/game"
	"github.com/victornm/trivia/internal/leaderboard"
)

type Config struct {
	EventBus    *event.Bus
	Game        *game.Service
	Leaderboard *leaderboard.Service

	// Redis receives pub/sub notifications. Nil disables them.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	gs *game.Service
	ls *leaderboard.Service

	redis  Redis
	prefix string

	hub *hub
}

func New(c Config) *API {
	a := &API{
		gs:     c.Game,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
		hub:    newHub(),
	}

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		u := e.(domain.EventLeaderboardUpdated)
		a.hub.broadcast(u)
		return a.PublishLeaderboardUpdated(ctx, u)
	})

	c.EventBus.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
		return a.PublishGameEnded(ctx, e.(domain.EventGameEnded))
	})

	return a
}

// Register mounts the HTTP routes on r.
func (a *API) Register(r gin.IRouter) {
	r.POST("/games", a.StartGame)

	g := r.Group("/games/:id")
	g.GET("", a.GetGame)
	g.PATCH("", a.RenameGame)
	g.DELETE("", a.ResetGame)
	g.POST("/question", a.GetQuestion)
	g.POST("/answer", a.SubmitAnswer)
	g.POST("/next", a.NextQuestion)
	g.POST("/end", a.EndGame)

	r.GET("/leaderboard", a.GetLeaderboard)
	r.GET("/leaderboard/rank", a.GetRank)
	r.GET("/ws/leaderboard", a.ServeLeaderboardWS)
}

// Close disconnects websocket clients.
func (a *API) Close() {
	a.hub.close()
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}
