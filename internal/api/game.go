package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/game"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/score"
)

type (
	StartGameRequest struct {
		PlayerName string `json:"player_name"`
		Topic      string `json:"topic"`
		GameLength int    `json:"game_length"`
	}

	SubmitAnswerRequest struct {
		Choice string `json:"choice"`
	}

	RenameGameRequest struct {
		PlayerName string `json:"player_name"`
		Topic      string `json:"topic"`
	}

	Game struct {
		SessionID         string     `json:"session_id"`
		PlayerName        string     `json:"player_name"`
		Topic             string     `json:"topic"`
		GameLength        int        `json:"game_length"`
		Score             int        `json:"score"`
		MaxScore          int        `json:"max_score"`
		QuestionsAnswered int        `json:"questions_answered"`
		Active            bool       `json:"active"`
		Question          *Question  `json:"question,omitempty"`
		Outcome           string     `json:"outcome,omitempty"`
		Awarded           int        `json:"awarded"`
		Feedback          string     `json:"feedback,omitempty"`
		RemainingSeconds  float64    `json:"remaining_seconds"`
		StartTime         time.Time  `json:"start_time"`
		EndTime           *time.Time `json:"end_time,omitempty"`
		Rank              *Rank      `json:"rank,omitempty"`
	}

	// Question hides Correct and FactCheck until the question is resolved.
	Question struct {
		Prompt    string          `json:"prompt"`
		Choices   []domain.Choice `json:"choices"`
		Correct   string          `json:"correct,omitempty"`
		FactCheck string          `json:"fact_check,omitempty"`
	}
)

func (a *API) StartGame(c *gin.Context) {
	var req StartGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid body: %v", err)))
		return
	}

	ss, err := a.gs.Start(c.Request.Context(), game.StartRequest{
		PlayerName: req.PlayerName,
		Topic:      req.Topic,
		GameLength: req.GameLength,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, a.game(c, ss))
}

func (a *API) GetGame(c *gin.Context) {
	ss, err := a.gs.State(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.game(c, ss))
}

func (a *API) GetQuestion(c *gin.Context) {
	ss, err := a.gs.Question(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.game(c, ss))
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid body: %v", err)))
		return
	}

	ss, err := a.gs.Answer(c.Request.Context(), c.Param("id"), req.Choice)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.game(c, ss))
}

func (a *API) NextQuestion(c *gin.Context) {
	ss, err := a.gs.Next(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.game(c, ss))
}

func (a *API) RenameGame(c *gin.Context) {
	var req RenameGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid body: %v", err)))
		return
	}

	ss, err := a.gs.Rename(c.Request.Context(), game.RenameRequest{
		SessionID:  c.Param("id"),
		PlayerName: req.PlayerName,
		Topic:      req.Topic,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.game(c, ss))
}

func (a *API) EndGame(c *gin.Context) {
	ss, err := a.gs.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.game(c, ss))
}

func (a *API) ResetGame(c *gin.Context) {
	if err := a.gs.Reset(c.Request.Context(), c.Param("id")); err != nil {
		renderError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// game converts a snapshot for the wire. A finished game carries its leaderboard rank.
func (a *API) game(c *gin.Context, ss *game.Snapshot) Game {
	g := Game{
		SessionID:         ss.SessionID,
		PlayerName:        ss.PlayerName,
		Topic:             ss.Topic,
		GameLength:        ss.GameLength,
		Score:             ss.Score,
		MaxScore:          score.MaxTotal(ss.GameLength),
		QuestionsAnswered: ss.QuestionsAnswered,
		Active:            ss.Active,
		Outcome:           string(ss.Outcome),
		Awarded:           ss.Awarded,
		Feedback:          ss.Feedback,
		RemainingSeconds:  ss.Remaining.Seconds(),
		StartTime:         ss.StartTime,
	}

	if q := ss.Current; q != nil {
		g.Question = &Question{
			Prompt:  q.Prompt,
			Choices: q.Choices,
		}
		if ss.Resolved() {
			g.Question.Correct = q.Correct
			g.Question.FactCheck = q.FactCheck
		}
	}

	if !ss.Active {
		end := ss.EndTime
		g.EndTime = &end

		r := a.ls.Rank(c.Request.Context(), leaderboard.RankRequest{
			Name:  ss.PlayerName,
			Score: ss.Score,
			Topic: ss.Topic,
		})
		if r.Overall > 0 {
			g.Rank = toRank(r)
		}
	}

	return g
}
