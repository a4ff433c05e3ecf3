package leaderboard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/victornm/trivia/internal/domain"
)

// Column headers of the leaderboard sheet, in order.
const (
	ColName              = "Name"
	ColScore             = "Score"
	ColTopic             = "Topic"
	ColDate              = "Date"
	ColTime              = "Time"
	ColQuestionsAnswered = "Questions_Answered"
	ColGameLength        = "Game_Length"
)

var Headers = []string{ColName, ColScore, ColTopic, ColDate, ColTime, ColQuestionsAnswered, ColGameLength}

// Row is one leaderboard row keyed by column header.
type Row map[string]string

// EncodeRow formats an entry with the sheet's date and time layouts in loc.
func EncodeRow(e domain.LeaderboardEntry, loc *time.Location) Row {
	at := e.PlayedAt.In(loc)

	return Row{
		ColName:              e.Name,
		ColScore:             strconv.Itoa(e.Score),
		ColTopic:             e.Topic,
		ColDate:              at.Format(domain.DateLayout),
		ColTime:              at.Format(domain.TimeLayout),
		ColQuestionsAnswered: strconv.Itoa(e.QuestionsAnswered),
		ColGameLength:        strconv.Itoa(e.GameLength),
	}
}

// DecodeRow parses a row written by EncodeRow. Missing counters decode as zero.
func DecodeRow(r Row, loc *time.Location) (domain.LeaderboardEntry, error) {
	e := domain.LeaderboardEntry{
		Name:  strings.TrimSpace(r[ColName]),
		Topic: strings.TrimSpace(r[ColTopic]),
	}
	if e.Name == "" {
		return e, fmt.Errorf("row: empty %s", ColName)
	}

	var err error
	if e.Score, err = atoi(r[ColScore]); err != nil {
		return e, fmt.Errorf("row: %s: %w", ColScore, err)
	}
	if e.QuestionsAnswered, err = atoi(r[ColQuestionsAnswered]); err != nil {
		return e, fmt.Errorf("row: %s: %w", ColQuestionsAnswered, err)
	}
	if e.GameLength, err = atoi(r[ColGameLength]); err != nil {
		return e, fmt.Errorf("row: %s: %w", ColGameLength, err)
	}

	date, clock := strings.TrimSpace(r[ColDate]), strings.TrimSpace(r[ColTime])
	switch {
	case date != "" && clock != "":
		e.PlayedAt, err = time.ParseInLocation(domain.DateLayout+" "+domain.TimeLayout, date+" "+clock, loc)
	case date != "":
		e.PlayedAt, err = time.ParseInLocation(domain.DateLayout, date, loc)
	}
	if err != nil {
		return e, fmt.Errorf("row: played at: %w", err)
	}

	return e, nil
}

// Values returns the row's cells in header order.
func (r Row) Values() []string {
	vs := make([]string, len(Headers))
	for i, h := range Headers {
		vs[i] = r[h]
	}
	return vs
}

func atoi(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	return strconv.Atoi(s)
}
