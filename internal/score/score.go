// Package score computes time-decayed points for trivia answers.
package score

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Nominal is the advertised answer time.
	Nominal = 60 * time.Second
	// Grace is added to Nominal before points drop to zero.
	Grace = 5 * time.Second
	// Window is the full answer window.
	Window = Nominal + Grace

	MaxPoints = 200
)

// Remaining returns the time left in the answer window, never negative.
func Remaining(elapsed time.Duration) time.Duration {
	if elapsed < 0 {
		elapsed = 0
	}

	if elapsed >= Window {
		return 0
	}

	return Window - elapsed
}

// Points returns the points awarded for an answer given after elapsed.
// A late answer is scored exactly like a timeout.
func Points(elapsed time.Duration, correct bool) int {
	if !correct {
		return 0
	}

	r := Remaining(elapsed)
	if r <= 0 {
		return 0
	}

	// floor(remaining / nominal * 200), computed on nanoseconds.
	p := decimal.NewFromInt(int64(r)).
		Mul(decimal.NewFromInt(MaxPoints)).
		Div(decimal.NewFromInt(int64(Nominal))).
		Floor().
		IntPart()

	return int(min(MaxPoints, max(0, p)))
}

// MaxTotal is the highest total a game of the given length can reach.
func MaxTotal(gameLength int) int {
	return MaxPoints * gameLength
}
