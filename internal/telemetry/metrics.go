package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trivia"

var (
	QuestionsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "question",
		Name:      "generated_total",
		Help:      "Questions handed out to players.",
	})

	QuestionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "question",
		Name:      "rejected_total",
		Help:      "Generation attempts rejected, by reason.",
	}, []string{"reason"})

	AnswersScored = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "game",
		Name:      "answer_points",
		Help:      "Points awarded per resolved question.",
		Buckets:   prometheus.LinearBuckets(0, 25, 9),
	})

	GamesFinished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "game",
		Name:      "finished_total",
		Help:      "Games that reached the leaderboard.",
	})

	LeaderboardWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leaderboard",
		Name:      "writes_total",
		Help:      "Leaderboard store rewrites, by result (ok, retry, dropped).",
	}, []string{"result"})

	LeaderboardReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leaderboard",
		Name:      "reads_total",
		Help:      "Leaderboard loads, by source (cache, store, failed).",
	}, []string{"source"})
)
