package skill

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal counts puzzle attempts.
	// Labels: track, solved (true, false)
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "skill",
			Name:      "attempts_total",
			Help:      "Total number of puzzle attempts by track and result",
		},
		[]string{"track", "solved"},
	)

	// RatingChange tracks the size of rating updates.
	RatingChange = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "skill",
			Name:      "rating_change",
			Help:      "Signed rating change per attempt",
			Buckets:   []float64{-0.05, -0.03, -0.01, 0, 0.01, 0.03, 0.05},
		},
		[]string{"track"},
	)

	// UnknownPuzzleTypes counts attempts whose type has no track mapping.
	UnknownPuzzleTypes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "skill",
			Name:      "unknown_puzzle_types_total",
			Help:      "Total number of attempts with an unmapped puzzle type",
		},
	)
)
