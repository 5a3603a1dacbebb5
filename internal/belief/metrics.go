package belief

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ObservationsTotal counts observations routed to Summaries.
	// Labels: namespace (experiment, mission, trait, other), applied (true, false)
	ObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "belief",
			Name:      "observations_total",
			Help:      "Total number of observations by summary namespace and whether they changed any variable",
		},
		[]string{"namespace", "applied"},
	)

	// ResolutionsTotal counts Summary resolutions.
	// Labels: status (resolved, abandoned)
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "belief",
			Name:      "resolutions_total",
			Help:      "Total number of summary resolutions by terminal status",
		},
		[]string{"status"},
	)

	// SummariesCreated counts lazily created Summaries.
	SummariesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "belief",
			Name:      "summaries_created_total",
			Help:      "Total number of summaries created on first use",
		},
	)
)

func namespaceOf(id string) string {
	switch {
	case strings.HasPrefix(id, ExperimentPrefix):
		return "experiment"
	case strings.HasPrefix(id, MissionTypePrefix):
		return "mission"
	case strings.HasPrefix(id, GlobalTraitPrefix):
		return "trait"
	}
	return "other"
}
