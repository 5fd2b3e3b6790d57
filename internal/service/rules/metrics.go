package rules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rulesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "rules_applied_total",
			Help:      "Total number of rule effects applied to transactions",
		},
		[]string{"kind"},
	)
	bulkProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "rules_bulk_processed_total",
			Help:      "Total number of transactions visited by bulk rule scans",
		},
	)
)
