package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rlHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scimgate",
			Name:      "ratelimit_hits_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	rlFailOpenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scimgate",
			Name:      "ratelimit_fail_open_total",
			Help:      "Total number of requests allowed because Redis was unavailable",
		},
	)
)
