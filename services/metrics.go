package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "builds_total",
		Help:      "Finished builds by terminal status.",
	}, []string{"status"})

	buildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portal",
		Name:      "build_duration_seconds",
		Help:      "Wall time from job submission to terminal status.",
		Buckets:   []float64{30, 60, 120, 300, 600, 900, 1800, 3600},
	}, []string{"status"})

	activeBuilds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "portal",
		Name:      "active_build_runners",
		Help:      "Build runners currently watching a job.",
	})

	deploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "deployments_total",
		Help:      "Deploy attempts by action and result.",
	}, []string{"action", "result"})
)
