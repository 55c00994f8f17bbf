package shell

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks handled requests by strategy class and how they were answered
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spa_shell_requests_total",
			Help: "Total number of intercepted requests",
		},
		[]string{"class", "outcome"}, // outcome: "network", "cache", "offline-document", "synthesized", "passthrough", "error"
	)

	// Revalidations tracks background refreshes of stored responses
	Revalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spa_shell_revalidations_total",
			Help: "Total number of background revalidations",
		},
		[]string{"result"}, // "updated", "failed"
	)

	// LifecycleTransitions tracks worker state changes
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spa_shell_lifecycle_transitions_total",
			Help: "Total number of worker lifecycle transitions",
		},
		[]string{"state"},
	)

	// GenerationsDeleted tracks cache generations removed on activation
	GenerationsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spa_shell_generations_deleted_total",
			Help: "Total number of cache generations deleted on activation",
		},
	)
)
