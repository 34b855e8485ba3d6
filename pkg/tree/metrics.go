package tree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	directsLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refnet_directs_lookups_total",
		Help: "Direct-link lookups by result (hit, miss, error)",
	}, []string{"result"})

	treeBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refnet_tree_builds_total",
		Help: "Tree builds by outcome (ok, truncated, canceled)",
	}, []string{"outcome"})

	treeBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refnet_tree_build_duration_seconds",
		Help:    "Wall time of a single tree build",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	treeNodesVisited = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refnet_tree_nodes_visited",
		Help:    "Nodes materialized per build",
		Buckets: []float64{1, 3, 7, 15, 31, 63, 100, 250, 500},
	})

	supersededBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refnet_tree_builds_superseded_total",
		Help: "Builds discarded because a newer build was requested",
	})
)
