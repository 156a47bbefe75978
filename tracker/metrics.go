package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reposTrackedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tracker_repos_tracked_total",
	Help: "Total number of repos added to the tracked set",
})

var reposUntrackedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tracker_repos_untracked_total",
	Help: "Total number of repos removed from the tracked set",
})
