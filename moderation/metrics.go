package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reviewActionsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "barazo_moderation_review_actions_total",
	Help: "Number of moderation queue resolutions, by resulting status.",
}, []string{"status"})
