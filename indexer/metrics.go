package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recordsIndexedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "indexer_records_indexed_total",
	Help: "Records indexed by collection and action",
}, []string{"collection", "action"})

var recordsSkippedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "indexer_records_skipped_total",
	Help: "Records skipped by collection and cause",
}, []string{"collection", "cause"})

var heldContentCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "indexer_held_content_total",
	Help: "Content rows held for moderation by type",
}, []string{"type"})

var notificationsCreatedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "indexer_notifications_created_total",
	Help: "Notifications fanned out by kind",
}, []string{"kind"})

var identityEventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "indexer_identity_events_total",
	Help: "Identity and account events handled",
}, []string{"kind"})

var accountsPurgedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "indexer_accounts_purged_total",
	Help: "Accounts fully purged after deletion events",
})
