package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxd_events_processed_total",
		Help: "Inbound events processed, by kind.",
	}, []string{"kind"})

	backfillChats = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxd_backfill_chats_total",
		Help: "Chats processed by historical backfill.",
	})

	backfillChatsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxd_backfill_chats_skipped_total",
		Help: "Chats skipped by backfill as organizational content.",
	})

	backfillMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxd_backfill_messages_total",
		Help: "Messages upserted by historical backfill.",
	})

	attachmentsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxd_attachments_persisted_total",
		Help: "Attachments persisted, by storage tier (blob, inline, metadata).",
	}, []string{"tier"})

	enrichmentFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxd_enrichment_fallbacks_total",
		Help: "Contact enrichments that fell back to inline event data.",
	})

	syncRunStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "inboxd_sync_run_status",
		Help: "Backfill run status per account: 0 idle, 1 syncing, 2 completed, 3 failed.",
	}, []string{"account", "provider"})
)

func statusCode(status string) float64 {
	switch status {
	case "syncing":
		return 1
	case "completed":
		return 2
	case "failed":
		return 3
	default:
		return 0
	}
}
