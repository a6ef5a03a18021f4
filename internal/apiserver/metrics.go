// metrics.go — Prometheus 指标。
package apiserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timeline",
		Name:      "events_ingested_total",
		Help:      "Side-channel events accepted for ingestion, by normalized type.",
	}, []string{"event_type"})

	metricTimelineBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "timeline",
		Name:      "builds_total",
		Help:      "Full timeline reconstructions served.",
	})

	metricSnapshotsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "timeline",
		Name:      "snapshots_saved_total",
		Help:      "Resume snapshots persisted.",
	})

	metricSnapshotsRestored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "timeline",
		Name:      "snapshots_restored_total",
		Help:      "Resume snapshots hydrated into an engine.",
	})

	metricWSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "timeline",
		Name:      "ws_connections",
		Help:      "Active WebSocket ingest connections.",
	})

	metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "timeline",
		Name:      "sessions_active",
		Help:      "Live per-thread sessions in the registry.",
	})
)
