// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReceiptsProcessed counts processing runs by outcome status.
	ReceiptsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitsnap_receipts_processed_total",
		Help: "Receipt processing runs, labelled by resulting draft status.",
	}, []string{"status"})

	// ExtractionFailures counts AI extraction failures by class.
	ExtractionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitsnap_extraction_failures_total",
		Help: "AI extraction failures, labelled by failure class.",
	}, []string{"class"})

	// ExtractionRetries counts transient-error retries of the AI call.
	ExtractionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitsnap_extraction_retries_total",
		Help: "Retries of the AI extraction call after transient errors.",
	})

	// SettlementRecomputes counts settlement ledger recomputations per group.
	SettlementRecomputes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitsnap_settlement_recomputes_total",
		Help: "Full settlement recomputations triggered by finalizations.",
	})
)
