// Package metrics holds the Prometheus instruments for the memory store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	Rollbacks     *prometheus.CounterVec
	IndexRebuilds prometheus.Counter
	Folds         prometheus.Counter
	SummaryChars  prometheus.Histogram
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "convo_memory_decisions_total",
			Help: "Candidate facts processed, by merge engine decision",
		}, []string{"decision"}),

		Rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "convo_memory_rollbacks_total",
			Help: "Record writes undone because the topic index update failed",
		}, []string{"op"}),

		IndexRebuilds: f.NewCounter(prometheus.CounterOpts{
			Name: "convo_memory_index_rebuilds_total",
			Help: "Topic index rebuilds from the record store",
		}),

		Folds: f.NewCounter(prometheus.CounterOpts{
			Name: "convo_memory_folds_total",
			Help: "Conversation turns folded into session summaries",
		}),

		SummaryChars: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "convo_memory_summary_chars",
			Help:    "Length of session summaries after each fold",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3200},
		}),
	}
}

// Decision counts one merge engine decision.
func (m *Metrics) Decision(d string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(d).Inc()
}

// Rollback counts one undone write.
func (m *Metrics) Rollback(op string) {
	if m == nil {
		return
	}
	m.Rollbacks.WithLabelValues(op).Inc()
}

// Rebuild counts one index rebuild.
func (m *Metrics) Rebuild() {
	if m == nil {
		return
	}
	m.IndexRebuilds.Inc()
}

// Fold counts one fold and observes the resulting summary length.
func (m *Metrics) Fold(chars int) {
	if m == nil {
		return
	}
	m.Folds.Inc()
	m.SummaryChars.Observe(float64(chars))
}
