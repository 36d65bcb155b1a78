// Package metrics exposes Prometheus counters and gauges for the
// filtering pipeline: snapshot row counts by source tag, outlier
// counts, missing-data events, and the last snapshot's observed
// product count.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"txoptionfilter/pkg/types"
)

// Registry bundles the pipeline's metrics with their own
// prometheus.Registry rather than registering into the global
// DefaultRegisterer, so one process can run several engines (as in
// tests) without a MustRegister panic on re-registration.
type Registry struct {
	reg *prometheus.Registry

	rowsTotal       *prometheus.CounterVec
	outliersTotal   *prometheus.CounterVec
	missingSnapshot prometheus.Counter
	lastProductsSeen prometheus.Gauge
}

// New builds a Registry with all metrics registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		rowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txof_snapshot_rows_total",
				Help: "Snapshot rows emitted, by filtered-quote source.",
			},
			[]string{"side", "source"},
		),
		outliersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txof_outliers_total",
				Help: "Candidate quotes classified as outliers, by side and pick kind.",
			},
			[]string{"side", "pick"},
		),
		missingSnapshot: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "txof_missing_data_snapshots_total",
				Help: "Scheduled snapshots with no ticks yet for any product.",
			},
		),
		lastProductsSeen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "txof_last_snapshot_products",
				Help: "Number of distinct products observed in the most recent snapshot.",
			},
		),
	}
	r.reg.MustRegister(r.rowsTotal, r.outliersTotal, r.missingSnapshot, r.lastProductsSeen)
	return r
}

// Registerer exposes the underlying registry for an HTTP /metrics
// handler to serve.
func (r *Registry) Registerer() *prometheus.Registry { return r.reg }

// ObserveRow records one (side, source) pair for an emitted quote.
func (r *Registry) ObserveRow(side types.Side, source types.SourceTag) {
	r.rowsTotal.WithLabelValues(string(side), string(source)).Inc()
}

// ObserveOutlier records an outlier classification for one side and
// pick kind ("last" or "min").
func (r *Registry) ObserveOutlier(side types.Side, pick string) {
	r.outliersTotal.WithLabelValues(string(side), pick).Inc()
}

// ObserveMissingSnapshot records a snapshot with no ticks yet for any
// product (spec §7's non-fatal "missing data" condition).
func (r *Registry) ObserveMissingSnapshot() {
	r.missingSnapshot.Inc()
}

// SetLastSnapshotProducts reports the distinct product count of the
// most recently processed snapshot.
func (r *Registry) SetLastSnapshotProducts(n int) {
	r.lastProductsSeen.Set(float64(n))
}
