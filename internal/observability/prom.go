// Package observability exposes the bridge's Prometheus instrumentation.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors the acquisition loop reports into. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	transfers *prometheus.CounterVec
	decodes   *prometheus.CounterVec
	sweeps    prometheus.Counter
	connected prometheus.Gauge
	age       prometheus.GaugeFunc
}

// New registers the collectors on the default registry. ageSeconds feeds
// the snapshot-age gauge.
func New(ageSeconds func() float64) *Metrics {
	m := &Metrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upsbridge_transfers_total",
			Help: "USB transfers by kind and outcome.",
		}, []string{"kind", "outcome"}),
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upsbridge_report_decodes_total",
			Help: "HID report decodes by result.",
		}, []string{"result"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upsbridge_feature_sweeps_total",
			Help: "Completed feature report sweep cycles.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upsbridge_ups_connected",
			Help: "Whether the UPS is currently attached (0 or 1).",
		}),
		age: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "upsbridge_snapshot_age_seconds",
			Help: "Seconds since the metrics snapshot last merged a decode.",
		}, ageSeconds),
	}
	prometheus.MustRegister(m.transfers, m.decodes, m.sweeps, m.connected, m.age)
	return m
}

func (m *Metrics) ObserveTransfer(kind, outcome string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveDecode(result string) {
	if m == nil {
		return
	}
	m.decodes.WithLabelValues(result).Inc()
}

func (m *Metrics) SweepDone() {
	if m == nil {
		return
	}
	m.sweeps.Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
