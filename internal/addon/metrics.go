package addon

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the manager's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Loads          *prometheus.CounterVec
	Unloads        prometheus.Counter
	Actions        *prometheus.CounterVec
	ReferenceLeaks *prometheus.CounterVec
	UpdateChecks   *prometheus.CounterVec
	Loaded         prometheus.Gauge
	Records        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "addon_loads_total",
			Help: "Load attempts by resulting state.",
		}, []string{"state"}),
		Unloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "addon_unloads_total",
			Help: "Module handles released.",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "addon_queue_actions_total",
			Help: "Queued actions executed by verb.",
		}, []string{"verb"}),
		ReferenceLeaks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "addon_reference_leaks_total",
			Help: "References still registered when a module was unloaded.",
		}, []string{"subsystem"}),
		UpdateChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "addon_update_checks_total",
			Help: "Update checks by result.",
		}, []string{"result"}),
		Loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "addon_loaded",
			Help: "Addons currently mapped.",
		}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "addon_records",
			Help: "Addon records tracked.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Loads, m.Unloads, m.Actions, m.ReferenceLeaks, m.UpdateChecks, m.Loaded, m.Records)
	}
	return m
}

func (m *Metrics) load(s State) {
	if m != nil {
		m.Loads.WithLabelValues(s.String()).Inc()
	}
}

func (m *Metrics) unload() {
	if m != nil {
		m.Unloads.Inc()
	}
}

func (m *Metrics) action(v Verb) {
	if m != nil {
		m.Actions.WithLabelValues(v.String()).Inc()
	}
}

func (m *Metrics) leak(subsystem string, n uint32) {
	if m != nil {
		m.ReferenceLeaks.WithLabelValues(subsystem).Add(float64(n))
	}
}

func (m *Metrics) updateCheck(result string) {
	if m != nil {
		m.UpdateChecks.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) gauges(loaded, records int) {
	if m != nil {
		m.Loaded.Set(float64(loaded))
		m.Records.Set(float64(records))
	}
}
