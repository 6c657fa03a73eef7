package synchronizer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what runs did. Each Metrics owns a private registry, so
// tests and library users never touch the global one.
type Metrics struct {
	Registry *prometheus.Registry

	runs       *prometheus.CounterVec
	components *prometheus.CounterVec
	labels     *prometheus.CounterVec
	files      *prometheus.CounterVec
	warnings   *prometheus.CounterVec
	duration   prometheus.Gauge
}

// NewMetrics creates and registers the run metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kisync",
			Name:      "runs_total",
			Help:      "Synchronization runs by final state.",
		}, []string{"state"}),
		components: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kisync",
			Name:      "components_total",
			Help:      "Components changed in emitted files.",
		}, []string{"op"}),
		labels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kisync",
			Name:      "labels_total",
			Help:      "Owned labels changed in emitted files.",
		}, []string{"op"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kisync",
			Name:      "files_total",
			Help:      "Schematic files by emit outcome.",
		}, []string{"outcome"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kisync",
			Name:      "warnings_total",
			Help:      "Warnings by kind.",
		}, []string{"kind"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kisync",
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last run.",
		}),
	}
	m.Registry.MustRegister(m.runs, m.components, m.labels, m.files, m.warnings, m.duration)
	return m
}

// WriteTextfile writes the current values in the Prometheus text format,
// for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

func (m *Metrics) observeFile(f FileResult) {
	if m == nil {
		return
	}
	outcome := "unchanged"
	if f.Written {
		outcome = "written"
	}
	m.files.WithLabelValues(outcome).Inc()

	s := f.Stats
	m.components.WithLabelValues("added").Add(float64(s.Added))
	m.components.WithLabelValues("removed").Add(float64(s.Removed))
	m.components.WithLabelValues("updated").Add(float64(s.Updated))
	m.components.WithLabelValues("renamed").Add(float64(s.Renamed))
	m.labels.WithLabelValues("added").Add(float64(s.LabelsAdded))
	m.labels.WithLabelValues("removed").Add(float64(s.LabelsRemoved))
	m.labels.WithLabelValues("updated").Add(float64(s.LabelsUpdated))
}

func (m *Metrics) observeRun(state State, seconds float64, warnings []Warning) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(state.String()).Inc()
	m.duration.Set(seconds)
	for _, w := range warnings {
		m.warnings.WithLabelValues(string(w.Kind)).Inc()
	}
}
