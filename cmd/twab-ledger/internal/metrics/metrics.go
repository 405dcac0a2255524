package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/stellar/go/support/log"
	"github.com/stellar/go/support/logmetrics"

	"github.com/prizesavings/twab-tools/cmd/twab-ledger/internal/config"
)

const prometheusNamespace = "twab_ledger"

// PrometheusRegistry is embedded so a Registry can be handed to anything
// taking a *prometheus.Registry.
type PrometheusRegistry = *prometheus.Registry

// Registry extends the prometheus registry with the log line counters, which
// need to be hooked into whichever logger the process ends up using.
type Registry struct {
	PrometheusRegistry
	logMetrics logmetrics.Metrics
}

// MakeRegistry returns a registry with the runtime collectors, the build info
// and one log line counter per level.
func MakeRegistry() *Registry {
	r := &Registry{
		PrometheusRegistry: prometheus.NewRegistry(),
		logMetrics:         logmetrics.New(prometheusNamespace),
	}
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo(),
	)
	for _, counter := range r.logMetrics {
		r.MustRegister(counter)
	}
	return r
}

func buildInfo() prometheus.Collector {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: prometheusNamespace,
		Subsystem: "build",
		Name:      "info",
		Help:      "build information of the running binary, always 1",
		ConstLabels: prometheus.Labels{
			"version":         config.Version,
			"commit":          config.CommitHash,
			"branch":          config.Branch,
			"build_timestamp": config.BuildTimestamp,
			"goversion":       runtime.Version(),
		},
	})
	gauge.Set(1)
	return gauge
}

func (r *Registry) Namespace() string {
	return prometheusNamespace
}

// InstrumentLogger makes the log line counters count the lines of logger.
func (r *Registry) InstrumentLogger(logger *log.Entry) {
	if r.logMetrics != nil {
		logger.AddHook(r.logMetrics)
	}
}

// WriteTextfile dumps every registered metric to path, in the text exposition
// format read by the node exporter textfile collector. The file is replaced
// atomically.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.PrometheusRegistry)
}
