package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MakeNoOpRegistry returns a registry without the process wide collectors,
// for tests and one-shot commands that do not export metrics.
func MakeNoOpRegistry() *Registry {
	return &Registry{prometheus.NewRegistry(), nil}
}
