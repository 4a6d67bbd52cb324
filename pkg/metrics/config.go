package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name unless Config.Namespace is set.
const DefaultNamespace = "funcqueue"

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the default "funcqueue" namespace for metrics.
	Namespace string
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Registry:  prometheus.DefaultRegisterer,
		Namespace: DefaultNamespace,
	}
}

// Build creates the Registry described by the configuration.
// It returns nil when metrics are disabled; components treat a nil
// Registry as "collect nothing".
func (c Config) Build() *Registry {
	if !c.Enabled {
		return nil
	}
	reg := c.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := c.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return newRegistry(reg, ns)
}
