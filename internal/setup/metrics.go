package setup

import (
	"fmt"

	"github.com/The127/ioc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/the127/blobyard/internal/config"
	"github.com/the127/blobyard/internal/metrics"
)

// Metrics returns nil when metrics are disabled.
func Metrics(dc *ioc.DependencyCollection, c config.MetricsConfig, registerer prometheus.Registerer) *metrics.Collector {
	if !c.IsEnabled() {
		return nil
	}

	collector, err := metrics.NewCollector(registerer)
	if err != nil {
		panic(fmt.Errorf("failed to register metrics: %w", err))
	}

	ioc.RegisterSingleton(dc, func(_ *ioc.DependencyProvider) *metrics.Collector {
		return collector
	})

	return collector
}
