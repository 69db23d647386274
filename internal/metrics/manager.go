// package metrics exposes engine counters and catalog gauges in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns a private registry with runtime collectors, engine counters and the catalog
// collector.
type Manager struct {
	registry *prometheus.Registry
	engine   *EngineMetrics
	catalog  *CatalogCollector
}

// NewManager builds a registry. A nil catalog registers no catalog gauges.
func NewManager(catalog *repositories.Catalog, logger *log.Logger) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{registry: registry, engine: NewEngineMetrics(registry)}
	if catalog != nil {
		m.catalog = NewCatalogCollector(catalog, logger)
		registry.MustRegister(m.catalog)
	}
	return m
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Recorder returns the engine counters; they satisfy the orchestrator's Recorder interface.
func (m *Manager) Recorder() *EngineMetrics {
	return m.engine
}

// Handler serves the registry in the exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
