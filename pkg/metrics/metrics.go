package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const MetricsNamespace = "clustermon"

type ServiceMetrics struct {
	PrometheusUp  prometheus.Gauge
	QueryOutcomes *prometheus.CounterVec
	Entries       prometheus.Gauge
	Catalogue     *prometheus.GaugeVec
	Registry      *prometheus.Registry
}

func NewMetrics() (*ServiceMetrics, error) {
	ret := &ServiceMetrics{
		PrometheusUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "prometheus_up",
			Help:      "1 when at least one query of the last fetch succeeded, 0 otherwise",
		}),

		QueryOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "query_outcomes_total",
			Help:      "number of catalogue queries executed, by mode and outcome",
		}, []string{"mode", "outcome"}),

		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "entries",
			Help:      "number of entries delivered by the last fetch",
		}),

		Catalogue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "catalogue_queries",
			Help:      "number of configured queries",
		}, []string{"mode"}),

		Registry: prometheus.NewRegistry(),
	}

	for collectorName, collector := range ret.collectors() {
		if err := ret.Registry.Register(collector); err != nil {
			return nil, fmt.Errorf("during registration of %q: %v", collectorName, err)
		}
	}

	return ret, nil
}

func (m *ServiceMetrics) collectors() map[string]prometheus.Collector {
	return map[string]prometheus.Collector{
		"Prometheus Up":     m.PrometheusUp,
		"Query Outcomes":    m.QueryOutcomes,
		"Entries":           m.Entries,
		"Catalogue Queries": m.Catalogue,
	}
}

// Collectors returns the service collectors so they can be served from
// another registry as well.
func (m *ServiceMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.PrometheusUp, m.QueryOutcomes, m.Entries, m.Catalogue}
}

// ObserveQuery records the outcome of a single catalogue query.
func (m *ServiceMetrics) ObserveQuery(mode string, failed bool) {
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.QueryOutcomes.WithLabelValues(mode, outcome).Inc()
}

// ObserveFetch records the totals of a completed fetch-all cycle.
func (m *ServiceMetrics) ObserveFetch(succeeded, failed int) {
	m.Entries.Set(float64(succeeded + failed))
	if succeeded > 0 {
		m.PrometheusUp.Set(1)
	} else {
		m.PrometheusUp.Set(0)
	}
}

// SetCatalogueSize records how many queries of each mode are configured.
func (m *ServiceMetrics) SetCatalogueSize(instant, rng int) {
	m.Catalogue.WithLabelValues("instant").Set(float64(instant))
	m.Catalogue.WithLabelValues("range").Set(float64(rng))
}
