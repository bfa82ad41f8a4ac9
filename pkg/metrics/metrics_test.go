package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveFetch(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.ObserveQuery("instant", false)
	m.ObserveQuery("instant", false)
	m.ObserveQuery("range", true)
	m.ObserveFetch(2, 1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.QueryOutcomes.WithLabelValues("instant", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.QueryOutcomes.WithLabelValues("range", "failure")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.Entries))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PrometheusUp))

	m.ObserveFetch(0, 3)
	require.Equal(t, 0.0, testutil.ToFloat64(m.PrometheusUp))
}

func TestCatalogueSize(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.SetCatalogueSize(6, 3)
	require.Equal(t, 6.0, testutil.ToFloat64(m.Catalogue.WithLabelValues("instant")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.Catalogue.WithLabelValues("range")))
	require.Equal(t, 2, testutil.CollectAndCount(m.Catalogue))
}
