/*
Copyright 2017 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"k8s.io/component-base/metrics"
	"k8s.io/component-base/metrics/legacyregistry"

	"github.com/clustermon/dashboard/pkg/client"
)

var (
	// queryLatency is the total latency of any query going through the
	// query and range-query endpoints.  It includes some deserialization
	// overhead and HTTP overhead.
	queryLatency = metrics.NewHistogramVec(
		&metrics.HistogramOpts{
			Namespace: "clustermon",
			Subsystem: "prometheus_client",
			Name:      "request_duration_seconds",
			Help:      "Prometheus client query latency in seconds.  Broken down by target prometheus endpoint and target server",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "server"},
	)

	// define a counter for API errors for various ErrorTypes
	apiErrorCount = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Namespace: "clustermon",
			Subsystem: "prometheus_client",
			Name:      "api_errors_total",
			Help:      "Total number of API errors",
		},
		[]string{"error_code", "path", "server"},
	)
)

// MetricsHandler serves the client metrics together with any extra
// collectors supplied by the caller.
func MetricsHandler(extra ...prometheus.Collector) (http.HandlerFunc, error) {
	registry := metrics.NewKubeRegistry()

	if err := registry.Register(queryLatency); err != nil {
		return nil, err
	}
	if err := registry.Register(apiErrorCount); err != nil {
		return nil, err
	}
	registry.RawMustRegister(extra...)

	return func(w http.ResponseWriter, req *http.Request) {
		legacyregistry.Handler().ServeHTTP(w, req)
		metrics.HandlerFor(registry, metrics.HandlerOpts{}).ServeHTTP(w, req)
	}, nil
}

// instrumentedFetcher is a client.Fetcher which instruments calls to Fetch,
// capturing request latency and error counts.
type instrumentedFetcher struct {
	serverName string
	fetcher    client.Fetcher
}

func (c *instrumentedFetcher) Fetch(ctx context.Context, u *url.URL) (client.QueryResult, error) {
	startTime := time.Now()
	res, err := c.fetcher.Fetch(ctx, u)
	endpoint := u.Path

	if err != nil {
		var apiErr *client.Error
		if errors.As(err, &apiErr) {
			apiErrorCount.WithLabelValues(string(apiErr.Type), endpoint, c.serverName).Inc()
		} else {
			// increment a generic error code counter
			apiErrorCount.WithLabelValues("generic", endpoint, c.serverName).Inc()
		}
		return res, err
	}

	queryLatency.WithLabelValues(endpoint, c.serverName).Observe(time.Since(startTime).Seconds())
	return res, nil
}

// InstrumentFetcher wraps fetcher so that every request is recorded against serverName.
func InstrumentFetcher(fetcher client.Fetcher, serverName string) client.Fetcher {
	return &instrumentedFetcher{
		serverName: serverName,
		fetcher:    fetcher,
	}
}
