/*
Copyright 2016 The Kubernetes Authors.

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

package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	genericapiserver "k8s.io/apiserver/pkg/server"
	"k8s.io/component-base/logs"
	"k8s.io/klog/v2"

	"github.com/clustermon/dashboard/pkg/aggregator"
	prom "github.com/clustermon/dashboard/pkg/client"
	mprom "github.com/clustermon/dashboard/pkg/client/metrics"
	dashcfg "github.com/clustermon/dashboard/pkg/config"
	"github.com/clustermon/dashboard/pkg/metrics"
	"github.com/clustermon/dashboard/pkg/query"
)

type Dashboard struct {
	// PrometheusURL is the URL describing how to connect to Prometheus.
	PrometheusURL string
	// PrometheusCAFile points to the file containing the ca-root for connecting with Prometheus
	PrometheusCAFile string
	// PrometheusHeaders is a k=v list of headers to set on requests to PrometheusURL
	PrometheusHeaders []string
	// ConfigFile points to the file containing the query catalogue.  The
	// built-in catalogue is used when it is empty.
	ConfigFile string
	// RequestTimeout bounds each query sent to Prometheus.
	RequestTimeout time.Duration
	// MaxConcurrency caps the number of queries in flight.
	MaxConcurrency int
	// ListenAddress is where serve exposes the loaded data.
	ListenAddress string
	// FailOnError makes fetch exit non-zero when any query failed.
	FailOnError bool

	config *dashcfg.DashboardConfig
}

func (cmd *Dashboard) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&cmd.PrometheusURL, "prometheus-url", cmd.PrometheusURL,
		"URL for connecting to Prometheus.")
	flags.StringVar(&cmd.PrometheusCAFile, "prometheus-ca-file", cmd.PrometheusCAFile,
		"Optional CA file to use when connecting with Prometheus")
	flags.StringArrayVar(&cmd.PrometheusHeaders, "prometheus-header", cmd.PrometheusHeaders,
		"Optional header to set on requests to prometheus-url. Can be repeated")
	flags.StringVar(&cmd.ConfigFile, "config", cmd.ConfigFile,
		"Configuration file containing the catalogue of queries to fetch. "+
			"Defaults to the built-in catalogue")
	flags.DurationVar(&cmd.RequestTimeout, "request-timeout", cmd.RequestTimeout,
		"timeout for each individual query sent to Prometheus (0 for none)")
	flags.IntVar(&cmd.MaxConcurrency, "max-concurrency", cmd.MaxConcurrency,
		"maximum number of queries in flight at once (0 for no limit)")
}

// loadConfig reads the catalogue and lets explicitly set flags override the file.
func (cmd *Dashboard) loadConfig(flags *pflag.FlagSet) error {
	cfg := dashcfg.Default()
	if cmd.ConfigFile != "" {
		var err error
		cfg, err = dashcfg.FromFile(cmd.ConfigFile)
		if err != nil {
			return fmt.Errorf("unable to load dashboard configuration: %v", err)
		}
	}

	if !flags.Changed("request-timeout") && cfg.RequestTimeout != 0 {
		cmd.RequestTimeout = time.Duration(cfg.RequestTimeout)
	}
	if !flags.Changed("max-concurrency") && cfg.MaxConcurrency != 0 {
		cmd.MaxConcurrency = cfg.MaxConcurrency
	}
	if cmd.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency must not be negative")
	}

	cmd.config = cfg
	return nil
}

func (cmd *Dashboard) makeFetcher() (prom.Fetcher, *url.URL, error) {
	baseURL, err := url.Parse(cmd.PrometheusURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid Prometheus URL %q: %v", cmd.PrometheusURL, err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, nil, fmt.Errorf("invalid Prometheus URL %q: scheme must be http or https", cmd.PrometheusURL)
	}

	httpClient := &http.Client{}
	if cmd.PrometheusCAFile != "" {
		httpClient, err = makePrometheusCAClient(cmd.PrometheusCAFile)
		if err != nil {
			return nil, nil, err
		}
		klog.Info("successfully loaded ca from file")
	}

	fetcher := prom.NewFetcher(httpClient, parseHeaderArgs(cmd.PrometheusHeaders))
	return mprom.InstrumentFetcher(fetcher, baseURL.Host), baseURL, nil
}

func (cmd *Dashboard) makeAggregator(recorder aggregator.Recorder) (*aggregator.Aggregator, error) {
	fetcher, baseURL, err := cmd.makeFetcher()
	if err != nil {
		return nil, fmt.Errorf("unable to construct Prometheus client: %v", err)
	}

	return aggregator.New(cmd.config.Queries, query.NewURLBuilder(baseURL), fetcher, aggregator.Options{
		RequestTimeout: cmd.RequestTimeout,
		MaxConcurrency: cmd.MaxConcurrency,
		Recorder:       recorder,
	}), nil
}

// runFetch fetches the catalogue once and prints the entries as JSON.
func (cmd *Dashboard) runFetch(c *cobra.Command, out io.Writer) error {
	if err := cmd.loadConfig(c.Flags()); err != nil {
		return err
	}
	agg, err := cmd.makeAggregator(nil)
	if err != nil {
		return err
	}

	entries := agg.FetchAll(c.Context())

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return err
	}

	if !cmd.FailOnError {
		return nil
	}
	var errs []error
	for _, entry := range entries {
		if entry.Failed() {
			errs = append(errs, fmt.Errorf("%s query %q: %w", entry.Mode, entry.Definition.Name, entry.Err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// runServe fetches the catalogue once into a cell and serves it over HTTP
// until the command's context is cancelled.
func (cmd *Dashboard) runServe(c *cobra.Command) error {
	if err := cmd.loadConfig(c.Flags()); err != nil {
		return err
	}

	serviceMetrics, err := metrics.NewMetrics()
	if err != nil {
		return fmt.Errorf("unable to construct metrics: %v", err)
	}
	serviceMetrics.SetCatalogueSize(len(cmd.config.Queries.Instant), len(cmd.config.Queries.Range))

	agg, err := cmd.makeAggregator(serviceMetrics)
	if err != nil {
		return err
	}

	metricsHandler, err := mprom.MetricsHandler(serviceMetrics.Collectors()...)
	if err != nil {
		return fmt.Errorf("unable to construct metrics handler: %v", err)
	}

	srv := newServer(cmd.ListenAddress, metricsHandler)
	return srv.Run(c.Context(), agg)
}

func NewDashboardCommand(out io.Writer) *cobra.Command {
	cmd := &Dashboard{
		PrometheusURL: "http://localhost:9090",
		ListenAddress: ":8080",
	}

	root := &cobra.Command{
		Use:          "dashboard",
		Short:        "Fetch the cluster dashboard metrics from Prometheus",
		SilenceUsage: true,
	}
	cmd.addFlags(root.PersistentFlags())

	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch every catalogue query once and print the results as JSON",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.runFetch(c, out)
		},
	}
	fetch.Flags().BoolVar(&cmd.FailOnError, "fail-on-error", cmd.FailOnError,
		"exit with an error when any query failed")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Fetch every catalogue query once at startup and serve the results",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.runServe(c)
		},
	}
	serve.Flags().StringVar(&cmd.ListenAddress, "listen-address", cmd.ListenAddress,
		"address on which to serve the loaded data, readiness and metrics")

	root.AddCommand(fetch, serve)
	return root
}

func main() {
	logs.InitLogs()
	defer logs.FlushLogs()

	cmd := NewDashboardCommand(os.Stdout)

	// make sure we get klog flags
	local := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	logs.AddGoFlags(local)
	cmd.PersistentFlags().AddGoFlagSet(local)

	// cancelled on SIGTERM and SIGINT
	ctx := genericapiserver.SetupSignalContext()

	if err := cmd.ExecuteContext(ctx); err != nil {
		klog.Fatalf("unable to run dashboard: %v", err)
	}
}

func makePrometheusCAClient(caFilePath string) (*http.Client, error) {
	data, err := os.ReadFile(caFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prometheus-ca-file: %v", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certs found in prometheus-ca-file")
	}

	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: pool,
			},
		},
	}, nil
}

func parseHeaderArgs(args []string) http.Header {
	headers := make(http.Header, len(args))
	for _, h := range args {
		parts := strings.SplitN(h, "=", 2)
		value := ""
		if len(parts) > 1 {
			value = parts[1]
		}
		headers.Add(parts[0], value)
	}
	return headers
}
