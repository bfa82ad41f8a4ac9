/*
Copyright 2024 The Kubernetes Authors.

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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/clustermon/dashboard/pkg/aggregator"
	"github.com/clustermon/dashboard/pkg/sink"
)

const shutdownTimeout = 5 * time.Second

// allFetcher is the part of the aggregator the server needs.
type allFetcher interface {
	FetchAll(ctx context.Context) []aggregator.Entry
}

// server owns the result cell and exposes it over HTTP.
type server struct {
	addr    string
	cell    *sink.Cell
	handler http.Handler
}

func newServer(addr string, metricsHandler http.Handler) *server {
	s := &server{
		addr: addr,
		cell: sink.NewCell(),
	}
	s.cell.Subscribe(func(entries []aggregator.Entry) {
		failed := 0
		for _, entry := range entries {
			if entry.Failed() {
				failed++
			}
		}
		klog.Infof("dashboard data loaded: %d entries, %d failed", len(entries), failed)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/entries", s.serveEntries)
	mux.HandleFunc("/readyz", s.serveReady)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	s.handler = mux
	return s
}

// load runs a single fetch cycle and stores its result.
func (s *server) load(ctx context.Context, agg allFetcher) {
	s.cell.Store(agg.FetchAll(ctx))
}

// Run fetches once in the background and serves until ctx is cancelled.
func (s *server) Run(ctx context.Context, agg allFetcher) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.load(ctx, agg)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("unable to shut down server cleanly: %v", err)
		}
	}()

	klog.Infof("serving dashboard data on %s", s.addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) serveEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := s.cell.Load()
	if entries == nil {
		entries = []aggregator.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		klog.Errorf("unable to encode entries: %v", err)
	}
}

func (s *server) serveReady(w http.ResponseWriter, _ *http.Request) {
	if !s.cell.Loaded() {
		http.Error(w, "dashboard data not loaded", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
