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

package aggregator

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/clustermon/dashboard/pkg/client"
	"github.com/clustermon/dashboard/pkg/query"
)

// URLBuilder turns a definition into a request URL.
type URLBuilder interface {
	Build(def query.Definition, mode query.Mode) (*url.URL, error)
}

// Recorder receives the outcome of every query and of every fetch cycle.
type Recorder interface {
	ObserveQuery(mode string, failed bool)
	ObserveFetch(succeeded, failed int)
}

// Options tunes how FetchAll runs its queries.
type Options struct {
	// RequestTimeout bounds each individual query.  Zero means no timeout
	// beyond the caller's context.
	RequestTimeout time.Duration
	// MaxConcurrency caps the number of queries in flight.  Zero or less
	// runs every query at once.
	MaxConcurrency int
	// Recorder, if set, is told about every outcome.
	Recorder Recorder
}

// Aggregator runs a whole catalogue against the metrics service.
type Aggregator struct {
	catalogue query.Catalogue
	builder   URLBuilder
	fetcher   client.Fetcher
	opts      Options
}

// New creates an Aggregator for the given catalogue.
func New(catalogue query.Catalogue, builder URLBuilder, fetcher client.Fetcher, opts Options) *Aggregator {
	return &Aggregator{
		catalogue: catalogue,
		builder:   builder,
		fetcher:   fetcher,
		opts:      opts,
	}
}

// FetchAll runs every catalogue query concurrently and returns one entry per
// query: instant queries first, then range queries, each in catalogue order.
// It never fails as a whole; individual failures are reported on their
// entries.  Every call is an independent cycle.
func (a *Aggregator) FetchAll(ctx context.Context) []Entry {
	reqs := a.catalogue.Requests()
	entries := make([]Entry, len(reqs))

	var g errgroup.Group
	if a.opts.MaxConcurrency > 0 {
		g.SetLimit(a.opts.MaxConcurrency)
	}
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			// each goroutine owns entries[i]
			entries[i] = a.fetchOne(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, entry := range entries {
		if entry.Failed() {
			failed++
		}
		if a.opts.Recorder != nil {
			a.opts.Recorder.ObserveQuery(entry.Mode.String(), entry.Failed())
		}
	}
	if a.opts.Recorder != nil {
		a.opts.Recorder.ObserveFetch(len(entries)-failed, failed)
	}
	klog.V(2).Infof("fetched %d queries from Prometheus (%d failed)", len(entries), failed)

	return entries
}

// fetchOne resolves a single request into an entry, converting every error
// (including a panic in a collaborator) into a failed entry.
func (a *Aggregator) fetchOne(ctx context.Context, req query.Request) (entry Entry) {
	entry = Entry{Definition: req.Definition, Mode: req.Mode}
	name := req.Definition.Name

	defer func() {
		if r := recover(); r != nil {
			entry.Result = nil
			entry.Err = fmt.Errorf("query %q panicked: %v", name, r)
		}
		if entry.Err != nil {
			klog.Warningf("unable to fetch %s query %q: %v", req.Mode, name, entry.Err)
		}
	}()

	u, err := a.builder.Build(req.Definition, req.Mode)
	if err != nil {
		entry.Err = err
		return entry
	}

	if a.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.RequestTimeout)
		defer cancel()
	}

	res, err := a.fetcher.Fetch(ctx, u)
	if err != nil {
		entry.Err = err
		return entry
	}
	entry.Result = &res
	return entry
}
