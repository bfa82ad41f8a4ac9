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
	"encoding/json"
	"errors"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	pmodel "github.com/prometheus/common/model"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/clustermon/dashboard/pkg/client"
	fakeprom "github.com/clustermon/dashboard/pkg/client/fake"
	"github.com/clustermon/dashboard/pkg/query"
)

func testCatalogue() query.Catalogue {
	return query.Catalogue{
		Instant: []query.Definition{
			{Label: "Available CPUs", Name: "cpus_available", Query: "sum(cpus_idle)"},
			{Label: "Available GPUs", Name: "gpus_available", Query: "sum(gpus_idle)"},
			{Label: "Pending jobs", Name: "jobs_pending", Query: "sum(queue_pending)"},
		},
		Range: []query.Definition{
			{Label: "CPU history", Name: "cpus_history", Query: "sum(cpus_idle)", RangeOffset: 1, RangeUnit: query.Day, RangeStep: "15m"},
			{Label: "Wait time", Name: "wait_history", Query: "avg(job_wait_seconds)", RangeOffset: 7, RangeUnit: query.Day, RangeStep: "1h"},
		},
	}
}

func testBuilder() *query.URLBuilder {
	baseURL, err := url.Parse("http://prometheus:9090")
	Expect(err).NotTo(HaveOccurred())
	return &query.URLBuilder{
		BaseURL: baseURL,
		Clock:   clocktesting.NewFakePassiveClock(time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)),
	}
}

func entryNames(entries []Entry) []string {
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Definition.Name)
	}
	return names
}

type fakeRecorder struct {
	mu        sync.Mutex
	outcomes  map[string]int
	succeeded int
	failed    int
}

func (r *fakeRecorder) ObserveQuery(mode string, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	if failed {
		r.outcomes[mode+"/failure"]++
	} else {
		r.outcomes[mode+"/success"]++
	}
}

func (r *fakeRecorder) ObserveFetch(succeeded, failed int) {
	r.succeeded, r.failed = succeeded, failed
}

type panickyFetcher struct{}

func (panickyFetcher) Fetch(context.Context, *url.URL) (client.QueryResult, error) {
	panic("boom")
}

type concurrencyFetcher struct {
	inFlight, maxInFlight int32
}

func (f *concurrencyFetcher) Fetch(context.Context, *url.URL) (client.QueryResult, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&f.maxInFlight)
		if cur <= peak || atomic.CompareAndSwapInt32(&f.maxInFlight, peak, cur) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&f.inFlight, -1)
	return client.QueryResult{Type: pmodel.ValVector}, nil
}

var _ = Describe("Aggregator", func() {
	var (
		cat     query.Catalogue
		fetcher *fakeprom.FakeFetcher
	)

	BeforeEach(func() {
		cat = testCatalogue()
		fetcher = &fakeprom.FakeFetcher{
			QueryResults: map[string]client.QueryResult{
				"sum(cpus_idle)": {
					Type: pmodel.ValVector,
					Series: []client.Series{{
						Metric:  pmodel.Metric{"cluster": "x"},
						Samples: []pmodel.SamplePair{{Timestamp: pmodel.TimeFromUnix(1700000000), Value: 4}},
					}},
				},
			},
			RangeResults: map[string]client.QueryResult{
				"sum(cpus_idle)": {
					Type: pmodel.ValMatrix,
					Series: []client.Series{{
						Metric: pmodel.Metric{"cluster": "x"},
						Samples: []pmodel.SamplePair{
							{Timestamp: pmodel.TimeFromUnix(1700000000), Value: 4},
							{Timestamp: pmodel.TimeFromUnix(1700000900), Value: 5},
						},
					}},
				},
			},
		}
	})

	It("should return one entry per query in catalogue order", func() {
		agg := New(cat, testBuilder(), fetcher, Options{})
		entries := agg.FetchAll(context.Background())

		Expect(entryNames(entries)).To(Equal([]string{"cpus_available", "gpus_available", "jobs_pending", "cpus_history", "wait_history"}))
		for i, entry := range entries {
			Expect(entry.Failed()).To(BeFalse())
			Expect(entry.Result).NotTo(BeNil())
			if i < len(cat.Instant) {
				Expect(entry.Mode).To(Equal(query.Instant))
			} else {
				Expect(entry.Mode).To(Equal(query.Range))
			}
		}

		Expect(entries[0].Result.Series).To(HaveLen(1))
		Expect(entries[0].Result.Series[0].Samples).To(HaveLen(1))
		Expect(entries[3].Result.Series[0].Samples).To(HaveLen(2))
		Expect(fetcher.Requests()).To(HaveLen(cat.Len()))
	})

	It("should isolate a failing query from its siblings", func() {
		fetcher.ErrQueries = map[string]error{
			"sum(gpus_idle)": &client.Error{Type: client.ErrService, Msg: "bad query"},
		}
		agg := New(cat, testBuilder(), fetcher, Options{})
		entries := agg.FetchAll(context.Background())

		Expect(entries).To(HaveLen(len(cat.Instant) + len(cat.Range)))
		for _, entry := range entries {
			if entry.Definition.Name == "gpus_available" {
				Expect(entry.Failed()).To(BeTrue())
				Expect(entry.Result).To(BeNil())
				Expect(client.IsServiceError(entry.Err)).To(BeTrue())
				continue
			}
			Expect(entry.Failed()).To(BeFalse(), "entry %s should have succeeded", entry.Definition.Name)
		}
	})

	It("should distinguish an empty result from a failure", func() {
		entries := New(cat, testBuilder(), fetcher, Options{}).FetchAll(context.Background())

		jobs := entries[2]
		Expect(jobs.Definition.Name).To(Equal("jobs_pending"))
		Expect(jobs.Failed()).To(BeFalse())
		Expect(jobs.Result.Series).To(BeEmpty())
	})

	It("should keep catalogue order regardless of completion order", func() {
		fetcher.Delay = func(string) time.Duration {
			return time.Duration(rand.Intn(25)) * time.Millisecond
		}
		agg := New(cat, testBuilder(), fetcher, Options{})
		expected := entryNames(agg.FetchAll(context.Background()))

		for i := 0; i < 10; i++ {
			Expect(entryNames(agg.FetchAll(context.Background()))).To(Equal(expected))
		}
	})

	It("should report unsupported range units as a failed entry without issuing a request", func() {
		cat.Range = append(cat.Range, query.Definition{Name: "weekly", Query: "sum(weekly)", RangeOffset: 2, RangeUnit: "week", RangeStep: "1h"})
		entries := New(cat, testBuilder(), fetcher, Options{}).FetchAll(context.Background())

		last := entries[len(entries)-1]
		Expect(last.Definition.Name).To(Equal("weekly"))
		Expect(last.Failed()).To(BeTrue())
		Expect(errors.Is(last.Err, query.ErrUnsupportedRangeUnit)).To(BeTrue())

		for _, u := range fetcher.Requests() {
			Expect(u.Query().Get("query")).NotTo(Equal("sum(weekly)"))
		}
	})

	It("should turn a panicking fetcher into failed entries", func() {
		entries := New(cat, testBuilder(), panickyFetcher{}, Options{}).FetchAll(context.Background())

		Expect(entries).To(HaveLen(cat.Len()))
		for _, entry := range entries {
			Expect(entry.Failed()).To(BeTrue())
			Expect(entry.Err.Error()).To(ContainSubstring("panicked"))
		}
	})

	It("should time out slow queries individually", func() {
		fetcher.Delay = func(q string) time.Duration {
			if q == "sum(queue_pending)" {
				return time.Minute
			}
			return 0
		}
		entries := New(cat, testBuilder(), fetcher, Options{RequestTimeout: 50 * time.Millisecond}).FetchAll(context.Background())

		Expect(entries[2].Failed()).To(BeTrue())
		Expect(client.IsTransportError(entries[2].Err)).To(BeTrue())
		Expect(errors.Is(entries[2].Err, context.DeadlineExceeded)).To(BeTrue())
		Expect(entries[0].Failed()).To(BeFalse())
	})

	It("should cancel in-flight queries with the caller's context", func() {
		fetcher.Delay = func(string) time.Duration { return time.Minute }
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		entries := New(cat, testBuilder(), fetcher, Options{}).FetchAll(ctx)
		Expect(entries).To(HaveLen(cat.Len()))
		for _, entry := range entries {
			Expect(entry.Failed()).To(BeTrue())
		}
	})

	It("should respect the concurrency limit", func() {
		limited := &concurrencyFetcher{}
		New(cat, testBuilder(), limited, Options{MaxConcurrency: 2}).FetchAll(context.Background())
		Expect(atomic.LoadInt32(&limited.maxInFlight)).To(BeNumerically("<=", 2))

		unlimited := &concurrencyFetcher{}
		New(cat, testBuilder(), unlimited, Options{}).FetchAll(context.Background())
		Expect(atomic.LoadInt32(&unlimited.maxInFlight)).To(BeNumerically(">", 1))
	})

	It("should tell the recorder about every outcome", func() {
		fetcher.ErrQueries = map[string]error{
			"avg(job_wait_seconds)": &client.Error{Type: client.ErrDecode, Msg: "garbage"},
		}
		recorder := &fakeRecorder{}
		New(cat, testBuilder(), fetcher, Options{Recorder: recorder}).FetchAll(context.Background())

		Expect(recorder.outcomes).To(Equal(map[string]int{
			"instant/success": 3,
			"range/success":   1,
			"range/failure":   1,
		}))
		Expect(recorder.succeeded).To(Equal(4))
		Expect(recorder.failed).To(Equal(1))
	})

	It("should render entries as JSON", func() {
		fetcher.ErrQueries = map[string]error{
			"sum(gpus_idle)": &client.Error{Type: client.ErrService, Msg: "bad query"},
		}
		entries := New(cat, testBuilder(), fetcher, Options{}).FetchAll(context.Background())

		raw, err := json.Marshal(entries)
		Expect(err).NotTo(HaveOccurred())

		var decoded []map[string]interface{}
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
		Expect(decoded[0]["failed"]).To(BeFalse())
		Expect(decoded[0]["mode"]).To(Equal("instant"))
		Expect(decoded[1]["failed"]).To(BeTrue())
		Expect(decoded[1]["error"]).To(Equal("service: bad query"))
		Expect(decoded[1]).NotTo(HaveKey("result"))
		Expect(decoded[3]["mode"]).To(Equal("range"))
	})
})
