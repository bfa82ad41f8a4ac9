/*
Copyright 2018 The Kubernetes Authors.

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

package fake

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	pmodel "github.com/prometheus/common/model"

	"github.com/clustermon/dashboard/pkg/client"
)

// FakeFetcher is a fake instance of client.Fetcher.  Responses are looked up
// by the PromQL expression carried in the request URL.
type FakeFetcher struct {
	// ErrQueries are queries that result in an error
	ErrQueries map[string]error
	// QueryResults are non-error responses to instant queries
	QueryResults map[string]client.QueryResult
	// RangeResults are non-error responses to range queries
	RangeResults map[string]client.QueryResult
	// Delay, when set, is how long to wait before answering a query.
	Delay func(query string) time.Duration

	mu       sync.Mutex
	requests []*url.URL
}

func (c *FakeFetcher) Fetch(ctx context.Context, u *url.URL) (client.QueryResult, error) {
	c.mu.Lock()
	c.requests = append(c.requests, u)
	c.mu.Unlock()

	query := u.Query().Get("query")
	if c.Delay != nil {
		select {
		case <-time.After(c.Delay(query)):
		case <-ctx.Done():
			return client.QueryResult{}, &client.Error{Type: client.ErrTransport, Msg: ctx.Err().Error(), Err: ctx.Err()}
		}
	}

	if err, found := c.ErrQueries[query]; found {
		return client.QueryResult{}, err
	}

	isRange := strings.HasSuffix(u.Path, "query_range")
	if isRange {
		if res, found := c.RangeResults[query]; found {
			return res, nil
		}
		return client.QueryResult{Type: pmodel.ValMatrix, Series: []client.Series{}}, nil
	}

	if res, found := c.QueryResults[query]; found {
		return res, nil
	}
	return client.QueryResult{Type: pmodel.ValVector, Series: []client.Series{}}, nil
}

// Requests returns the URLs fetched so far, in arrival order.
func (c *FakeFetcher) Requests() []*url.URL {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*url.URL(nil), c.requests...)
}
