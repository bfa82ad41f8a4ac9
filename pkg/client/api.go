// Copyright 2017 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package client fetches and decodes query results from the Prometheus HTTP API:
// http://prometheus.io/docs/querying/api/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"k8s.io/klog/v2"
)

// httpFetcher is a Fetcher implemented in terms of an underlying http.Client.
type httpFetcher struct {
	client  *http.Client
	headers http.Header
}

// NewFetcher builds a Fetcher that issues GET requests with the given HTTP
// client, adding headers to every request.
func NewFetcher(client *http.Client, headers http.Header) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpFetcher{
		client:  client,
		headers: headers,
	}
}

func (c *httpFetcher) Fetch(ctx context.Context, u *url.URL) (QueryResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return QueryResult{}, &Error{
			Type: ErrTransport,
			Msg:  fmt.Sprintf("error constructing HTTP request to Prometheus: %v", err),
			Err:  err,
		}
	}
	for key, values := range c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	klog.V(4).Infof("GET %s", u.String())

	resp, err := c.client.Do(req)
	if err != nil {
		return QueryResult{}, &Error{
			Type: ErrTransport,
			Msg:  err.Error(),
			Err:  err,
		}
	}
	defer resp.Body.Close()

	if klog.V(6).Enabled() {
		klog.Infof("GET %s %s", u.String(), resp.Status)
	}

	code := resp.StatusCode

	// codes that aren't 2xx, 400, 422, or 503 won't return JSON objects
	if code/100 != 2 && code != 400 && code != 422 && code != 503 {
		return QueryResult{}, &Error{
			Type: ErrDecode,
			Msg:  fmt.Sprintf("unknown response code %d", code),
		}
	}

	var body io.Reader = resp.Body
	if klog.V(8).Enabled() {
		data, err := io.ReadAll(body)
		if err != nil {
			return QueryResult{}, &Error{
				Type: ErrTransport,
				Msg:  fmt.Sprintf("unable to read response body: %v", err),
				Err:  err,
			}
		}
		klog.Infof("Response Body: %s", string(data))
		body = bytes.NewReader(data)
	}

	return decodeResponse(body)
}

// decodeResponse reads a Prometheus API envelope and the query result it carries.
func decodeResponse(body io.Reader) (QueryResult, error) {
	var res APIResponse
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		return QueryResult{}, &Error{
			Type: ErrDecode,
			Msg:  err.Error(),
			Err:  err,
		}
	}

	switch res.Status {
	case ResponseSucceeded:
	case ResponseError:
		return QueryResult{}, &Error{
			Type:        ErrService,
			Msg:         res.Error,
			ServiceType: res.ErrorType,
		}
	default:
		return QueryResult{}, &Error{
			Type: ErrDecode,
			Msg:  fmt.Sprintf("unexpected response status %q", res.Status),
		}
	}

	if len(res.Data) == 0 {
		return QueryResult{}, &Error{
			Type: ErrDecode,
			Msg:  "successful response carries no data",
		}
	}

	var queryRes QueryResult
	if err := json.Unmarshal(res.Data, &queryRes); err != nil {
		return QueryResult{}, &Error{
			Type: ErrDecode,
			Msg:  err.Error(),
			Err:  err,
		}
	}
	return queryRes, nil
}
