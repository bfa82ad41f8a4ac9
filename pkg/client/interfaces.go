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
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/prometheus/common/model"
)

// Fetcher executes a single, fully-built query URL against the Prometheus
// HTTP API and returns the decoded series.  Implementations do not retry.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (QueryResult, error)
}

// Series is one time series: its identifying labels and one or more samples.
// Instant queries yield exactly one sample per series, range queries yield
// the samples of the window in timestamp order.
type Series struct {
	Metric  model.Metric       `json:"metric"`
	Samples []model.SamplePair `json:"samples"`
}

func (s *Series) String() string {
	lblStrings := make([]string, 0, len(s.Metric))
	for k, v := range s.Metric {
		lblStrings = append(lblStrings, fmt.Sprintf("%s=%q", k, v))
	}
	sort.Strings(lblStrings)
	return fmt.Sprintf("{%s}[%d samples]", strings.Join(lblStrings, ","), len(s.Samples))
}

// QueryResult is the result of a query, normalized so that vector, matrix and
// scalar payloads all read as a list of series.
type QueryResult struct {
	// Type is the resultType reported by the server, or the type inferred
	// from the payload when the server did not send one.
	Type   model.ValueType `json:"resultType"`
	Series []Series        `json:"series"`
}

// rawSeries is a vector or matrix element as sent on the wire.
type rawSeries struct {
	Metric model.Metric       `json:"metric"`
	Value  *model.SamplePair  `json:"value"`
	Values []model.SamplePair `json:"values"`
}

func (qr *QueryResult) UnmarshalJSON(b []byte) error {
	v := struct {
		Type   model.ValueType `json:"resultType"`
		Result json.RawMessage `json:"result"`
	}{}

	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v.Result == nil {
		return fmt.Errorf("response data has no result")
	}

	switch v.Type {
	case model.ValScalar:
		var sample model.SamplePair
		if err := json.Unmarshal(v.Result, &sample); err != nil {
			return err
		}
		qr.Type = v.Type
		qr.Series = []Series{{Metric: model.Metric{}, Samples: []model.SamplePair{sample}}}
		return nil

	case model.ValVector, model.ValMatrix, model.ValNone:
		var raw []rawSeries
		if err := json.Unmarshal(v.Result, &raw); err != nil {
			return err
		}
		series, typ, err := normalizeSeries(raw)
		if err != nil {
			return err
		}
		qr.Type = v.Type
		if qr.Type == model.ValNone {
			qr.Type = typ
		}
		qr.Series = series
		return nil

	default:
		return fmt.Errorf("unexpected value type %q", v.Type)
	}
}

// normalizeSeries folds the instant ("value") and range ("values") element
// shapes into Series, and reports which shape it saw.
func normalizeSeries(raw []rawSeries) ([]Series, model.ValueType, error) {
	series := make([]Series, 0, len(raw))
	typ := model.ValNone
	for i, r := range raw {
		var s Series
		s.Metric = r.Metric
		if s.Metric == nil {
			s.Metric = model.Metric{}
		}

		switch {
		case r.Value != nil:
			s.Samples = []model.SamplePair{*r.Value}
			typ = model.ValVector
		case r.Values != nil:
			s.Samples = r.Values
			typ = model.ValMatrix
		default:
			return nil, model.ValNone, fmt.Errorf("series %d has neither value nor values", i)
		}
		series = append(series, s)
	}
	return series, typ, nil
}
