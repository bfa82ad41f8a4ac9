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

package query

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"k8s.io/utils/clock"
)

const (
	InstantEndpoint = "/api/v1/query"
	RangeEndpoint   = "/api/v1/query_range"
)

// ErrUnsupportedRangeUnit is matched by errors.Is for any
// UnsupportedRangeUnitError.
var ErrUnsupportedRangeUnit = errors.New("unsupported range unit")

// UnsupportedRangeUnitError is returned when a range query asks for a window
// in a unit the builder cannot compute.
type UnsupportedRangeUnitError struct {
	Name string
	Unit RangeUnit
}

func (e *UnsupportedRangeUnitError) Error() string {
	return fmt.Sprintf("range query %q: unsupported range unit %q", e.Name, e.Unit)
}

func (e *UnsupportedRangeUnitError) Is(target error) bool {
	return target == ErrUnsupportedRangeUnit
}

// URLBuilder turns definitions into fully-qualified Prometheus HTTP API URLs.
type URLBuilder struct {
	// BaseURL is the location of the Prometheus server.  Any path it carries
	// is kept as a prefix of the API endpoints.
	BaseURL *url.URL
	// Clock supplies "now" for range windows.
	Clock clock.PassiveClock
}

// NewURLBuilder creates a URLBuilder for the given server using the wall clock.
func NewURLBuilder(baseURL *url.URL) *URLBuilder {
	return &URLBuilder{
		BaseURL: baseURL,
		Clock:   clock.RealClock{},
	}
}

// Build produces the request URL for def executed in the given mode.  It has
// no side effects besides reading the clock.
func (b *URLBuilder) Build(def Definition, mode Mode) (*url.URL, error) {
	vals := url.Values{}
	vals.Set("query", def.Query)

	var endpoint string
	switch mode {
	case Instant:
		endpoint = InstantEndpoint
	case Range:
		endpoint = RangeEndpoint
		start, end, err := b.window(def)
		if err != nil {
			return nil, err
		}
		vals.Set("start", start.Format(time.RFC3339))
		vals.Set("end", end.Format(time.RFC3339))
		vals.Set("step", def.RangeStep)
	default:
		return nil, fmt.Errorf("query %q: unknown query mode %v", def.Name, mode)
	}

	u := *b.BaseURL
	u.Path = path.Join(b.BaseURL.Path, endpoint)
	u.RawQuery = vals.Encode()
	return &u, nil
}

// window computes the [start, end] interval of a range query, ending now.
func (b *URLBuilder) window(def Definition) (time.Time, time.Time, error) {
	var unit time.Duration
	switch def.RangeUnit {
	case Day:
		unit = 24 * time.Hour
	default:
		return time.Time{}, time.Time{}, &UnsupportedRangeUnitError{Name: def.Name, Unit: def.RangeUnit}
	}

	if def.RangeOffset <= 0 || def.RangeStep == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("range query %q has no usable window (rangeOffset=%d, rangeStep=%q)", def.Name, def.RangeOffset, def.RangeStep)
	}

	end := b.Clock.Now().UTC().Truncate(time.Second)
	return end.Add(-time.Duration(def.RangeOffset) * unit), end, nil
}
