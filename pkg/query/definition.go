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
	"fmt"
	"strconv"

	pmodel "github.com/prometheus/common/model"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Mode is the way a Definition is executed against the query service.
type Mode int

const (
	// Instant evaluates the query at a single point in time (now).
	Instant Mode = iota
	// Range evaluates the query over a time window at a fixed step.
	Range
)

func (m Mode) String() string {
	switch m {
	case Instant:
		return "instant"
	case Range:
		return "range"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText lets modes show up by name in JSON and YAML output.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// RangeUnit is the unit in which RangeOffset is expressed.
type RangeUnit string

const (
	// Day is currently the only unit the URL builder can compute a window for.
	Day RangeUnit = "day"
)

// Definition describes one query to run against the metrics service.
type Definition struct {
	// Label is a human-readable description, used for display only.
	Label string `yaml:"label" json:"label"`
	// Name is a short identifier, unique within a catalogue.
	Name string `yaml:"name" json:"name"`
	// Query is a PromQL expression, passed through verbatim.
	Query string `yaml:"query" json:"query"`

	// RangeOffset is the size of the window, in RangeUnit units, ending now.
	RangeOffset int `yaml:"rangeOffset,omitempty" json:"rangeOffset,omitempty"`
	// RangeUnit is the unit of RangeOffset.
	RangeUnit RangeUnit `yaml:"rangeUnit,omitempty" json:"rangeUnit,omitempty"`
	// RangeStep is the resolution of the range query in the query service's
	// own step syntax (e.g. "15m"). It is passed verbatim.
	RangeStep string `yaml:"rangeStep,omitempty" json:"rangeStep,omitempty"`
}

// HasRange reports whether any of the range parameters is set.
func (d Definition) HasRange() bool {
	return d.RangeOffset != 0 || d.RangeUnit != "" || d.RangeStep != ""
}

// Request pairs a Definition with the mode it is executed in.
type Request struct {
	Definition Definition
	Mode       Mode
}

// Catalogue is the fixed set of queries the dashboard asks for.  Entries are
// partitioned by execution mode; order within each partition is preserved.
type Catalogue struct {
	Instant []Definition `yaml:"instant"`
	Range   []Definition `yaml:"range"`
}

// Requests expands the catalogue into concrete requests: all instant
// queries first, then all range queries, each in catalogue order.
func (c Catalogue) Requests() []Request {
	reqs := make([]Request, 0, len(c.Instant)+len(c.Range))
	for _, def := range c.Instant {
		reqs = append(reqs, Request{Definition: def, Mode: Instant})
	}
	for _, def := range c.Range {
		reqs = append(reqs, Request{Definition: def, Mode: Range})
	}
	return reqs
}

// Len returns the total number of definitions in both partitions.
func (c Catalogue) Len() int {
	return len(c.Instant) + len(c.Range)
}

// Validate checks the catalogue for authoring mistakes.  Unknown range units
// pass; Build rejects them per query.
func (c Catalogue) Validate() error {
	seen := sets.NewString()
	check := func(def Definition, mode Mode) error {
		if def.Name == "" {
			return fmt.Errorf("%s query %q has no name", mode, def.Label)
		}
		if seen.Has(def.Name) {
			return fmt.Errorf("duplicate query name %q", def.Name)
		}
		seen.Insert(def.Name)
		if def.Query == "" {
			return fmt.Errorf("query %q has an empty expression", def.Name)
		}

		switch mode {
		case Instant:
			if def.HasRange() {
				return fmt.Errorf("instant query %q must not set range parameters", def.Name)
			}
		case Range:
			if def.RangeOffset <= 0 {
				return fmt.Errorf("range query %q must have a positive rangeOffset, got %d", def.Name, def.RangeOffset)
			}
			if def.RangeUnit == "" {
				return fmt.Errorf("range query %q has no rangeUnit", def.Name)
			}
			if err := validateStep(def.RangeStep); err != nil {
				return fmt.Errorf("range query %q: %v", def.Name, err)
			}
		}
		return nil
	}

	for _, def := range c.Instant {
		if err := check(def, Instant); err != nil {
			return err
		}
	}
	for _, def := range c.Range {
		if err := check(def, Range); err != nil {
			return err
		}
	}
	return nil
}

// validateStep accepts the same step formats as the Prometheus HTTP API:
// a duration ("15m") or a float number of seconds ("900").
func validateStep(step string) error {
	if step == "" {
		return fmt.Errorf("rangeStep must be set")
	}
	if _, err := pmodel.ParseDuration(step); err == nil {
		return nil
	}
	if secs, err := strconv.ParseFloat(step, 64); err == nil && secs > 0 {
		return nil
	}
	return fmt.Errorf("invalid rangeStep %q", step)
}
