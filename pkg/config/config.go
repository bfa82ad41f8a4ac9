package config

import (
	pmodel "github.com/prometheus/common/model"

	"github.com/clustermon/dashboard/pkg/query"
)

type DashboardConfig struct {
	// Queries is the catalogue of queries fetched at startup, split into
	// instant queries and range queries.  Range queries must specify
	// rangeOffset, rangeUnit and rangeStep.
	Queries query.Catalogue `yaml:"queries"`
	// RequestTimeout bounds every individual query.  It may be overridden
	// on the command line.
	RequestTimeout pmodel.Duration `yaml:"requestTimeout,omitempty"`
	// MaxConcurrency caps the number of queries in flight.  Zero means no cap.
	MaxConcurrency int `yaml:"maxConcurrency,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *DashboardConfig {
	return &DashboardConfig{
		Queries: query.Default(),
	}
}
