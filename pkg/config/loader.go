package config

import (
	"fmt"
	"io"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// FromFile loads the configuration from a particular file.
func FromFile(filename string) (*DashboardConfig, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to load dashboard config file: %v", err)
	}
	defer file.Close()
	contents, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("unable to load dashboard config file: %v", err)
	}
	return FromYAML(contents)
}

// FromYAML loads the configuration from a blob of YAML.
func FromYAML(contents []byte) (*DashboardConfig, error) {
	var cfg DashboardConfig
	if err := yaml.UnmarshalStrict(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unable to parse dashboard config: %v", err)
	}
	if err := cfg.Queries.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query catalogue: %v", err)
	}
	if cfg.MaxConcurrency < 0 {
		return nil, fmt.Errorf("maxConcurrency must not be negative, got %d", cfg.MaxConcurrency)
	}
	return &cfg, nil
}
