package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/artie-labs/bqsnippets/lib/config/constants"
)

type Sentry struct {
	DSN string `yaml:"dsn"`
}

type Metrics struct {
	Provider constants.ExporterKind `yaml:"provider"`
	Settings map[string]any         `yaml:"settings,omitempty"`
}

type Reporting struct {
	Sentry *Sentry `yaml:"sentry"`
}

type Telemetry struct {
	Metrics Metrics `yaml:"metrics"`
}

type Config struct {
	BigQuery  BigQuery  `yaml:"bigquery"`
	Reporting Reporting `yaml:"reporting"`
	Telemetry Telemetry `yaml:"telemetry"`
}

func readFileToConfig(pathToConfig string) (*Config, error) {
	var config Config
	if pathToConfig == "" {
		// Running off the environment alone is fine.
		return &config, nil
	}

	bytes, err := os.ReadFile(pathToConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(bytes, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if kind := c.Telemetry.Metrics.Provider; kind != "" && !constants.IsValidExporter(kind) {
		return fmt.Errorf("config is invalid, metrics provider %q is not supported", kind)
	}

	if err := c.BigQuery.Validate(); err != nil {
		return fmt.Errorf("config is invalid: %w", err)
	}

	return nil
}
