package config

import "fmt"

type Settings struct {
	Config         Config
	VerboseLogging bool
}

// LoadSettings reads the optional config file, back-fills it from the environment and validates it.
func LoadSettings(pathToConfig string, verbose bool) (*Settings, error) {
	config, err := readFileToConfig(pathToConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.BigQuery.LoadEnv()
	config.BigQuery.LoadDefaultValues()
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	return &Settings{
		Config:         *config,
		VerboseLogging: verbose,
	}, nil
}
