package config

import (
	"cmp"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/bigquery"

	"github.com/artie-labs/bqsnippets/lib/config/constants"
)

type BigQuery struct {
	// PathToCredentials is _optional_ if you have GOOGLE_APPLICATION_CREDENTIALS set as an env var
	// Links to credentials: https://cloud.google.com/docs/authentication/application-default-credentials#GAC
	PathToCredentials string `yaml:"pathToCredentials"`
	DefaultDataset    string `yaml:"defaultDataset"`
	ProjectID         string `yaml:"projectID"`
	Location          string `yaml:"location"`
	// Endpoint points the client at an emulator, requests are then sent without authentication.
	Endpoint string `yaml:"endpoint"`
	// StorageEndpoint is the GCS counterpart of Endpoint, used when staging local files. It is required with Endpoint.
	StorageEndpoint string `yaml:"storageEndpoint"`
}

// LoadEnv fills in whatever was left empty in the config file from the environment.
func (b *BigQuery) LoadEnv() {
	b.ProjectID = cmp.Or(b.ProjectID, os.Getenv(constants.ProjectIDEnvKey))
	b.PathToCredentials = cmp.Or(b.PathToCredentials, os.Getenv(constants.PathToCredentialsEnvKey))
	b.DefaultDataset = cmp.Or(b.DefaultDataset, os.Getenv(constants.DatasetNameEnvKey))
	b.Location = cmp.Or(b.Location, os.Getenv(constants.LocationEnvKey))
}

func (b *BigQuery) LoadDefaultValues() {
	if b.ProjectID == "" {
		// The client library will look it up from the credentials or the metadata server.
		b.ProjectID = bigquery.DetectProjectID
	}

	if b.Location == "" {
		b.Location = constants.DefaultLocation
	}
}

func (b BigQuery) Validate() error {
	if b.PathToCredentials != "" {
		if _, err := os.Stat(b.PathToCredentials); err != nil {
			return fmt.Errorf("bigquery credentials file %q is not readable: %w", b.PathToCredentials, err)
		}
	}

	return nil
}

// Dataset returns the dataset to operate on, falling back to the configured default.
func (b BigQuery) Dataset(dataset string) (string, error) {
	if dataset = cmp.Or(dataset, b.DefaultDataset); strings.TrimSpace(dataset) == "" {
		return "", fmt.Errorf("dataset name is required, pass one in or set %s", constants.DatasetNameEnvKey)
	}

	return dataset, nil
}

// DSN identifies the project, location and default dataset in logs: bigquery://projectID/[location/]datasetID
func (b BigQuery) DSN() string {
	if b.Location != "" {
		return fmt.Sprintf("bigquery://%s/%s/%s", b.ProjectID, b.Location, b.DefaultDataset)
	}

	return fmt.Sprintf("bigquery://%s/%s", b.ProjectID, b.DefaultDataset)
}
