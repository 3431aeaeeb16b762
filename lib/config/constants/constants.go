package constants

const (
	// Env vars that back-fill the config file. They only apply when the matching YAML value is empty.
	ProjectIDEnvKey         = "GOOGLE_CLOUD_PROJECT"
	PathToCredentialsEnvKey = "GOOGLE_APPLICATION_CREDENTIALS"
	DatasetNameEnvKey       = "BIGQUERY_DATASET_NAME"
	LocationEnvKey          = "BIGQUERY_LOCATION"

	DefaultLocation = "US"
)

// ExporterKind is used for the Telemetry package
type ExporterKind string

const (
	Datadog ExporterKind = "datadog"
)

var supportedExporterKinds = []ExporterKind{Datadog}

func IsValidExporter(kind ExporterKind) bool {
	for _, supported := range supportedExporterKinds {
		if kind == supported {
			return true
		}
	}

	return false
}
