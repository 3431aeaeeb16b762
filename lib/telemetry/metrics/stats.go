package metrics

import (
	"log/slog"

	"github.com/artie-labs/bqsnippets/lib/config"
	"github.com/artie-labs/bqsnippets/lib/config/constants"
	"github.com/artie-labs/bqsnippets/lib/telemetry/metrics/base"
	"github.com/artie-labs/bqsnippets/lib/telemetry/metrics/datadog"
)

func LoadExporter(cfg config.Config) base.Client {
	kind := cfg.Telemetry.Metrics.Provider
	if !constants.IsValidExporter(kind) {
		slog.Debug("Invalid or no exporter kind passed in, skipping...", slog.Any("exporterKind", kind))
		return NullMetricsProvider{}
	}

	switch kind {
	case constants.Datadog:
		statsClient, exportErr := datadog.NewDatadogClient(cfg.Telemetry.Metrics.Settings)
		if exportErr != nil {
			slog.Error("Metrics client error", slog.Any("err", exportErr), slog.Any("provider", kind))
		} else {
			slog.Info("Metrics client loaded", slog.Any("provider", kind))
			return statsClient
		}
	}

	return NullMetricsProvider{}
}
