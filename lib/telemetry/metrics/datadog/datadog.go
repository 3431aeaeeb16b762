package datadog

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/artie-labs/bqsnippets/lib/maputil"
	"github.com/artie-labs/bqsnippets/lib/stringutil"
	"github.com/artie-labs/bqsnippets/lib/telemetry/metrics/base"
)

const (
	Tags     = "tags"
	Sampling = "sampling"
	// DefaultSampleRate will make sure we do not sample by measuring 100% of our metrics
	DefaultSampleRate = 1

	Namespace = "namespace"
	// DefaultNamespace will be prefixed with "bqsnippets."
	DefaultNamespace = "bqsnippets."

	DatadogAddr = "addr"
	// DefaultAddr is the default address for where the DD agent would be running on a single host machine
	DefaultAddr = "127.0.0.1:8125"
)

// getSampleRate will first parse the val to get a float
// Then it will check if float is a valid sample rate.
// If it's invalid, it will return the default sample, else the passed in rate
func getSampleRate(val any) float64 {
	floatVal, err := strconv.ParseFloat(fmt.Sprint(val), 64)
	if err != nil {
		return DefaultSampleRate
	}

	if floatVal > 1 || floatVal <= 0 {
		return DefaultSampleRate
	}

	return floatVal
}

func getAddress(settings map[string]any) string {
	host := os.Getenv("TELEMETRY_HOST")
	port := os.Getenv("TELEMETRY_PORT")
	if !stringutil.Empty(host, port) {
		address := fmt.Sprintf("%s:%s", host, port)
		slog.Info("Overriding telemetry address with env vars", slog.String("address", address))
		return address
	}

	return fmt.Sprint(maputil.GetKeyFromMap(settings, DatadogAddr, DefaultAddr))
}

func NewDatadogClient(settings map[string]any) (base.Client, error) {
	datadogClient, err := statsd.New(getAddress(settings),
		statsd.WithNamespace(fmt.Sprint(maputil.GetKeyFromMap(settings, Namespace, DefaultNamespace))),
		statsd.WithTags(getTags(maputil.GetKeyFromMap(settings, Tags, []string{}))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client: %w", err)
	}

	return &statsClient{
		client: datadogClient,
		rate:   getSampleRate(maputil.GetKeyFromMap(settings, Sampling, DefaultSampleRate)),
	}, nil
}

type statsClient struct {
	client *statsd.Client
	rate   float64
}

func (s *statsClient) Timing(name string, value time.Duration, tags map[string]string) {
	_ = s.client.Timing(name, value, toDatadogTags(tags), s.rate)
}

func (s *statsClient) Incr(name string, tags map[string]string) {
	_ = s.client.Incr(name, toDatadogTags(tags), s.rate)
}

func (s *statsClient) Count(name string, value int64, tags map[string]string) {
	_ = s.client.Count(name, value, toDatadogTags(tags), s.rate)
}

func (s *statsClient) Gauge(name string, value float64, tags map[string]string) {
	_ = s.client.Gauge(name, value, toDatadogTags(tags), s.rate)
}

// Flush pushes whatever is buffered, every CLI invocation is short-lived so this runs before exit.
func (s *statsClient) Flush() {
	if err := s.client.Flush(); err != nil {
		slog.Warn("Failed to flush metrics", slog.Any("err", err))
	}
}
