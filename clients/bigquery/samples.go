package bigquery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/artie-labs/bqsnippets/lib/bigquerylib"
	"github.com/artie-labs/bqsnippets/lib/config"
	"github.com/artie-labs/bqsnippets/lib/telemetry/metrics/base"
)

const (
	operationCountMetric    = "snippets.operation.count"
	operationDurationMetric = "snippets.operation.duration"
)

// Samples issues one management call per method. Every call builds its own client from cfg,
// prints a human-readable outcome to out and returns nil or a [*ServiceError]. opts are handed to the BigQuery client
// and, for staged loads, to the storage client as well.
type Samples struct {
	cfg     config.BigQuery
	out     io.Writer
	metrics base.Client
	opts    []option.ClientOption
}

func NewSamples(cfg config.BigQuery, out io.Writer, metricsClient base.Client, opts ...option.ClientOption) Samples {
	return Samples{
		cfg:     cfg,
		out:     out,
		metrics: metricsClient,
		opts:    opts,
	}
}

type operation struct {
	name    string
	failure string
}

// requireNames takes (kind, value) pairs and returns an error for the first empty value.
func requireNames(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%s name is required", pairs[i])
		}
	}

	return nil
}

// run acquires a client, hands it to fn and reports the outcome. fn returns the text printed on success.
func (s Samples) run(ctx context.Context, op operation, fn func(ctx context.Context, client *bigquery.Client) (string, error), attrs ...any) error {
	logger := slog.With(append([]any{slog.String("operation", op.name)}, attrs...)...)
	logger.Debug("Sending request to BigQuery", slog.String("target", s.cfg.DSN()))

	start := time.Now()
	msg, err := s.call(ctx, fn)
	duration := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	tags := map[string]string{"operation": op.name, "outcome": outcome}
	s.metrics.Incr(operationCountMetric, tags)
	s.metrics.Timing(operationDurationMetric, duration, tags)

	if err != nil {
		svcErr := newServiceError(op.name, err)
		logger.Warn("BigQuery request failed",
			slog.Int("code", svcErr.Code),
			slog.String("reason", svcErr.Reason),
			slog.Duration("duration", duration),
			slog.Any("err", err),
		)
		fmt.Fprintf(s.out, "%s \n%v\n", op.failure, err)
		return svcErr
	}

	logger.Info("BigQuery request succeeded", slog.Duration("duration", duration))
	fmt.Fprintln(s.out, msg)
	return nil
}

func (s Samples) call(ctx context.Context, fn func(ctx context.Context, client *bigquery.Client) (string, error)) (string, error) {
	// A fresh client per call, nothing is shared across samples.
	client, err := bigquerylib.NewBigQueryClient(ctx, s.cfg, s.opts...)
	if err != nil {
		return "", err
	}
	defer client.Close()

	return fn(ctx, client)
}
