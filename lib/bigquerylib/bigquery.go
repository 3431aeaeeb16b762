package bigquerylib

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/artie-labs/bqsnippets/lib/config"
)

func clientOptions(cfg config.BigQuery) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		// Emulators don't speak OAuth.
		return append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	if cfg.PathToCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.PathToCredentials))
	}

	return opts
}

// NewBigQueryClient builds a client from cfg alone, opts are appended last so callers can override anything.
func NewBigQueryClient(ctx context.Context, cfg config.BigQuery, opts ...option.ClientOption) (*bigquery.Client, error) {
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, append(clientOptions(cfg), opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}

	client.Location = cfg.Location
	return client, nil
}

type Client struct {
	client *bigquery.Client
}

func NewClient(client *bigquery.Client) *Client {
	return &Client{client: client}
}

func snapshotTableID(tableName string, snapshotTime time.Time) string {
	return fmt.Sprintf("%s@%d", tableName, snapshotTime.UnixMilli())
}

// [UndeleteTable] - Restores a deleted table from its snapshot decorator.
// Ref: https://cloud.google.com/bigquery/docs/samples/bigquery-undelete-table
func (c Client) UndeleteTable(ctx context.Context, datasetID string, deletedTableName string, restoredTableName string, restoreTime time.Time) error {
	slog.Debug("Restoring table",
		slog.String("datasetID", datasetID),
		slog.String("deletedTableName", deletedTableName),
		slog.String("restoredTableName", restoredTableName),
		slog.String("restoreTime", restoreTime.Format(time.RFC3339)),
	)

	ds := c.client.Dataset(datasetID)
	return c.RunCopyJob(ctx, ds.Table(snapshotTableID(deletedTableName, restoreTime)), ds.Table(restoredTableName), bigquery.WriteTruncate)
}

// RunCopyJob copies src into dst and blocks until the job is done.
func (c Client) RunCopyJob(ctx context.Context, src, dst *bigquery.Table, disposition bigquery.TableWriteDisposition) error {
	copier := dst.CopierFrom(src)
	copier.WriteDisposition = disposition
	job, err := copier.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to run copy job: %w", err)
	}

	return WaitForJob(ctx, job)
}

// WaitForJob blocks until job is done and surfaces the job's own error, if any.
func WaitForJob(ctx context.Context, job *bigquery.Job) error {
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for job %q: %w", job.ID(), err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job %q failed: %w", job.ID(), err)
	}

	return nil
}
