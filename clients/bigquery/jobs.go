package bigquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/artie-labs/bqsnippets/lib/bigquerylib"
	"github.com/artie-labs/bqsnippets/lib/gcslib"
)

const stagingPrefix = "bqsnippets"

var dataFormats = map[string]bigquery.DataFormat{
	"CSV":                    bigquery.CSV,
	"JSON":                   bigquery.JSON,
	"NEWLINE_DELIMITED_JSON": bigquery.JSON,
	"AVRO":                   bigquery.Avro,
	"PARQUET":                bigquery.Parquet,
	"ORC":                    bigquery.ORC,
}

// ParseDataFormat maps a source format name onto a [bigquery.DataFormat], an empty name means CSV.
func ParseDataFormat(format string) (bigquery.DataFormat, error) {
	if format == "" {
		return bigquery.CSV, nil
	}

	dataFormat, ok := dataFormats[strings.ToUpper(format)]
	if !ok {
		return "", fmt.Errorf("unsupported data format %q", format)
	}

	return dataFormat, nil
}

func validateGCSURI(uri string) error {
	if !strings.HasPrefix(uri, "gs://") || len(uri) <= len("gs://") {
		return fmt.Errorf("invalid GCS URI %q, expected gs://bucket/path", uri)
	}

	return nil
}

type JobSummary struct {
	ID    string
	State string
}

func stateName(state bigquery.State) string {
	switch state {
	case bigquery.Pending:
		return "PENDING"
	case bigquery.Running:
		return "RUNNING"
	case bigquery.Done:
		return "DONE"
	default:
		return "UNSPECIFIED"
	}
}

// QueryDryRun validates sql and returns how many bytes it would process, nothing is executed.
func (s Samples) QueryDryRun(ctx context.Context, sql string) (int64, error) {
	if strings.TrimSpace(sql) == "" {
		return 0, fmt.Errorf("query is required")
	}

	var bytesProcessed int64
	op := operation{name: "query_dry_run", failure: "Query was not run."}
	err := s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		query := client.Query(sql)
		query.DryRun = true
		job, err := query.Run(ctx)
		if err != nil {
			return "", err
		}

		// Dry runs come back finished, the statistics are on the insert response.
		status := job.LastStatus()
		if status == nil {
			return "", fmt.Errorf("dry run job %q returned no status", job.ID())
		}

		if err := status.Err(); err != nil {
			return "", err
		}

		if status.Statistics != nil {
			bytesProcessed = status.Statistics.TotalBytesProcessed
		}

		return fmt.Sprintf("Query dry run completed successfully. This query will process %d bytes.", bytesProcessed), nil
	})
	if err != nil {
		return 0, err
	}

	return bytesProcessed, nil
}

func formatRow(row []bigquery.Value) string {
	values := make([]string, len(row))
	for i, value := range row {
		values[i] = fmt.Sprint(value)
	}

	return strings.Join(values, ", ")
}

// RunQuery runs sql and prints every row it returns.
func (s Samples) RunQuery(ctx context.Context, sql string) ([][]bigquery.Value, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("query is required")
	}

	var rows [][]bigquery.Value
	op := operation{name: "run_query", failure: "Query was not run."}
	err := s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		it, err := client.Query(sql).Read(ctx)
		if err != nil {
			return "", err
		}

		for {
			var row []bigquery.Value
			err := it.Next(&row)
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return "", err
			}

			rows = append(rows, row)
		}

		lines := []string{"Query performed successfully."}
		for _, row := range rows {
			lines = append(lines, formatRow(row))
		}

		return strings.Join(lines, "\n"), nil
	})
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// ListJobs returns up to maxJobs of the project's most recent jobs, maxJobs <= 0 lists everything.
func (s Samples) ListJobs(ctx context.Context, maxJobs int) ([]JobSummary, error) {
	var jobs []JobSummary
	op := operation{name: "list_jobs", failure: "Jobs were not listed."}
	err := s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		it := client.Jobs(ctx)
		for maxJobs <= 0 || len(jobs) < maxJobs {
			job, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return "", err
			}

			summary := JobSummary{ID: job.ID()}
			if status := job.LastStatus(); status != nil {
				summary.State = stateName(status.State)
			}

			jobs = append(jobs, summary)
		}

		lines := []string{"Jobs listed successfully"}
		for _, job := range jobs {
			lines = append(lines, fmt.Sprintf("Job ID: %s, state: %s", job.ID, job.State))
		}

		return strings.Join(lines, "\n"), nil
	}, slog.Int("max", maxJobs))
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

func (s Samples) CancelJob(ctx context.Context, jobID string) error {
	if err := requireNames("job", jobID); err != nil {
		return err
	}

	op := operation{name: "cancel_job", failure: "Job was not canceled."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		job, err := client.JobFromID(ctx, jobID)
		if err != nil {
			return "", err
		}

		if err := job.Cancel(ctx); err != nil {
			return "", err
		}

		return "Job canceled successfully", nil
	}, slog.String("job", jobID))
}

// LoadTableFromGCS appends the file at uri into datasetName.tableName, the schema is auto-detected.
func (s Samples) LoadTableFromGCS(ctx context.Context, datasetName, tableName, uri, format string) error {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return err
	}

	if err = requireNames("table", tableName); err != nil {
		return err
	}

	if err = validateGCSURI(uri); err != nil {
		return err
	}

	dataFormat, err := ParseDataFormat(format)
	if err != nil {
		return err
	}

	op := operation{name: "load_table_from_gcs", failure: "Table was not loaded."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		if err := loadFromGCS(ctx, client.Dataset(datasetName).Table(tableName), uri, dataFormat); err != nil {
			return "", err
		}

		return "GCS file loaded into table successfully", nil
	}, slog.String("dataset", datasetName), slog.String("table", tableName), slog.String("uri", uri))
}

// LoadLocalFile stages filePath under a unique prefix in bucket, loads it and removes the staged object.
func (s Samples) LoadLocalFile(ctx context.Context, datasetName, tableName, bucket, filePath, format string) error {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return err
	}

	if err = requireNames("table", tableName, "bucket", bucket); err != nil {
		return err
	}

	if _, err = os.Stat(filePath); err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	dataFormat, err := ParseDataFormat(format)
	if err != nil {
		return err
	}

	op := operation{name: "load_local_file", failure: "Table was not loaded."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		storageClient, err := gcslib.NewStorageClient(ctx, s.cfg, s.opts...)
		if err != nil {
			return "", err
		}

		gcsClient := gcslib.NewGCSClient(storageClient)
		defer gcsClient.Close()

		prefix := fmt.Sprintf("%s/%s", stagingPrefix, uuid.NewString())
		uri, err := gcsClient.UploadLocalFileToGCS(ctx, bucket, prefix, filePath)
		if err != nil {
			return "", err
		}

		defer func() {
			if err := gcsClient.DeleteFolder(context.WithoutCancel(ctx), bucket, prefix); err != nil {
				slog.Warn("Failed to delete staged file", slog.String("uri", uri), slog.Any("err", err))
			}
		}()

		if err := loadFromGCS(ctx, client.Dataset(datasetName).Table(tableName), uri, dataFormat); err != nil {
			return "", err
		}

		return "Local file loaded into table successfully", nil
	}, slog.String("dataset", datasetName), slog.String("table", tableName), slog.String("file", filePath))
}

func loadFromGCS(ctx context.Context, table *bigquery.Table, uri string, format bigquery.DataFormat) error {
	ref := bigquery.NewGCSReference(uri)
	ref.SourceFormat = format
	ref.AutoDetect = true
	if format == bigquery.CSV {
		ref.SkipLeadingRows = 1
	}

	loader := table.LoaderFrom(ref)
	loader.WriteDisposition = bigquery.WriteAppend
	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to run load job: %w", err)
	}

	return bigquerylib.WaitForJob(ctx, job)
}

// ExtractTableToGCS exports datasetName.tableName as CSV to uri, uri may contain a single * wildcard.
func (s Samples) ExtractTableToGCS(ctx context.Context, datasetName, tableName, uri string) error {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return err
	}

	if err = requireNames("table", tableName); err != nil {
		return err
	}

	if err = validateGCSURI(uri); err != nil {
		return err
	}

	op := operation{name: "extract_table_to_gcs", failure: "Table was not extracted."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		ref := bigquery.NewGCSReference(uri)
		ref.DestinationFormat = bigquery.CSV

		job, err := client.Dataset(datasetName).Table(tableName).ExtractorTo(ref).Run(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to run extract job: %w", err)
		}

		if err := bigquerylib.WaitForJob(ctx, job); err != nil {
			return "", err
		}

		return "Table extracted successfully", nil
	}, slog.String("dataset", datasetName), slog.String("table", tableName), slog.String("uri", uri))
}
