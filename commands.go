package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/artie-labs/bqsnippets/clients/bigquery"
	"github.com/artie-labs/bqsnippets/lib/config"
	"github.com/artie-labs/bqsnippets/lib/logger"
	"github.com/artie-labs/bqsnippets/lib/telemetry/metrics"
)

type globalOptions struct {
	ConfigFilePath string `short:"c" long:"config" description:"path to the config file"`
	Verbose        bool   `short:"v" long:"verbose" description:"debug logging" optional:"true"`
}

type app struct {
	opts *globalOptions
}

// run loads settings, wires logging and metrics and hands fn a ready [bigquery.Samples].
func (a *app) run(fn func(ctx context.Context, samples bigquery.Samples) error) error {
	settings, err := config.LoadSettings(a.opts.ConfigFilePath, a.opts.Verbose)
	if err != nil {
		return err
	}

	log, _ := logger.NewLogger(settings)
	slog.SetDefault(log)
	defer logger.Flush()

	metricsClient := metrics.LoadExporter(settings.Config)
	defer metricsClient.Flush()

	return fn(context.Background(), bigquery.NewSamples(settings.Config.BigQuery, os.Stdout, metricsClient))
}

type command struct {
	name        string
	description string
	data        any
}

func commands(a *app) []command {
	return []command{
		{"create-table", "Create a table, without columns unless --schema is given", &createTableCommand{app: a}},
		{"update-table-description", "Update a table's description", &updateTableDescriptionCommand{app: a}},
		{"delete-table", "Delete a table", &deleteTableCommand{app: a}},
		{"get-table", "Print a table's metadata", &getTableCommand{app: a}},
		{"list-tables", "List the tables of a dataset", &listTablesCommand{app: a}},
		{"copy-table", "Copy a table within a dataset", &copyTableCommand{app: a}},
		{"undelete-table", "Restore a deleted table from its snapshot", &undeleteTableCommand{app: a}},
		{"create-dataset", "Create a dataset", &createDatasetCommand{app: a}},
		{"update-dataset-description", "Update a dataset's description", &updateDatasetDescriptionCommand{app: a}},
		{"delete-dataset", "Delete a dataset", &deleteDatasetCommand{app: a}},
		{"list-datasets", "List the project's datasets", &listDatasetsCommand{app: a}},
		{"query-dry-run", "Estimate how many bytes a query would process", &queryDryRunCommand{app: a}},
		{"run-query", "Run a query and print its rows", &runQueryCommand{app: a}},
		{"list-jobs", "List the project's most recent jobs", &listJobsCommand{app: a}},
		{"cancel-job", "Cancel a job", &cancelJobCommand{app: a}},
		{"load-gcs", "Load a GCS file into a table", &loadGCSCommand{app: a}},
		{"load-file", "Load a local file into a table, staging it in GCS", &loadFileCommand{app: a}},
		{"extract-table", "Export a table to GCS as CSV", &extractTableCommand{app: a}},
	}
}

func registerCommands(parser *flags.Parser, a *app) error {
	for _, cmd := range commands(a) {
		if _, err := parser.AddCommand(cmd.name, cmd.description, cmd.description, cmd.data); err != nil {
			return fmt.Errorf("failed to add command %q: %w", cmd.name, err)
		}
	}

	return nil
}

// parseRestoreTime accepts either an RFC 3339 timestamp or a duration that is subtracted from now.
func parseRestoreTime(value string, now time.Time) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}

	ago, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid restore time %q, expected an RFC 3339 timestamp or a duration like 1h", value)
	}

	if ago <= 0 {
		return time.Time{}, fmt.Errorf("restore duration must be positive, got %q", value)
	}

	return now.Add(-ago), nil
}

type TableArgs struct {
	Dataset string `long:"dataset" description:"dataset name, defaults to bigquery.defaultDataset"`
	Table   string `long:"table" description:"table name" required:"true"`
}

type createTableCommand struct {
	app *app
	TableArgs
	Schema string `long:"schema" description:"columns as name:TYPE[:MODE],..."`
}

func (c *createTableCommand) Execute([]string) error {
	schema, err := bigquery.ParseSchema(c.Schema)
	if err != nil {
		return err
	}

	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		if len(schema) == 0 {
			return samples.CreateTableWithoutSchema(ctx, c.Dataset, c.Table)
		}

		return samples.CreateTable(ctx, c.Dataset, c.Table, schema)
	})
}

type updateTableDescriptionCommand struct {
	app *app
	TableArgs
	Description string `long:"description" description:"new description" required:"true"`
}

func (c *updateTableDescriptionCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		return samples.UpdateTableDescription(ctx, c.Dataset, c.Table, c.Description)
	})
}

type deleteTableCommand struct {
	app *app
	TableArgs
}

func (c *deleteTableCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		return samples.DeleteTable(ctx, c.Dataset, c.Table)
	})
}

type getTableCommand struct {
	app *app
	TableArgs
}

func (c *getTableCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		_, err := samples.GetTable(ctx, c.Dataset, c.Table)
		return err
	})
}

type listTablesCommand struct {
	app     *app
	Dataset string `long:"dataset" description:"dataset name, defaults to bigquery.defaultDataset"`
}

func (c *listTablesCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		_, err := samples.ListTables(ctx, c.Dataset)
		return err
	})
}

type copyTableCommand struct {
	app         *app
	Dataset     string `long:"dataset" description:"dataset name, defaults to bigquery.defaultDataset"`
	Source      string `long:"source" description:"source table" required:"true"`
	Destination string `long:"destination" description:"destination table, overwritten if it exists" required:"true"`
}

func (c *copyTableCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		return samples.CopyTable(ctx, c.Dataset, c.Source, c.Destination)
	})
}

type undeleteTableCommand struct {
	app         *app
	Dataset     string `long:"dataset" description:"dataset name, defaults to bigquery.defaultDataset"`
	Table       string `long:"table" description:"deleted table" required:"true"`
	Restored    string `long:"restored" description:"table to restore into" required:"true"`
	RestoreTime string `long:"restore-time" description:"RFC 3339 timestamp or how long ago, e.g. 1h" default:"1m"`
}

func (c *undeleteTableCommand) Execute([]string) error {
	restoreTime, err := parseRestoreTime(c.RestoreTime, time.Now())
	if err != nil {
		return err
	}

	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		return samples.UndeleteTable(ctx, c.Dataset, c.Table, c.Restored, restoreTime)
	})
}

type createDatasetCommand struct {
	app     *app
	Dataset string `long:"dataset" description:"dataset name" required:"true"`
}

func (c *createDatasetCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		return samples.CreateDataset(ctx, c.Dataset)
	})
}

type updateDatasetDescriptionCommand struct {
	app         *app
	Dataset     string `long:"dataset" description:"dataset name, defaults to bigquery.defaultDataset"`
	Description string `long:"description" description:"new description" required:"true"`
}

func (c *updateDatasetDescriptionCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		return samples.UpdateDatasetDescription(ctx, c.Dataset, c.Description)
	})
}

type deleteDatasetCommand struct {
	app            *app
	Dataset        string `long:"dataset" description:"dataset name, defaults to bigquery.defaultDataset"`
	DeleteContents bool   `long:"delete-contents" description:"also delete the tables in the dataset"`
}

func (c *deleteDatasetCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		return samples.DeleteDataset(ctx, c.Dataset, c.DeleteContents)
	})
}

type listDatasetsCommand struct {
	app *app
}

func (c *listDatasetsCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		_, err := samples.ListDatasets(ctx)
		return err
	})
}

type queryDryRunCommand struct {
	app   *app
	Query string `long:"query" description:"standard SQL" required:"true"`
}

func (c *queryDryRunCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		_, err := samples.QueryDryRun(ctx, c.Query)
		return err
	})
}

type runQueryCommand struct {
	app   *app
	Query string `long:"query" description:"standard SQL" required:"true"`
}

func (c *runQueryCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		_, err := samples.RunQuery(ctx, c.Query)
		return err
	})
}

type listJobsCommand struct {
	app *app
	Max int `long:"max" description:"maximum number of jobs to list, 0 lists all of them" default:"10"`
}

func (c *listJobsCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		_, err := samples.ListJobs(ctx, c.Max)
		return err
	})
}

type cancelJobCommand struct {
	app *app
	Job string `long:"job" description:"job ID" required:"true"`
}

func (c *cancelJobCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		return samples.CancelJob(ctx, c.Job)
	})
}

type loadGCSCommand struct {
	app *app
	TableArgs
	URI    string `long:"uri" description:"gs://bucket/path of the source file" required:"true"`
	Format string `long:"format" description:"CSV, NEWLINE_DELIMITED_JSON, AVRO, PARQUET or ORC" default:"CSV"`
}

func (c *loadGCSCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		return samples.LoadTableFromGCS(ctx, c.Dataset, c.Table, c.URI, c.Format)
	})
}

type loadFileCommand struct {
	app *app
	TableArgs
	Bucket string `long:"bucket" description:"GCS bucket used to stage the file" required:"true"`
	File   string `long:"file" description:"path to the local file" required:"true"`
	Format string `long:"format" description:"CSV, NEWLINE_DELIMITED_JSON, AVRO, PARQUET or ORC" default:"CSV"`
}

func (c *loadFileCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		return samples.LoadLocalFile(ctx, c.Dataset, c.Table, c.Bucket, c.File, c.Format)
	})
}

type extractTableCommand struct {
	app *app
	TableArgs
	URI string `long:"uri" description:"gs://bucket/path to write to, may contain a single *" required:"true"`
}

func (c *extractTableCommand) Execute([]string) error {
	return c.app.run(func(ctx context.Context, samples bigquery.Samples) error {
		return samples.ExtractTableToGCS(ctx, c.Dataset, c.Table, c.URI)
	})
}
