package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	gobigquery "cloud.google.com/go/bigquery"
	"github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"

	"github.com/artie-labs/bqsnippets/clients/bigquery"
	"github.com/artie-labs/bqsnippets/lib/bigquerylib"
	"github.com/artie-labs/bqsnippets/lib/config"
	"github.com/artie-labs/bqsnippets/lib/config/constants"
	"github.com/artie-labs/bqsnippets/lib/environ"
	"github.com/artie-labs/bqsnippets/lib/logger"
	"github.com/artie-labs/bqsnippets/lib/stringutil"
	"github.com/artie-labs/bqsnippets/lib/telemetry/metrics"
)

const (
	fixturePrefix  = "MY_TABLE_NAME_"
	staleAfter     = time.Hour
	sweepWorkers   = 4
	sweepPerSecond = 5
)

type FixtureTest struct {
	ctx     context.Context
	cfg     config.BigQuery
	dataset string
	out     *bytes.Buffer
	samples bigquery.Samples
}

func NewFixtureTest(ctx context.Context, settings *config.Settings, dataset string) *FixtureTest {
	out := &bytes.Buffer{}
	return &FixtureTest{
		ctx:     ctx,
		cfg:     settings.Config.BigQuery,
		dataset: dataset,
		out:     out,
		samples: bigquery.NewSamples(settings.Config.BigQuery, io.MultiWriter(os.Stdout, out), metrics.LoadExporter(settings.Config)),
	}
}

// sweep deletes fixture tables left behind by earlier runs that died halfway through.
func (f *FixtureTest) sweep() error {
	client, err := bigquerylib.NewBigQueryClient(f.ctx, f.cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	limiter := rate.NewLimiter(rate.Limit(sweepPerSecond), 1)
	group, ctx := errgroup.WithContext(f.ctx)
	group.SetLimit(sweepWorkers)

	it := client.Dataset(f.dataset).Tables(f.ctx)
	for {
		table, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list tables: %w", err)
		}

		if !strings.HasPrefix(table.TableID, fixturePrefix) {
			continue
		}

		group.Go(func() error {
			return sweepTable(ctx, limiter, table)
		})
	}

	return group.Wait()
}

func sweepTable(ctx context.Context, limiter *rate.Limiter, table *gobigquery.Table) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	metadata, err := table.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("failed to get metadata for %q: %w", table.TableID, err)
	}

	if time.Since(metadata.CreationTime) < staleAfter {
		return nil
	}

	if err = limiter.Wait(ctx); err != nil {
		return err
	}

	if err = table.Delete(ctx); err != nil && !bigquery.IsNotFound(err) {
		return fmt.Errorf("failed to delete %q: %w", table.TableID, err)
	}

	slog.Info("Deleted stale fixture table", slog.String("table", table.TableID), slog.Time("created", metadata.CreationTime))
	return nil
}

func (f *FixtureTest) expectOutput(contains string) error {
	defer f.out.Reset()
	if !strings.Contains(f.out.String(), contains) {
		return fmt.Errorf("expected output to contain %q, got %q", contains, f.out.String())
	}

	return nil
}

func (f *FixtureTest) Run() error {
	if err := f.sweep(); err != nil {
		return fmt.Errorf("failed to sweep stale tables: %w", err)
	}

	tableName := stringutil.UniqueName(fixturePrefix)
	slog.Info("Running fixture chain", slog.String("dataset", f.dataset), slog.String("table", tableName))

	if err := f.samples.CreateTableWithoutSchema(f.ctx, f.dataset, tableName); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if err := f.expectOutput("Table created successfully"); err != nil {
		return err
	}

	metadata, err := f.samples.GetTable(f.ctx, f.dataset, tableName)
	if err != nil {
		return fmt.Errorf("failed to get table: %w", err)
	}

	if len(metadata.Schema) != 0 {
		return fmt.Errorf("expected table %q to have no columns, got %d", tableName, len(metadata.Schema))
	}
	f.out.Reset()

	if err = f.samples.UpdateTableDescription(f.ctx, f.dataset, tableName, "new description!"); err != nil {
		return fmt.Errorf("failed to update table description: %w", err)
	}

	if err = f.expectOutput("Table description updated successfully to new description!"); err != nil {
		return err
	}

	if err = f.samples.CreateTableWithoutSchema(f.ctx, f.dataset, tableName); !bigquery.IsAlreadyExists(err) {
		return fmt.Errorf("expected creating %q twice to fail with already exists, got: %w", tableName, err)
	}

	if err = f.expectOutput("Table was not created."); err != nil {
		return err
	}

	if err = f.samples.DeleteTable(f.ctx, f.dataset, tableName); err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}

	if err = f.expectOutput("Table deleted successfully"); err != nil {
		return err
	}

	if err = f.samples.DeleteTable(f.ctx, f.dataset, tableName); !bigquery.IsNotFound(err) {
		return fmt.Errorf("expected deleting %q twice to fail with not found, got: %w", tableName, err)
	}

	return f.expectOutput("Table was not deleted.")
}

// checkEnv only requires the dataset, the project comes from the config file or is detected from the credentials.
func checkEnv() error {
	return environ.MustGetEnv(constants.DatasetNameEnvKey)
}

func main() {
	// Fail before anything talks to BigQuery.
	if err := checkEnv(); err != nil {
		logger.Fatal("Missing environment", slog.Any("err", err))
	}

	var opts struct {
		ConfigFilePath string `short:"c" long:"config" description:"path to the config file"`
		Verbose        bool   `short:"v" long:"verbose" description:"debug logging" optional:"true"`
	}

	if _, err := flags.ParseArgs(&opts, os.Args); err != nil {
		logger.Fatal("Failed to parse args", slog.Any("err", err))
	}

	settings, err := config.LoadSettings(opts.ConfigFilePath, opts.Verbose)
	if err != nil {
		logger.Fatal("Failed to load settings", slog.Any("err", err))
	}

	log, _ := logger.NewLogger(settings)
	slog.SetDefault(log)

	dataset, err := settings.Config.BigQuery.Dataset("")
	if err != nil {
		logger.Fatal("Failed to resolve dataset", slog.Any("err", err))
	}

	if err = NewFixtureTest(context.Background(), settings, dataset).Run(); err != nil {
		logger.Fatal("Integration test failed", slog.Any("err", err))
	}

	slog.Info("Integration test passed", slog.String("dataset", dataset))
}
