package bigquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/artie-labs/bqsnippets/lib/bigquerylib"
)

func tableID(client *bigquery.Client, datasetName, tableName string) string {
	return fmt.Sprintf("%s.%s.%s", client.Project(), datasetName, tableName)
}

// CreateTable creates datasetName.tableName with schema, a nil or empty schema creates a table without columns.
func (s Samples) CreateTable(ctx context.Context, datasetName, tableName string, schema bigquery.Schema) error {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return err
	}

	if err = requireNames("table", tableName); err != nil {
		return err
	}

	op := operation{name: "create_table", failure: "Table was not created."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		metadata := &bigquery.TableMetadata{Schema: schema}
		if err := client.Dataset(datasetName).Table(tableName).Create(ctx, metadata); err != nil {
			return "", err
		}

		return "Table created successfully", nil
	}, slog.String("dataset", datasetName), slog.String("table", tableName), slog.Int("columns", len(schema)))
}

func (s Samples) CreateTableWithoutSchema(ctx context.Context, datasetName, tableName string) error {
	return s.CreateTable(ctx, datasetName, tableName, bigquery.Schema{})
}

func (s Samples) UpdateTableDescription(ctx context.Context, datasetName, tableName, description string) error {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return err
	}

	if err = requireNames("table", tableName); err != nil {
		return err
	}

	op := operation{name: "update_table_description", failure: "Table description was not updated."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		table := client.Dataset(datasetName).Table(tableName)
		metadata, err := table.Metadata(ctx)
		if err != nil {
			return "", err
		}

		// Passing the etag makes the update fail if someone else changed the table in between.
		updated, err := table.Update(ctx, bigquery.TableMetadataToUpdate{Description: description}, metadata.ETag)
		if err != nil {
			return "", err
		}

		return "Table description updated successfully to " + updated.Description, nil
	}, slog.String("dataset", datasetName), slog.String("table", tableName))
}

func (s Samples) DeleteTable(ctx context.Context, datasetName, tableName string) error {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return err
	}

	if err = requireNames("table", tableName); err != nil {
		return err
	}

	op := operation{name: "delete_table", failure: "Table was not deleted."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		if err := client.Dataset(datasetName).Table(tableName).Delete(ctx); err != nil {
			return "", err
		}

		return "Table deleted successfully", nil
	}, slog.String("dataset", datasetName), slog.String("table", tableName))
}

// GetTable prints the table's identifier, description and one line per top-level column.
func (s Samples) GetTable(ctx context.Context, datasetName, tableName string) (*bigquery.TableMetadata, error) {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return nil, err
	}

	if err = requireNames("table", tableName); err != nil {
		return nil, err
	}

	var metadata *bigquery.TableMetadata
	op := operation{name: "get_table", failure: "Table was not retrieved."}
	err = s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		metadata, err = client.Dataset(datasetName).Table(tableName).Metadata(ctx)
		if err != nil {
			return "", err
		}

		var out strings.Builder
		fmt.Fprintf(&out, "Table %s retrieved successfully", tableID(client, datasetName, tableName))
		if metadata.Description != "" {
			fmt.Fprintf(&out, "\nDescription: %s", metadata.Description)
		}

		for _, field := range metadata.Schema {
			fmt.Fprintf(&out, "\n  %s %s %s", field.Name, field.Type, fieldMode(field))
		}

		return out.String(), nil
	}, slog.String("dataset", datasetName), slog.String("table", tableName))
	if err != nil {
		return nil, err
	}

	return metadata, nil
}

// ListTables returns the table IDs within datasetName.
func (s Samples) ListTables(ctx context.Context, datasetName string) ([]string, error) {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return nil, err
	}

	var tableIDs []string
	op := operation{name: "list_tables", failure: "Tables were not listed."}
	err = s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		it := client.Dataset(datasetName).Tables(ctx)
		for {
			table, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return "", err
			}

			tableIDs = append(tableIDs, table.TableID)
		}

		lines := []string{"Tables listed successfully"}
		for _, id := range tableIDs {
			lines = append(lines, "Table ID: "+id)
		}

		return strings.Join(lines, "\n"), nil
	}, slog.String("dataset", datasetName))
	if err != nil {
		return nil, err
	}

	return tableIDs, nil
}

// CopyTable copies srcTable into dstTable within the same dataset, dstTable is overwritten if it exists.
func (s Samples) CopyTable(ctx context.Context, datasetName, srcTable, dstTable string) error {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return err
	}

	if err = requireNames("source table", srcTable, "destination table", dstTable); err != nil {
		return err
	}

	op := operation{name: "copy_table", failure: "Table copying job was not completed."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		ds := client.Dataset(datasetName)
		if err := bigquerylib.NewClient(client).RunCopyJob(ctx, ds.Table(srcTable), ds.Table(dstTable), bigquery.WriteTruncate); err != nil {
			return "", err
		}

		return "Table copied successfully", nil
	}, slog.String("dataset", datasetName), slog.String("source", srcTable), slog.String("destination", dstTable))
}

// UndeleteTable restores deletedTable as it was at restoreTime into restoredTable.
func (s Samples) UndeleteTable(ctx context.Context, datasetName, deletedTable, restoredTable string, restoreTime time.Time) error {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return err
	}

	if err = requireNames("deleted table", deletedTable, "restored table", restoredTable); err != nil {
		return err
	}

	if restoreTime.IsZero() || restoreTime.After(time.Now()) {
		return fmt.Errorf("restore time must be in the past, got %q", restoreTime.Format(time.RFC3339))
	}

	op := operation{name: "undelete_table", failure: "Table was not restored."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		if err := bigquerylib.NewClient(client).UndeleteTable(ctx, datasetName, deletedTable, restoredTable, restoreTime); err != nil {
			return "", err
		}

		return "Table restored successfully", nil
	}, slog.String("dataset", datasetName), slog.String("table", deletedTable))
}
