package bigquery

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

func (s Samples) CreateDataset(ctx context.Context, datasetName string) error {
	if err := requireNames("dataset", datasetName); err != nil {
		return err
	}

	op := operation{name: "create_dataset", failure: "Dataset was not created."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		if err := client.Dataset(datasetName).Create(ctx, &bigquery.DatasetMetadata{Location: s.cfg.Location}); err != nil {
			return "", err
		}

		return "Dataset created successfully", nil
	}, slog.String("dataset", datasetName), slog.String("location", s.cfg.Location))
}

func (s Samples) UpdateDatasetDescription(ctx context.Context, datasetName, description string) error {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return err
	}

	op := operation{name: "update_dataset_description", failure: "Dataset description was not updated."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		ds := client.Dataset(datasetName)
		metadata, err := ds.Metadata(ctx)
		if err != nil {
			return "", err
		}

		updated, err := ds.Update(ctx, bigquery.DatasetMetadataToUpdate{Description: description}, metadata.ETag)
		if err != nil {
			return "", err
		}

		return "Dataset description updated successfully to " + updated.Description, nil
	}, slog.String("dataset", datasetName))
}

// DeleteDataset deletes datasetName. Unless deleteContents is set the dataset has to be empty.
func (s Samples) DeleteDataset(ctx context.Context, datasetName string, deleteContents bool) error {
	datasetName, err := s.cfg.Dataset(datasetName)
	if err != nil {
		return err
	}

	op := operation{name: "delete_dataset", failure: "Dataset was not deleted."}
	return s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		var err error
		ds := client.Dataset(datasetName)
		if deleteContents {
			err = ds.DeleteWithContents(ctx)
		} else {
			err = ds.Delete(ctx)
		}

		if err != nil {
			return "", err
		}

		return "Dataset deleted successfully", nil
	}, slog.String("dataset", datasetName), slog.Bool("deleteContents", deleteContents))
}

// ListDatasets returns the dataset IDs of the configured project.
func (s Samples) ListDatasets(ctx context.Context) ([]string, error) {
	var datasetIDs []string
	op := operation{name: "list_datasets", failure: "Datasets were not listed."}
	err := s.run(ctx, op, func(ctx context.Context, client *bigquery.Client) (string, error) {
		it := client.Datasets(ctx)
		for {
			ds, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return "", err
			}

			datasetIDs = append(datasetIDs, ds.DatasetID)
		}

		if len(datasetIDs) == 0 {
			return "Project does not contain any datasets", nil
		}

		lines := []string{"Datasets listed successfully"}
		for _, id := range datasetIDs {
			lines = append(lines, "Dataset ID: "+id)
		}

		return strings.Join(lines, "\n"), nil
	})
	if err != nil {
		return nil, err
	}

	return datasetIDs, nil
}
