package gcslib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/artie-labs/bqsnippets/lib/config"
)

type GCSClient struct {
	client *storage.Client
}

func NewGCSClient(client *storage.Client) GCSClient {
	return GCSClient{
		client: client,
	}
}

func clientOptions(cfg config.BigQuery) ([]option.ClientOption, error) {
	if cfg.StorageEndpoint != "" {
		return []option.ClientOption{option.WithEndpoint(cfg.StorageEndpoint), option.WithoutAuthentication()}, nil
	}

	if cfg.Endpoint != "" {
		// Staging to the real GCS while BigQuery points at an emulator would load from a bucket the emulator can't see.
		return nil, fmt.Errorf("storageEndpoint must be set when endpoint is set")
	}

	var opts []option.ClientOption
	if cfg.PathToCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.PathToCredentials))
	}

	return opts, nil
}

// NewStorageClient uses the same credentials as the BigQuery client, opts are appended last.
func NewStorageClient(ctx context.Context, cfg config.BigQuery, opts ...option.ClientOption) (*storage.Client, error) {
	clientOpts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, append(clientOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return client, nil
}

func objectKey(prefix, filePath string) string {
	if prefix == "" {
		return filepath.Base(filePath)
	}

	return fmt.Sprintf("%s/%s", prefix, filepath.Base(filePath))
}

func URI(bucket, key string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, key)
}

func (g GCSClient) Close() error {
	return g.client.Close()
}

func (g GCSClient) UploadLocalFileToGCS(ctx context.Context, bucket, prefix, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	key := objectKey(prefix, filePath)
	writer := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write file to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}

	return URI(bucket, key), nil
}

// DeleteFolder - Folders in GCS are virtual, so we need to list all the objects in the folder and then delete them
func (g GCSClient) DeleteFolder(ctx context.Context, bucket, folder string) error {
	bkt := g.client.Bucket(bucket)
	it := bkt.Objects(ctx, &storage.Query{Prefix: folder})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}

		if err := bkt.Object(attrs.Name).Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete object %q: %w", attrs.Name, err)
		}
	}

	return nil
}
