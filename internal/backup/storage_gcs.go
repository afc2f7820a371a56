package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStorageProvider stores backups as objects in a Google Cloud Storage bucket
type GCSStorageProvider struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStorageProvider creates a GCS provider, using a credentials file when configured
func NewGCSStorageProvider(ctx context.Context, config *GCSConfig) (*GCSStorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("GCS storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid GCS storage configuration", err)
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, NewStorageError("failed to create GCS client", err)
	}

	prefix := config.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &GCSStorageProvider{client: client, bucket: config.Bucket, prefix: prefix}, nil
}

func (g *GCSStorageProvider) object(name string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(g.prefix + name)
}

// Put uploads data as one object
func (g *GCSStorageProvider) Put(ctx context.Context, name string, data []byte) error {
	if err := validateObjectName(name); err != nil {
		return err
	}

	writer := g.object(name).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return NewStorageError("failed to upload backup to GCS", err)
	}
	if err := writer.Close(); err != nil {
		return NewStorageError("failed to finalize GCS upload", err)
	}
	return nil
}

// Open streams an object
func (g *GCSStorageProvider) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateObjectName(name); err != nil {
		return nil, err
	}

	reader, err := g.object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, NewNotFoundError(name, err)
	}
	if err != nil {
		return nil, NewStorageError("failed to download backup from GCS", err)
	}
	return reader, nil
}

// Delete removes an object
func (g *GCSStorageProvider) Delete(ctx context.Context, name string) error {
	if err := validateObjectName(name); err != nil {
		return err
	}

	err := g.object(name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return NewNotFoundError(name, err)
	}
	if err != nil {
		return NewStorageError("failed to delete backup from GCS", err)
	}
	return nil
}

// List returns the objects directly under the prefix
func (g *GCSStorageProvider) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: g.prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, NewStorageError("failed to list backups in GCS", err)
		}

		name := strings.TrimPrefix(attrs.Name, g.prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{Name: name, Size: attrs.Size, ModTime: attrs.Updated})
	}
	return objects, nil
}

// HealthCheck verifies that the bucket is reachable
func (g *GCSStorageProvider) HealthCheck(ctx context.Context) error {
	if _, err := g.client.Bucket(g.bucket).Attrs(ctx); err != nil {
		return NewStorageError("GCS bucket is not accessible", err)
	}
	return nil
}

// Location returns the bucket URL
func (g *GCSStorageProvider) Location() string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, g.prefix)
}

// Close releases the GCS client
func (g *GCSStorageProvider) Close() error {
	return g.client.Close()
}
