package backup

import (
	"context"
	"io"
	"strings"
	"time"
)

// ObjectInfo describes one stored backup file
type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// StorageProvider is a flat, name-addressed store of backup files.
// Open and Delete return a FILE_NOT_FOUND BackupError for unknown names.
type StorageProvider interface {
	Put(ctx context.Context, name string, data []byte) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]ObjectInfo, error)
	HealthCheck(ctx context.Context) error
	Location() string
}

// readObject loads a whole object into memory
func readObject(ctx context.Context, provider StorageProvider, name string) ([]byte, error) {
	reader, err := provider.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewStorageError("failed to read backup "+name, err)
	}
	return data, nil
}

// validateObjectName rejects names that could escape the flat namespace
func validateObjectName(name string) error {
	if name == "" || name == "." ||
		strings.ContainsAny(name, `/\`) ||
		strings.Contains(name, "..") ||
		strings.HasPrefix(name, ".") {
		return NewValidationError("invalid backup name", nil).WithContext("backup", name)
	}
	return nil
}
