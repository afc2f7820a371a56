package backup

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const tempSuffix = ".tmp"

// LocalStorageProvider stores backups as files in one directory
type LocalStorageProvider struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalStorageProvider creates the base directory if needed
func NewLocalStorageProvider(config *LocalConfig) (*LocalStorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("local storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid local storage configuration", err)
	}

	provider := &LocalStorageProvider{
		basePath:    config.BasePath,
		permissions: config.Permissions,
	}

	if err := os.MkdirAll(provider.basePath, provider.permissions|0700); err != nil {
		return nil, NewStorageError("failed to create base directory", err)
	}
	return provider, nil
}

// Put writes data through a temporary file and renames it into place
func (lsp *LocalStorageProvider) Put(ctx context.Context, name string, data []byte) error {
	if err := validateObjectName(name); err != nil {
		return err
	}

	path := filepath.Join(lsp.basePath, name)
	tmp := path + tempSuffix
	if err := os.WriteFile(tmp, data, lsp.permissions&0666); err != nil {
		return NewStorageError("failed to write backup file", err).WithContext("path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return NewStorageError("failed to move backup file into place", err).WithContext("path", path)
	}
	return nil
}

// Open opens a stored backup for reading
func (lsp *LocalStorageProvider) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateObjectName(name); err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(lsp.basePath, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, NewNotFoundError(name, err)
	}
	if err != nil {
		return nil, NewStorageError("failed to open backup file", err)
	}
	return file, nil
}

// Delete removes a stored backup
func (lsp *LocalStorageProvider) Delete(ctx context.Context, name string) error {
	if err := validateObjectName(name); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(lsp.basePath, name))
	if errors.Is(err, fs.ErrNotExist) {
		return NewNotFoundError(name, err)
	}
	if err != nil {
		return NewStorageError("failed to delete backup file", err)
	}
	return nil
}

// List returns every regular file in the base directory
func (lsp *LocalStorageProvider) List(ctx context.Context) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(lsp.basePath)
	if err != nil {
		return nil, NewStorageError("failed to list backup directory", err)
	}

	objects := make([]ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), tempSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, ObjectInfo{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return objects, nil
}

// HealthCheck verifies that the directory is writable
func (lsp *LocalStorageProvider) HealthCheck(ctx context.Context) error {
	probe := filepath.Join(lsp.basePath, ".health_check"+tempSuffix)
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return NewStorageError("backup directory is not writable", err)
	}
	return os.Remove(probe)
}

// Location returns the base directory
func (lsp *LocalStorageProvider) Location() string {
	return lsp.basePath
}
