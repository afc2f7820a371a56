package backup

import (
	"context"
	"fmt"
	"path/filepath"
)

// StorageProviderFactory creates storage providers based on configuration
type StorageProviderFactory struct{}

// NewStorageProviderFactory creates a new storage provider factory
func NewStorageProviderFactory() *StorageProviderFactory {
	return &StorageProviderFactory{}
}

// CreateStorageProvider creates the provider named by config. An empty
// provider means local storage, matching what LoadFromEnvironment assumes.
func (spf *StorageProviderFactory) CreateStorageProvider(ctx context.Context, config StorageConfig) (StorageProvider, error) {
	if config.Provider == "" {
		config.Provider = StorageProviderLocal
	}
	if config.Provider == StorageProviderLocal && config.Local != nil {
		config.Local = normalizeLocalConfig(*config.Local)
	}

	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid storage configuration", err)
	}

	switch config.Provider {
	case StorageProviderLocal:
		return NewLocalStorageProvider(config.Local)
	case StorageProviderS3:
		return NewS3StorageProvider(config.S3)
	case StorageProviderAzure:
		return NewAzureStorageProvider(config.Azure)
	case StorageProviderGCS:
		return NewGCSStorageProvider(ctx, config.GCS)
	default:
		return nil, NewConfigurationError(fmt.Sprintf("unsupported storage provider: %s", config.Provider), nil)
	}
}

// normalizeLocalConfig returns a copy with the base path cleaned and the
// directory mode defaulted. An empty base path is left for Validate to reject.
func normalizeLocalConfig(local LocalConfig) *LocalConfig {
	if local.BasePath != "" {
		local.BasePath = filepath.Clean(local.BasePath)
	}
	if local.Permissions == 0 {
		local.Permissions = 0750
	}
	return &local
}

// GetSupportedProviders returns a list of supported storage provider types
func (spf *StorageProviderFactory) GetSupportedProviders() []StorageProviderType {
	return []StorageProviderType{
		StorageProviderLocal,
		StorageProviderS3,
		StorageProviderAzure,
		StorageProviderGCS,
	}
}
