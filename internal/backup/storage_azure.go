package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureStorageProvider stores backups as block blobs in one container
type AzureStorageProvider struct {
	containerURL  azblob.ContainerURL
	containerName string
	prefix        string
}

// NewAzureStorageProvider creates an Azure Blob Storage provider
func NewAzureStorageProvider(config *AzureConfig) (*AzureStorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("Azure storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid Azure storage configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewStorageError("failed to create Azure credentials", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, NewStorageError("failed to parse Azure service URL", err)
	}

	prefix := config.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &AzureStorageProvider{
		containerURL:  azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		containerName: config.ContainerName,
		prefix:        prefix,
	}, nil
}

func (azp *AzureStorageProvider) blob(name string) azblob.BlockBlobURL {
	return azp.containerURL.NewBlockBlobURL(azp.prefix + name)
}

// Put uploads data as a block blob
func (azp *AzureStorageProvider) Put(ctx context.Context, name string, data []byte) error {
	if err := validateObjectName(name); err != nil {
		return err
	}

	_, err := azblob.UploadBufferToBlockBlob(ctx, data, azp.blob(name), azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 4,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/octet-stream",
		},
	})
	if err != nil {
		return NewStorageError("failed to upload backup to Azure", err)
	}
	return nil
}

// Open streams a blob
func (azp *AzureStorageProvider) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateObjectName(name); err != nil {
		return nil, err
	}

	resp, err := azp.blob(name).Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return nil, NewNotFoundError(name, err)
		}
		return nil, NewStorageError("failed to download backup from Azure", err)
	}
	return resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20}), nil
}

// Delete removes a blob and its snapshots
func (azp *AzureStorageProvider) Delete(ctx context.Context, name string) error {
	if err := validateObjectName(name); err != nil {
		return err
	}

	_, err := azp.blob(name).Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		if isAzureNotFound(err) {
			return NewNotFoundError(name, err)
		}
		return NewStorageError("failed to delete backup from Azure", err)
	}
	return nil
}

// List returns the blobs directly under the prefix
func (azp *AzureStorageProvider) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	for marker := (azblob.Marker{}); marker.NotDone(); {
		listResponse, err := azp.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: azp.prefix,
		})
		if err != nil {
			return nil, NewStorageError("failed to list backups in Azure", err)
		}

		for _, item := range listResponse.Segment.BlobItems {
			name := strings.TrimPrefix(item.Name, azp.prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			info := ObjectInfo{Name: name, ModTime: item.Properties.LastModified}
			if item.Properties.ContentLength != nil {
				info.Size = *item.Properties.ContentLength
			}
			objects = append(objects, info)
		}
		marker = listResponse.NextMarker
	}
	return objects, nil
}

// HealthCheck verifies that the container is reachable
func (azp *AzureStorageProvider) HealthCheck(ctx context.Context) error {
	if _, err := azp.containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{}); err != nil {
		return NewStorageError("Azure container is not accessible", err)
	}
	return nil
}

// Location returns the container URL
func (azp *AzureStorageProvider) Location() string {
	return fmt.Sprintf("azure://%s/%s", azp.containerName, azp.prefix)
}

func isAzureNotFound(err error) bool {
	var stgErr azblob.StorageError
	if errors.As(err, &stgErr) {
		return stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}
