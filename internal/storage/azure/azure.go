// Package azure implements the Azure Blob Storage backend using shared key
// authentication.
package azure

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/storage"
)

func init() {
	storage.Register("azure", func(cfg *config.Config) (storage.Store, error) {
		return New(&cfg.Storage.Azure)
	})
}

// Store implements storage.Store on an Azure Blob container.
type Store struct {
	client    *azblob.Client
	container string
}

// New creates an Azure Blob storage backend.
func New(cfg *config.AzureStorageConfig) (*Store, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure container name is required")
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &Store{
		client:    client,
		container: cfg.ContainerName,
	}, nil
}

// Put stores a blob, recording its SHA256 in blob metadata.
func (s *Store) Put(ctx context.Context, key string, reader io.Reader) (*storage.ObjectInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	hasher := sha256.New()
	hasher.Write(data)
	checksum := hex.EncodeToString(hasher.Sum(nil))

	blobClient := s.client.ServiceClient().
		NewContainerClient(s.container).
		NewBlockBlobClient(key)

	_, err = blobClient.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), &blockblob.UploadOptions{
		Metadata: map[string]*string{
			"sha256": &checksum,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Azure: %w", err)
	}

	return &storage.ObjectInfo{
		Key:      key,
		Size:     int64(len(data)),
		Checksum: checksum,
	}, nil
}

// Get retrieves a blob.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	blobClient := s.client.ServiceClient().
		NewContainerClient(s.container).
		NewBlobClient(key)

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download from Azure: %w", err)
	}
	return resp.Body, nil
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, key string) error {
	blobClient := s.client.ServiceClient().
		NewContainerClient(s.container).
		NewBlobClient(key)

	if _, err := blobClient.Delete(ctx, nil); err != nil {
		return fmt.Errorf("failed to delete from Azure: %w", err)
	}
	return nil
}

// DeletePrefix removes every blob under the given prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	containerClient := s.client.ServiceClient().NewContainerClient(s.container)
	pager := containerClient.NewListBlobsFlatPager(&azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list blobs for prefix %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			if _, err := containerClient.NewBlobClient(*item.Name).Delete(ctx, nil); err != nil {
				return fmt.Errorf("failed to delete blob %s: %w", *item.Name, err)
			}
		}
	}

	return nil
}

// Exists checks whether a blob is stored under key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	blobClient := s.client.ServiceClient().
		NewContainerClient(s.container).
		NewBlobClient(key)

	if _, err := blobClient.GetProperties(ctx, nil); err != nil {
		return false, nil
	}
	return true, nil
}

// Stat returns blob metadata, preferring the checksum recorded at Put time.
func (s *Store) Stat(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	blobClient := s.client.ServiceClient().
		NewContainerClient(s.container).
		NewBlobClient(key)

	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get blob metadata: %w", err)
	}

	var checksum string
	for k, v := range props.Metadata {
		if k == "sha256" && v != nil {
			checksum = *v
		}
	}
	if checksum == "" {
		reader, err := s.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to download for checksum: %w", err)
		}
		defer reader.Close()

		hasher := sha256.New()
		if _, err := io.Copy(hasher, reader); err != nil {
			return nil, fmt.Errorf("failed to compute checksum: %w", err)
		}
		checksum = hex.EncodeToString(hasher.Sum(nil))
	}

	var size int64
	if props.ContentLength != nil {
		size = *props.ContentLength
	}
	var lastModified time.Time
	if props.LastModified != nil {
		lastModified = *props.LastModified
	}

	return &storage.ObjectInfo{
		Key:          key,
		Size:         size,
		Checksum:     checksum,
		LastModified: lastModified,
	}, nil
}
