package blobstore

import (
	"context"
	"fmt"
	"io"

	storage "google.golang.org/api/storage/v1"

	"github.com/jupyter-infra/dataproc-hub/internal/gcp"
)

// GCSStore implements Store on top of the Cloud Storage JSON API
type GCSStore struct {
	service *storage.Service
}

// NewGCSStore creates a Cloud Storage backed store
func NewGCSStore(ctx context.Context, cfg gcp.ClientConfig) (*GCSStore, error) {
	service, err := storage.NewService(ctx, cfg.Options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{service: service}, nil
}

// List returns the names of the objects under prefix
func (s *GCSStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var names []string
	call := s.service.Objects.List(bucket).Prefix(prefix).Fields("nextPageToken", "items/name")
	err := call.Pages(ctx, func(page *storage.Objects) error {
		for _, obj := range page.Items {
			names = append(names, obj.Name)
		}
		return nil
	})
	if err != nil {
		return nil, gcp.ClassifyError(err, "failed to list %s", JoinPath(bucket, prefix))
	}
	return names, nil
}

// Read downloads one object
func (s *GCSStore) Read(ctx context.Context, bucket, path string) ([]byte, error) {
	resp, err := s.service.Objects.Get(bucket, path).Context(ctx).Download()
	if err != nil {
		return nil, gcp.ClassifyError(err, "failed to read %s", JoinPath(bucket, path))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gcp.ClassifyError(err, "failed to read %s", JoinPath(bucket, path))
	}
	return data, nil
}

// Copy copies one object server side
func (s *GCSStore) Copy(ctx context.Context, srcBucket, srcPath, dstBucket, dstPath string) error {
	_, err := s.service.Objects.Copy(srcBucket, srcPath, dstBucket, dstPath, &storage.Object{}).Context(ctx).Do()
	if err != nil {
		return gcp.ClassifyError(err, "failed to copy %s to %s",
			JoinPath(srcBucket, srcPath), JoinPath(dstBucket, dstPath))
	}
	return nil
}
