/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package blobstore reads cluster templates and copies notebooks in object storage.
package blobstore

import (
	"context"
	"fmt"
	"strings"

	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// Scheme is the URL scheme accepted in front of bucket paths
const Scheme = "gs://"

// Store is the blob storage surface used by the spawner
type Store interface {
	// List returns the object paths under prefix
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	// Read returns the content of one object
	Read(ctx context.Context, bucket, path string) ([]byte, error)
	// Copy copies one object
	Copy(ctx context.Context, srcBucket, srcPath, dstBucket, dstPath string) error
}

// SplitPath splits "gs://bucket/a/b.yaml" or "bucket/a/b.yaml" into bucket and object path
func SplitPath(path string) (string, string) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(path), Scheme)
	bucket, object, _ := strings.Cut(trimmed, "/")
	return bucket, object
}

// SplitFolder is SplitPath for folders: the returned folder always ends with
// a separator unless it is the bucket root
func SplitFolder(path string) (string, string) {
	bucket, folder := SplitPath(path)
	if folder != "" && !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	return bucket, folder
}

// JoinPath formats a bucket and object path as a gs:// URL
func JoinPath(bucket, path string) string {
	return Scheme + bucket + "/" + strings.TrimPrefix(path, "/")
}

// ReadPath reads an object addressed by a single path
func ReadPath(ctx context.Context, store Store, path string) ([]byte, error) {
	bucket, object := SplitPath(path)
	if bucket == "" || object == "" {
		return nil, fmt.Errorf("invalid object path %q", path)
	}
	return store.Read(ctx, bucket, object)
}

// CopyFolder copies every object under src into dst, keeping paths relative
// to src. The folder placeholder object itself is skipped. It returns the
// number of objects copied.
func CopyFolder(ctx context.Context, store Store, src, dst string) (int, error) {
	logger := logf.FromContext(ctx).WithName("blobstore")

	srcBucket, srcFolder := SplitFolder(src)
	dstBucket, dstFolder := SplitFolder(dst)

	objects, err := store.List(ctx, srcBucket, srcFolder)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", src, err)
	}

	copied := 0
	for _, object := range objects {
		if object == srcFolder {
			continue
		}
		target := dstFolder + strings.TrimPrefix(object, srcFolder)
		if err := store.Copy(ctx, srcBucket, object, dstBucket, target); err != nil {
			return copied, fmt.Errorf("failed to copy %s to %s: %w",
				JoinPath(srcBucket, object), JoinPath(dstBucket, target), err)
		}
		copied++
	}

	logger.V(1).Info("Copied folder", "source", src, "destination", dst, "objects", copied)
	return copied, nil
}
