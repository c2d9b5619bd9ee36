package blobstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
)

// MemoryStore is a Store held in memory. It backs local template rendering
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func memoryKey(bucket, path string) string {
	return bucket + "/" + path
}

// Put stores an object
func (m *MemoryStore) Put(bucket, path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memoryKey(bucket, path)] = append([]byte(nil), data...)
}

// List returns the sorted object paths under prefix
func (m *MemoryStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for key := range m.objects {
		b, path, _ := strings.Cut(key, "/")
		if b == bucket && strings.HasPrefix(path, prefix) {
			names = append(names, path)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read returns a copy of one object
func (m *MemoryStore) Read(_ context.Context, bucket, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[memoryKey(bucket, path)]
	if !ok {
		return nil, spawnerrors.New(spawnerrors.KindNotFound, "object %s not found", JoinPath(bucket, path))
	}
	return append([]byte(nil), data...), nil
}

// Copy copies one object
func (m *MemoryStore) Copy(_ context.Context, srcBucket, srcPath, dstBucket, dstPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[memoryKey(srcBucket, srcPath)]
	if !ok {
		return spawnerrors.New(spawnerrors.KindNotFound, "object %s not found", JoinPath(srcBucket, srcPath))
	}
	m.objects[memoryKey(dstBucket, dstPath)] = append([]byte(nil), data...)
	return nil
}
