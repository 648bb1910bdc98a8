package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// BlobStore abstracts raw document byte storage behind bucket/path keys.
type BlobStore interface {
	Put(bucket, path string, data []byte) error
	Get(bucket, path string) ([]byte, error)
	Delete(bucket, path string) error
}

// DiskBlobStore keeps blobs on the local filesystem under a root directory.
type DiskBlobStore struct {
	root string
}

func NewDiskBlobStore(root string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &DiskBlobStore{root: root}, nil
}

func (s *DiskBlobStore) resolve(bucket, path string) (string, error) {
	full := filepath.Join(s.root, bucket, filepath.FromSlash(path))
	base := filepath.Join(s.root, bucket)
	if !strings.HasPrefix(full, base+string(filepath.Separator)) && full != base {
		return "", fmt.Errorf("invalid blob path: %s", path)
	}
	return full, nil
}

func (s *DiskBlobStore) Put(bucket, path string, data []byte) error {
	full, err := s.resolve(bucket, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

func (s *DiskBlobStore) Get(bucket, path string) ([]byte, error) {
	full, err := s.resolve(bucket, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *DiskBlobStore) Delete(bucket, path string) error {
	full, err := s.resolve(bucket, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// MemoryBlobStore is an in-memory BlobStore used in tests.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobStore) key(bucket, path string) string {
	return bucket + "/" + path
}

func (s *MemoryBlobStore) Put(bucket, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[s.key(bucket, path)] = cp
	return nil
}

func (s *MemoryBlobStore) Get(bucket, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[s.key(bucket, path)]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s/%s", bucket, path)
	}
	return data, nil
}

func (s *MemoryBlobStore) Delete(bucket, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, s.key(bucket, path))
	return nil
}
