// Package lockstore is the small handle store the proxy manager coordinates
// through. Separate invocations (distinct job steps, even distinct
// processes) share state only via these keys, so the backend is an
// interface: local disk today, a lock service in a distributed deployment.
// All coordination is advisory; readers tolerate stale values.
package lockstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store holds small named values and exposes a stable path per key for
// artifacts written by other processes (e.g. a child's log file).
type Store interface {
	// Put overwrites the value under key.
	Put(key, value string) error
	// Get returns the value under key; an absent key is an error.
	Get(key string) (string, error)
	// Path returns the backing location for key, for handing to a child
	// process as a file to write into.
	Path(key string) string
}

// DiskStore keeps each key as a plain file in one directory.
type DiskStore struct {
	dir string
}

// NewDiskStore creates a store rooted at dir.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (s *DiskStore) Path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *DiskStore) Put(key, value string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create handle store directory: %w", err)
	}
	if err := os.WriteFile(s.Path(key), []byte(value), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *DiskStore) Get(key string) (string, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return strings.TrimSpace(string(data)), nil
}

var _ Store = (*DiskStore)(nil)

// MemStore is an in-memory backend for tests.
type MemStore struct {
	values map[string]string
	dir    string
}

// NewMemStore creates an empty in-memory store. Path still resolves under
// dir so children have somewhere real to write.
func NewMemStore(dir string) *MemStore {
	return &MemStore{values: make(map[string]string), dir: dir}
}

func (s *MemStore) Put(key, value string) error {
	s.values[key] = value
	return nil
}

func (s *MemStore) Get(key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("no value for %s", key)
	}
	return v, nil
}

func (s *MemStore) Path(key string) string {
	return filepath.Join(s.dir, key)
}

var _ Store = (*MemStore)(nil)
