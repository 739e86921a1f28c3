// Package fs stores the local cache and offline queue as JSON files.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bft-labs/washline/internal/ports"
)

var _ ports.KVStore = (*KVStore)(nil)

var keyReplacer = strings.NewReplacer(":", "_", "/", "_", "\\", "_", "..", "_")

// KVStore implements ports.KVStore with one file per key under dir.
type KVStore struct {
	dir string
	mu  sync.Mutex
}

// NewKVStore creates a store rooted at dir. The directory is created on
// the first write.
func NewKVStore(dir string) *KVStore {
	return &KVStore{dir: dir}
}

// Get returns the value stored under key, or nil if none exists.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put stores value under key atomically: the value is written to a temp
// file, synced to disk, then renamed over the old one.
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	path := s.Path(key)
	tmp := path + ".tmp"
	if err := writeSynced(tmp, value); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", key, err)
	}
	return os.Rename(tmp, path)
}

// writeSynced writes data to path and fsyncs it before closing.
func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Path returns the file backing key.
func (s *KVStore) Path(key string) string {
	return filepath.Join(s.dir, keyReplacer.Replace(key)+".json")
}
