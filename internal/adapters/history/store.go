// Package history persists per-node digest records between build sessions.
// Each record lives in its own JSON file so concurrent writers never contend
// on a shared index.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/zerr"
)

// Store implements ports.HistoryStore on a directory of JSON files, one per
// logical node key. Filenames are the sha256 of the key, so arbitrary key
// content never reaches the filesystem.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a history store rooted at the given directory.
func NewStore(dir string) (*Store, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return nil, zerr.Wrap(err, "failed to create history store directory")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) recordPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

// Get retrieves the record for a logical node key.
// Returns nil, nil if the node has never been recorded.
func (s *Store) Get(key string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	//nolint:gosec // Filename is a hex digest under our own state dir
	data, err := os.ReadFile(s.recordPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.Wrap(err, "failed to read history record")
	}

	var record domain.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, zerr.Wrap(err, "failed to unmarshal history record")
	}
	return &record, nil
}

// Put stores the record, replacing any previous one for the same key.
func (s *Store) Put(record domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal history record")
	}

	path := s.recordPath(record.Key)
	tmp := path + ".tmp"
	//nolint:gosec // Filename is a hex digest under our own state dir
	if err := os.WriteFile(tmp, data, domain.FilePerm); err != nil {
		return zerr.Wrap(err, "failed to write history record")
	}
	if err := os.Rename(tmp, path); err != nil {
		return zerr.Wrap(err, "failed to commit history record")
	}
	return nil
}
