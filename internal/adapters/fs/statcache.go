package fs

import (
	"encoding/binary"
	iofs "io/fs"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/opencontainers/go-digest"
)

// StatCache remembers file digests keyed by an xxhash of (path, size,
// mtime). It lets repeated fingerprint walks within one process skip
// re-reading files whose stat signature has not changed. Content digests
// themselves always come from the full read; the cache only decides whether
// the read can be skipped.
type StatCache struct {
	mu      sync.RWMutex
	entries map[uint64]digest.Digest
}

// NewStatCache creates an empty StatCache.
func NewStatCache() *StatCache {
	return &StatCache{entries: make(map[uint64]digest.Digest)}
}

// key folds path, size and mtime into one 64-bit stat signature.
func (c *StatCache) key(path string, info iofs.FileInfo) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(path)
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(info.Size()))
	binary.LittleEndian.PutUint64(buf[8:], uint64(info.ModTime().UnixNano()))
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

// Lookup returns the cached digest for an unchanged file.
func (c *StatCache) Lookup(path string, info iofs.FileInfo) (digest.Digest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[c.key(path, info)]
	return d, ok
}

// Store records the digest for the file's current stat signature.
func (c *StatCache) Store(path string, info iofs.FileInfo, d digest.Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(path, info)] = d
}
