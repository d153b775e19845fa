package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/zerr"
)

const indexFile = "index.json"

// Local implements ports.LocalStore as a content-addressed directory:
// payloads under objects/<algorithm>/<hex>, plus an index.json mapping
// digests to their entries. Entries are only ever removed by GC.
type Local struct {
	root string

	mu    sync.RWMutex
	index map[digest.Digest]domain.CacheEntry

	// Serializes writers per digest while leaving readers concurrent.
	writeLocks sync.Map // digest.Digest -> *sync.Mutex
}

// NewLocal opens (or creates) the store rooted at dir.
func NewLocal(dir string) (*Local, error) {
	root := filepath.Clean(dir)
	if err := os.MkdirAll(root, domain.DirPerm); err != nil {
		return nil, zerr.Wrap(err, "failed to create cache directory")
	}

	l := &Local{
		root:  root,
		index: make(map[digest.Digest]domain.CacheEntry),
	}
	if err := l.loadIndex(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Local) loadIndex() error {
	//nolint:gosec // Path is cleaned and owned by this store
	data, err := os.ReadFile(filepath.Join(l.root, indexFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return zerr.Wrap(err, "failed to read cache index")
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &l.index); err != nil {
		// A corrupt index loses bookkeeping, not payloads. Start fresh.
		l.index = make(map[digest.Digest]domain.CacheEntry)
	}
	return nil
}

// saveIndex writes the index atomically. Callers hold l.mu.
func (l *Local) saveIndex() error {
	data, err := json.MarshalIndent(l.index, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal cache index")
	}

	path := filepath.Join(l.root, indexFile)
	tmp := path + ".tmp"
	//nolint:gosec // Path is cleaned and owned by this store
	if err := os.WriteFile(tmp, data, domain.FilePerm); err != nil {
		return zerr.Wrap(err, "failed to write cache index")
	}
	if err := os.Rename(tmp, path); err != nil {
		return zerr.Wrap(err, "failed to commit cache index")
	}
	return nil
}

func (l *Local) objectPath(d digest.Digest) string {
	return filepath.Join(l.root, "objects", d.Algorithm().String(), d.Encoded())
}

// Has reports whether the digest is indexed.
func (l *Local) Has(d digest.Digest) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[d]
	return ok
}

// Get reads the payload for the digest and verifies it before returning.
// A payload that no longer matches its digest is treated as corruption,
// never as a hit.
func (l *Local) Get(d digest.Digest) (domain.Artifact, error) {
	l.mu.RLock()
	entry, ok := l.index[d]
	l.mu.RUnlock()
	if !ok {
		return domain.Artifact{}, domain.Tag(domain.ErrCacheMiss, "digest", d.String())
	}

	//nolint:gosec // Object paths are derived from hex digests
	data, err := os.ReadFile(filepath.Join(l.root, entry.Path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Artifact{}, domain.Tag(domain.ErrCacheMiss, "digest", d.String())
		}
		return domain.Artifact{}, zerr.Wrap(err, "failed to read cache object")
	}

	artifact := domain.Artifact{Digest: d, Data: data}
	if err := artifact.Verify(); err != nil {
		return domain.Artifact{}, err
	}
	return artifact, nil
}

// Put stores the artifact under its digest. Writes go to a temp file and
// are renamed into place, so readers never observe partial objects.
// Storing a digest that is already present and intact is a no-op; a stored
// object that fails verification is overwritten with the new payload.
func (l *Local) Put(a domain.Artifact) error {
	muAny, _ := l.writeLocks.LoadOrStore(a.Digest, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if l.Has(a.Digest) {
		if _, err := l.Get(a.Digest); err == nil {
			return nil
		}
	}

	path := l.objectPath(a.Digest)
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create cache object directory")
	}

	tmp := path + ".tmp"
	//nolint:gosec // Object paths are derived from hex digests
	if err := os.WriteFile(tmp, a.Data, domain.FilePerm); err != nil {
		return zerr.Wrap(err, "failed to write cache object")
	}
	if err := os.Rename(tmp, path); err != nil {
		return zerr.Wrap(err, "failed to commit cache object")
	}

	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return zerr.Wrap(err, "failed to resolve cache object path")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.index[a.Digest] = domain.CacheEntry{
		Digest:    a.Digest,
		Path:      rel,
		Size:      int64(len(a.Data)),
		CreatedAt: time.Now().UTC(),
	}
	return l.saveIndex()
}

// GC removes entries older than maxAge, then evicts oldest-first until the
// store fits in maxBytes. A zero value disables the respective bound.
func (l *Local) GC(maxAge time.Duration, maxBytes int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	victims := make([]domain.CacheEntry, 0)
	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge)
		for _, entry := range l.index {
			if entry.CreatedAt.Before(cutoff) {
				victims = append(victims, entry)
			}
		}
	}
	for _, v := range victims {
		delete(l.index, v.Digest)
	}

	if maxBytes > 0 {
		var total int64
		survivors := make([]domain.CacheEntry, 0, len(l.index))
		for _, entry := range l.index {
			total += entry.Size
			survivors = append(survivors, entry)
		}
		sort.Slice(survivors, func(i, j int) bool {
			return survivors[i].CreatedAt.Before(survivors[j].CreatedAt)
		})
		for _, entry := range survivors {
			if total <= maxBytes {
				break
			}
			delete(l.index, entry.Digest)
			victims = append(victims, entry)
			total -= entry.Size
		}
	}

	for _, v := range victims {
		if err := os.Remove(filepath.Join(l.root, v.Path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, zerr.Wrap(err, "failed to remove cache object")
		}
	}

	if len(victims) == 0 {
		return 0, nil
	}
	if err := l.saveIndex(); err != nil {
		return 0, err
	}
	return len(victims), nil
}
