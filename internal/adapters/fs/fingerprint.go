package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"runtime"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/core/ports"
	"golang.org/x/sync/errgroup"
)

// chunkSize bounds memory use when hashing large files. Each chunk is
// digested on its own and the chunk digests are folded into the file digest
// in read order.
const chunkSize = 64 * 1024

var _ ports.Fingerprinter = (*Fingerprinter)(nil)

// Fingerprinter derives deterministic digests for files and directory
// subtrees.
type Fingerprinter struct {
	walker  *Walker
	cache   *StatCache
	workers int
}

// NewFingerprinter creates a Fingerprinter fanning out across NumCPU
// workers.
func NewFingerprinter(walker *Walker, cache *StatCache) *Fingerprinter {
	return &Fingerprinter{
		walker:  walker,
		cache:   cache,
		workers: runtime.NumCPU(),
	}
}

// FingerprintBytes digests a raw payload.
func (f *Fingerprinter) FingerprintBytes(data []byte) digest.Digest {
	return digest.FromBytes(data)
}

// FingerprintPath digests a file or a directory subtree.
//
// For a directory, per-file hashing fans out across workers since any two
// files are independent; the final combination step re-serializes results
// into the walker's deterministic order before the aggregate hash, so
// scheduling order never leaks into the digest. Each file contributes its
// relative path alongside its content digest, which makes pure renames
// visible as changes.
func (f *Fingerprinter) FingerprintPath(ctx context.Context, path string, rules ports.IgnoreRules) (digest.Digest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", filesystemError(err, path)
	}

	if !info.IsDir() {
		return f.fileDigest(path)
	}

	files, err := f.walker.Files(path, rules)
	if err != nil {
		return "", err
	}

	digests := make([]digest.Digest, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i, rel := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := f.fileDigest(path + string(os.PathSeparator) + rel)
			if err != nil {
				return err
			}
			digests[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	digester := digest.SHA256.Digester()
	h := digester.Hash()
	for i, rel := range files {
		_, _ = h.Write([]byte(rel))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(digests[i]))
		_, _ = h.Write([]byte{0})
	}
	return digester.Digest(), nil
}

// fileDigest hashes one file's content in fixed-size chunks.
func (f *Fingerprinter) fileDigest(path string) (digest.Digest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", filesystemError(err, path)
	}
	if f.cache != nil {
		if d, ok := f.cache.Lookup(path, info); ok {
			return d, nil
		}
	}

	file, err := os.Open(path) //nolint:gosec // path comes from the walked build context
	if err != nil {
		return "", filesystemError(err, path)
	}
	defer file.Close() //nolint:errcheck // read-only file

	d, err := digestChunks(file)
	if err != nil {
		return "", filesystemError(err, path)
	}
	if f.cache != nil {
		f.cache.Store(path, info, d)
	}
	return d, nil
}

// digestChunks folds fixed-size chunk digests into one content digest.
// Chunk boundaries are pinned with io.ReadFull so short reads from the
// source cannot shift them.
func digestChunks(r io.Reader) (digest.Digest, error) {
	digester := digest.SHA256.Digester()
	h := digester.Hash()
	buf := make([]byte, chunkSize)
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			chunk := digest.FromBytes(buf[:n])
			_, _ = h.Write([]byte(chunk))
			_, _ = h.Write([]byte{0})
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return "", readErr
		}
	}
	return digester.Digest(), nil
}
