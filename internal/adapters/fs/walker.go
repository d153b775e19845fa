package fs

import (
	iofs "io/fs"
	"path/filepath"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
)

// filesystemError wraps an I/O failure as domain.ErrFilesystem, keeping the
// sentinel identity for errors.Is while carrying the path and cause.
func filesystemError(err error, path string) error {
	return zerr.With(domain.Tag(domain.ErrFilesystem, "path", path), "cause", err.Error())
}

// Walker enumerates the files of a build context in deterministic order.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// Files returns the root-relative paths of all files under root that are
// not excluded by the ignore rules. filepath.WalkDir visits entries in
// lexical order, so the result is deterministic across runs and platforms.
// Any unreadable entry aborts the walk with domain.ErrFilesystem; partial
// listings are never returned.
func (w *Walker) Files(root string, rules ports.IgnoreRules) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return filesystemError(err, path)
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return filesystemError(relErr, path)
		}
		if rel == "." {
			return nil
		}

		// Version control metadata never participates in fingerprints.
		if d.IsDir() && (d.Name() == ".git" || d.Name() == ".jj") {
			return filepath.SkipDir
		}

		if rules != nil && rules.Ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
